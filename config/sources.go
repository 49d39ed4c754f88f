package config

import (
	"path/filepath"
	"sort"
	"strings"
)

// SourceFiles returns the absolute, de-duplicated list of files that
// contributed to the document.
func SourceFiles(doc *Document) []string {
	if doc == nil {
		return nil
	}
	files := make(map[string]struct{})
	add := func(path string) {
		path = strings.TrimSpace(path)
		if path == "" {
			return
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		files[abs] = struct{}{}
	}
	for _, file := range doc.Files {
		add(file)
	}
	for _, entry := range doc.Masters {
		add(entry.Source.File)
	}
	for _, entry := range doc.Devices {
		add(entry.Source.File)
	}
	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}
