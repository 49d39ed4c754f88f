package reload

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/timzifer/modbustcp/config"
)

type fileState struct {
	modTime time.Time
	size    int64
	dir     bool
}

// Watcher keeps track of configuration source files and detects modifications.
type Watcher struct {
	mu    sync.Mutex
	files map[string]fileState
}

// NewWatcher builds a watcher tracking every file that contributed to doc.
func NewWatcher(root string, doc *config.Document) (*Watcher, error) {
	watcher := &Watcher{}
	if err := watcher.Update(root, doc); err != nil {
		return nil, err
	}
	return watcher, nil
}

// Update rebuilds the tracked file list from doc. A root directory is
// tracked by its modification time so that added or removed files are
// noticed.
func (w *Watcher) Update(root string, doc *config.Document) error {
	if w == nil {
		return nil
	}
	paths := config.SourceFiles(doc)
	states := make(map[string]fileState, len(paths)+1)
	if root != "" {
		if abs, err := filepath.Abs(root); err == nil {
			if info, err := os.Stat(abs); err == nil {
				states[abs] = stateOf(info)
			}
		}
	}
	for _, path := range uniquePaths(paths) {
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		states[path] = stateOf(info)
	}
	w.mu.Lock()
	w.files = states
	w.mu.Unlock()
	return nil
}

// Check reports the files that changed since the last snapshot.
func (w *Watcher) Check() ([]string, error) {
	if w == nil {
		return nil, nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	changed := make([]string, 0)
	for path, state := range w.files {
		info, err := os.Stat(path)
		if err != nil {
			changed = append(changed, path)
			continue
		}
		current := stateOf(info)
		if current.dir != state.dir || current.modTime.After(state.modTime) {
			changed = append(changed, path)
			continue
		}
		if !state.dir && current.size != state.size {
			changed = append(changed, path)
		}
	}
	sort.Strings(changed)
	return changed, nil
}

func stateOf(info os.FileInfo) fileState {
	return fileState{modTime: info.ModTime(), size: info.Size(), dir: info.IsDir()}
}

func uniquePaths(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	result := make([]string, 0, len(paths))
	for _, path := range paths {
		if path == "" {
			continue
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		result = append(result, path)
	}
	return result
}
