package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// loadValues collects the entries of a values block. Items are either inline
// mappings or paths to *.values.yaml files relative to baseDir. It returns
// the value files it read.
func loadValues(block *yaml.Node, baseDir string, values map[string]*yaml.Node) ([]string, error) {
	if block == nil {
		return nil, nil
	}
	if block.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("values block must be a sequence (line %d)", block.Line)
	}
	var files []string
	for _, item := range block.Content {
		if item == nil {
			continue
		}
		switch item.Kind {
		case yaml.ScalarNode:
			ref := strings.TrimSpace(item.Value)
			if ref == "" {
				continue
			}
			path := ref
			if !filepath.IsAbs(path) {
				path = filepath.Join(baseDir, ref)
			}
			loaded, err := loadValueFile(path)
			if err != nil {
				return nil, fmt.Errorf("load values %s: %w", ref, err)
			}
			for name, node := range loaded {
				values[name] = node
			}
			files = append(files, path)
		case yaml.MappingNode:
			for name, node := range mappingValues(item) {
				values[name] = node
			}
		default:
			return nil, fmt.Errorf("values entry at line %d must be a string path or mapping", item.Line)
		}
	}
	return files, nil
}

func isValuesFile(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".values.yaml") || strings.HasSuffix(lower, ".values.yml")
}

func loadValueFile(path string) (map[string]*yaml.Node, error) {
	if !isValuesFile(filepath.Base(path)) {
		return nil, fmt.Errorf("values file %s must end with .values.yaml or .values.yml", path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var document yaml.Node
	if err := yaml.Unmarshal(raw, &document); err != nil {
		return nil, err
	}
	if len(document.Content) == 0 || document.Content[0] == nil {
		return nil, fmt.Errorf("values file %s is empty", path)
	}
	root := document.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("values file %s must contain a mapping", path)
	}
	return mappingValues(root), nil
}

func mappingValues(node *yaml.Node) map[string]*yaml.Node {
	result := make(map[string]*yaml.Node)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		if key == nil || key.Kind != yaml.ScalarNode {
			continue
		}
		name := strings.TrimSpace(key.Value)
		if name == "" {
			continue
		}
		result[name] = cloneNode(node.Content[i+1])
	}
	return result
}

// resolveValueTags replaces every scalar tagged !name with a copy of the
// value called name.
func resolveValueTags(node *yaml.Node, values map[string]*yaml.Node) error {
	if node == nil {
		return nil
	}
	switch node.Kind {
	case yaml.DocumentNode, yaml.SequenceNode, yaml.MappingNode:
		for _, child := range node.Content {
			if err := resolveValueTags(child, values); err != nil {
				return err
			}
		}
	case yaml.ScalarNode:
		if !strings.HasPrefix(node.Tag, "!") || strings.HasPrefix(node.Tag, "!!") {
			return nil
		}
		key := strings.TrimPrefix(node.Tag, "!")
		if key == "" {
			return fmt.Errorf("invalid value reference at line %d", node.Line)
		}
		value, ok := values[key]
		if !ok || value == nil {
			return fmt.Errorf("unknown value reference %q at line %d", key, node.Line)
		}
		line, column := node.Line, node.Column
		*node = *cloneNode(value)
		node.Line, node.Column = line, column
	}
	return nil
}

func copyValues(src map[string]*yaml.Node) map[string]*yaml.Node {
	dst := make(map[string]*yaml.Node, len(src))
	for key, node := range src {
		dst[key] = cloneNode(node)
	}
	return dst
}

func cloneNode(n *yaml.Node) *yaml.Node {
	if n == nil {
		return nil
	}
	clone := *n
	if len(n.Content) > 0 {
		clone.Content = make([]*yaml.Node, len(n.Content))
		for i, child := range n.Content {
			clone.Content[i] = cloneNode(child)
		}
	}
	return &clone
}
