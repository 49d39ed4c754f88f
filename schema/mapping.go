package schema

import (
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mapping gives typed, key-by-key access to a YAML mapping node. Keys outside
// the allowed set are rejected when the mapping is opened.
type Mapping struct {
	path   Path
	line   int
	values map[string]*yaml.Node
	keys   map[string]*yaml.Node
}

// OpenMapping validates that node is a mapping that only uses allowed keys.
// A nil node yields an empty mapping.
func OpenMapping(path Path, node *yaml.Node, allowed ...string) (*Mapping, error) {
	m := &Mapping{
		path:   path,
		values: make(map[string]*yaml.Node),
		keys:   make(map[string]*yaml.Node),
	}
	if node == nil {
		return m, nil
	}
	m.line = node.Line
	if node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	if node.Kind != yaml.MappingNode {
		return nil, Errorf(path, node.Line, "expected a mapping")
	}
	permitted := make(map[string]struct{}, len(allowed))
	for _, key := range allowed {
		permitted[key] = struct{}{}
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode := node.Content[i]
		if keyNode == nil || keyNode.Kind != yaml.ScalarNode {
			return nil, Errorf(path, node.Line, "mapping keys must be scalars")
		}
		key := strings.TrimSpace(keyNode.Value)
		if _, ok := permitted[key]; !ok {
			return nil, Errorf(path.Key(key), keyNode.Line, "[%s] is an invalid option, valid options are %s", key, describeKeys(allowed))
		}
		if _, dup := m.values[key]; dup {
			return nil, Errorf(path.Key(key), keyNode.Line, "duplicate key %q", key)
		}
		value := node.Content[i+1]
		if value != nil && value.Kind == yaml.AliasNode && value.Alias != nil {
			value = value.Alias
		}
		m.values[key] = value
		m.keys[key] = keyNode
	}
	return m, nil
}

func describeKeys(keys []string) string {
	sorted := append([]string(nil), keys...)
	sort.Strings(sorted)
	return "[" + strings.Join(sorted, ", ") + "]"
}

// Path returns the location of the mapping itself.
func (m *Mapping) Path() Path { return m.path }

// Line returns the source line of the mapping, or 0 when unknown.
func (m *Mapping) Line() int { return m.line }

// Has reports whether key is present and not null.
func (m *Mapping) Has(key string) bool {
	node, ok := m.values[key]
	return ok && node != nil && node.Tag != "!!null"
}

// Node returns the raw value of key.
func (m *Mapping) Node(key string) *yaml.Node {
	if !m.Has(key) {
		return nil
	}
	return m.values[key]
}

// LineOf returns the source line of key, falling back to the mapping line.
func (m *Mapping) LineOf(key string) int {
	if node, ok := m.keys[key]; ok && node != nil {
		return node.Line
	}
	return m.line
}

// Scalar returns the literal text of a scalar value. ok is false when the key
// is absent or null.
func (m *Mapping) Scalar(key string) (string, bool, error) {
	node := m.Node(key)
	if node == nil {
		return "", false, nil
	}
	if node.Kind != yaml.ScalarNode {
		return "", false, Errorf(m.path.Key(key), node.Line, "expected a scalar value")
	}
	return node.Value, true, nil
}

// String returns a trimmed string value.
func (m *Mapping) String(key string) (string, bool, error) {
	raw, ok, err := m.Scalar(key)
	if err != nil || !ok {
		return "", ok, err
	}
	return strings.TrimSpace(raw), true, nil
}

// Int returns an integer value. Hex literals are accepted.
func (m *Mapping) Int(key string) (int64, bool, error) {
	raw, ok, err := m.Scalar(key)
	if err != nil || !ok {
		return 0, ok, err
	}
	value, err := ParseInt(raw)
	if err != nil {
		return 0, true, Errorf(m.path.Key(key), m.Node(key).Line, "%s", err.Error())
	}
	return value, true, nil
}

// Float returns a floating point value.
func (m *Mapping) Float(key string) (float64, bool, error) {
	raw, ok, err := m.Scalar(key)
	if err != nil || !ok {
		return 0, ok, err
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, true, Errorf(m.path.Key(key), m.Node(key).Line, "expected a number, but cannot parse %q", raw)
	}
	return value, true, nil
}

// Required returns a SchemaError for a missing key.
func (m *Mapping) Required(key string) *SchemaError {
	return Errorf(m.path.Key(key), m.line, "required field missing")
}

// Fail builds a SchemaError located at key.
func (m *Mapping) Fail(key string, format string, args ...any) *SchemaError {
	return Errorf(m.path.Key(key), m.LineOf(key), format, args...)
}
