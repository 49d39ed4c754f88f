package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/timzifer/modbustcp/schema"
)

// LokiConfig configures optional Loki integration for logging.
type LokiConfig struct {
	Enabled bool              `yaml:"enabled"`
	URL     string            `yaml:"url"`
	Labels  map[string]string `yaml:"labels"`
}

// LoggingConfig encapsulates logging options.
type LoggingConfig struct {
	Level  string     `yaml:"level"`
	Format string     `yaml:"format,omitempty"`
	Loki   LokiConfig `yaml:"loki"`
}

// TelemetryConfig configures metrics collection.
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider,omitempty"`
	// Listen exposes /metrics on this address in watch mode.
	Listen string `yaml:"listen,omitempty"`
}

// OutputConfig sets defaults for the generated program. Command line flags
// take precedence.
type OutputConfig struct {
	Format   string `yaml:"format,omitempty"`
	Path     string `yaml:"path,omitempty"`
	Function string `yaml:"function,omitempty"`
	Header   string `yaml:"header,omitempty"`
}

// ModuleReference records which file declared an entry.
type ModuleReference struct {
	File    string `json:"file,omitempty"`
	Package string `json:"package,omitempty"`
}

// ModuleInclude describes a referenced configuration module.
type ModuleInclude struct {
	Path string
}

// UnmarshalYAML accepts includes as plain strings or as {path: ...} mappings.
func (m *ModuleInclude) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return errors.New("module include node is nil")
	}
	switch value.Kind {
	case yaml.ScalarNode:
		m.Path = strings.TrimSpace(value.Value)
		return nil
	case yaml.MappingNode:
		var raw struct {
			Path string `yaml:"path"`
		}
		if err := value.Decode(&raw); err != nil {
			return fmt.Errorf("decode module include: %w", err)
		}
		if strings.TrimSpace(raw.Path) == "" {
			return errors.New("module include missing path")
		}
		m.Path = strings.TrimSpace(raw.Path)
		return nil
	default:
		return fmt.Errorf("unsupported module include at line %d", value.Line)
	}
}

// Entry is one undecoded master or device declaration. Decoding is left to
// the component that owns the schema.
type Entry struct {
	Node   *yaml.Node
	Source ModuleReference
}

// Line returns the line the entry starts at.
func (e Entry) Line() int {
	if e.Node == nil {
		return 0
	}
	return e.Node.Line
}

// Document is the merged configuration of all loaded files.
type Document struct {
	Package   string
	Logging   LoggingConfig
	Telemetry TelemetryConfig
	Output    OutputConfig
	Masters   []Entry
	Devices   []Entry
	Source    ModuleReference
	// Files lists every file that contributed, in load order.
	Files []string
}

// Root keys of a configuration file.
const (
	keyPackage   = "package"
	keyLogging   = "logging"
	keyTelemetry = "telemetry"
	keyOutput    = "output"
	keyModules   = "modules"
	keyValues    = "values"
	keyModbusTCP = "modbustcp"
	keyDevices   = "devices"
)

var rootKeys = []string{keyPackage, keyLogging, keyTelemetry, keyOutput, keyModules, keyValues, keyModbusTCP, keyDevices}

type fileHeader struct {
	Package   string          `yaml:"package"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Output    OutputConfig    `yaml:"output"`
	Modules   []ModuleInclude `yaml:"modules"`
}

type loader struct {
	visited map[string]struct{}
}

// Load reads a configuration file, or every YAML file of a directory, and
// resolves includes and value tags.
func Load(path string) (*Document, error) {
	if path == "" {
		return nil, errors.New("config path must not be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat config path: %w", err)
	}
	l := &loader{visited: make(map[string]struct{})}
	doc := &Document{Source: ModuleReference{File: abs}}
	if info.IsDir() {
		err = l.loadDir(abs, doc, nil)
	} else {
		err = l.loadFile(abs, doc, nil)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Parse decodes a single in-memory document. Includes are resolved relative
// to the working directory.
func Parse(name string, raw []byte) (*Document, error) {
	l := &loader{visited: make(map[string]struct{})}
	doc := &Document{Source: ModuleReference{File: name}}
	if err := l.parse(name, raw, doc, nil); err != nil {
		return nil, err
	}
	return doc, nil
}

func (l *loader) loadFile(path string, doc *Document, values map[string]*yaml.Node) error {
	if _, ok := l.visited[path]; ok {
		return fmt.Errorf("config include cycle detected at %s", path)
	}
	l.visited[path] = struct{}{}
	defer delete(l.visited, path)

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	return l.parse(path, raw, doc, values)
}

func (l *loader) loadDir(path string, doc *Document, values map[string]*yaml.Node) error {
	if _, ok := l.visited[path]; ok {
		return fmt.Errorf("config include cycle detected at %s", path)
	}
	l.visited[path] = struct{}{}
	defer delete(l.visited, path)

	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("read config dir %s: %w", path, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || isValuesFile(name) {
			continue
		}
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if err := l.loadFile(filepath.Join(path, name), doc, values); err != nil {
			return err
		}
	}
	return nil
}

func (l *loader) parse(path string, raw []byte, doc *Document, inherited map[string]*yaml.Node) error {
	var document yaml.Node
	if err := yaml.Unmarshal(raw, &document); err != nil {
		return fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	if len(document.Content) == 0 || document.Content[0] == nil {
		return fmt.Errorf("config %s is empty", path)
	}
	root := document.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("config %s: top-level YAML document must be a mapping", path)
	}
	top, err := schema.OpenMapping(nil, root, rootKeys...)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	values := copyValues(inherited)
	valueFiles, err := loadValues(top.Node(keyValues), filepath.Dir(path), values)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := resolveValueTags(root, values); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	var header fileHeader
	if err := root.Decode(&header); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	pkg := strings.TrimSpace(header.Package)
	if pkg != "" {
		if err := schema.Identifier(pkg); err != nil {
			return fmt.Errorf("%s: package: %w", path, err)
		}
		if doc.Package == "" {
			doc.Package = pkg
		}
	}
	ref := ModuleReference{File: path, Package: pkg}

	mergeHeader(doc, header)
	doc.Files = append(doc.Files, path)
	doc.Files = append(doc.Files, valueFiles...)

	masters, err := entriesOf(top.Node(keyModbusTCP), true)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", path, keyModbusTCP, err)
	}
	for _, n := range masters {
		doc.Masters = append(doc.Masters, Entry{Node: n, Source: ref})
	}
	devices, err := entriesOf(top.Node(keyDevices), false)
	if err != nil {
		return fmt.Errorf("%s: %s: %w", path, keyDevices, err)
	}
	for _, n := range devices {
		doc.Devices = append(doc.Devices, Entry{Node: n, Source: ref})
	}

	baseDir := filepath.Dir(path)
	for _, module := range header.Modules {
		if module.Path == "" {
			continue
		}
		modulePath := module.Path
		if !filepath.IsAbs(modulePath) {
			modulePath = filepath.Join(baseDir, modulePath)
		}
		info, err := os.Stat(modulePath)
		if err != nil {
			return fmt.Errorf("load module %s: %w", module.Path, err)
		}
		if info.IsDir() {
			err = l.loadDir(modulePath, doc, values)
		} else {
			err = l.loadFile(modulePath, doc, values)
		}
		if err != nil {
			return fmt.Errorf("load module %s: %w", module.Path, err)
		}
	}
	return nil
}

// entriesOf accepts a sequence of mappings or, when single is allowed, one
// mapping standing for a one-element list.
func entriesOf(node *yaml.Node, single bool) ([]*yaml.Node, error) {
	if node == nil {
		return nil, nil
	}
	switch node.Kind {
	case yaml.SequenceNode:
		return node.Content, nil
	case yaml.MappingNode:
		if single {
			return []*yaml.Node{node}, nil
		}
	}
	if single {
		return nil, fmt.Errorf("expected a mapping or a list of mappings (line %d)", node.Line)
	}
	return nil, fmt.Errorf("expected a list of mappings (line %d)", node.Line)
}

func mergeHeader(dst *Document, src fileHeader) {
	if src.Logging.Level != "" {
		dst.Logging.Level = src.Logging.Level
	}
	if src.Logging.Format != "" {
		dst.Logging.Format = src.Logging.Format
	}
	if src.Logging.Loki.Enabled || src.Logging.Loki.URL != "" || len(src.Logging.Loki.Labels) > 0 {
		dst.Logging.Loki = src.Logging.Loki
	}
	if src.Telemetry != (TelemetryConfig{}) {
		dst.Telemetry = src.Telemetry
	}
	if src.Output.Format != "" {
		dst.Output.Format = src.Output.Format
	}
	if src.Output.Path != "" {
		dst.Output.Path = src.Output.Path
	}
	if src.Output.Function != "" {
		dst.Output.Function = src.Output.Function
	}
	if src.Output.Header != "" {
		dst.Output.Header = src.Output.Header
	}
}
