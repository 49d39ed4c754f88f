package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/timzifer/modbustcp/schema"
)

// SettingsSchema is a CUE definition constraining the settings block of one
// device type.
type SettingsSchema struct {
	// Source is a complete CUE file.
	Source string
	// Definition selects the definition inside Source, e.g. "#Settings".
	Definition string
}

type compiledSchema struct {
	ctx *cue.Context
	def cue.Value
}

var (
	schemaMu sync.Mutex
	schemas  = make(map[string]compiledSchema)
)

// RegisterSettingsSchema compiles and registers the settings schema of a
// device type. Registering the same type twice is an error.
func RegisterSettingsSchema(deviceType string, s SettingsSchema) error {
	name := strings.TrimSpace(deviceType)
	if name == "" {
		return errors.New("settings schema: device type must not be empty")
	}
	definition := strings.TrimSpace(s.Definition)
	if definition == "" {
		definition = "#Settings"
	}
	ctx := cuecontext.New()
	file := ctx.CompileString(s.Source, cue.Filename(name+".cue"))
	if err := file.Err(); err != nil {
		return fmt.Errorf("compile settings schema for %s: %w", name, err)
	}
	def := file.LookupPath(cue.ParsePath(definition))
	if !def.Exists() {
		return fmt.Errorf("settings schema for %s: definition %s not found", name, definition)
	}

	schemaMu.Lock()
	defer schemaMu.Unlock()
	if _, exists := schemas[name]; exists {
		return fmt.Errorf("settings schema for %s already registered", name)
	}
	schemas[name] = compiledSchema{ctx: ctx, def: def}
	return nil
}

// MustRegisterSettingsSchema is RegisterSettingsSchema for package init.
func MustRegisterSettingsSchema(deviceType string, s SettingsSchema) {
	if err := RegisterSettingsSchema(deviceType, s); err != nil {
		panic(err)
	}
}

// SettingsSchemaTypes lists the device types with a registered schema.
func SettingsSchemaTypes() []string {
	schemaMu.Lock()
	defer schemaMu.Unlock()
	names := make([]string, 0, len(schemas))
	for name := range schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateSettings checks settings against the schema of deviceType. Types
// without a schema accept no settings at all.
func ValidateSettings(deviceType string, path schema.Path, line int, settings map[string]any) error {
	schemaMu.Lock()
	defer schemaMu.Unlock()
	compiled, ok := schemas[deviceType]
	if !ok {
		if len(settings) > 0 {
			return schema.Errorf(path, line, "device type %q accepts no settings", deviceType)
		}
		return nil
	}
	if settings == nil {
		settings = map[string]any{}
	}
	value := compiled.ctx.Encode(settings)
	if err := value.Err(); err != nil {
		return schema.Errorf(path, line, "encode settings: %v", err)
	}
	unified := compiled.def.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return settingsError(path, line, err)
	}
	return nil
}

func settingsError(path schema.Path, line int, err error) error {
	list := cueerrors.Errors(err)
	if len(list) == 0 {
		return schema.Errorf(path, line, "%v", err)
	}
	first := list[0]
	located := path
	for _, segment := range first.Path() {
		if strings.HasPrefix(segment, "#") {
			continue
		}
		located = located.Key(segment)
	}
	format, args := first.Msg()
	return schema.Errorf(located, line, format, args...)
}

// ResetSettingsSchemasForTest clears the registry. This helper is intended for tests only.
func ResetSettingsSchemasForTest() {
	schemaMu.Lock()
	schemas = make(map[string]compiledSchema)
	schemaMu.Unlock()
}
