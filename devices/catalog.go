// Package devices holds the device types that can be attached to a Modbus TCP
// master and emits their construction.
package devices

import (
	"fmt"
	"sort"
	"strings"

	"github.com/timzifer/modbustcp/codegen"
	"github.com/timzifer/modbustcp/config"
	"github.com/timzifer/modbustcp/modbustcp"
	"github.com/timzifer/modbustcp/schema"
)

// Type describes one kind of device.
type Type struct {
	Name  string
	Class string
	// Schema fixes whether the address is required or defaulted.
	Schema modbustcp.DeviceSchema
	// Component marks types that take part in the component lifecycle.
	Component bool
	// Periods lists settings keys that hold time periods; they are emitted
	// as milliseconds.
	Periods []string
}

// Catalog maps type names onto device types.
type Catalog struct {
	types map[string]Type
}

// NewCatalog builds a catalog from the given types.
func NewCatalog(types ...Type) (*Catalog, error) {
	c := &Catalog{types: make(map[string]Type, len(types))}
	for _, t := range types {
		if err := c.Register(t); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register adds a device type.
func (c *Catalog) Register(t Type) error {
	name := strings.TrimSpace(t.Name)
	if name == "" {
		return fmt.Errorf("device type name must not be empty")
	}
	if t.Class == "" {
		return fmt.Errorf("device type %s: class must not be empty", name)
	}
	if _, exists := c.types[name]; exists {
		return fmt.Errorf("device type %s already registered", name)
	}
	t.Name = name
	c.types[name] = t
	return nil
}

// Lookup returns the type registered under name.
func (c *Catalog) Lookup(name string) (Type, bool) {
	t, ok := c.types[name]
	return t, ok
}

// Names lists the registered type names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.types))
	for name := range c.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks a device entry of this type: its address and master
// reference through the type's DeviceSchema, then its settings against the
// type's registered CUE schema.
func (t Type) Validate(path schema.Path, in modbustcp.DeviceInput, masters modbustcp.Masters) (modbustcp.DeviceConfig, error) {
	cfg, err := t.Schema.Validate(path, in, masters)
	if err != nil {
		return modbustcp.DeviceConfig{}, err
	}
	settingsPath := path.Key(modbustcp.KeySettings)
	if err := config.ValidateSettings(t.Name, settingsPath, in.Line, in.Settings); err != nil {
		return modbustcp.DeviceConfig{}, err
	}
	for _, key := range sortedKeys(in.Settings) {
		if _, err := settingArg(t, key, in.Settings[key]); err != nil {
			return modbustcp.DeviceConfig{}, schema.Errorf(settingsPath.Key(key), in.Line, "%s", err.Error())
		}
	}
	return cfg, nil
}

// Emit constructs the device, applies its settings and attaches it to its
// master.
func Emit(b *codegen.Builder, t Type, cfg modbustcp.DeviceConfig) (codegen.Handle, error) {
	h, err := b.New(cfg.ID, t.Class)
	if err != nil {
		return codegen.Handle{}, err
	}
	if t.Component {
		b.RegisterComponent(h)
	}
	if err := emitSettings(b, h, t, cfg.Settings); err != nil {
		return codegen.Handle{}, err
	}
	if err := modbustcp.RegisterDevice(b, h, cfg); err != nil {
		return codegen.Handle{}, err
	}
	return h, nil
}

func emitSettings(b *codegen.Builder, h codegen.Handle, t Type, settings map[string]any) error {
	for _, key := range sortedKeys(settings) {
		arg, err := settingArg(t, key, settings[key])
		if err != nil {
			return schema.Errorf(schema.Path{h.ID, modbustcp.KeySettings, key}, 0, "%s", err.Error())
		}
		b.Call(h, "set_"+key, arg)
	}
	return nil
}

func sortedKeys(settings map[string]any) []string {
	keys := make([]string, 0, len(settings))
	for key := range settings {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func settingArg(t Type, key string, value any) (codegen.Arg, error) {
	for _, period := range t.Periods {
		if period != key {
			continue
		}
		text, ok := value.(string)
		if !ok {
			return codegen.Arg{}, fmt.Errorf("expected a time period, got %T", value)
		}
		d, err := schema.PositivePeriodMillis(text, 0)
		if err != nil {
			return codegen.Arg{}, err
		}
		return codegen.Int(d.Milliseconds()), nil
	}
	switch v := value.(type) {
	case string:
		return codegen.String(v), nil
	case bool:
		return codegen.Bool(v), nil
	case int:
		return codegen.Int(int64(v)), nil
	case int64:
		return codegen.Int(v), nil
	case uint64:
		return codegen.Int(int64(v)), nil
	case float64:
		return codegen.Float(v), nil
	default:
		return codegen.Arg{}, fmt.Errorf("unsupported setting value of type %T", value)
	}
}
