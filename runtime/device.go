package runtime

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// Device is the runtime counterpart of a device attached to a master. Setters
// other than set_parent and set_address are kept as settings.
type Device struct {
	id       string
	parent   *Master
	address  uint8
	priority *float64
	settings map[string]any
}

// NewDevice returns an unattached device. It satisfies Constructor.
func NewDevice(id string, _ zerolog.Logger) Object {
	return &Device{id: id, settings: make(map[string]any)}
}

// ID returns the variable name of the device.
func (d *Device) ID() string { return d.id }

// Parent returns the master the device is attached to.
func (d *Device) Parent() *Master { return d.parent }

// Address returns the unit id of the device.
func (d *Device) Address() uint8 { return d.address }

// Setting returns the value applied through set_<key>.
func (d *Device) Setting(key string) (any, bool) {
	v, ok := d.settings[key]
	return v, ok
}

// Invoke implements Object.
func (d *Device) Invoke(method string, args []any) error {
	switch method {
	case "set_parent":
		if err := arity(args, 1); err != nil {
			return err
		}
		parent, ok := args[0].(*Master)
		if !ok {
			return fmt.Errorf("expected a master, got %T", args[0])
		}
		d.parent = parent
	case "set_address":
		addr, err := uintArg(args, math.MaxUint8)
		if err != nil {
			return err
		}
		d.address = uint8(addr)
	case "set_setup_priority":
		priority, err := floatArg(args)
		if err != nil {
			return err
		}
		d.priority = &priority
	default:
		key, ok := strings.CutPrefix(method, "set_")
		if !ok || key == "" {
			return fmt.Errorf("unknown method %s", method)
		}
		if err := arity(args, 1); err != nil {
			return err
		}
		d.settings[key] = args[0]
	}
	return nil
}

// SetupPriority implements Component.
func (d *Device) SetupPriority() float64 {
	if d.priority != nil {
		return *d.priority
	}
	return 0
}

// Setup implements Component.
func (d *Device) Setup(context.Context) error {
	if d.parent == nil {
		return fmt.Errorf("device %s has no parent", d.id)
	}
	return nil
}

// DumpConfig implements Component.
func (d *Device) DumpConfig(logger zerolog.Logger) {
	keys := make([]string, 0, len(d.settings))
	for key := range d.settings {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	dict := zerolog.Dict()
	for _, key := range keys {
		dict = dict.Interface(key, d.settings[key])
	}
	parent := ""
	if d.parent != nil {
		parent = d.parent.ID()
	}
	logger.Info().
		Str("id", d.id).
		Str("parent", parent).
		Uint8("address", d.address).
		Dict("settings", dict).
		Msg("Modbus device")
}
