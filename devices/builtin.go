package devices

import (
	"sync"

	"github.com/timzifer/modbustcp/config"
	"github.com/timzifer/modbustcp/modbustcp"
)

// Built-in device type names.
const (
	ModbusController = "modbus_controller"
	SDMMeter         = "sdm_meter"
	Generic          = "generic"
)

const modbusControllerSettings = `package modbus_controller

#Settings: {
	update_interval?:      string
	command_throttle?:     string
	offline_skip_updates?: int & >=0 & <=65535
}
`

const sdmMeterSettings = `package sdm_meter

#Settings: {
	update_interval?: string
	phases?:          1 | 3
}
`

func init() {
	config.MustRegisterSettingsSchema(ModbusController, config.SettingsSchema{Source: modbusControllerSettings})
	config.MustRegisterSettingsSchema(SDMMeter, config.SettingsSchema{Source: sdmMeterSettings})
}

// Builtin returns the device types shipped with the generator.
func Builtin() []Type {
	return []Type{
		{
			Name:      ModbusController,
			Class:     "modbus_controller::ModbusController",
			Schema:    modbustcp.NewDeviceSchemaWithDefault(0x01),
			Component: true,
			Periods:   []string{"update_interval", "command_throttle"},
		},
		{
			Name:      SDMMeter,
			Class:     "sdm_meter::SDMMeter",
			Schema:    modbustcp.NewDeviceSchemaWithDefault(0x01),
			Component: true,
			Periods:   []string{"update_interval"},
		},
		{
			Name:   Generic,
			Class:  modbustcp.Namespace + "::GenericDevice",
			Schema: modbustcp.NewDeviceSchema(),
		},
	}
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
)

// Default returns a shared catalog holding the built-in types.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := NewCatalog(Builtin()...)
		if err != nil {
			panic(err)
		}
		defaultCatalog = c
	})
	return defaultCatalog
}
