package devices

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/timzifer/modbustcp/codegen"
	"github.com/timzifer/modbustcp/modbustcp"
	"github.com/timzifer/modbustcp/schema"
)

func deviceInput(t *testing.T, src string) modbustcp.DeviceInput {
	t.Helper()
	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(src), &doc))
	in, err := modbustcp.DecodeDevice(devicePath(), doc.Content[0])
	require.NoError(t, err)
	return in
}

func devicePath() schema.Path { return schema.Path{"devices"}.Index(0) }

func builderWithMaster(t *testing.T) *codegen.Builder {
	t.Helper()
	b := codegen.NewBuilder()
	_, err := modbustcp.RegisterMaster(b, modbustcp.MasterConfig{
		ID:           "bus",
		Host:         netip.MustParseAddr("10.0.0.5"),
		Port:         modbustcp.DefaultPort,
		SendWaitTime: modbustcp.DefaultSendWaitTime,
	})
	require.NoError(t, err)
	return b
}

func TestDefaultCatalogTypes(t *testing.T) {
	c := Default()
	require.Equal(t, []string{Generic, ModbusController, SDMMeter}, c.Names())

	controller, ok := c.Lookup(ModbusController)
	require.True(t, ok)
	addr, hasDefault := controller.Schema.DefaultAddress()
	require.True(t, hasDefault)
	require.Equal(t, uint8(0x01), addr)

	generic, ok := c.Lookup(Generic)
	require.True(t, ok)
	_, hasDefault = generic.Schema.DefaultAddress()
	require.False(t, hasDefault)

	_, ok = c.Lookup("sdm120")
	require.False(t, ok)
}

func TestCatalogRegisterRejectsInvalidTypes(t *testing.T) {
	c, err := NewCatalog()
	require.NoError(t, err)
	require.Error(t, c.Register(Type{Class: "x::Y"}))
	require.Error(t, c.Register(Type{Name: "x"}))
	require.NoError(t, c.Register(Type{Name: " x ", Class: "x::Y"}))
	require.Error(t, c.Register(Type{Name: "x", Class: "x::Z"}))
	_, ok := c.Lookup("x")
	require.True(t, ok)

	_, err = NewCatalog(Type{Name: "a", Class: "a::A"}, Type{Name: "a", Class: "a::A"})
	require.Error(t, err)
}

func TestEmitControllerWithSettings(t *testing.T) {
	controller, _ := Default().Lookup(ModbusController)
	in := deviceInput(t, "id: boiler\ntype: modbus_controller\nsettings:\n  update_interval: 5s\n  offline_skip_updates: 3\n")

	cfg, err := controller.Validate(devicePath(), in, modbustcp.Masters{"bus"})
	require.NoError(t, err)
	require.Equal(t, uint8(0x01), cfg.Address)
	require.Equal(t, "bus", cfg.Master)

	b := builderWithMaster(t)
	_, err = Emit(b, controller, cfg)
	require.NoError(t, err)

	plan := b.Plan()
	tail := plan.Instructions[len(plan.Instructions)-7:]
	require.Equal(t, []codegen.Instruction{
		{Kind: codegen.KindNew, Target: "boiler", Class: "modbus_controller::ModbusController"},
		{Kind: codegen.KindRegisterComponent, Target: "boiler"},
		{Kind: codegen.KindCall, Target: "boiler", Method: "set_offline_skip_updates", Args: []codegen.Arg{codegen.Int(3)}},
		{Kind: codegen.KindCall, Target: "boiler", Method: "set_update_interval", Args: []codegen.Arg{codegen.Int(5000)}},
		{Kind: codegen.KindCall, Target: "boiler", Method: "set_parent", Args: []codegen.Arg{{Kind: codegen.ArgRef, Ref: "bus"}}},
		{Kind: codegen.KindCall, Target: "boiler", Method: "set_address", Args: []codegen.Arg{codegen.Int(1)}},
		{Kind: codegen.KindCall, Target: "bus", Method: "register_device", Args: []codegen.Arg{{Kind: codegen.ArgRef, Ref: "boiler"}}},
	}, tail)
}

func TestEmitGenericDeviceIsNotAComponent(t *testing.T) {
	generic, _ := Default().Lookup(Generic)
	in := deviceInput(t, "id: relay\ntype: generic\naddress: 0x2A\n")

	cfg, err := generic.Validate(devicePath(), in, modbustcp.Masters{"bus"})
	require.NoError(t, err)

	b := builderWithMaster(t)
	_, err = Emit(b, generic, cfg)
	require.NoError(t, err)

	for _, inst := range b.Plan().Instructions {
		if inst.Target == "relay" {
			require.NotEqual(t, codegen.KindRegisterComponent, inst.Kind)
		}
	}
	calls := b.Plan().Calls("relay")
	require.Len(t, calls, 2)
	require.Equal(t, codegen.Int(42), calls[1].Args[0])
}

func TestValidateRejectsBadSettings(t *testing.T) {
	cases := []struct {
		name     string
		typeName string
		src      string
		path     string
	}{
		{"unknown key", SDMMeter, "id: m\nsettings:\n  colour: red\n", "devices[0].settings"},
		{"phases", SDMMeter, "id: m\nsettings:\n  phases: 2\n", "devices[0].settings"},
		{"bad period", ModbusController, "id: m\nsettings:\n  update_interval: soon\n", "devices[0].settings.update_interval"},
		{"negative period", ModbusController, "id: m\nsettings:\n  update_interval: -5s\n", "devices[0].settings.update_interval"},
		{"zero period", ModbusController, "id: m\nsettings:\n  command_throttle: 0ms\n", "devices[0].settings.command_throttle"},
		{"sub millisecond", ModbusController, "id: m\nsettings:\n  command_throttle: 1500us\n", "devices[0].settings.command_throttle"},
		{"generic settings", Generic, "id: m\naddress: 1\nsettings:\n  x: 1\n", "devices[0].settings"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			typ, ok := Default().Lookup(tc.typeName)
			require.True(t, ok)
			_, err := typ.Validate(devicePath(), deviceInput(t, tc.src), modbustcp.Masters{"bus"})
			var schemaErr *schema.SchemaError
			require.ErrorAs(t, err, &schemaErr)
			require.Contains(t, schemaErr.Path.String(), tc.path)
		})
	}
}

func TestValidateGenericRequiresAddress(t *testing.T) {
	generic, _ := Default().Lookup(Generic)
	_, err := generic.Validate(devicePath(), deviceInput(t, "id: relay\n"), modbustcp.Masters{"bus"})
	require.ErrorContains(t, err, "required field missing")
}
