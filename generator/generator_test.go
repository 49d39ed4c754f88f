package generator

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/timzifer/modbustcp/codegen"
	"github.com/timzifer/modbustcp/config"
	"github.com/timzifer/modbustcp/schema"
)

type recordingCollector struct {
	masters  int
	devices  map[string]int
	failures map[string]int
}

func newRecordingCollector() *recordingCollector {
	return &recordingCollector{devices: map[string]int{}, failures: map[string]int{}}
}

func (r *recordingCollector) IncMasterRegistered()             { r.masters++ }
func (r *recordingCollector) IncDeviceRegistered(typ string)   { r.devices[typ]++ }
func (r *recordingCollector) IncValidationFailure(kind string) { r.failures[kind]++ }
func (r *recordingCollector) IncRegeneration(string)           {}

func generate(t *testing.T, src string, opts ...Option) (*codegen.Plan, error) {
	t.Helper()
	doc, err := config.Parse("plant.yaml", []byte(src))
	require.NoError(t, err)
	opts = append([]Option{WithBuildID(func() string { return "test" })}, opts...)
	g, err := New(opts...)
	require.NoError(t, err)
	return g.Generate(doc)
}

func ref(id string) codegen.Arg { return codegen.Arg{Kind: codegen.ArgRef, Ref: id} }

func TestGenerateMasterWithDefaults(t *testing.T) {
	plan, err := generate(t, "modbustcp:\n  host: 10.0.0.5\n")
	require.NoError(t, err)

	require.Equal(t, "test", plan.BuildID)
	require.Equal(t, []string{"using namespace modbustcp;"}, plan.Globals)
	require.Equal(t, []codegen.Instruction{
		{Kind: codegen.KindNew, Target: "modbustcp_id", Class: "modbustcp::ModbusTCP"},
		{Kind: codegen.KindRegisterComponent, Target: "modbustcp_id"},
		{Kind: codegen.KindCall, Target: "modbustcp_id", Method: "set_host", Args: []codegen.Arg{codegen.String("10.0.0.5")}},
		{Kind: codegen.KindCall, Target: "modbustcp_id", Method: "set_port", Args: []codegen.Arg{codegen.Int(502)}},
		{Kind: codegen.KindCall, Target: "modbustcp_id", Method: "set_send_wait_time", Args: []codegen.Arg{codegen.Int(250)}},
	}, plan.Instructions)
}

func TestGenerateRejectsPortOutOfRange(t *testing.T) {
	collector := newRecordingCollector()
	plan, err := generate(t, "modbustcp:\n  host: 10.0.0.5\n  port: 70000\n", WithTelemetry(collector))
	require.Nil(t, plan)

	var schemaErr *schema.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	require.Equal(t, "modbustcp[0].port", schemaErr.Path.String())
	require.Equal(t, 2, schemaErr.Line)
	require.ErrorContains(t, err, "plant.yaml: ")
	require.Equal(t, 1, collector.failures["schema"])
	require.Zero(t, collector.masters)
}

func TestGenerateRejectsUndeclaredMaster(t *testing.T) {
	plan, err := generate(t, `modbustcp:
  id: bus
  host: 10.0.0.5
devices:
  - type: sdm_meter
    modbustcp_id: other_bus
`)
	require.Nil(t, plan)
	var refErr *schema.ReferenceError
	require.ErrorAs(t, err, &refErr)
	require.Equal(t, "other_bus", refErr.ID)
	require.Equal(t, "devices[0].modbustcp_id", refErr.Path.String())
}

func TestGenerateRequiresAddressForGenericDevices(t *testing.T) {
	_, err := generate(t, "modbustcp:\n  host: 10.0.0.5\ndevices:\n  - type: generic\n")
	require.ErrorIs(t, err, schema.ErrSchema)
	require.ErrorContains(t, err, "devices[0].address: required field missing")
}

func TestGenerateAppliesDefaultAddress(t *testing.T) {
	plan, err := generate(t, "modbustcp:\n  host: 10.0.0.5\ndevices:\n  - type: modbus_controller\n")
	require.NoError(t, err)

	calls := plan.Calls("modbus_controller_id")
	require.Len(t, calls, 2)
	require.Equal(t, "set_parent", calls[0].Method)
	require.Equal(t, ref("modbustcp_id"), calls[0].Args[0])
	require.Equal(t, "set_address", calls[1].Method)
	require.Equal(t, codegen.Int(1), calls[1].Args[0])
}

func TestGenerateKeepsDeviceOrderOnMaster(t *testing.T) {
	collector := newRecordingCollector()
	plan, err := generate(t, `modbustcp:
  - id: bus
    host: 10.0.0.5
    send_wait_time: 100ms
devices:
  - id: heat_pump
    type: modbus_controller
    address: 0x10
  - id: grid_meter
    type: sdm_meter
    address: 2
`, WithTelemetry(collector))
	require.NoError(t, err)

	var registered []codegen.Arg
	for _, call := range plan.Calls("bus") {
		if call.Method == "register_device" {
			registered = append(registered, call.Args...)
		}
		if call.Method == "set_send_wait_time" {
			require.Equal(t, codegen.Int(100), call.Args[0])
		}
	}
	require.Equal(t, []codegen.Arg{ref("heat_pump"), ref("grid_meter")}, registered)
	require.Equal(t, 1, collector.masters)
	require.Equal(t, map[string]int{"modbus_controller": 1, "sdm_meter": 1}, collector.devices)
}

func TestGenerateAssignsIDs(t *testing.T) {
	plan, err := generate(t, `modbustcp:
  - host: 10.0.0.5
  - host: 10.0.0.6
  - id: modbustcp_id
    host: 10.0.0.7
devices:
  - type: sdm_meter
    modbustcp_id: modbustcp_id_2
  - type: sdm_meter
    modbustcp_id: modbustcp_id_2
    address: 0x02
`)
	require.NoError(t, err)

	ids := make([]string, 0, len(plan.Variables))
	for _, v := range plan.Variables {
		ids = append(ids, v.ID)
	}
	require.Equal(t, []string{"modbustcp_id_2", "modbustcp_id_3", "modbustcp_id", "sdm_meter_id", "sdm_meter_id_2"}, ids)
}

func TestGenerateRejectsRedefinedIDs(t *testing.T) {
	_, err := generate(t, `modbustcp:
  id: bus
  host: 10.0.0.5
devices:
  - id: bus
    type: sdm_meter
`)
	var schemaErr *schema.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	require.Equal(t, "devices[0].id", schemaErr.Path.String())
	require.Contains(t, schemaErr.Msg, "ID bus redefined")
}

func TestGenerateResolvesImplicitMaster(t *testing.T) {
	_, err := generate(t, "devices:\n  - type: sdm_meter\n")
	require.ErrorIs(t, err, schema.ErrReference)

	_, err = generate(t, `modbustcp:
  - id: a
    host: 10.0.0.5
  - id: b
    host: 10.0.0.6
devices:
  - type: sdm_meter
`)
	require.ErrorIs(t, err, schema.ErrReference)
	require.ErrorContains(t, err, "too many modbustcp masters")
}

func TestGenerateRejectsUnknownDeviceTypes(t *testing.T) {
	_, err := generate(t, "modbustcp:\n  host: 10.0.0.5\ndevices:\n  - type: sdm120\n")
	require.ErrorContains(t, err, `unknown device type "sdm120"`)
	require.ErrorContains(t, err, "generic, modbus_controller, sdm_meter")

	_, err = generate(t, "modbustcp:\n  host: 10.0.0.5\ndevices:\n  - address: 1\n")
	require.ErrorContains(t, err, "devices[0].type: required field missing")
}

func TestGenerateEmitsNothingWhenALaterEntryFails(t *testing.T) {
	collector := newRecordingCollector()
	plan, err := generate(t, `modbustcp:
  - id: a
    host: 10.0.0.5
  - id: b
    host: not-an-ip
`, WithTelemetry(collector))
	require.Nil(t, plan)
	require.ErrorIs(t, err, schema.ErrSchema)
	require.Zero(t, collector.masters)
}

func TestGenerateRendersSetupFunction(t *testing.T) {
	plan, err := generate(t, `modbustcp:
  id: bus
  host: 192.168.0.10
  port: 1502
  setup_priority: 600
devices:
  - id: inverter
    type: modbus_controller
    address: 0x03
    settings:
      update_interval: 10s
`)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, codegen.RenderCPP(&buf, plan, codegen.RenderOptions{}))
	want := `// Build test

using namespace modbustcp;
modbustcp::ModbusTCP *bus;
modbus_controller::ModbusController *inverter;

void setup() {
  bus = new modbustcp::ModbusTCP();
  bus->set_setup_priority(600.0f);
  App.register_component(bus);
  bus->set_host("192.168.0.10");
  bus->set_port(1502);
  bus->set_send_wait_time(250);
  inverter = new modbus_controller::ModbusController();
  App.register_component(inverter);
  inverter->set_update_interval(10000);
  inverter->set_parent(bus);
  inverter->set_address(3);
  bus->register_device(inverter);
}
`
	require.Equal(t, want, buf.String())
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	_, err := New(WithCatalog(nil))
	require.Error(t, err)
	_, err = New(WithBuildID(nil))
	require.Error(t, err)

	g, err := New(nil, WithTelemetry(nil))
	require.NoError(t, err)
	_, err = g.Generate(nil)
	require.Error(t, err)
	require.False(t, errors.Is(err, schema.ErrSchema))
}
