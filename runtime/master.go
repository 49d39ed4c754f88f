package runtime

import (
	"context"
	"fmt"
	"math"
	"net"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// AfterWiFi is the setup priority of a master unless the plan overrides it.
const AfterWiFi = 250.0

// Master is the runtime counterpart of a configured Modbus TCP master. It
// owns no connection of its own; devices ask it for clients.
type Master struct {
	id       string
	logger   zerolog.Logger
	host     string
	port     uint16
	wait     time.Duration
	priority *float64
	devices  []*Device
	factory  ClientFactory
	timeout  time.Duration
}

// NewMaster returns an unconfigured master.
func NewMaster(id string, logger zerolog.Logger) *Master {
	return &Master{
		id:      id,
		logger:  logger.With().Str("component", "modbustcp").Str("id", id).Logger(),
		factory: NewTCPClientFactory(),
	}
}

// ID returns the variable name of the master.
func (m *Master) ID() string { return m.id }

// Host returns the configured server address.
func (m *Master) Host() string { return m.host }

// Port returns the configured server port.
func (m *Master) Port() uint16 { return m.port }

// SendWaitTime returns the minimum spacing between two requests.
func (m *Master) SendWaitTime() time.Duration { return m.wait }

// Devices returns the attached devices in registration order.
func (m *Master) Devices() []*Device {
	return append([]*Device(nil), m.devices...)
}

// Invoke implements Object.
func (m *Master) Invoke(method string, args []any) error {
	switch method {
	case "set_host":
		host, err := stringArg(args)
		if err != nil {
			return err
		}
		m.host = host
	case "set_port":
		port, err := uintArg(args, math.MaxUint16)
		if err != nil {
			return err
		}
		m.port = uint16(port)
	case "set_send_wait_time":
		ms, err := uintArg(args, math.MaxUint16)
		if err != nil {
			return err
		}
		m.wait = time.Duration(ms) * time.Millisecond
	case "set_setup_priority":
		priority, err := floatArg(args)
		if err != nil {
			return err
		}
		m.priority = &priority
	case "register_device":
		if err := arity(args, 1); err != nil {
			return err
		}
		dev, ok := args[0].(*Device)
		if !ok {
			return fmt.Errorf("expected a device, got %T", args[0])
		}
		m.devices = append(m.devices, dev)
	default:
		return fmt.Errorf("unknown method %s", method)
	}
	return nil
}

// SetupPriority implements Component.
func (m *Master) SetupPriority() float64 {
	if m.priority != nil {
		return *m.priority
	}
	return AfterWiFi
}

// Setup implements Component.
func (m *Master) Setup(context.Context) error {
	if m.host == "" {
		return fmt.Errorf("master %s has no host", m.id)
	}
	m.logger.Info().Msg("Setting up Modbus TCP client")
	return nil
}

// DumpConfig implements Component.
func (m *Master) DumpConfig(logger zerolog.Logger) {
	event := logger.Info().
		Str("component", "modbustcp").
		Str("id", m.id).
		Str("client", m.Address()).
		Int64("send_wait_time_ms", m.wait.Milliseconds()).
		Float64("setup_priority", m.SetupPriority()).
		Str("transport", "goburrow/modbus TCP")
	addresses := make([]string, len(m.devices))
	for i, dev := range m.devices {
		addresses[i] = fmt.Sprintf("%s@0x%02X", dev.ID(), dev.Address())
	}
	event.Strs("devices", addresses).Msg("Modbus_TCP")
}

// Address returns host:port of the server.
func (m *Master) Address() string {
	return net.JoinHostPort(m.host, strconv.Itoa(int(m.port)))
}

// SetClientFactory replaces the factory used by Client.
func (m *Master) SetClientFactory(factory ClientFactory) {
	if factory == nil {
		factory = NewTCPClientFactory()
	}
	m.factory = factory
}

// SetTimeout sets the response timeout handed to new clients.
func (m *Master) SetTimeout(timeout time.Duration) {
	m.timeout = timeout
}

// Client connects a Modbus client addressing dev through this master.
func (m *Master) Client(dev *Device) (Client, error) {
	if dev == nil {
		return nil, fmt.Errorf("device must not be nil")
	}
	if dev.Parent() != m {
		return nil, fmt.Errorf("device %s is not attached to master %s", dev.ID(), m.id)
	}
	return m.factory(Endpoint{Address: m.Address(), UnitID: dev.Address(), Timeout: m.timeout})
}
