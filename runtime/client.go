package runtime

import (
	"fmt"
	"time"

	"github.com/goburrow/modbus"
)

// DefaultTimeout bounds a single request when the master sets none.
const DefaultTimeout = 5 * time.Second

// Client defines the subset of Modbus operations a device needs.
type Client interface {
	ReadCoils(address, quantity uint16) ([]byte, error)
	ReadDiscreteInputs(address, quantity uint16) ([]byte, error)
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	ReadInputRegisters(address, quantity uint16) ([]byte, error)
	WriteSingleCoil(address, value uint16) ([]byte, error)
	WriteSingleRegister(address, value uint16) ([]byte, error)
	WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error)
	Close() error
}

// Endpoint addresses one unit behind a Modbus TCP server.
type Endpoint struct {
	Address string
	UnitID  uint8
	Timeout time.Duration
}

// ClientFactory is responsible for creating Modbus clients for devices.
type ClientFactory func(ep Endpoint) (Client, error)

type tcpClient struct {
	modbus.Client
	handler *modbus.TCPClientHandler
}

// NewTCPClientFactory returns a factory that creates TCP Modbus clients.
func NewTCPClientFactory() ClientFactory {
	return func(ep Endpoint) (Client, error) {
		if ep.Address == "" {
			return nil, fmt.Errorf("modbus tcp address is required")
		}
		handler := modbus.NewTCPClientHandler(ep.Address)
		handler.SlaveId = ep.UnitID
		timeout := ep.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		handler.Timeout = timeout
		if err := handler.Connect(); err != nil {
			return nil, fmt.Errorf("connect modbus tcp %s: %w", ep.Address, err)
		}
		return &tcpClient{Client: modbus.NewClient(handler), handler: handler}, nil
	}
}

func (c *tcpClient) Close() error {
	if c.handler != nil {
		return c.handler.Close()
	}
	return nil
}
