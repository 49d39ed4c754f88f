// Package modbustcp declares the configuration schema of a Modbus TCP master
// and of the devices attached to it, validates instances of that schema and
// emits the initialization calls that wire them together.
package modbustcp

import (
	"net/netip"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/timzifer/modbustcp/codegen"
	"github.com/timzifer/modbustcp/schema"
)

const (
	// Namespace is the runtime namespace of the master and device classes.
	Namespace = "modbustcp"
	// MasterClass is the runtime class instantiated for every master.
	MasterClass = Namespace + "::ModbusTCP"
	// UsingNamespace is added once to the program globals.
	UsingNamespace = "using namespace " + Namespace + ";"

	// DefaultPort is the registered Modbus TCP port.
	DefaultPort uint16 = 502
	// DefaultSendWaitTime is the minimum spacing between two requests.
	DefaultSendWaitTime = 250 * time.Millisecond
	// MaxSendWaitTime is bounded by the 16-bit runtime setter.
	MaxSendWaitTime = 65535 * time.Millisecond
)

// Configuration keys of a master entry.
const (
	KeyID            = "id"
	KeyHost          = "host"
	KeyPort          = "port"
	KeySendWaitTime  = "send_wait_time"
	KeySetupPriority = "setup_priority"
)

var masterKeys = []string{KeyID, KeyHost, KeyPort, KeySendWaitTime, KeySetupPriority}

// MasterInput is the undecoded form of a master entry. Empty strings and nil
// pointers mean the key was not given.
type MasterInput struct {
	ID            string
	Host          string
	Port          *int64
	SendWaitTime  string
	SetupPriority *float64

	// Line locates the entry in its source file; zero when unknown.
	Line int
}

// MasterConfig is a validated master. It is immutable once returned by
// ValidateMaster.
type MasterConfig struct {
	ID            string
	Host          netip.Addr
	Port          uint16
	SendWaitTime  time.Duration
	SetupPriority *float64
}

// DecodeMaster reads a master entry from a YAML mapping without applying
// defaults or range checks.
func DecodeMaster(path schema.Path, node *yaml.Node) (MasterInput, error) {
	m, err := schema.OpenMapping(path, node, masterKeys...)
	if err != nil {
		return MasterInput{}, err
	}
	in := MasterInput{Line: m.Line()}
	if in.ID, _, err = m.String(KeyID); err != nil {
		return MasterInput{}, err
	}
	if in.Host, _, err = m.String(KeyHost); err != nil {
		return MasterInput{}, err
	}
	port, ok, err := m.Int(KeyPort)
	if err != nil {
		return MasterInput{}, err
	}
	if ok {
		in.Port = &port
	}
	if in.SendWaitTime, _, err = m.String(KeySendWaitTime); err != nil {
		return MasterInput{}, err
	}
	priority, ok, err := m.Float(KeySetupPriority)
	if err != nil {
		return MasterInput{}, err
	}
	if ok {
		in.SetupPriority = &priority
	}
	return in, nil
}

// ValidateMaster checks a master entry and applies defaults. The ID must
// already be assigned; see Generator for ID generation.
func ValidateMaster(path schema.Path, in MasterInput) (MasterConfig, error) {
	cfg := MasterConfig{
		ID:            in.ID,
		Port:          DefaultPort,
		SendWaitTime:  DefaultSendWaitTime,
		SetupPriority: in.SetupPriority,
	}
	if err := schema.Identifier(in.ID); err != nil {
		return MasterConfig{}, schema.Errorf(path.Key(KeyID), in.Line, "%s", err.Error())
	}
	if in.Host == "" {
		return MasterConfig{}, schema.Errorf(path.Key(KeyHost), in.Line, "required field missing")
	}
	host, err := schema.IPv4(in.Host)
	if err != nil {
		return MasterConfig{}, schema.Errorf(path.Key(KeyHost), in.Line, "%s", err.Error())
	}
	cfg.Host = host
	if in.Port != nil {
		if err := schema.IntRange(*in.Port, 0, 65535); err != nil {
			return MasterConfig{}, schema.Errorf(path.Key(KeyPort), in.Line, "%s", err.Error())
		}
		cfg.Port = uint16(*in.Port)
	}
	if in.SendWaitTime != "" {
		wait, err := schema.PositivePeriodMillis(in.SendWaitTime, MaxSendWaitTime)
		if err != nil {
			return MasterConfig{}, schema.Errorf(path.Key(KeySendWaitTime), in.Line, "%s", err.Error())
		}
		cfg.SendWaitTime = wait
	}
	return cfg, nil
}

// RegisterMaster emits the construction of the master, its lifecycle
// registration and the host, port and send wait time setters, in that order.
func RegisterMaster(b *codegen.Builder, cfg MasterConfig) (codegen.Handle, error) {
	b.AddGlobal(UsingNamespace)
	h, err := b.New(cfg.ID, MasterClass)
	if err != nil {
		return codegen.Handle{}, err
	}
	registerComponent(b, h, cfg.SetupPriority)
	b.Call(h, "set_host", codegen.String(cfg.Host.String()))
	b.Call(h, "set_port", codegen.Int(int64(cfg.Port)))
	b.Call(h, "set_send_wait_time", codegen.Int(cfg.SendWaitTime.Milliseconds()))
	return h, nil
}

func registerComponent(b *codegen.Builder, h codegen.Handle, priority *float64) {
	if priority != nil {
		b.Call(h, "set_setup_priority", codegen.Float(*priority))
	}
	b.RegisterComponent(h)
}
