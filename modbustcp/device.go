package modbustcp

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/timzifer/modbustcp/codegen"
	"github.com/timzifer/modbustcp/schema"
)

// Configuration keys of a device entry.
const (
	KeyType     = "type"
	KeyMasterID = "modbustcp_id"
	KeyAddress  = "address"
	KeySettings = "settings"
)

var deviceKeys = []string{KeyID, KeyType, KeyMasterID, KeyAddress, KeySettings}

// DeviceSchema holds the address policy of one device type. The policy is
// fixed when the schema is constructed.
type DeviceSchema struct {
	defaultAddress uint8
	hasDefault     bool
}

// NewDeviceSchema returns a schema whose address field is required.
func NewDeviceSchema() DeviceSchema {
	return DeviceSchema{}
}

// NewDeviceSchemaWithDefault returns a schema whose address field is optional
// and defaults to addr.
func NewDeviceSchemaWithDefault(addr uint8) DeviceSchema {
	return DeviceSchema{defaultAddress: addr, hasDefault: true}
}

// DefaultAddress returns the address used when none is configured.
func (s DeviceSchema) DefaultAddress() (uint8, bool) {
	return s.defaultAddress, s.hasDefault
}

// DeviceInput is the undecoded form of a device entry.
type DeviceInput struct {
	ID   string
	Type string
	// Master is the ID given in modbustcp_id; empty selects the only master.
	Master string
	// Address is the literal address text; empty when not given.
	Address  string
	Settings map[string]any

	Line int
}

// DeviceConfig is a validated device attached to a master.
type DeviceConfig struct {
	ID       string
	Type     string
	Master   string
	Address  uint8
	Settings map[string]any
}

// DecodeDevice reads a device entry from a YAML mapping.
func DecodeDevice(path schema.Path, node *yaml.Node) (DeviceInput, error) {
	m, err := schema.OpenMapping(path, node, deviceKeys...)
	if err != nil {
		return DeviceInput{}, err
	}
	in := DeviceInput{Line: m.Line()}
	if in.ID, _, err = m.String(KeyID); err != nil {
		return DeviceInput{}, err
	}
	if in.Type, _, err = m.String(KeyType); err != nil {
		return DeviceInput{}, err
	}
	if in.Master, _, err = m.String(KeyMasterID); err != nil {
		return DeviceInput{}, err
	}
	if in.Address, _, err = m.String(KeyAddress); err != nil {
		return DeviceInput{}, err
	}
	if settings := m.Node(KeySettings); settings != nil {
		if settings.Kind != yaml.MappingNode {
			return DeviceInput{}, m.Fail(KeySettings, "expected a mapping")
		}
		if err := settings.Decode(&in.Settings); err != nil {
			return DeviceInput{}, m.Fail(KeySettings, "decode settings: %v", err)
		}
	}
	return in, nil
}

// Masters is the ordered set of declared master IDs a device may refer to.
type Masters []string

// Resolve returns the master a device refers to. An empty ref resolves to the
// only declared master.
func (ms Masters) Resolve(path schema.Path, line int, ref string) (string, error) {
	refPath := path.Key(KeyMasterID)
	if ref != "" {
		for _, id := range ms {
			if id == ref {
				return id, nil
			}
		}
		return "", &schema.ReferenceError{Path: refPath, Line: line, ID: ref, Kind: "modbustcp master"}
	}
	switch len(ms) {
	case 1:
		return ms[0], nil
	case 0:
		return "", &schema.ReferenceError{Path: refPath, Line: line, Kind: "modbustcp master",
			Msg: "couldn't find any modbustcp master to attach to, declare one under modbustcp"}
	default:
		return "", &schema.ReferenceError{Path: refPath, Line: line, Kind: "modbustcp master",
			Msg: fmt.Sprintf("too many modbustcp masters (%d) to choose from, set %s explicitly", len(ms), KeyMasterID)}
	}
}

// Validate checks the address of a device entry, applying the schema default,
// and resolves its master reference.
func (s DeviceSchema) Validate(path schema.Path, in DeviceInput, masters Masters) (DeviceConfig, error) {
	cfg := DeviceConfig{ID: in.ID, Type: in.Type, Settings: in.Settings}
	if err := schema.Identifier(in.ID); err != nil {
		return DeviceConfig{}, schema.Errorf(path.Key(KeyID), in.Line, "%s", err.Error())
	}
	switch {
	case in.Address != "":
		addr, err := schema.HexUint8(in.Address)
		if err != nil {
			return DeviceConfig{}, schema.Errorf(path.Key(KeyAddress), in.Line, "%s", err.Error())
		}
		cfg.Address = addr
	case s.hasDefault:
		cfg.Address = s.defaultAddress
	default:
		return DeviceConfig{}, schema.Errorf(path.Key(KeyAddress), in.Line, "required field missing")
	}
	master, err := masters.Resolve(path, in.Line, in.Master)
	if err != nil {
		return DeviceConfig{}, err
	}
	cfg.Master = master
	return cfg, nil
}

// RegisterDevice attaches the device behind dev to its master: it sets the
// parent, sets the address and appends the device to the master's device
// list, in that order.
func RegisterDevice(b *codegen.Builder, dev codegen.Handle, cfg DeviceConfig) error {
	parent, ok := b.Variable(cfg.Master)
	if !ok || parent.Class != MasterClass {
		return &schema.ReferenceError{Path: schema.Path{cfg.ID, KeyMasterID}, ID: cfg.Master, Kind: "modbustcp master"}
	}
	b.Call(dev, "set_parent", codegen.Ref(parent))
	b.Call(dev, "set_address", codegen.Int(int64(cfg.Address)))
	b.Call(parent, "register_device", codegen.Ref(dev))
	return nil
}
