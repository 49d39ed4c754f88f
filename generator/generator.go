// Package generator turns a loaded configuration document into the
// initialization plan of its Modbus TCP masters and devices.
//
// Generation runs in two phases. Validate decodes every entry, assigns
// missing IDs, checks each master and device and resolves every master
// reference. Only a document that validates completely reaches Emit, so a
// rejected document never produces a partial plan.
package generator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/timzifer/modbustcp/codegen"
	"github.com/timzifer/modbustcp/config"
	"github.com/timzifer/modbustcp/devices"
	"github.com/timzifer/modbustcp/modbustcp"
	"github.com/timzifer/modbustcp/schema"
	"github.com/timzifer/modbustcp/telemetry"
)

// Option configures a Generator.
type Option func(*settings) error

type settings struct {
	logger    zerolog.Logger
	telemetry telemetry.Collector
	catalog   *devices.Catalog
	buildID   func() string
}

// WithLogger provides a custom logger instance.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *settings) error {
		s.logger = logger
		return nil
	}
}

// WithTelemetry injects a metrics collector.
func WithTelemetry(collector telemetry.Collector) Option {
	return func(s *settings) error {
		if collector == nil {
			collector = telemetry.Noop()
		}
		s.telemetry = collector
		return nil
	}
}

// WithCatalog replaces the built-in device types.
func WithCatalog(catalog *devices.Catalog) Option {
	return func(s *settings) error {
		if catalog == nil {
			return errors.New("device catalog must not be nil")
		}
		s.catalog = catalog
		return nil
	}
}

// WithBuildID fixes how plans are stamped. The default stamps a random UUID.
func WithBuildID(fn func() string) Option {
	return func(s *settings) error {
		if fn == nil {
			return errors.New("build id function must not be nil")
		}
		s.buildID = fn
		return nil
	}
}

// Generator validates documents and emits their plans. It holds no state
// between calls.
type Generator struct {
	logger    zerolog.Logger
	collector telemetry.Collector
	catalog   *devices.Catalog
	buildID   func() string
}

// New constructs a generator with the supplied options.
func New(opts ...Option) (*Generator, error) {
	s := settings{
		logger:    zerolog.Nop(),
		telemetry: telemetry.Noop(),
		buildID:   uuid.NewString,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&s); err != nil {
			return nil, err
		}
	}
	if s.catalog == nil {
		s.catalog = devices.Default()
	}
	return &Generator{
		logger:    s.logger,
		collector: s.telemetry,
		catalog:   s.catalog,
		buildID:   s.buildID,
	}, nil
}

// Device is a validated device together with its type.
type Device struct {
	Type   devices.Type
	Config modbustcp.DeviceConfig
	Source config.ModuleReference
}

// Program is a completely validated document.
type Program struct {
	Masters []modbustcp.MasterConfig
	Devices []Device
}

// Generate validates doc and emits its plan. The first error aborts and no
// plan is returned.
func (g *Generator) Generate(doc *config.Document) (*codegen.Plan, error) {
	program, err := g.Validate(doc)
	if err != nil {
		return nil, err
	}
	return g.Emit(program)
}

type masterEntry struct {
	path  schema.Path
	entry config.Entry
	input modbustcp.MasterInput
}

type deviceEntry struct {
	path  schema.Path
	entry config.Entry
	input modbustcp.DeviceInput
	typ   devices.Type
}

// Validate checks every master and device of doc without emitting anything.
func (g *Generator) Validate(doc *config.Document) (*Program, error) {
	program, err := g.validate(doc)
	if err != nil {
		g.collector.IncValidationFailure(schema.Kind(err))
		g.logger.Debug().Err(err).Str("kind", schema.Kind(err)).Msg("configuration rejected")
		return nil, err
	}
	return program, nil
}

func (g *Generator) validate(doc *config.Document) (*Program, error) {
	if doc == nil {
		return nil, errors.New("configuration document must not be nil")
	}

	masters := make([]masterEntry, 0, len(doc.Masters))
	for i, entry := range doc.Masters {
		path := schema.Path{modbustcp.Namespace}.Index(i)
		in, err := modbustcp.DecodeMaster(path, entry.Node)
		if err != nil {
			return nil, located(entry, err)
		}
		masters = append(masters, masterEntry{path: path, entry: entry, input: in})
	}

	devs := make([]deviceEntry, 0, len(doc.Devices))
	for i, entry := range doc.Devices {
		path := schema.Path{"devices"}.Index(i)
		in, err := modbustcp.DecodeDevice(path, entry.Node)
		if err != nil {
			return nil, located(entry, err)
		}
		typ, err := g.lookupType(path, in)
		if err != nil {
			return nil, located(entry, err)
		}
		in.Type = typ.Name
		devs = append(devs, deviceEntry{path: path, entry: entry, input: in, typ: typ})
	}

	ids := newIDRegistry()
	for i := range masters {
		m := &masters[i]
		if err := ids.claim(m.path, m.input.Line, m.input.ID); err != nil {
			return nil, located(m.entry, err)
		}
	}
	for i := range devs {
		d := &devs[i]
		if err := ids.claim(d.path, d.input.Line, d.input.ID); err != nil {
			return nil, located(d.entry, err)
		}
	}
	for i := range masters {
		if masters[i].input.ID == "" {
			masters[i].input.ID = ids.generate(modbustcp.Namespace + "_id")
		}
	}
	for i := range devs {
		if devs[i].input.ID == "" {
			devs[i].input.ID = ids.generate(devs[i].typ.Name + "_id")
		}
	}

	program := &Program{Masters: make([]modbustcp.MasterConfig, 0, len(masters))}
	declared := make(modbustcp.Masters, 0, len(masters))
	for _, m := range masters {
		cfg, err := modbustcp.ValidateMaster(m.path, m.input)
		if err != nil {
			return nil, located(m.entry, err)
		}
		program.Masters = append(program.Masters, cfg)
		declared = append(declared, cfg.ID)
	}

	program.Devices = make([]Device, 0, len(devs))
	for _, d := range devs {
		cfg, err := d.typ.Validate(d.path, d.input, declared)
		if err != nil {
			return nil, located(d.entry, err)
		}
		program.Devices = append(program.Devices, Device{Type: d.typ, Config: cfg, Source: d.entry.Source})
	}
	return program, nil
}

func (g *Generator) lookupType(path schema.Path, in modbustcp.DeviceInput) (devices.Type, error) {
	typePath := path.Key(modbustcp.KeyType)
	if in.Type == "" {
		return devices.Type{}, schema.Errorf(typePath, in.Line, "required field missing")
	}
	typ, ok := g.catalog.Lookup(in.Type)
	if !ok {
		return devices.Type{}, schema.Errorf(typePath, in.Line, "unknown device type %q, valid types are [%s]",
			in.Type, strings.Join(g.catalog.Names(), ", "))
	}
	return typ, nil
}

// Emit produces the plan of a validated program: every master first, in
// declaration order, then every device.
func (g *Generator) Emit(program *Program) (*codegen.Plan, error) {
	if program == nil {
		return nil, errors.New("program must not be nil")
	}
	b := codegen.NewBuilder()
	for _, cfg := range program.Masters {
		if _, err := modbustcp.RegisterMaster(b, cfg); err != nil {
			return nil, fmt.Errorf("emit master %s: %w", cfg.ID, err)
		}
		g.logger.Debug().
			Str("id", cfg.ID).
			Str("host", cfg.Host.String()).
			Uint16("port", cfg.Port).
			Dur("send_wait_time", cfg.SendWaitTime).
			Msg("master registered")
	}
	for _, dev := range program.Devices {
		if _, err := devices.Emit(b, dev.Type, dev.Config); err != nil {
			return nil, fmt.Errorf("emit device %s: %w", dev.Config.ID, err)
		}
		g.logger.Debug().
			Str("id", dev.Config.ID).
			Str("type", dev.Type.Name).
			Str("master", dev.Config.Master).
			Uint8("address", dev.Config.Address).
			Msg("device registered")
	}

	for range program.Masters {
		g.collector.IncMasterRegistered()
	}
	for _, dev := range program.Devices {
		g.collector.IncDeviceRegistered(dev.Type.Name)
	}

	plan := b.Plan()
	plan.BuildID = g.buildID()
	g.logger.Info().
		Str("build_id", plan.BuildID).
		Int("masters", len(program.Masters)).
		Int("devices", len(program.Devices)).
		Int("instructions", len(plan.Instructions)).
		Msg("initialization plan generated")
	return plan, nil
}

// located prefixes err with the file that declared entry. The typed error
// stays reachable through errors.As.
func located(entry config.Entry, err error) error {
	if entry.Source.File == "" {
		return err
	}
	return fmt.Errorf("%s: %w", entry.Source.File, err)
}
