// Package processor drives plan generation for a configuration on disk: it
// loads the configuration, generates and writes the plan, and in watch mode
// regenerates it whenever one of the source files changes.
package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/timzifer/modbustcp/codegen"
	"github.com/timzifer/modbustcp/config"
	"github.com/timzifer/modbustcp/devices"
	"github.com/timzifer/modbustcp/generator"
	"github.com/timzifer/modbustcp/internal/logging"
	"github.com/timzifer/modbustcp/internal/reload"
	"github.com/timzifer/modbustcp/telemetry"
)

// DefaultWatchInterval is the polling interval used by the command line.
const DefaultWatchInterval = time.Second

// Option configures the processor during construction.
type Option func(*settings) error

type settings struct {
	config            *config.Document
	configPath        string
	logger            zerolog.Logger
	customLogger      bool
	telemetry         telemetry.Collector
	telemetryProvided bool
	catalog           *devices.Catalog
	buildID           func() string
	output            io.Writer
	outputPath        string
	format            codegen.Format
	function          string
	watch             bool
	interval          time.Duration
}

// Processor owns one configuration and the plan generated from it. Logging
// and telemetry are set up once from the initial configuration.
type Processor struct {
	mu sync.Mutex

	config     *config.Document
	configPath string

	logger    zerolog.Logger
	cleanup   func()
	collector telemetry.Collector
	generator *generator.Generator

	output     io.Writer
	outputPath string
	format     codegen.Format
	render     codegen.RenderOptions

	interval time.Duration
	watcher  *reload.Watcher

	plan    *codegen.Plan
	running bool
}

// New constructs a processor with the supplied options.
func New(ctx context.Context, opts ...Option) (*Processor, error) {
	if ctx != nil && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	cfg := settings{
		logger:    zerolog.Nop(),
		telemetry: telemetry.Noop(),
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if cfg.config == nil {
		if cfg.configPath == "" {
			return nil, errors.New("configuration path required")
		}
		loaded, err := config.Load(cfg.configPath)
		if err != nil {
			return nil, fmt.Errorf("load configuration: %w", err)
		}
		cfg.config = loaded
	}
	doc := cfg.config

	p := &Processor{
		config:     doc,
		configPath: cfg.configPath,
		logger:     cfg.logger,
		cleanup:    func() {},
		collector:  cfg.telemetry,
		output:     cfg.output,
		outputPath: firstNonEmpty(cfg.outputPath, doc.Output.Path),
		render: codegen.RenderOptions{
			Function: firstNonEmpty(cfg.function, doc.Output.Function),
			Header:   doc.Output.Header,
		},
	}
	if p.output == nil && p.outputPath == "" {
		return nil, errors.New("output path or writer required")
	}

	format := cfg.format
	if format == "" {
		parsed, err := codegen.ParseFormat(doc.Output.Format)
		if err != nil {
			return nil, fmt.Errorf("output: %w", err)
		}
		format = parsed
	}
	p.format = format

	if !cfg.customLogger {
		logger, cleanup, err := logging.Setup(doc.Logging)
		if err != nil {
			return nil, err
		}
		p.logger = logger
		p.cleanup = cleanup
	}

	if !cfg.telemetryProvided {
		collector, err := newTelemetryCollector(doc.Telemetry)
		if err != nil {
			p.logger.Warn().Err(err).Msg("telemetry disabled")
			collector = telemetry.Noop()
		}
		p.collector = collector
	}

	genOpts := []generator.Option{
		generator.WithLogger(p.logger),
		generator.WithTelemetry(p.collector),
	}
	if cfg.catalog != nil {
		genOpts = append(genOpts, generator.WithCatalog(cfg.catalog))
	}
	if cfg.buildID != nil {
		genOpts = append(genOpts, generator.WithBuildID(cfg.buildID))
	}
	gen, err := generator.New(genOpts...)
	if err != nil {
		p.cleanup()
		return nil, err
	}
	p.generator = gen

	if cfg.watch {
		if cfg.configPath == "" {
			p.cleanup()
			return nil, errors.New("watch mode requires a configuration path")
		}
		watcher, err := reload.NewWatcher(cfg.configPath, doc)
		if err != nil {
			p.cleanup()
			return nil, fmt.Errorf("create config watcher: %w", err)
		}
		p.watcher = watcher
		p.interval = cfg.interval
	}
	return p, nil
}

// Logger returns the logger the processor writes to.
func (p *Processor) Logger() zerolog.Logger {
	return p.logger
}

// Plan returns the most recently generated plan.
func (p *Processor) Plan() *codegen.Plan {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plan
}

// Generate generates the plan of the current configuration and writes it.
func (p *Processor) Generate() (*codegen.Plan, error) {
	p.mu.Lock()
	doc := p.config
	p.mu.Unlock()
	return p.generate(doc)
}

func (p *Processor) generate(doc *config.Document) (*codegen.Plan, error) {
	plan, err := p.generator.Generate(doc)
	if err != nil {
		return nil, err
	}
	if err := p.write(plan); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.config = doc
	p.plan = plan
	p.mu.Unlock()
	return plan, nil
}

// Run generates the plan once. In watch mode it then keeps polling the
// configuration sources until ctx is cancelled; a changed configuration
// that fails to load or validate is logged and the previous output is kept.
func (p *Processor) Run(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return errors.New("processor already running")
	}
	p.running = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.running = false
		p.mu.Unlock()
	}()

	if _, err := p.Generate(); err != nil {
		return err
	}
	if p.watcher == nil {
		return nil
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.poll()
		}
	}
}

func (p *Processor) poll() {
	changes, err := p.watcher.Check()
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to check configuration changes")
		return
	}
	if len(changes) == 0 {
		return
	}
	p.logger.Info().Strs("files", changes).Msg("configuration changed")

	doc, err := config.Load(p.configPath)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to reload configuration")
		p.resync(nil)
		return
	}
	if _, err := p.generate(doc); err != nil {
		p.logger.Error().Err(err).Msg("regenerated configuration invalid")
		p.resync(doc)
		return
	}
	p.resync(doc)
	for _, file := range changes {
		p.collector.IncRegeneration(file)
	}
}

// resync snapshots the watched files so that an unchanged broken
// configuration is not reported again on every tick.
func (p *Processor) resync(doc *config.Document) {
	if doc == nil {
		p.mu.Lock()
		doc = p.config
		p.mu.Unlock()
	}
	if err := p.watcher.Update(p.configPath, doc); err != nil {
		p.logger.Error().Err(err).Msg("failed to update configuration watcher")
	}
}

// Close releases resources managed by the processor.
func (p *Processor) Close() {
	p.mu.Lock()
	cleanup := p.cleanup
	p.cleanup = func() {}
	p.mu.Unlock()
	cleanup()
}

func (p *Processor) write(plan *codegen.Plan) error {
	var buf bytes.Buffer
	if err := codegen.Encode(&buf, plan, p.format, p.render); err != nil {
		return err
	}
	if p.output != nil {
		if _, err := p.output.Write(buf.Bytes()); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		return nil
	}
	return writeFileAtomic(p.outputPath, buf.Bytes())
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
