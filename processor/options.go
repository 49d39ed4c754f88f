package processor

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/timzifer/modbustcp/codegen"
	"github.com/timzifer/modbustcp/config"
	"github.com/timzifer/modbustcp/devices"
	"github.com/timzifer/modbustcp/telemetry"
)

// WithLogger provides a custom logger instance for the processor. Without it
// the logger is built from the logging section of the configuration.
func WithLogger(logger zerolog.Logger) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.logger = logger
		cfg.customLogger = true
		return nil
	}
}

// WithConfigPath configures the processor to load configuration data from the
// provided file or directory.
func WithConfigPath(path string) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.configPath = strings.TrimSpace(path)
		return nil
	}
}

// WithConfig supplies an already loaded configuration document.
func WithConfig(doc *config.Document) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.config = doc
		return nil
	}
}

// WithOutputPath writes generated plans to path, replacing the file
// atomically on every generation.
func WithOutputPath(path string) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.outputPath = strings.TrimSpace(path)
		return nil
	}
}

// WithOutput writes generated plans to w. It takes precedence over an output
// path.
func WithOutput(w io.Writer) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		if w == nil {
			return errors.New("output writer must not be nil")
		}
		cfg.output = w
		return nil
	}
}

// WithFormat overrides the output format of the configuration.
func WithFormat(format codegen.Format) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.format = format
		return nil
	}
}

// WithFunction overrides the name of the generated setup function.
func WithFunction(name string) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.function = strings.TrimSpace(name)
		return nil
	}
}

// WithWatch polls the configuration sources at interval and regenerates the
// plan when one of them changes.
func WithWatch(interval time.Duration) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		if interval <= 0 {
			return fmt.Errorf("watch interval must be positive")
		}
		cfg.watch = true
		cfg.interval = interval
		return nil
	}
}

// WithCatalog replaces the built-in device types.
func WithCatalog(catalog *devices.Catalog) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		if catalog == nil {
			return errors.New("device catalog must not be nil")
		}
		cfg.catalog = catalog
		return nil
	}
}

// WithTelemetry injects a collector instance overriding the default configuration-based behaviour.
func WithTelemetry(collector telemetry.Collector) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		if collector == nil {
			collector = telemetry.Noop()
		}
		cfg.telemetry = collector
		cfg.telemetryProvided = true
		return nil
	}
}

// WithBuildID fixes the build id stamped into generated plans.
func WithBuildID(fn func() string) Option {
	return func(cfg *settings) error {
		if cfg == nil {
			return nil
		}
		cfg.buildID = fn
		return nil
	}
}
