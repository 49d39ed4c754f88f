package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/timzifer/modbustcp/codegen"
	"github.com/timzifer/modbustcp/config"
	"github.com/timzifer/modbustcp/devices"
	"github.com/timzifer/modbustcp/generator"
	"github.com/timzifer/modbustcp/internal/logging"
	"github.com/timzifer/modbustcp/processor"
	"github.com/timzifer/modbustcp/runtime"
	"github.com/timzifer/modbustcp/schema"
	"github.com/timzifer/modbustcp/telemetry"
)

func main() {
	cfgPath := flag.String("config", "modbustcp.yaml", "Path to configuration file or directory")
	outPath := flag.String("out", "", "Output file; \"-\" or empty writes to stdout unless the configuration names a path")
	format := flag.String("format", "", "Output format: cpp, yaml, json or cbor")
	function := flag.String("function", "", "Name of the generated setup function")
	configCheck := flag.Bool("config-check", false, "Validate configuration and exit")
	dump := flag.Bool("dump", false, "Apply the plan to the host model and log its configuration")
	reach := flag.Bool("reach", false, "With -dump, connect to every configured device and report whether it is reachable")
	reachTimeout := flag.Duration("reach-timeout", runtime.DefaultTimeout, "Connect timeout per device for -reach")
	watch := flag.Bool("watch", false, "Regenerate whenever a configuration file changes")
	watchInterval := flag.Duration("watch-interval", processor.DefaultWatchInterval, "Polling interval in watch mode")
	metricsListen := flag.String("metrics-listen", "", "Expose Prometheus metrics on this address in watch mode")
	flag.Parse()

	doc, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	if *configCheck {
		os.Exit(executeConfigCheck(os.Stdout, doc))
	}

	if *dump {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		err := executeDump(ctx, doc, *reach, *reachTimeout)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("dump failed")
		}
		return
	}

	opts := []processor.Option{processor.WithConfigPath(*cfgPath)}
	if *format != "" {
		parsed, err := codegen.ParseFormat(*format)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid output format")
		}
		opts = append(opts, processor.WithFormat(parsed))
	}
	if *function != "" {
		opts = append(opts, processor.WithFunction(*function))
	}
	switch {
	case *outPath == "-", *outPath == "" && doc.Output.Path == "":
		opts = append(opts, processor.WithOutput(os.Stdout))
	case *outPath != "":
		opts = append(opts, processor.WithOutputPath(*outPath))
	}

	listen := strings.TrimSpace(*metricsListen)
	if listen == "" && doc.Telemetry.Enabled {
		listen = doc.Telemetry.Listen
	}
	if *watch {
		opts = append(opts, processor.WithWatch(*watchInterval))
		if listen != "" {
			collector, err := telemetry.NewPrometheusCollector(nil)
			if err != nil {
				log.Fatal().Err(err).Msg("failed to register metrics")
			}
			opts = append(opts, processor.WithTelemetry(collector))
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	proc, err := processor.New(ctx, append([]processor.Option{processor.WithConfig(doc)}, opts...)...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create processor")
	}
	defer proc.Close()
	logger := proc.Logger()
	log.Logger = logger

	if *watch && listen != "" {
		srv := serveMetrics(logger, listen)
		defer srv.Close()
	}

	if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("generation failed")
		proc.Close()
		os.Exit(1)
	}
}

func serveMetrics(logger zerolog.Logger, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Str("listen", addr).Msg("metrics endpoint stopped")
		}
	}()
	logger.Info().Str("listen", addr).Msg("metrics endpoint started")
	return srv
}

func executeConfigCheck(w io.Writer, doc *config.Document) int {
	gen, err := generator.New()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration invalid: %v\n", err)
		return 1
	}
	program, err := gen.Validate(doc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration invalid (%s error): %v\n", schema.Kind(err), err)
		return 1
	}

	if len(program.Masters) == 0 {
		fmt.Fprintln(w, "No Modbus TCP masters configured.")
	}
	for _, m := range program.Masters {
		fmt.Fprintf(w, "Master %q\n", m.ID)
		fmt.Fprintf(w, "  Client: %s:%d\n", m.Host, m.Port)
		fmt.Fprintf(w, "  Send wait time: %d ms\n", m.SendWaitTime.Milliseconds())
		if m.SetupPriority != nil {
			fmt.Fprintf(w, "  Setup priority: %g\n", *m.SetupPriority)
		}
		fmt.Fprintln(w, "  Devices:")
		attached := 0
		for _, dev := range program.Devices {
			if dev.Config.Master != m.ID {
				continue
			}
			attached++
			fmt.Fprintf(w, "    - %s (%s) address 0x%02X", dev.Config.ID, dev.Type.Name, dev.Config.Address)
			if dev.Source.File != "" {
				fmt.Fprintf(w, " [%s]", dev.Source.File)
			}
			fmt.Fprintln(w)
		}
		if attached == 0 {
			fmt.Fprintln(w, "    <none>")
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w, "Configuration check completed successfully.")
	return 0
}

func executeDump(ctx context.Context, doc *config.Document, reach bool, timeout time.Duration) error {
	logger, cleanup, err := logging.Setup(doc.Logging)
	if err != nil {
		return err
	}
	defer cleanup()
	log.Logger = logger

	gen, err := generator.New(generator.WithLogger(logger))
	if err != nil {
		return err
	}
	plan, err := gen.Generate(doc)
	if err != nil {
		return err
	}
	app := runtime.NewApp(logger)
	catalog := devices.Default()
	for _, name := range catalog.Names() {
		typ, _ := catalog.Lookup(name)
		if err := app.DefineClass(typ.Class, runtime.NewDevice); err != nil {
			return err
		}
	}
	if err := app.Apply(plan); err != nil {
		return err
	}
	app.DumpConfig()
	if !reach {
		return nil
	}
	results, err := app.Reach(ctx, timeout)
	if err != nil {
		return err
	}
	unreachable := 0
	for _, result := range results {
		if result.Err != nil {
			unreachable++
		}
	}
	if unreachable > 0 {
		return fmt.Errorf("%d of %d devices unreachable", unreachable, len(results))
	}
	return nil
}
