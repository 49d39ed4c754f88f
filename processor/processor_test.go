package processor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/timzifer/modbustcp/codegen"
	"github.com/timzifer/modbustcp/config"
	"github.com/timzifer/modbustcp/telemetry"
)

type regenCounter struct {
	telemetry.Collector
	mu    sync.Mutex
	files []string
}

func (r *regenCounter) IncRegeneration(file string) {
	r.mu.Lock()
	r.files = append(r.files, file)
	r.mu.Unlock()
}

func (r *regenCounter) seen() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.files...)
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func fixedBuildID() string { return "fixed" }

func TestGenerateWritesConfiguredFormat(t *testing.T) {
	doc, err := config.Parse("inline.yaml", []byte(`output:
  format: json
modbustcp:
  id: bus
  host: 10.0.0.5
`))
	require.NoError(t, err)

	var out bytes.Buffer
	p, err := New(context.Background(),
		WithConfig(doc),
		WithOutput(&out),
		WithLogger(zerolog.Nop()),
		WithBuildID(fixedBuildID),
	)
	require.NoError(t, err)
	defer p.Close()

	plan, err := p.Generate()
	require.NoError(t, err)
	require.Same(t, plan, p.Plan())
	require.Contains(t, out.String(), `"build_id": "fixed"`)
	require.Contains(t, out.String(), `"method": "set_send_wait_time"`)
}

func TestFlagsOverrideConfiguredOutput(t *testing.T) {
	doc, err := config.Parse("inline.yaml", []byte(`output:
  format: yaml
  function: setup_yaml
modbustcp:
  id: bus
  host: 10.0.0.5
`))
	require.NoError(t, err)

	var out bytes.Buffer
	p, err := New(context.Background(),
		WithConfig(doc),
		WithOutput(&out),
		WithFormat(codegen.FormatCPP),
		WithFunction("setup_bus"),
		WithLogger(zerolog.Nop()),
	)
	require.NoError(t, err)
	require.NoError(t, p.Run(context.Background()))
	require.Contains(t, out.String(), "void setup_bus() {")
}

func TestNewRequiresConfigurationAndOutput(t *testing.T) {
	_, err := New(context.Background(), WithOutput(&bytes.Buffer{}))
	require.ErrorContains(t, err, "configuration path required")

	doc := &config.Document{}
	_, err = New(context.Background(), WithConfig(doc), WithLogger(zerolog.Nop()))
	require.ErrorContains(t, err, "output path or writer required")

	_, err = New(context.Background(), WithConfig(doc), WithOutput(&bytes.Buffer{}), WithWatch(time.Second), WithLogger(zerolog.Nop()))
	require.ErrorContains(t, err, "watch mode requires a configuration path")

	_, err = New(context.Background(), WithWatch(0))
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = New(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestGenerateKeepsPreviousOutputOnError(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "plant.yaml")
	outPath := filepath.Join(dir, "modbustcp.cpp")
	writeFile(t, cfgPath, "modbustcp:\n  id: bus\n  host: 10.0.0.5\n")

	p, err := New(context.Background(), WithConfigPath(cfgPath), WithOutputPath(outPath), WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	_, err = p.Generate()
	require.NoError(t, err)
	first, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Contains(t, string(first), `bus->set_host("10.0.0.5");`)

	bad, err := config.Parse(cfgPath, []byte("modbustcp:\n  id: bus\n  host: 10.0.0.5\n  port: 70000\n"))
	require.NoError(t, err)
	_, err = p.generate(bad)
	require.Error(t, err)

	after, err := os.ReadFile(outPath)
	require.NoError(t, err)
	require.Equal(t, first, after)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestRunWatchRegeneratesOnChange(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "plant.yaml")
	outPath := filepath.Join(dir, "modbustcp.cpp")
	writeFile(t, cfgPath, "modbustcp:\n  id: bus\n  host: 10.0.0.5\n")

	collector := &regenCounter{Collector: telemetry.Noop()}
	p, err := New(context.Background(),
		WithConfigPath(cfgPath),
		WithOutputPath(outPath),
		WithWatch(10*time.Millisecond),
		WithTelemetry(collector),
		WithLogger(zerolog.Nop()),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(outPath)
		return err == nil && strings.Contains(string(data), "10.0.0.5")
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	writeFile(t, cfgPath, "modbustcp:\n  id: bus\n  host: 10.0.0.9\n  port: 1502\n")

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(outPath)
		return err == nil && strings.Contains(string(data), `bus->set_host("10.0.0.9");`)
	}, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(collector.seen()) > 0
	}, time.Second, 10*time.Millisecond)
	require.Contains(t, collector.seen(), cfgPath)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}
