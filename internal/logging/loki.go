package logging

import (
	"fmt"
	"strings"
	"time"

	"github.com/grafana/loki-client-go/loki"
	"github.com/prometheus/common/model"
	"github.com/rs/zerolog"

	"github.com/timzifer/modbustcp/config"
)

const serviceName = "modbustcp-codegen"

// lokiWriter ships every log line to Loki as one entry of a stream labelled
// with the configured labels and the line's level.
type lokiWriter struct {
	client *loki.Client
	labels model.LabelSet
}

func newLokiWriter(cfg config.LokiConfig) (*lokiWriter, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("loki url is required")
	}
	labels, err := streamLabels(cfg.Labels)
	if err != nil {
		return nil, err
	}
	lokiCfg, err := loki.NewDefaultConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("prepare loki config: %w", err)
	}
	client, err := loki.New(lokiCfg)
	if err != nil {
		return nil, fmt.Errorf("create loki client: %w", err)
	}
	return &lokiWriter{client: client, labels: labels}, nil
}

// streamLabels merges the configured labels over the default app label.
func streamLabels(configured map[string]string) (model.LabelSet, error) {
	labels := model.LabelSet{"app": serviceName}
	for k, v := range configured {
		name := model.LabelName(k)
		if !name.IsValid() {
			return nil, fmt.Errorf("invalid loki label name %q", k)
		}
		labels[name] = model.LabelValue(v)
	}
	return labels, nil
}

func (l *lokiWriter) labelsFor(level zerolog.Level) model.LabelSet {
	if level == zerolog.NoLevel {
		return l.labels
	}
	return l.labels.Merge(model.LabelSet{"level": model.LabelValue(level.String())})
}

func (l *lokiWriter) Write(p []byte) (int, error) {
	return l.WriteLevel(zerolog.NoLevel, p)
}

// WriteLevel implements zerolog.LevelWriter.
func (l *lokiWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	entry := strings.TrimSpace(string(p))
	if entry == "" {
		return len(p), nil
	}
	return len(p), l.client.Handle(l.labelsFor(level), time.Now(), entry)
}

func (l *lokiWriter) stop() {
	l.client.Stop()
}
