package telemetry

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector captures events emitted while generating initialization plans.
//
// Implementations may forward metrics to Prometheus, loggers or other
// monitoring systems. Hooks are called inline from the generator, so they
// should be inexpensive.
type Collector interface {
	IncMasterRegistered()
	IncDeviceRegistered(deviceType string)
	IncValidationFailure(kind string)
	IncRegeneration(file string)
}

type noopCollector struct{}

// Noop returns a collector that discards all metrics.
func Noop() Collector {
	return noopCollector{}
}

func (noopCollector) IncMasterRegistered()        {}
func (noopCollector) IncDeviceRegistered(string)  {}
func (noopCollector) IncValidationFailure(string) {}
func (noopCollector) IncRegeneration(string)      {}

// PrometheusCollector exposes generator counters via Prometheus.
type PrometheusCollector struct {
	masters       prometheus.Counter
	devices       *prometheus.CounterVec
	failures      *prometheus.CounterVec
	regenerations *prometheus.CounterVec
}

var (
	collectorLock sync.Mutex
	mastersTotal  prometheus.Counter
	devicesTotal  *prometheus.CounterVec
	failuresTotal *prometheus.CounterVec
	regensTotal   *prometheus.CounterVec
)

// NewPrometheusCollector registers the required metrics with the provided
// registerer. Metrics that are already registered are reused.
func NewPrometheusCollector(reg prometheus.Registerer) (*PrometheusCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectorLock.Lock()
	defer collectorLock.Unlock()

	if mastersTotal == nil {
		counter, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "modbustcp_masters_registered_total",
			Help: "Number of Modbus TCP masters emitted into initialization plans.",
		}))
		if err != nil {
			return nil, err
		}
		mastersTotal = counter
	}
	if devicesTotal == nil {
		counter, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "modbustcp_devices_registered_total",
			Help: "Number of devices attached to a master, per device type.",
		}, []string{"type"}))
		if err != nil {
			return nil, err
		}
		devicesTotal = counter
	}
	if failuresTotal == nil {
		counter, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "modbustcp_validation_failures_total",
			Help: "Number of rejected configurations, per error kind.",
		}, []string{"kind"}))
		if err != nil {
			return nil, err
		}
		failuresTotal = counter
	}
	if regensTotal == nil {
		counter, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "modbustcp_regenerations_total",
			Help: "Number of plan regenerations triggered per configuration source file.",
		}, []string{"file"}))
		if err != nil {
			return nil, err
		}
		regensTotal = counter
	}

	return &PrometheusCollector{
		masters:       mastersTotal,
		devices:       devicesTotal,
		failures:      failuresTotal,
		regenerations: regensTotal,
	}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, err
	}
	return c, nil
}

// IncMasterRegistered counts one emitted master.
func (p *PrometheusCollector) IncMasterRegistered() {
	if p == nil || p.masters == nil {
		return
	}
	p.masters.Inc()
}

// IncDeviceRegistered counts one emitted device of the given type.
func (p *PrometheusCollector) IncDeviceRegistered(deviceType string) {
	if p == nil || p.devices == nil {
		return
	}
	p.devices.WithLabelValues(deviceType).Inc()
}

// IncValidationFailure counts one rejected configuration.
func (p *PrometheusCollector) IncValidationFailure(kind string) {
	if p == nil || p.failures == nil {
		return
	}
	p.failures.WithLabelValues(kind).Inc()
}

// IncRegeneration increments the counter for the provided file path.
func (p *PrometheusCollector) IncRegeneration(file string) {
	if p == nil || p.regenerations == nil {
		return
	}
	p.regenerations.WithLabelValues(file).Inc()
}
