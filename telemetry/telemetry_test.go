package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func resetCollectors() {
	collectorLock.Lock()
	mastersTotal = nil
	devicesTotal = nil
	failuresTotal = nil
	regensTotal = nil
	collectorLock.Unlock()
}

func TestNoopCollector(t *testing.T) {
	collector := Noop()
	require.NotNil(t, collector)
	collector.IncMasterRegistered()
	collector.IncDeviceRegistered("generic")
	collector.IncValidationFailure("schema")
	collector.IncRegeneration("config.yaml")
}

func TestPrometheusCollectorRegistersAndReusesCounters(t *testing.T) {
	resetCollectors()
	t.Cleanup(resetCollectors)

	reg := prometheus.NewRegistry()
	collector, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	require.NotNil(t, collector)

	collector.IncRegeneration("a.yaml")
	collector.IncMasterRegistered()

	families := gather(t, reg)
	requireCounterValue(t, families["modbustcp_regenerations_total"], 1)
	requireCounterValue(t, families["modbustcp_masters_registered_total"], 1)

	resetCollectors()
	again, err := NewPrometheusCollector(reg)
	require.NoError(t, err)
	require.Same(t, collector.regenerations, again.regenerations)

	again.IncRegeneration("a.yaml")
	requireCounterValue(t, gather(t, reg)["modbustcp_regenerations_total"], 2)
}

func TestPrometheusCollectorLabels(t *testing.T) {
	resetCollectors()
	t.Cleanup(resetCollectors)

	reg := prometheus.NewRegistry()
	collector, err := NewPrometheusCollector(reg)
	require.NoError(t, err)

	collector.IncDeviceRegistered("sdm_meter")
	collector.IncDeviceRegistered("sdm_meter")
	collector.IncValidationFailure("reference")

	families := gather(t, reg)
	devices := families["modbustcp_devices_registered_total"]
	require.Len(t, devices.Metric, 1)
	require.Equal(t, "type", devices.Metric[0].Label[0].GetName())
	require.Equal(t, "sdm_meter", devices.Metric[0].Label[0].GetValue())
	requireCounterValue(t, devices, 2)
	requireCounterValue(t, families["modbustcp_validation_failures_total"], 1)
}

func TestNilPrometheusCollectorIsSafe(t *testing.T) {
	var collector *PrometheusCollector
	collector.IncMasterRegistered()
	collector.IncDeviceRegistered("generic")
	collector.IncValidationFailure("schema")
	collector.IncRegeneration("x")
}

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	metrics, err := reg.Gather()
	require.NoError(t, err)
	families := make(map[string]*dto.MetricFamily, len(metrics))
	for _, mf := range metrics {
		families[mf.GetName()] = mf
	}
	return families
}

func requireCounterValue(t *testing.T, mf *dto.MetricFamily, value float64) {
	t.Helper()
	require.NotNil(t, mf)
	require.Len(t, mf.Metric, 1)
	require.NotNil(t, mf.Metric[0].Counter)
	require.Equal(t, value, mf.Metric[0].Counter.GetValue())
}
