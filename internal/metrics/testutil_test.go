package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	io_prometheus_client "github.com/prometheus/client_model/go"
)

func gatherFamily(t *testing.T, reg *prometheus.Registry, name string) *io_prometheus_client.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, family := range families {
		if family.GetName() == name {
			return family
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

// getGaugeValue extracts the current value of a gauge metric from the registry.
func getGaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	family := gatherFamily(t, reg, name)
	metrics := family.GetMetric()
	if len(metrics) == 0 {
		t.Fatalf("metric %s has no samples", name)
	}
	return metrics[0].GetGauge().GetValue()
}

// getCounterValue extracts the current value of a counter metric from the registry.
func getCounterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	family := gatherFamily(t, reg, name)
	metrics := family.GetMetric()
	if len(metrics) == 0 {
		t.Fatalf("metric %s has no samples", name)
	}
	return metrics[0].GetCounter().GetValue()
}

// getHistogramSampleCount extracts the observation count of a histogram.
func getHistogramSampleCount(t *testing.T, reg *prometheus.Registry, name string) uint64 {
	t.Helper()
	family := gatherFamily(t, reg, name)
	metrics := family.GetMetric()
	if len(metrics) == 0 {
		t.Fatalf("metric %s has no samples", name)
	}
	return metrics[0].GetHistogram().GetSampleCount()
}
