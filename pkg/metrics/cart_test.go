package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCartMetricsExportsCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCartMetrics(reg)

	metrics.IncMutation("add_item")
	metrics.IncMutation("add_item")
	metrics.IncWarning("clamped_to_stock")
	metrics.IncPersistFailure("redis", "save")
	metrics.ObservePersist("redis", 20*time.Millisecond)
	metrics.SetSessions(3)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "cart_mutations_total", "op", "add_item"); err != nil {
		t.Fatalf("fetch mutations: %v", err)
	} else if got != 2 {
		t.Fatalf("expected mutations=2, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "cart_line_warnings_total", "type", "clamped_to_stock"); err != nil {
		t.Fatalf("fetch warnings: %v", err)
	} else if got != 1 {
		t.Fatalf("expected warnings=1, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "cart_persist_failures_total", "phase", "save"); err != nil {
		t.Fatalf("fetch failures: %v", err)
	} else if got != 1 {
		t.Fatalf("expected failures=1, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "cart_persist_duration_seconds", "backend", "redis"); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected duration sum > 0, got %f", got)
	}
	if mf := findMetricFamily(mfs, "cart_resident_sessions"); mf == nil || mf.GetMetric()[0].GetGauge().GetValue() != 3 {
		t.Fatalf("expected sessions gauge=3")
	}
}

func TestCartMetricsNilSafe(t *testing.T) {
	var metrics *CartMetrics
	metrics.IncMutation("add_item")
	metrics.SetSessions(1)

	unregistered := NewCartMetrics(nil)
	unregistered.IncWarning("")
	unregistered.ObservePersist("", time.Second)
}

func TestNormalizeLabel(t *testing.T) {
	if got := normalizeLabel(""); got != "unknown" {
		t.Fatalf("expected unknown, got %q", got)
	}
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
