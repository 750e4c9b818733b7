package checkresult

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/thomasvincent/nagios-plugins/pkg/convert"
)

const promNamespace = "nagios_check"

// WritePrometheus writes the result in prometheus text exposition format,
// suitable for the node_exporter textfile collector.
// String metrics are skipped.
func (cr *CheckResult) WritePrometheus(writer io.Writer, check string) error {
	return WritePrometheus(writer, []string{check}, []*CheckResult{cr})
}

// WritePrometheus writes multiple results, names[i] labels results[i].
func WritePrometheus(writer io.Writer, names []string, results []*CheckResult) error {
	if len(names) != len(results) {
		return fmt.Errorf("got %d names for %d results", len(names), len(results))
	}
	registry := prometheus.NewRegistry()

	state := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Name:      "status",
		Help:      "plugin exit code, 0=OK 1=WARNING 2=CRITICAL 3=UNKNOWN",
	}, []string{"check"})
	metrics := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Name:      "metric",
		Help:      "numeric performance values of the check",
	}, []string{"check", "metric"})
	timestamp := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Name:      "timestamp_seconds",
		Help:      "unix time of the check",
	}, []string{"check"})

	registry.MustRegister(state, metrics, timestamp)

	for i, cr := range results {
		if cr == nil {
			continue
		}
		check := names[i]
		state.WithLabelValues(check).Set(float64(cr.ExitCode()))
		timestamp.WithLabelValues(check).Set(float64(cr.Timestamp.Unix()))
		for _, name := range cr.MetricNames() {
			if !convert.IsNumeric(cr.Metrics[name]) {
				continue
			}
			val, err := convert.Float64E(cr.Metrics[name])
			if err != nil {
				continue
			}
			metrics.WithLabelValues(check, name).Set(val)
		}
	}

	families, err := registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(writer, family); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	return nil
}
