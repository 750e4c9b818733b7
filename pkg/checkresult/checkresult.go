package checkresult

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/thomasvincent/nagios-plugins/pkg/convert"
	"github.com/thomasvincent/nagios-plugins/pkg/status"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// DefaultMessage replaces empty messages, plugin output must never be blank.
const DefaultMessage = "no output"

// Metrics maps metric names to numeric or string values.
type Metrics map[string]interface{}

// CheckResult is the result of a single check run.
type CheckResult struct {
	Status    status.Status
	Message   string
	Metrics   Metrics
	Details   string
	Timestamp time.Time
}

// Option sets optional CheckResult attributes on construction.
type Option func(*CheckResult)

// WithMetric adds a single metric.
func WithMetric(name string, value interface{}) Option {
	return func(cr *CheckResult) {
		cr.Metrics[name] = value
	}
}

// WithMetrics adds all given metrics.
func WithMetrics(metrics Metrics) Option {
	return func(cr *CheckResult) {
		for name, value := range metrics {
			cr.Metrics[name] = value
		}
	}
}

// WithDetails sets the multi line details block.
func WithDetails(details string) Option {
	return func(cr *CheckResult) {
		cr.Details = details
	}
}

// WithTimestamp overrides the capture time.
func WithTimestamp(ts time.Time) Option {
	return func(cr *CheckResult) {
		cr.Timestamp = ts
	}
}

// New creates a CheckResult captured now.
func New(state status.Status, message string, options ...Option) *CheckResult {
	if strings.TrimSpace(message) == "" {
		message = DefaultMessage
	}
	cr := &CheckResult{
		Status:    state,
		Message:   message,
		Metrics:   Metrics{},
		Timestamp: time.Now(),
	}
	for _, opt := range options {
		opt(cr)
	}

	return cr
}

// Unknown creates an UNKNOWN result from an error.
func Unknown(format string, args ...interface{}) *CheckResult {
	return New(status.Unknown, fmt.Sprintf(format, args...))
}

// ExitCode returns the process exit code for this result.
func (cr *CheckResult) ExitCode() int {
	return cr.Status.ExitCode()
}

// MetricNames returns all metric names sorted.
func (cr *CheckResult) MetricNames() []string {
	names := maps.Keys(cr.Metrics)
	slices.Sort(names)

	return names
}

// PerfData returns the metrics in plugin output syntax: key1=value1 key2=value2
func (cr *CheckResult) PerfData() string {
	perf := make([]string, 0, len(cr.Metrics))
	for _, name := range cr.MetricNames() {
		perf = append(perf, fmt.Sprintf("%s=%s", name, convert.Value2String(cr.Metrics[name])))
	}

	return strings.Join(perf, " ")
}

// Text returns the plugin output:
//
//	<STATUS> - <message>[ | key=value ...][\n<details>]
func (cr *CheckResult) Text() string {
	var output strings.Builder
	output.WriteString(cr.Status.String())
	output.WriteString(" - ")
	output.WriteString(cr.Message)
	if len(cr.Metrics) > 0 {
		output.WriteString(" | ")
		output.WriteString(cr.PerfData())
	}
	if cr.Details != "" {
		output.WriteString("\n")
		output.WriteString(cr.Details)
	}

	return output.String()
}

// String implements fmt.Stringer
func (cr *CheckResult) String() string {
	return cr.Text()
}

type jsonResult struct {
	Status    status.Status `json:"status"`
	Message   string        `json:"message"`
	Metrics   Metrics       `json:"metrics"`
	Details   string        `json:"details,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// JSON returns the result as indented json document.
func (cr *CheckResult) JSON() ([]byte, error) {
	metrics := cr.Metrics
	if metrics == nil {
		metrics = Metrics{}
	}
	data, err := json.MarshalIndent(jsonResult{
		Status:    cr.Status,
		Message:   cr.Message,
		Metrics:   metrics,
		Details:   cr.Details,
		Timestamp: cr.Timestamp,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}

	return data, nil
}

// ParseJSON reads a result previously created by JSON.
// Numeric metrics are returned as float64.
func ParseJSON(data []byte) (*CheckResult, error) {
	res := jsonResult{}
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	if res.Metrics == nil {
		res.Metrics = Metrics{}
	}

	return &CheckResult{
		Status:    res.Status,
		Message:   res.Message,
		Metrics:   res.Metrics,
		Details:   res.Details,
		Timestamp: res.Timestamp,
	}, nil
}

// MostSevere returns the worst status of all results, empty lists are OK.
func MostSevere(results []*CheckResult) status.Status {
	states := make([]status.Status, 0, len(results))
	for _, cr := range results {
		if cr != nil {
			states = append(states, cr.Status)
		}
	}

	return status.MostSevere(states...)
}
