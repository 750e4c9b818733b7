package checks

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/thomasvincent/nagios-plugins/pkg/checkresult"
	"github.com/thomasvincent/nagios-plugins/pkg/convert"
)

func init() {
	AvailableChecks["value"] = CheckEntry{"value", func() CheckHandler { return &CheckValue{label: "value"} }}
}

// CheckValue applies the thresholds to a single number.
type CheckValue struct {
	value string
	label string
	unit  string
}

func (l *CheckValue) Build() *CheckData {
	return &CheckData{
		name:        "value",
		description: "Checks a single number against the warning and critical threshold. The number is taken from --value or the first line of the input.",
		args: map[string]CheckArgument{
			"value": {value: &l.value, description: "the number to check"},
			"label": {value: &l.label, description: "metric name"},
			"uom":   {value: &l.unit, description: "unit of measurement, used in the output"},
		},
	}
}

func (l *CheckValue) Check(ctx context.Context, check *CheckData) (*checkresult.CheckResult, error) {
	raw := strings.TrimSpace(l.value)
	if raw == "" {
		lines, err := check.Input().ReadLines(ctx)
		if err != nil {
			return nil, err
		}
		if len(lines) == 0 {
			return nil, fmt.Errorf("input is empty")
		}
		raw = lines[0]
	}

	value, err := convert.Float64E(raw)
	if err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, fmt.Errorf("%s is not a finite number", raw)
	}

	return checkresult.New(
		check.Evaluate(value),
		fmt.Sprintf("%s is %s%s", l.label, convert.Num2String(value), l.unit),
		checkresult.WithMetric(l.label, value),
	), nil
}
