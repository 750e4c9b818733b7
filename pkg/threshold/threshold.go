package threshold

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/thomasvincent/nagios-plugins/pkg/status"
)

// Range contains a parsed threshold range: https://www.monitoring-plugins.org/doc/guidelines.html#THRESHOLDFORMAT
//
// A plain range (10:90) alarms when the value is outside of it, an inclusive
// range (@10:90) alarms when the value is inside. Either bound may be unset.
// The zero value is the no-op range which never alarms.
type Range struct {
	lower     float64
	upper     float64
	hasLower  bool
	hasUpper  bool
	inclusive bool
}

// ParseError is returned for malformed threshold definitions.
type ParseError struct {
	Spec   string // the threshold as given
	Part   string // offending substring
	Reason string
}

func (e *ParseError) Error() string {
	if e.Part == "" {
		return fmt.Sprintf("%s in threshold %q", e.Reason, e.Spec)
	}

	return fmt.Sprintf("%s %q in threshold %q", e.Reason, e.Part, e.Spec)
}

// Parse constructs a Range from a threshold definition.
//
//	""        no-op range
//	"10"      max 10 (same as ":10")
//	"10:"     min 10
//	":10"     max 10
//	"10:20"   min 10, max 20
//	"@10:20"  alarm inside 10..20
func Parse(def string) (Range, error) {
	def = strings.TrimSpace(def)
	rng := Range{}
	if def == "" {
		return rng, nil
	}

	rest := def
	if strings.HasPrefix(rest, "@") {
		rng.inclusive = true
		rest = strings.TrimSpace(rest[1:])
		if rest == "" {
			return Range{}, &ParseError{Spec: def, Reason: "missing range after @"}
		}
	}

	parts := strings.Split(rest, ":")
	switch len(parts) {
	case 1:
		upper, err := parseBound(def, parts[0])
		if err != nil {
			return Range{}, err
		}
		rng.upper, rng.hasUpper = upper, true
	case 2:
		if left := strings.TrimSpace(parts[0]); left != "" {
			lower, err := parseBound(def, left)
			if err != nil {
				return Range{}, err
			}
			rng.lower, rng.hasLower = lower, true
		}
		if right := strings.TrimSpace(parts[1]); right != "" {
			upper, err := parseBound(def, right)
			if err != nil {
				return Range{}, err
			}
			rng.upper, rng.hasUpper = upper, true
		}
	default:
		return Range{}, &ParseError{Spec: def, Part: rest, Reason: "too many colons"}
	}

	// "@:" never alarms either, keep a single no-op representation
	if rng.IsEmpty() {
		return Range{}, nil
	}

	return rng, nil
}

// MustParse is like Parse but panics on errors. Only use it with constant definitions.
func MustParse(def string) Range {
	rng, err := Parse(def)
	if err != nil {
		panic(err.Error())
	}

	return rng
}

func parseBound(def, raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	num, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(num) {
		return 0, &ParseError{Spec: def, Part: raw, Reason: "invalid number"}
	}

	return num, nil
}

// Min returns the lower bound and whether it is set.
func (r Range) Min() (float64, bool) {
	return r.lower, r.hasLower
}

// Max returns the upper bound and whether it is set.
func (r Range) Max() (float64, bool) {
	return r.upper, r.hasUpper
}

// Inclusive returns true if values inside the range raise the alarm.
func (r Range) Inclusive() bool {
	return r.inclusive
}

// IsEmpty returns true if the range has no bounds and never alarms.
func (r Range) IsEmpty() bool {
	return !r.hasLower && !r.hasUpper
}

// Inverted returns true if min is bigger than max. Such ranges are kept as
// given, the inside predicate is then never true.
func (r Range) Inverted() bool {
	return r.hasLower && r.hasUpper && r.lower > r.upper
}

// Evaluate tests if the given value fulfills the threshold
// false: value raises the alarm
// true: value is ok
func (r Range) Evaluate(value float64) bool {
	var inside bool
	switch {
	case r.hasLower && r.hasUpper:
		inside = value >= r.lower && value <= r.upper
	case r.hasLower:
		inside = value >= r.lower
	case r.hasUpper:
		inside = value <= r.upper
	default:
		return true
	}

	if r.inclusive {
		return !inside
	}

	return inside
}

// String returns the range in threshold syntax.
func (r Range) String() string {
	if r.IsEmpty() {
		return ""
	}

	var res strings.Builder
	if r.inclusive {
		res.WriteString("@")
	}
	switch {
	case r.hasLower && r.hasUpper:
		res.WriteString(formatNum(r.lower) + ":" + formatNum(r.upper))
	case r.hasLower:
		res.WriteString(formatNum(r.lower) + ":")
	default:
		res.WriteString(formatNum(r.upper))
	}

	return res.String()
}

func formatNum(num float64) string {
	return strconv.FormatFloat(num, 'f', -1, 64)
}

// Thresholds is a parsed warning / critical pair.
type Thresholds struct {
	Warning  *Range
	Critical *Range
}

// ParseThresholds parses both definitions, empty definitions stay nil.
// Both are parsed before anything gets evaluated, so a broken warning threshold
// is reported even if the critical one would match.
func ParseThresholds(warning, critical string) (Thresholds, error) {
	thresholds := Thresholds{}
	if strings.TrimSpace(critical) != "" {
		rng, err := Parse(critical)
		if err != nil {
			return Thresholds{}, err
		}
		thresholds.Critical = &rng
	}
	if strings.TrimSpace(warning) != "" {
		rng, err := Parse(warning)
		if err != nil {
			return Thresholds{}, err
		}
		thresholds.Warning = &rng
	}

	return thresholds, nil
}

// Status returns the state for the given value, critical takes precedence.
func (t Thresholds) Status(value float64) status.Status {
	if t.Critical != nil && !t.Critical.Evaluate(value) {
		return status.Critical
	}
	if t.Warning != nil && !t.Warning.Evaluate(value) {
		return status.Warning
	}

	return status.OK
}

// Inverted returns all ranges with min bigger than max.
func (t Thresholds) Inverted() []Range {
	res := []Range{}
	for _, rng := range []*Range{t.Warning, t.Critical} {
		if rng != nil && rng.Inverted() {
			res = append(res, *rng)
		}
	}

	return res
}

// Check returns the state of value for the given warning and critical threshold.
// Empty thresholds are skipped, without any threshold the result is OK.
func Check(value float64, warning, critical string) (status.Status, error) {
	thresholds, err := ParseThresholds(warning, critical)
	if err != nil {
		return status.Unknown, err
	}

	return thresholds.Status(value), nil
}
