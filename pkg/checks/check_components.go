package checks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/thomasvincent/nagios-plugins/pkg/checkresult"
	"github.com/thomasvincent/nagios-plugins/pkg/status"
	"golang.org/x/exp/slices"
)

func init() {
	AvailableChecks["components"] = CheckEntry{"components", func() CheckHandler { return &CheckComponents{now: time.Now} }}
}

// componentTimeFormats are tried in order to parse the updated attribute.
var componentTimeFormats = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"}

// CheckComponents checks status and update age of named components.
type CheckComponents struct {
	now func() time.Time
}

// ComponentStatus is the status of a single component.
type ComponentStatus struct {
	Name         string  `json:"name"`
	Status       string  `json:"status"`
	Updated      string  `json:"updated"`
	ResponseTime float64 `json:"response_time"`
}

type componentState struct {
	Status  string `json:"status"`
	Updated string `json:"updated,omitempty"`
}

func (l *CheckComponents) Build() *CheckData {
	return &CheckData{
		name: "components",
		description: "Checks status and update age of components. The input is a json list of components " +
			"(or an object with a components list), ex.: --command 'curl -s http://api/components'. " +
			"Thresholds apply to the minutes since the last update of each component.",
		usage:    "[component...]",
		warning:  "10",
		critical: "20",
	}
}

func (l *CheckComponents) Check(ctx context.Context, check *CheckData) (*checkresult.CheckResult, error) {
	data, err := check.Input().Read(ctx)
	if err != nil {
		return nil, err
	}
	list, err := ParseComponents(data)
	if err != nil {
		return nil, err
	}

	byName := map[string]ComponentStatus{}
	names := []string{}
	for _, comp := range list {
		byName[comp.Name] = comp
		names = append(names, comp.Name)
	}
	if args := check.Args(); len(args) > 0 {
		names = args
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no components found")
	}

	now := l.now()
	metrics := checkresult.Metrics{}
	states := map[string]componentState{}
	critical := []string{}
	warning := []string{}
	for _, name := range names {
		comp, ok := byName[name]
		if !ok {
			log.Debugf("components: %s not found in input", name)
			comp = ComponentStatus{Name: name, Status: "error"}
		}
		compStatus := strings.ToLower(comp.Status)
		states[name] = componentState{Status: compStatus, Updated: comp.Updated}
		if compStatus == "ok" {
			metrics[name+"_status"] = 1
		} else {
			metrics[name+"_status"] = 0
		}
		if ok {
			metrics[name+"_response_time_ms"] = comp.ResponseTime
		}
		if compStatus != "ok" {
			critical = append(critical, name)

			continue
		}

		updated, err := parseComponentTime(comp.Updated)
		if err != nil {
			log.Warnf("components: %s: %s", name, err.Error())

			continue
		}
		if updated.IsZero() {
			continue
		}
		minutes := math.Round(now.Sub(updated).Minutes()*100) / 100
		metrics[name+"_minutes_since_update"] = minutes
		switch check.Evaluate(minutes) {
		case status.Critical:
			critical = append(critical, name)
		case status.Warning:
			warning = append(warning, name)
		}
	}

	metrics["total_components"] = len(names)
	metrics["critical_components"] = len(critical)
	metrics["warning_components"] = len(warning)
	metrics["ok_components"] = len(names) - len(critical) - len(warning)

	details := bytes.Buffer{}
	encoder := json.NewEncoder(&details)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(states); err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	options := []checkresult.Option{
		checkresult.WithMetrics(metrics),
		checkresult.WithDetails(strings.TrimSpace(details.String())),
	}

	switch {
	case len(critical) > 0:
		return checkresult.New(status.Critical, "Components with issues: "+strings.Join(critical, ", "), options...), nil
	case len(warning) > 0:
		return checkresult.New(status.Warning, "Components not recently updated: "+strings.Join(warning, ", "), options...), nil
	}

	return checkresult.New(status.OK,
		fmt.Sprintf("All %d components are healthy and recently updated", len(names)), options...), nil
}

// ParseComponents reads a json list of components or an object with a components list.
func ParseComponents(data []byte) ([]ComponentStatus, error) {
	data = bytes.TrimSpace(data)
	list := []ComponentStatus{}
	if bytes.HasPrefix(data, []byte("[")) {
		if err := json.Unmarshal(data, &list); err != nil {
			return nil, fmt.Errorf("json: %w", err)
		}
	} else {
		doc := struct {
			Components []ComponentStatus `json:"components"`
		}{}
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("json: %w", err)
		}
		list = doc.Components
	}

	res := make([]ComponentStatus, 0, len(list))
	for _, comp := range list {
		if comp.Name == "" {
			continue
		}
		if slices.ContainsFunc(res, func(c ComponentStatus) bool { return c.Name == comp.Name }) {
			return nil, fmt.Errorf("duplicate component: %s", comp.Name)
		}
		res = append(res, comp)
	}

	return res, nil
}

// parseComponentTime returns the zero time for empty values.
func parseComponentTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, format := range componentTimeFormats {
		if ts, err := time.ParseInLocation(format, raw, time.Local); err == nil {
			return ts, nil
		}
	}

	return time.Time{}, fmt.Errorf("invalid timestamp format: %s", raw)
}
