package checks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/thomasvincent/nagios-plugins/pkg/checkresult"
	"github.com/thomasvincent/nagios-plugins/pkg/convert"
	"github.com/thomasvincent/nagios-plugins/pkg/status"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

func init() {
	AvailableChecks["mongohealth"] = CheckEntry{"mongohealth", func() CheckHandler { return &CheckMongoHealth{mode: 1} }}
}

// MongoHealthModes contains the required components per mode.
var MongoHealthModes = map[int][]string{
	1: {"mongrations_current", "search_reachable"},
	2: {"search_reachable", "site_api_reachable"},
	3: {"mongrations_current", "search_reachable", "site_api_reachable"},
}

// CheckMongoHealth evaluates the status document of a mongodb health endpoint.
type CheckMongoHealth struct {
	mode       int
	components []string
}

func (l *CheckMongoHealth) Build() *CheckData {
	return &CheckData{
		name: "mongohealth",
		description: "Checks the json document of a mongodb health endpoint, ex.: --command 'curl -s http://host:27017/api/status'. " +
			"The engine must be alive and all required components must be true.",
		noThreshold: true,
		args: map[string]CheckArgument{
			"mode":      {value: &l.mode, shorthand: "m", description: "1: mongrations and search, 2: search and site api, 3: all"},
			"component": {value: &l.components, description: "additional required components (comma separated)"},
		},
	}
}

func (l *CheckMongoHealth) Check(ctx context.Context, check *CheckData) (*checkresult.CheckResult, error) {
	required, ok := MongoHealthModes[l.mode]
	if !ok {
		return nil, fmt.Errorf("unknown mode %d, must be 1, 2 or 3", l.mode)
	}
	required = slices.Clone(required)
	for _, comp := range l.components {
		comp = strings.TrimSpace(comp)
		if comp != "" && !slices.Contains(required, comp) {
			required = append(required, comp)
		}
	}

	data, err := check.Input().Read(ctx)
	if err != nil {
		return nil, err
	}

	doc := map[string]interface{}{}
	if err := json.Unmarshal(data, &doc); err != nil {
		log.Debugf("mongohealth: invalid json: %s", err.Error())

		return checkresult.New(status.Critical, "MongoDB engine is not alive!", checkresult.WithMetric("alive", 0)), nil
	}
	if alive, err := convert.BoolE(doc["alive"]); err != nil || !alive {
		return checkresult.New(status.Critical, "MongoDB engine is not alive!", checkresult.WithMetric("alive", 0)), nil
	}

	failed := []string{}
	for _, comp := range required {
		val, ok := doc[comp]
		if !ok {
			failed = append(failed, comp+" (missing)")

			continue
		}
		if healthy, isBool := val.(bool); !isBool || !healthy {
			failed = append(failed, fmt.Sprintf("%s (expected: true, got: %v)", comp, val))
		}
	}

	metrics := checkresult.Metrics{"alive": 1}
	keys := maps.Keys(doc)
	slices.Sort(keys)
	for _, key := range keys {
		switch val := doc[key].(type) {
		case bool:
			metrics[key] = boolMetric(val)
		case float64:
			metrics[key] = boolMetric(val != 0)
		}
	}

	details, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}

	if len(failed) > 0 {
		return checkresult.New(status.Critical, "Failed components: "+strings.Join(failed, ", "),
			checkresult.WithMetrics(metrics),
			checkresult.WithDetails(string(details))), nil
	}

	return checkresult.New(status.OK, "All MongoDB components are healthy",
		checkresult.WithMetrics(metrics),
		checkresult.WithDetails(string(details))), nil
}

func boolMetric(val bool) int {
	if val {
		return 1
	}

	return 0
}
