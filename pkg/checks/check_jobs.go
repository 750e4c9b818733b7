package checks

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/thomasvincent/nagios-plugins/pkg/checkresult"
	"github.com/thomasvincent/nagios-plugins/pkg/dump"
	"github.com/thomasvincent/nagios-plugins/pkg/status"
)

func init() {
	AvailableChecks["jobs"] = CheckEntry{"jobs", func() CheckHandler { return &CheckJobs{} }}
}

// CheckJobs evaluates the json status document of a job scheduler.
type CheckJobs struct{}

// JobsStatus is the root document of the jobs api.
type JobsStatus struct {
	Status     string          `json:"status"`
	Title      string          `json:"title"`
	Message    string          `json:"message"`
	Components []JobsComponent `json:"components"`
}

// JobsComponent is a single job or component.
type JobsComponent struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (l *CheckJobs) Build() *CheckData {
	return &CheckData{
		name:        "jobs",
		description: "Checks the json status document of a jobs api, ex.: --command 'curl -s http://scheduler/status'.",
		noThreshold: true,
	}
}

func (l *CheckJobs) Check(ctx context.Context, check *CheckData) (*checkresult.CheckResult, error) {
	data, err := check.Input().Read(ctx)
	if err != nil {
		return nil, err
	}

	doc := JobsStatus{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid json response from jobs api: %w", err)
	}
	log.Tracef("jobs status:\n%s", dump.Sdump(doc))

	rootStatus := strings.ToLower(doc.Status)
	if rootStatus == "" {
		rootStatus = "unknown"
	}
	title := doc.Title
	if title == "" {
		title = "Jobs"
	}

	if rootStatus != "ok" {
		details := bytes.Buffer{}
		if err := json.Indent(&details, data, "", "  "); err != nil {
			return nil, fmt.Errorf("json: %w", err)
		}

		return checkresult.New(status.Warning,
			fmt.Sprintf("Root status %s is %s. Message: %s", title, strings.ToUpper(rootStatus), oneLine(doc.Message)),
			checkresult.WithMetric("root_status", 0),
			checkresult.WithDetails(details.String())), nil
	}

	metrics := checkresult.Metrics{"root_status": 1}
	failed := []string{}
	for _, comp := range doc.Components {
		name := comp.Name
		if name == "" {
			name = "unknown"
		}
		compStatus := strings.ToLower(comp.Status)
		if compStatus == "" {
			compStatus = "unknown"
		}
		if compStatus == "ok" {
			metrics["component_"+name+"_status"] = 1

			continue
		}
		metrics["component_"+name+"_status"] = 0
		failed = append(failed, fmt.Sprintf("Component %s status %s: %s", name, strings.ToUpper(compStatus), oneLine(comp.Message)))
	}

	if len(failed) > 0 {
		return checkresult.New(status.Warning, failed[0],
			checkresult.WithMetrics(metrics),
			checkresult.WithDetails(strings.Join(failed, "\n"))), nil
	}

	return checkresult.New(status.OK, "All jobs and components are healthy", checkresult.WithMetrics(metrics)), nil
}

// oneLine joins multi line messages with "; ".
func oneLine(message string) string {
	return strings.ReplaceAll(strings.TrimSpace(message), "\n", "; ")
}
