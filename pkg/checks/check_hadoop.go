package checks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/thomasvincent/nagios-plugins/pkg/checkresult"
	"github.com/thomasvincent/nagios-plugins/pkg/convert"
	"github.com/thomasvincent/nagios-plugins/pkg/dump"
	"github.com/thomasvincent/nagios-plugins/pkg/status"
)

func init() {
	AvailableChecks["hadoop"] = CheckEntry{"hadoop", func() CheckHandler { return &CheckHadoop{now: time.Now} }}
}

// HadoopUpdateFormat is the time format of the updated attribute.
const HadoopUpdateFormat = "2006-01-02 15:04:05"

// CheckHadoop evaluates the json status document of a hadoop cluster.
type CheckHadoop struct {
	maxUpdateMinutes int64
	now              func() time.Time
}

// HadoopStatus is the cluster status document.
type HadoopStatus struct {
	Status        string            `json:"status"`
	Message       string            `json:"message"`
	Subcomponents []HadoopComponent `json:"subcomponents"`
}

// HadoopComponent is a single component of the cluster.
type HadoopComponent struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Updated string `json:"updated"`
}

func (l *CheckHadoop) Build() *CheckData {
	return &CheckData{
		name:        "hadoop",
		description: "Checks the json status document of a hadoop cluster, ex.: --command 'curl -s http://namenode/status'.",
		noThreshold: true,
		args: map[string]CheckArgument{
			"max-update-minutes": {value: &l.maxUpdateMinutes, description: "warn if a component has not been updated for this many minutes"},
		},
	}
}

func (l *CheckHadoop) Check(ctx context.Context, check *CheckData) (*checkresult.CheckResult, error) {
	data, err := check.Input().Read(ctx)
	if err != nil {
		return nil, err
	}

	doc := HadoopStatus{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return checkresult.New(status.Critical,
			fmt.Sprintf("Invalid JSON response from Hadoop API: %s", err.Error()),
			checkresult.WithMetric("status", 0)), nil
	}
	log.Tracef("hadoop status:\n%s", dump.Sdump(doc))

	if !strings.EqualFold(doc.Status, "ok") {
		message := doc.Message
		if message == "" {
			message = "Status not OK"
		}
		details, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("json: %w", err)
		}

		return checkresult.New(status.Warning, "Hadoop: "+message,
			checkresult.WithMetric("status", 0),
			checkresult.WithDetails(string(details))), nil
	}

	metrics := checkresult.Metrics{"status": 1}
	failed := []string{}
	stale := []string{}
	memMessage := ""
	now := l.now()
	for _, comp := range doc.Subcomponents {
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
		} else {
			metrics["component_"+name+"_status"] = 0
			message := comp.Message
			if message == "" {
				message = "No message"
			}
			failed = append(failed, fmt.Sprintf("Component '%s' has status '%s': %s", name, compStatus, message))
		}

		if l.maxUpdateMinutes > 0 && comp.Updated != "" {
			updated, err := time.ParseInLocation(HadoopUpdateFormat, comp.Updated, time.Local)
			if err != nil {
				return nil, fmt.Errorf("component %s: updated: %w", name, err)
			}
			minutes := int64(now.Sub(updated).Minutes())
			metrics["component_"+name+"_minutes_since_update"] = minutes
			if minutes > l.maxUpdateMinutes {
				stale = append(stale, fmt.Sprintf("Component '%s' updated %dm ago (max:%dm)", name, minutes, l.maxUpdateMinutes))
			}
		}

		if strings.EqualFold(name, "mem") && memMessage == "" {
			memMessage = strings.TrimSpace(strings.ReplaceAll(comp.Message, "k", ""))
			if num, err := convert.Float64E(memMessage); err == nil {
				metrics["mem"] = num
			} else {
				metrics["mem"] = memMessage
			}
		}
	}

	switch {
	case len(failed) > 0:
		return checkresult.New(status.Warning, failed[0],
			checkresult.WithMetrics(metrics),
			checkresult.WithDetails(strings.Join(failed, "\n"))), nil
	case len(stale) > 0:
		return checkresult.New(status.Warning, stale[0],
			checkresult.WithMetrics(metrics),
			checkresult.WithDetails(strings.Join(stale, "\n"))), nil
	}

	message := "Hadoop cluster is healthy"
	if memMessage != "" {
		message += ", memory: " + memMessage
	}

	return checkresult.New(status.OK, message, checkresult.WithMetrics(metrics)), nil
}
