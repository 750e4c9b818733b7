package checks

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thomasvincent/nagios-plugins/pkg/checkresult"
	"github.com/thomasvincent/nagios-plugins/pkg/status"
)

func TestCheckJobs(t *testing.T) {
	t.Parallel()

	healthy := `{"status": "OK", "title": "Nightly", "components": [
		{"name": "backup", "status": "ok"},
		{"name": "reports", "status": "ok", "message": "done"}
	]}`
	res, err := RunCheckArgs(t, "jobs", "--input", writeInput(t, healthy))
	require.NoError(t, err)
	assert.Equal(t, "OK - All jobs and components are healthy | component_backup_status=1 component_reports_status=1 root_status=1", res.Text())

	failed := `{"status": "ok", "components": [
		{"name": "backup", "status": "failed", "message": "disk full\nretrying"},
		{"name": "reports", "status": "ok"},
		{"name": "cleanup", "status": "warning"}
	]}`
	res, err = RunCheckArgs(t, "jobs", "--input", writeInput(t, failed))
	require.NoError(t, err)
	assert.Equal(t, status.Warning, res.Status)
	assert.Equal(t, "Component backup status FAILED: disk full; retrying", res.Message)
	assert.Equal(t, "Component backup status FAILED: disk full; retrying\nComponent cleanup status WARNING: ", res.Details)
	assert.Equal(t, 0, res.Metrics["component_backup_status"])
	assert.Equal(t, 1, res.Metrics["component_reports_status"])
	assert.Equal(t, 1, res.Metrics["root_status"])

	res, err = RunCheckArgs(t, "jobs", "--input", writeInput(t, `{"status": "error", "title": "Nightly", "message": "scheduler\nstopped"}`))
	require.NoError(t, err)
	assert.Equal(t, status.Warning, res.Status)
	assert.Equal(t, "Root status Nightly is ERROR. Message: scheduler; stopped", res.Message)
	assert.Equal(t, checkresult.Metrics{"root_status": 0}, res.Metrics)
	assert.Contains(t, res.Details, `"title": "Nightly"`)

	res, err = RunCheckArgs(t, "jobs", "--input", writeInput(t, `{}`))
	require.NoError(t, err)
	assert.Equal(t, "Root status Jobs is UNKNOWN. Message: ", res.Message)

	_, err = RunCheckArgs(t, "jobs", "--input", writeInput(t, "<html>"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid json response from jobs api")
}

func TestCheckComponents(t *testing.T) {
	t.Parallel()

	now, err := time.Parse(time.RFC3339, "2024-05-01T12:00:00Z")
	require.NoError(t, err)
	handler := func() *CheckComponents { return &CheckComponents{now: func() time.Time { return now }} }

	doc := `{"components": [
		{"name": "api", "status": "ok", "updated": "2024-05-01T11:55:00Z", "response_time": 12},
		{"name": "search", "status": "OK", "updated": "2024-05-01T11:45:00Z", "response_time": 40},
		{"name": "worker", "status": "ok", "updated": "2024-05-01T11:30:00Z"},
		{"name": "mailer", "status": "error"}
	]}`
	input := writeInput(t, doc)

	res, err := runHandler(t, handler(), []string{"--input", input, "api"})
	require.NoError(t, err)
	assert.Equal(t, status.OK, res.Status)
	assert.Equal(t, "All 1 components are healthy and recently updated", res.Message)
	assert.InDelta(t, 5.0, res.Metrics["api_minutes_since_update"], 0.001)
	assert.InDelta(t, 12.0, res.Metrics["api_response_time_ms"], 0.001)
	assert.Equal(t, 1, res.Metrics["ok_components"])

	res, err = runHandler(t, handler(), []string{"--input", input, "api", "search"})
	require.NoError(t, err)
	assert.Equal(t, status.Warning, res.Status)
	assert.Equal(t, "Components not recently updated: search", res.Message)

	res, err = runHandler(t, handler(), []string{"--input", input})
	require.NoError(t, err)
	assert.Equal(t, status.Critical, res.Status)
	assert.Equal(t, "Components with issues: worker, mailer", res.Message)
	assert.Equal(t, 4, res.Metrics["total_components"])
	assert.Equal(t, 2, res.Metrics["critical_components"])
	assert.Equal(t, 1, res.Metrics["warning_components"])
	assert.Equal(t, 1, res.Metrics["ok_components"])
	assert.Equal(t, 0, res.Metrics["mailer_status"])
	assert.Contains(t, res.Details, `"mailer": {`)

	res, err = runHandler(t, handler(), []string{"--input", input, "-w", "60", "-c", "120", "api", "search", "worker"})
	require.NoError(t, err)
	assert.Equal(t, status.OK, res.Status)

	res, err = runHandler(t, handler(), []string{"--input", input, "api", "missing"})
	require.NoError(t, err)
	assert.Equal(t, status.Critical, res.Status)
	assert.Equal(t, "Components with issues: missing", res.Message)

	list := `[{"name": "api", "status": "ok", "updated": "2024-05-01T11:59:00Z"}, {"name": "db", "status": "ok", "updated": "yesterday"}]`
	res, err = runHandler(t, handler(), []string{"--input", writeInput(t, list)})
	require.NoError(t, err)
	assert.Equal(t, status.OK, res.Status)
	assert.NotContains(t, res.Metrics, "db_minutes_since_update")

	_, err = runHandler(t, handler(), []string{"--input", writeInput(t, `[]`)})
	require.Error(t, err)

	_, err = ParseComponents([]byte(`[{"name": "a"}, {"name": "a"}]`))
	require.Error(t, err)
}

func TestParseComponentTime(t *testing.T) {
	t.Parallel()

	for _, raw := range []string{"2024-05-01T11:59:00Z", "2024-05-01T11:59:00.123+02:00", "2024-05-01T11:59:00", "2024-05-01 11:59:00"} {
		ts, err := parseComponentTime(raw)
		require.NoErrorf(t, err, "parse %q", raw)
		assert.Equalf(t, 59, ts.Minute(), "minute of %q", raw)
	}

	ts, err := parseComponentTime("")
	require.NoError(t, err)
	assert.True(t, ts.IsZero())

	_, err = parseComponentTime("yesterday")
	require.Error(t, err)
}
