package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	DefaultCommandTimeout = 30 * time.Second
	BuildTimeout          = 5 * time.Minute
)

// exitCodes maps the printed status to the plugin exit code.
var exitCodes = map[string]int{
	"OK":       0,
	"WARNING":  1,
	"CRITICAL": 2,
	"UNKNOWN":  3,
}

// pluginRun is one invocation of the binary and the plugin result it must produce.
type pluginRun struct {
	Args  []string
	Stdin string // data passed to stdin

	Status string   // expected status, stdout and exit code must both agree with it
	JSON   bool     // stdout is a json document with a status attribute
	Like   []string // stdout must match these regexps
}

// runPlugin runs the binary and checks the plugin contract: the printed status
// matches the exit code, stderr stays empty.
func runPlugin(t *testing.T, run *pluginRun) string {
	t.Helper()

	stdout, stderr, exitCode := execute(t, execution{Bin: getBinary(), Args: run.Args, Stdin: run.Stdin})

	printed := printedStatus(t, stdout, run.JSON)
	code, ok := exitCodes[printed]
	require.Truef(t, ok, "stdout starts with a status: %q", stdout)
	assert.Equalf(t, code, exitCode, "exit code matches printed status %s", printed)
	if run.Status != "" {
		assert.Equalf(t, run.Status, printed, "status of %v", run.Args)
	}
	for _, l := range run.Like {
		assert.Regexpf(t, l, stdout, "stdout contains: "+l)
	}
	assert.Emptyf(t, strings.TrimSpace(stderr), "stderr must be empty")

	return stdout
}

// runBinary runs the binary for non plugin output like help and version.
func runBinary(t *testing.T, args []string, exit int, like ...string) {
	t.Helper()

	stdout, _, exitCode := execute(t, execution{Bin: getBinary(), Args: args})
	assert.Equalf(t, exit, exitCode, "exit code of %v", args)
	for _, l := range like {
		assert.Regexpf(t, l, stdout, "stdout contains: "+l)
	}
}

func printedStatus(t *testing.T, stdout string, isJSON bool) string {
	t.Helper()

	if isJSON {
		doc := struct {
			Status string `json:"status"`
		}{}
		require.NoErrorf(t, json.Unmarshal([]byte(stdout), &doc), "stdout is json: %s", stdout)

		return doc.Status
	}
	prefix, _, _ := strings.Cut(stdout, " - ")

	return prefix
}

// execution is a single process run.
type execution struct {
	Bin     string
	Args    []string
	Stdin   string
	Dir     string        // work dir, default is the current directory
	Env     []string      // additional KEY=value pairs
	Timeout time.Duration // default DefaultCommandTimeout
}

// execute runs the process with timeout and returns its output.
func execute(t *testing.T, run execution) (stdout, stderr string, exitCode int) {
	t.Helper()

	timeout := run.Timeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, run.Bin, run.Args...) //nolint:gosec // for testing purposes only
	cmd.Env = append(os.Environ(), run.Env...)
	cmd.Dir = run.Dir
	if run.Stdin != "" {
		cmd.Stdin = strings.NewReader(run.Stdin)
	}
	outbuf := &bytes.Buffer{}
	errbuf := &bytes.Buffer{}
	cmd.Stdout = outbuf
	cmd.Stderr = errbuf

	t.Logf("run: %s", cmd.String())
	err := cmd.Run()
	require.NoErrorf(t, ctx.Err(), "%s finished within %s", run.Bin, timeout)
	if err != nil && cmd.ProcessState == nil {
		require.NoErrorf(t, err, "command started: %s", run.Bin)
	}
	if t.Failed() {
		t.Logf("stdout: %s", outbuf.String())
		t.Logf("stderr: %s", errbuf.String())
	}

	return outbuf.String(), errbuf.String(), cmd.ProcessState.ExitCode()
}

// getBinary returns path to the test build of nagios-plugins
func getBinary() string {
	workDir, _ := filepath.Abs(".")
	if runtime.GOOS == "windows" {
		return filepath.Join(workDir, "nagios-plugins.exe")
	}

	return filepath.Join(workDir, "nagios-plugins")
}
