package checks

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thomasvincent/nagios-plugins/pkg/checkresult"
	"github.com/thomasvincent/nagios-plugins/pkg/status"
	"github.com/thomasvincent/nagios-plugins/pkg/threshold"
)

// writeInput stores data in a temporary file and returns its path.
func writeInput(t *testing.T, data string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "input")
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	return path
}

// runHandler runs an already built handler with the given arguments.
func runHandler(t *testing.T, handler CheckHandler, args []string) (*checkresult.CheckResult, error) {
	t.Helper()

	check := handler.Build()
	flags := check.FlagSet()
	require.NoError(t, flags.Parse(args))
	if err := check.Prepare(flags.Args()); err != nil {
		return nil, err
	}

	return handler.Check(context.Background(), check)
}

func TestCheckNames(t *testing.T) {
	t.Parallel()

	names := CheckNames()
	for _, name := range []string{"components", "counters", "dig", "hadoop", "jobs", "mongohealth", "mounts", "procs", "value"} {
		assert.Containsf(t, names, name, "%s is registered", name)
	}
}

func TestRunCheckUnknown(t *testing.T) {
	t.Parallel()

	_, err := RunCheck(context.Background(), "nonexisting", nil)
	require.ErrorIs(t, err, ErrUnknownCheck)
}

func TestCheckValue(t *testing.T) {
	t.Parallel()

	res, err := RunCheck(context.Background(), "value", []string{"--value", "80", "-w", "75", "-c", "90"})
	require.NoError(t, err)
	assert.Equal(t, "WARNING - value is 80 | value=80", res.Text())

	res, err = RunCheck(context.Background(), "value", []string{"--input", writeInput(t, "\n95\nignored\n"), "--label", "cpu", "--uom", "%", "-w", "75", "-c", "90"})
	require.NoError(t, err)
	assert.Equal(t, "CRITICAL - cpu is 95% | cpu=95", res.Text())

	res, err = RunCheck(context.Background(), "value", []string{"--value", "5"})
	require.NoError(t, err)
	assert.Equal(t, status.OK, res.Status)
}

func TestCheckValueErrors(t *testing.T) {
	t.Parallel()

	_, err := RunCheck(context.Background(), "value", []string{"--value", "5", "-w", "abc", "-c", "1"})
	var parseErr *threshold.ParseError
	require.ErrorAs(t, err, &parseErr)

	_, err = RunCheck(context.Background(), "value", nil)
	require.ErrorIs(t, err, ErrNoInput)

	_, err = RunCheck(context.Background(), "value", []string{"--value", "five"})
	require.Error(t, err)

	_, err = RunCheck(context.Background(), "value", []string{"--unknown-flag"})
	require.Error(t, err)
}

const mountOutput = `sysfs on /sys type sysfs (ro,nosuid,nodev,noexec,relatime)
proc on /proc type proc (rw,nosuid,nodev,noexec,relatime)
/dev/sda1 on / type ext4 (rw,relatime,errors=remount-ro) [root]
/dev/sdb1 on /data type xfs (ro,relatime)
/dev/sdc1 on /var/log type ext4 (rw,relatime)
`

func TestParseMountOutput(t *testing.T) {
	t.Parallel()

	mounts := ParseMountOutput(mountOutput)
	require.Len(t, mounts, 5)
	assert.Equal(t, MountInfo{Device: "/dev/sdb1", MountPoint: "/data", FsType: "xfs", Options: "ro,relatime"}, mounts[3])
	assert.True(t, mounts[3].ReadOnly())
	assert.False(t, mounts[2].ReadOnly(), "errors=remount-ro is no read-only mount")
	assert.True(t, mounts[2].Critical())
	assert.True(t, mounts[4].Critical())
}

func TestCheckMounts(t *testing.T) {
	t.Parallel()

	res, err := RunCheck(context.Background(), "mounts", []string{"--input", writeInput(t, mountOutput)})
	require.NoError(t, err)
	assert.Equal(t, status.Warning, res.Status)
	assert.Equal(t, "Filesystems mounted read-only: /data", res.Message)
	assert.Equal(t, 1, res.Metrics["ro_mounts_count"])
	assert.Equal(t, 0, res.Metrics["critical_mounts_count"])
	assert.Contains(t, res.Details, `"mount_point": "/data"`)

	res, err = RunCheck(context.Background(), "mounts", []string{"--input", writeInput(t, mountOutput), "--exclude", "/data"})
	require.NoError(t, err)
	assert.Equal(t, status.OK, res.Status)
	assert.Equal(t, "No read-only mounts found", res.Message)
	assert.Empty(t, res.Details)

	critical := mountOutput + "/dev/sdd1 on /var type ext4 (ro)\n"
	res, err = RunCheck(context.Background(), "mounts", []string{"--input", writeInput(t, critical)})
	require.NoError(t, err)
	assert.Equal(t, status.Critical, res.Status)
	assert.Equal(t, "Critical filesystems mounted read-only: /var; other read-only mounts: /data", res.Message)

	res, err = RunCheck(context.Background(), "mounts", []string{"--input", writeInput(t, critical), "-w", "1", "-c", "5"})
	require.NoError(t, err)
	assert.Equal(t, status.Warning, res.Status, "thresholds apply to the number of read-only mounts")
}

const psOutput = `  UID   PID  PPID    VSZ   RSS STAT   TIME %CPU COMMAND
    0     1     0 169000 12000 Ss     0:05  0.0 systemd
    0   812     1  15000  7000 Ss     0:00  0.0 sshd
 1000  4242   812  17000  9000 S      0:01  2.5 sshd
 1000  4300  4242 900000 400000 R+   10:01 95.5 java
    0  5000     1      0     0 Z      0:00  0.0 defunct proc
`

func TestParsePsOutput(t *testing.T) {
	t.Parallel()

	procs := ParsePsOutput(psOutput, 0)
	require.Len(t, procs, 5)
	assert.Equal(t, ProcessInfo{UID: "1000", PID: 4300, PPID: 4242, VSZ: 900000, RSS: 400000, Stat: "R+", Time: "10:01", CPU: 95.5, Command: "java"}, procs[3])
	assert.Equal(t, "defunct proc", procs[4].Command)

	assert.Len(t, ParsePsOutput(psOutput, 2), 4)
	assert.Empty(t, ParsePsOutput(psOutput, 10))
}

func TestCheckProcs(t *testing.T) {
	t.Parallel()

	input := writeInput(t, psOutput)
	tests := []struct {
		args    []string
		state   status.Status
		message string
		count   int
	}{
		{[]string{"--name", "sshd"}, status.OK, "2 processes with command name 'sshd'", 2},
		{[]string{"--name", "sshd", "-w", "1:1", "-c", "1:3"}, status.Warning, "2 processes with command name 'sshd'", 2},
		{[]string{"--name", "sshd", "-c", "@2"}, status.Critical, "2 processes with command name 'sshd'", 2},
		{[]string{"--statusflags", "Z,R"}, status.OK, "2 processes", 2},
		{[]string{"--ppid", "812"}, status.OK, "1 processes", 1},
		{[]string{"--user", "1000"}, status.OK, "2 processes", 2},
		{[]string{"--rss", "12000"}, status.OK, "1 processes", 1},
		{[]string{"--pcpu", "2.5"}, status.OK, "1 processes", 1},
		{[]string{"--vsz", "100000", "--metric", "rss", "-w", "100000"}, status.Warning, "2 processes, max RSS 391 MiB", 2},
		{[]string{"--metric", "CPU", "-c", "90"}, status.Critical, "5 processes, max CPU 95.5%", 5},
	}

	for _, tst := range tests {
		res, err := RunCheck(context.Background(), "procs", append([]string{"--input", input}, tst.args...))
		require.NoErrorf(t, err, "procs %v", tst.args)
		assert.Equalf(t, tst.state, res.Status, "procs %v", tst.args)
		assert.Equalf(t, tst.message, res.Message, "procs %v", tst.args)
		assert.Equalf(t, tst.count, res.Metrics["count"], "procs %v", tst.args)
	}

	_, err := RunCheck(context.Background(), "procs", []string{"--input", input, "--metric", "ELAPSED"})
	require.Error(t, err)
}

func TestPsStatusFlags(t *testing.T) {
	t.Parallel()

	tests := []struct {
		states []string
		flags  string
	}{
		{[]string{process.Running}, "R"},
		{[]string{process.Sleep}, "S"},
		{[]string{process.Idle}, "I"},
		{[]string{process.Zombie}, "Z"},
		{[]string{process.Stop}, "T"},
		{[]string{process.Blocked}, "D"},
		{[]string{process.Wait, process.Lock}, "D"},
		{[]string{process.Sleep, process.Running}, "SR"},
		{[]string{"foreground"}, "foreground"},
		{nil, ""},
	}

	for _, tst := range tests {
		assert.Equalf(t, tst.flags, psStatusFlags(tst.states), "flags of %v", tst.states)
	}
}

func TestCheckProcsLocal(t *testing.T) {
	t.Parallel()

	res, err := RunCheckArgs(t, "procs", "--statusflags", "R,S,D,I,Z,T")
	require.NoError(t, err)
	assert.Equal(t, status.OK, res.Status)
	count, ok := res.Metrics["count"].(int)
	require.True(t, ok)
	assert.Positive(t, count, "the test process itself matches")
}

const digFull = `; <<>> DiG 9.18.18 <<>> -t A example.com
;; global options: +cmd
;; Got answer:
;; ->>HEADER<<- opcode: QUERY, status: NOERROR, id: 1234

;; QUESTION SECTION:
;example.com.			IN	A

;; ANSWER SECTION:
example.com.		300	IN	A	93.184.216.34
example.com.		300	IN	A	93.184.216.35
www.example.com.	300	IN	CNAME	example.com.

;; Query time: 42 msec
;; SERVER: 127.0.0.53#53(127.0.0.53) (UDP)
`

func TestParseDigOutput(t *testing.T) {
	t.Parallel()

	answers, queryTime, err := ParseDigOutput(digFull)
	require.NoError(t, err)
	assert.Equal(t, int64(42), queryTime.Milliseconds())
	require.Len(t, answers, 3)
	assert.Equal(t, DigAnswer{Name: "example.com.", Type: "A", Value: "93.184.216.34"}, answers[0])
	assert.Equal(t, DigAnswer{Name: "www.example.com.", Type: "CNAME", Value: "example.com."}, answers[2])

	answers, queryTime, err = ParseDigOutput("10.0.0.1\n10.0.0.2\n")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), int64(queryTime))
	assert.Equal(t, []DigAnswer{{Value: "10.0.0.1"}, {Value: "10.0.0.2"}}, answers)
}

func TestCheckDig(t *testing.T) {
	t.Parallel()

	full := writeInput(t, digFull)
	res, err := RunCheck(context.Background(), "dig", []string{"--input", full, "--query", "example.com", "--expected", "93.184.216.35"})
	require.NoError(t, err)
	assert.Equal(t, status.OK, res.Status)
	assert.Equal(t, "DNS response received in 0.04s, 2 answers", res.Message)
	assert.InDelta(t, 0.042, res.Metrics["duration"], 0.0001)
	assert.Equal(t, 1, res.Metrics["response_matches"])
	assert.Equal(t, 2, res.Metrics["answers"])
	assert.Equal(t, "Response: 93.184.216.34, 93.184.216.35", res.Details)

	res, err = RunCheck(context.Background(), "dig", []string{"--input", full, "-w", "0.01", "-c", "1"})
	require.NoError(t, err)
	assert.Equal(t, status.Warning, res.Status)

	res, err = RunCheck(context.Background(), "dig", []string{"--input", full, "--expected", "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, status.Critical, res.Status)
	assert.Equal(t, "Expected address '10.0.0.1' not found", res.Message)
	assert.Equal(t, 0, res.Metrics["response_matches"])

	res, err = RunCheck(context.Background(), "dig", []string{"--input", full, "--record-type", "MX"})
	require.NoError(t, err)
	assert.Equal(t, status.Critical, res.Status)
	assert.Equal(t, "DNS query returned no MX answers", res.Message)

	res, err = RunCheck(context.Background(), "dig", []string{"--input", writeInput(t, "10.0.0.1\n"), "--expected", "10.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, status.OK, res.Status)

	_, err = RunCheck(context.Background(), "dig", []string{"--input", full, "--record-type", "NOPE"})
	require.Error(t, err)
}

const digSections = `; <<>> DiG 9.18.18 <<>> -t NS example.org
;; Got answer:
;; ->>HEADER<<- opcode: QUERY, status: NOERROR, id: 4321

;; OPT PSEUDOSECTION:
; EDNS: version: 0, flags:; udp: 1232

;; QUESTION SECTION:
;example.org.			IN	NS

;; ANSWER SECTION:
example.org.		86400	IN	NS	a.iana-servers.net.

;; AUTHORITY SECTION:
example.org.		86400	IN	NS	b.iana-servers.net.

;; ADDITIONAL SECTION:
a.iana-servers.net.	1800	IN	A	199.43.135.53
b.iana-servers.net.	1800	IN	A	199.43.133.53

;; Query time: 7 msec
`

func TestCheckDigSections(t *testing.T) {
	t.Parallel()

	answers, _, err := ParseDigOutput(digSections)
	require.NoError(t, err)
	assert.Equal(t, []DigAnswer{{Name: "example.org.", Type: "NS", Value: "a.iana-servers.net."}}, answers)

	input := writeInput(t, digSections)
	res, err := RunCheckArgs(t, "dig", "--input", input, "--expected", "199.43.135.53")
	require.NoError(t, err)
	assert.Equal(t, status.Critical, res.Status)
	assert.Equal(t, "Expected address '199.43.135.53' not found", res.Message)

	res, err = RunCheckArgs(t, "dig", "--input", input, "--record-type", "NS")
	require.NoError(t, err)
	assert.Equal(t, status.OK, res.Status)
	assert.Equal(t, 1, res.Metrics["answers"])
}

func TestCheckDigRetries(t *testing.T) {
	t.Parallel()

	_, err := RunCheck(context.Background(), "dig", []string{"--command", "false", "--retries", "2", "--retry-delay", "10ms"})
	require.ErrorIs(t, err, ErrCommandFailed)
}

func TestRunAll(t *testing.T) {
	t.Parallel()

	tasks := []Task{
		{Name: "ok", Run: func(_ context.Context) (*checkresult.CheckResult, error) {
			return checkresult.New(status.OK, "fine"), nil
		}},
		{Name: "broken", Run: func(_ context.Context) (*checkresult.CheckResult, error) {
			return nil, errors.New("connection refused")
		}},
		{Name: "panics", Run: func(_ context.Context) (*checkresult.CheckResult, error) {
			panic("boom")
		}},
		{Name: "empty", Run: func(_ context.Context) (*checkresult.CheckResult, error) {
			return nil, nil //nolint:nilnil // tests missing results
		}},
		{Name: "warn", Run: func(_ context.Context) (*checkresult.CheckResult, error) {
			return checkresult.New(status.Warning, "hmm"), nil
		}},
	}

	results := RunAll(context.Background(), tasks, 2)
	require.Len(t, results, len(tasks))
	assert.Equal(t, "OK - fine", results[0].Text())
	assert.Equal(t, "UNKNOWN - broken: connection refused", results[1].Text())
	assert.Equal(t, "UNKNOWN - panics: panic: boom", results[2].Text())
	assert.Equal(t, "UNKNOWN - empty: no result", results[3].Text())
	assert.Equal(t, "WARNING - hmm", results[4].Text())
	assert.Equal(t, status.Unknown, checkresult.MostSevere(results))

	assert.Empty(t, RunAll(context.Background(), nil, 0))
}

// RunCheckArgs is a shortcut for RunCheck with variadic arguments.
func RunCheckArgs(t *testing.T, name string, args ...string) (*checkresult.CheckResult, error) {
	t.Helper()

	return RunCheck(context.Background(), name, args)
}

func TestCheckProcsDetails(t *testing.T) {
	t.Parallel()

	res, err := RunCheckArgs(t, "procs", "--input", writeInput(t, psOutput), "--ppid", "4242")
	require.NoError(t, err)
	assert.Equal(t, ""+
		"| pid  | ppid | uid  | stat | vsz     | rss     | cpu   | command |\n"+
		"| ----:| ----:| ----:| ---- | -------:| -------:| -----:| ------- |\n"+
		"| 4300 | 4242 | 1000 | R+   | 879 MiB | 391 MiB | 95.5% | java    |", res.Details)
}
