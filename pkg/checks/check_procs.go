package checks

import (
	"context"
	"fmt"
	"os/user"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v3/process"
	"github.com/thomasvincent/nagios-plugins/pkg/checkresult"
	"github.com/thomasvincent/nagios-plugins/pkg/convert"
)

func init() {
	AvailableChecks["procs"] = CheckEntry{"procs", func() CheckHandler { return &CheckProcs{metric: "PROCS"} }}
}

// CheckProcs counts processes and checks their resource usage.
type CheckProcs struct {
	name        string
	statusFlags []string
	ppid        int64
	vsz         int64
	rss         int64
	pcpu        float64
	user        string
	metric      string
	skipLines   int
}

// ProcessInfo is a single process. Sizes are in KiB like in ps.
type ProcessInfo struct {
	UID     string
	PID     int64
	PPID    int64
	VSZ     int64
	RSS     int64
	Stat    string
	Time    string
	CPU     float64
	Command string
}

func (l *CheckProcs) Build() *CheckData {
	return &CheckData{
		name: "procs",
		description: "Checks the number of processes matching the filters or their resource usage. " +
			"Reads `ps -o uid,pid,ppid,vsz,rss,stat,bsdtime,pcpu,comm` output from the input or the local process table.",
		args: map[string]CheckArgument{
			"name":        {value: &l.name, shorthand: "C", description: "only count processes with this command name"},
			"statusflags": {value: &l.statusFlags, shorthand: "s", description: "only count processes with one or more of these status flags, ex.: R,Z,S"},
			"ppid":        {value: &l.ppid, shorthand: "i", description: "only count children of this parent process id"},
			"vsz":         {value: &l.vsz, shorthand: "z", description: "only count processes with VSZ (KiB) higher than this"},
			"rss":         {value: &l.rss, shorthand: "r", description: "only count processes with RSS (KiB) higher than this"},
			"pcpu":        {value: &l.pcpu, shorthand: "o", description: "only count processes with CPU percent higher than this"},
			"user":        {value: &l.user, shorthand: "u", description: "only count processes of this user name or id"},
			"metric":      {value: &l.metric, shorthand: "m", description: "apply thresholds to PROCS (count), VSZ, RSS or CPU (maximum of the matched processes)"},
			"skip-lines":  {value: &l.skipLines, description: "number of leading input lines to skip besides the ps header"},
		},
	}
}

func (l *CheckProcs) Check(ctx context.Context, check *CheckData) (*checkresult.CheckResult, error) {
	metric := strings.ToUpper(strings.TrimSpace(l.metric))
	switch metric {
	case "PROCS", "VSZ", "RSS", "CPU":
	default:
		return nil, fmt.Errorf("unknown metric %q, must be one of PROCS, VSZ, RSS, CPU", l.metric)
	}

	var procs []ProcessInfo
	if check.Input().IsSet() {
		data, err := check.Input().Read(ctx)
		if err != nil {
			return nil, err
		}
		procs = ParsePsOutput(string(data), l.skipLines)
	} else {
		local, err := l.localProcesses(ctx)
		if err != nil {
			return nil, err
		}
		procs = local
	}

	uid, err := lookupUID(l.user)
	if err != nil {
		return nil, err
	}

	matched := []ProcessInfo{}
	for i := range procs {
		if l.matches(&procs[i], uid) {
			matched = append(matched, procs[i])
		}
	}
	log.Debugf("procs: %d processes, %d matched", len(procs), len(matched))

	value := float64(len(matched))
	metrics := checkresult.Metrics{"count": len(matched)}
	if metric != "PROCS" {
		value = 0
		for i := range matched {
			if val := matched[i].metricValue(metric); val > value {
				value = val
			}
		}
		metrics[strings.ToLower(metric)] = value
	}

	message := fmt.Sprintf("%d processes", len(matched))
	if l.name != "" {
		message += fmt.Sprintf(" with command name '%s'", l.name)
	}
	if metric != "PROCS" {
		message += fmt.Sprintf(", max %s %s", metric, l.formatValue(metric, value))
	}

	options := []checkresult.Option{checkresult.WithMetrics(metrics)}
	if len(matched) > 0 {
		options = append(options, checkresult.WithDetails(formatProcesses(matched)))
	}

	return checkresult.New(check.Evaluate(value), message, options...), nil
}

func (p *ProcessInfo) metricValue(metric string) float64 {
	switch metric {
	case "VSZ":
		return float64(p.VSZ)
	case "RSS":
		return float64(p.RSS)
	case "CPU":
		return p.CPU
	}

	return 0
}

func (l *CheckProcs) formatValue(metric string, value float64) string {
	switch metric {
	case "VSZ", "RSS":
		return humanize.IBytes(uint64(value) * 1024)
	case "CPU":
		return convert.Num2String(value) + "%"
	}

	return convert.Num2String(value)
}

func (l *CheckProcs) matches(proc *ProcessInfo, uid string) bool {
	if l.name != "" && proc.Command != l.name {
		return false
	}
	if len(l.statusFlags) > 0 && !hasAnyFlag(proc.Stat, l.statusFlags) {
		return false
	}
	if l.ppid > 0 && proc.PPID != l.ppid {
		return false
	}
	if l.vsz > 0 && proc.VSZ <= l.vsz {
		return false
	}
	if l.rss > 0 && proc.RSS <= l.rss {
		return false
	}
	if l.pcpu > 0 && proc.CPU <= l.pcpu {
		return false
	}
	if uid != "" && proc.UID != uid {
		return false
	}

	return true
}

func hasAnyFlag(stat string, flags []string) bool {
	for _, flag := range flags {
		flag = strings.TrimSpace(flag)
		if flag != "" && strings.Contains(stat, flag) {
			return true
		}
	}

	return false
}

// lookupUID converts user names into numeric ids, ps -o uid prints ids.
func lookupUID(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil
	}
	if _, err := strconv.ParseUint(name, 10, 32); err == nil {
		return name, nil
	}
	usr, err := user.Lookup(name)
	if err != nil {
		return "", fmt.Errorf("user %s: %w", name, err)
	}

	return usr.Uid, nil
}

// ParsePsOutput parses the output of `ps -o uid,pid,ppid,vsz,rss,stat,bsdtime,pcpu,comm`.
// Header lines and lines with too few columns are skipped.
func ParsePsOutput(output string, skipLines int) []ProcessInfo {
	procs := []ProcessInfo{}
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if skipLines > 0 {
		if skipLines >= len(lines) {
			return procs
		}
		lines = lines[skipLines:]
	}

	for _, line := range lines {
		cols := strings.Fields(line)
		if len(cols) < 9 || strings.EqualFold(cols[0], "UID") {
			continue
		}
		pid, err := strconv.ParseInt(cols[1], 10, 64)
		if err != nil {
			log.Tracef("skipping ps line: %s", line)

			continue
		}
		proc := ProcessInfo{
			UID:     cols[0],
			PID:     pid,
			Stat:    cols[5],
			Time:    cols[6],
			Command: strings.Join(cols[8:], " "),
		}
		proc.PPID, _ = strconv.ParseInt(cols[2], 10, 64)
		proc.VSZ, _ = strconv.ParseInt(cols[3], 10, 64)
		proc.RSS, _ = strconv.ParseInt(cols[4], 10, 64)
		proc.CPU, _ = strconv.ParseFloat(cols[7], 64)
		procs = append(procs, proc)
	}

	return procs
}

func (l *CheckProcs) localProcesses(ctx context.Context) ([]ProcessInfo, error) {
	list, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("processes: %w", err)
	}

	procs := make([]ProcessInfo, 0, len(list))
	for _, proc := range list {
		name, err := proc.NameWithContext(ctx)
		if err != nil {
			// process has exited meanwhile
			log.Tracef("skipping pid %d: %s", proc.Pid, err.Error())

			continue
		}
		info := ProcessInfo{PID: int64(proc.Pid), Command: name}
		if ppid, err := proc.PpidWithContext(ctx); err == nil {
			info.PPID = int64(ppid)
		}
		if mem, err := proc.MemoryInfoWithContext(ctx); err == nil {
			info.VSZ = int64(mem.VMS / 1024)
			info.RSS = int64(mem.RSS / 1024)
		}
		if stat, err := proc.StatusWithContext(ctx); err == nil {
			info.Stat = psStatusFlags(stat)
		}
		if cpu, err := proc.CPUPercentWithContext(ctx); err == nil {
			info.CPU = cpu
		}
		if uids, err := proc.UidsWithContext(ctx); err == nil && len(uids) > 0 {
			info.UID = strconv.FormatInt(int64(uids[0]), 10)
		}
		procs = append(procs, info)
	}

	return procs, nil
}

// psStatusLetters maps gopsutil process states to ps stat letters.
var psStatusLetters = map[string]string{
	process.Running: "R",
	process.Sleep:   "S",
	process.Idle:    "I",
	process.Zombie:  "Z",
	process.Stop:    "T",
	process.Blocked: "D",
	process.Wait:    "D",
	process.Lock:    "D",
}

// psStatusFlags converts gopsutil states into ps stat flags, unknown states are kept.
func psStatusFlags(states []string) string {
	var flags strings.Builder
	for _, state := range states {
		letter, ok := psStatusLetters[state]
		if !ok {
			letter = state
		}
		if !strings.Contains(flags.String(), letter) {
			flags.WriteString(letter)
		}
	}

	return flags.String()
}

func formatProcesses(procs []ProcessInfo) string {
	columns := []tableColumn{
		{Name: "pid", Right: true},
		{Name: "ppid", Right: true},
		{Name: "uid", Right: true},
		{Name: "stat"},
		{Name: "vsz", Right: true},
		{Name: "rss", Right: true},
		{Name: "cpu", Right: true},
		{Name: "command"},
	}
	rows := make([][]string, 0, len(procs))
	for i := range procs {
		proc := &procs[i]
		rows = append(rows, []string{
			strconv.FormatInt(proc.PID, 10),
			strconv.FormatInt(proc.PPID, 10),
			proc.UID,
			proc.Stat,
			humanize.IBytes(uint64(proc.VSZ) * 1024),
			humanize.IBytes(uint64(proc.RSS) * 1024),
			convert.Num2String(proc.CPU) + "%",
			proc.Command,
		})
	}

	table, err := asciiTable(columns, rows)
	if err != nil {
		log.Errorf("procs: %s", err.Error())

		return ""
	}

	return table
}
