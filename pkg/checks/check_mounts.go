package checks

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/thomasvincent/nagios-plugins/pkg/checkresult"
	"github.com/thomasvincent/nagios-plugins/pkg/status"
	"golang.org/x/exp/slices"
)

func init() {
	AvailableChecks["mounts"] = CheckEntry{"mounts", func() CheckHandler { return &CheckMounts{} }}
}

// DefaultMountExcludes are mount point prefixes which are never checked.
var DefaultMountExcludes = []string{"/proc", "/sys", "/dev", "/run", "/tmp", "/var/lib/docker"}

// format: device on mount_point type fs_type (options)
var reMountLine = regexp.MustCompile(`(\S+) on (\S+) type (\S+) \(([^)]+)\)`)

// CheckMounts detects read-only mounted filesystems.
type CheckMounts struct {
	excludes []string
}

// MountInfo is a single entry of the mount table.
type MountInfo struct {
	Device     string `json:"device"`
	MountPoint string `json:"mount_point"`
	FsType     string `json:"fs_type"`
	Options    string `json:"options"`
}

// ReadOnly returns true if the options contain ro.
func (m *MountInfo) ReadOnly() bool {
	return slices.Contains(strings.Split(m.Options, ","), "ro")
}

// Critical returns true for / and /var mounts.
func (m *MountInfo) Critical() bool {
	return m.MountPoint == "/" || strings.HasPrefix(m.MountPoint, "/var")
}

func (l *CheckMounts) Build() *CheckData {
	return &CheckData{
		name: "mounts",
		description: "Checks for read-only mounted filesystems. Reads `mount -l` output from the input " +
			"or the local mount table. Read-only / or /var mounts are critical, others warning. " +
			"If thresholds are given, they apply to the number of read-only mounts instead.",
		args: map[string]CheckArgument{
			"exclude": {value: &l.excludes, description: "additional mount point prefixes to exclude (comma separated)"},
		},
	}
}

func (l *CheckMounts) Check(ctx context.Context, check *CheckData) (*checkresult.CheckResult, error) {
	var mounts []MountInfo
	if check.Input().IsSet() {
		data, err := check.Input().Read(ctx)
		if err != nil {
			return nil, err
		}
		mounts = ParseMountOutput(string(data))
	} else {
		partitions, err := disk.PartitionsWithContext(ctx, true)
		if err != nil {
			return nil, fmt.Errorf("disk partitions: %w", err)
		}
		for _, part := range partitions {
			mounts = append(mounts, MountInfo{
				Device:     part.Device,
				MountPoint: part.Mountpoint,
				FsType:     part.Fstype,
				Options:    strings.Join(part.Opts, ","),
			})
		}
	}

	excludes := append(slices.Clone(DefaultMountExcludes), l.excludes...)
	roMounts := []MountInfo{}
	critical := []string{}
	warning := []string{}
	for i := range mounts {
		mount := mounts[i]
		if isExcluded(mount.MountPoint, excludes) || !mount.ReadOnly() {
			continue
		}
		roMounts = append(roMounts, mount)
		if mount.Critical() {
			critical = append(critical, mount.MountPoint)
		} else {
			warning = append(warning, mount.MountPoint)
		}
	}
	log.Debugf("mounts: %d checked, %d read-only", len(mounts), len(roMounts))

	metrics := checkresult.Metrics{
		"ro_mounts_count":       len(roMounts),
		"critical_mounts_count": len(critical),
		"warning_mounts_count":  len(warning),
	}
	options := []checkresult.Option{checkresult.WithMetrics(metrics)}
	if len(roMounts) > 0 {
		details, err := json.MarshalIndent(roMounts, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("json: %w", err)
		}
		options = append(options, checkresult.WithDetails(string(details)))
	}

	var state status.Status
	var message string
	switch {
	case len(critical) > 0:
		state = status.Critical
		message = "Critical filesystems mounted read-only: " + strings.Join(critical, ", ")
		if len(warning) > 0 {
			message += "; other read-only mounts: " + strings.Join(warning, ", ")
		}
	case len(warning) > 0:
		state = status.Warning
		message = "Filesystems mounted read-only: " + strings.Join(warning, ", ")
	default:
		state = status.OK
		message = "No read-only mounts found"
	}

	if check.HasThresholds() {
		state = check.Evaluate(float64(len(roMounts)))
	}

	return checkresult.New(state, message, options...), nil
}

// ParseMountOutput parses the output of `mount -l`.
func ParseMountOutput(output string) []MountInfo {
	mounts := []MountInfo{}
	for _, line := range strings.Split(output, "\n") {
		match := reMountLine.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		mounts = append(mounts, MountInfo{
			Device:     match[1],
			MountPoint: match[2],
			FsType:     match[3],
			Options:    match[4],
		})
	}

	return mounts
}

func isExcluded(mountPoint string, excludes []string) bool {
	for _, excl := range excludes {
		excl = strings.TrimSpace(excl)
		if excl != "" && strings.HasPrefix(mountPoint, excl) {
			return true
		}
	}

	return false
}
