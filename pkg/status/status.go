package status

import (
	"fmt"
	"strings"
)

// Status is the result state of a monitoring plugin.
// The numeric value is the plugin exit code.
type Status int

const (
	// OK is used for normal exits.
	OK Status = 0

	// Warning is used for warnings.
	Warning Status = 1

	// Critical is used for critical errors.
	Critical Status = 2

	// Unknown is used when the check runs into a problem itself.
	Unknown Status = 3
)

// String returns the plugin output name of the status.
func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case Warning:
		return "WARNING"
	case Critical:
		return "CRITICAL"
	case Unknown:
		return "UNKNOWN"
	}

	return "UNKNOWN"
}

// ExitCode returns the process exit code for this status.
func (s Status) ExitCode() int {
	switch s {
	case OK, Warning, Critical, Unknown:
		return int(s)
	}

	return int(Unknown)
}

// Parse converts a status name into a Status, unknown names are Unknown.
func Parse(name string) Status {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "OK":
		return OK
	case "WARNING", "WARN":
		return Warning
	case "CRITICAL", "CRIT":
		return Critical
	}

	return Unknown
}

// FromExitCode converts a plugin exit code into a Status.
func FromExitCode(code int64) Status {
	if code < int64(OK) || code > int64(Unknown) {
		return Unknown
	}

	return Status(code)
}

// MarshalText implements encoding.TextMarshaler
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Status) UnmarshalText(text []byte) error {
	switch strings.ToUpper(string(text)) {
	case "OK", "WARNING", "CRITICAL", "UNKNOWN":
		*s = Parse(string(text))

		return nil
	}

	return fmt.Errorf("unknown status: %q", string(text))
}

// MostSevere returns the status with the highest ordinal.
// Without any status the result is OK.
func MostSevere(states ...Status) Status {
	worst := OK
	for _, s := range states {
		s = FromExitCode(int64(s))
		if s > worst {
			worst = s
		}
	}

	return worst
}
