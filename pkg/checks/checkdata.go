package checks

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/thomasvincent/nagios-plugins/pkg/checkresult"
	"github.com/thomasvincent/nagios-plugins/pkg/status"
	"github.com/thomasvincent/nagios-plugins/pkg/threshold"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// DefaultTimeout applies to command inputs unless --timeout is set.
const DefaultTimeout = 30 * time.Second

// CheckHandler implements a single plugin.
type CheckHandler interface {
	// Build returns the plugin description and its arguments bound to the handler fields.
	Build() *CheckData
	// Check runs the plugin. Errors are turned into UNKNOWN results by the caller.
	Check(ctx context.Context, check *CheckData) (*checkresult.CheckResult, error)
}

// CheckEntry is a registered plugin, Handler returns a fresh instance for every run.
type CheckEntry struct {
	Name    string
	Handler func() CheckHandler
}

// AvailableChecks contains all registered plugins.
var AvailableChecks = make(map[string]CheckEntry)

// CheckNames returns the sorted names of all registered plugins.
func CheckNames() []string {
	names := maps.Keys(AvailableChecks)
	slices.Sort(names)

	return names
}

// CheckArgument is a plugin specific command line flag.
type CheckArgument struct {
	value       interface{} // reference to storage pointer
	shorthand   string
	description string
}

// CheckData contains the plugin description, its arguments and, after parsing,
// the thresholds and input sources of the current run.
type CheckData struct {
	name        string
	description string
	usage       string
	args        map[string]CheckArgument
	noInput     bool // plugin does not read --input / --command
	noThreshold bool // plugin does not use -w / -c

	warning    string // default unless set on the command line
	critical   string
	thresholds threshold.Thresholds
	rawArgs    []string
	input      *Input
}

// Name returns the plugin name.
func (cd *CheckData) Name() string {
	return cd.name
}

// Description returns the plugin description used in the help.
func (cd *CheckData) Description() string {
	return cd.description
}

// Usage returns the positional argument syntax.
func (cd *CheckData) Usage() string {
	return cd.usage
}

// Args returns the positional arguments.
func (cd *CheckData) Args() []string {
	return cd.rawArgs
}

// Input returns the configured input sources.
func (cd *CheckData) Input() *Input {
	return cd.input
}

// Thresholds returns the parsed warning and critical ranges.
func (cd *CheckData) Thresholds() threshold.Thresholds {
	return cd.thresholds
}

// HasThresholds returns true if -w or -c has been set.
func (cd *CheckData) HasThresholds() bool {
	return cd.thresholds.Warning != nil || cd.thresholds.Critical != nil
}

// Evaluate returns the threshold status of value.
func (cd *CheckData) Evaluate(value float64) status.Status {
	return cd.thresholds.Status(value)
}

// FlagSet returns a flag set containing the plugin arguments plus the common
// threshold and input flags. The flag values are bound to the handler fields.
func (cd *CheckData) FlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet(cd.name, pflag.ContinueOnError)
	flags.SortFlags = false
	cd.AddFlags(flags)

	return flags
}

// AddFlags adds all flags of this plugin to the given flag set.
func (cd *CheckData) AddFlags(flags *pflag.FlagSet) {
	if cd.input == nil {
		cd.input = &Input{Timeout: DefaultTimeout, Stdin: os.Stdin}
	}
	if !cd.noThreshold {
		flags.StringVarP(&cd.warning, "warning", "w", cd.warning, "warning threshold range, ex.: 10, 10:, :10, 10:20, @10:20")
		flags.StringVarP(&cd.critical, "critical", "c", cd.critical, "critical threshold range")
	}
	if !cd.noInput {
		flags.StringVar(&cd.input.File, "input", "", "read data from file, - reads stdin")
		flags.StringVar(&cd.input.Command, "command", "", "read data from the stdout of this command")
		flags.DurationVarP(&cd.input.Timeout, "timeout", "t", DefaultTimeout, "command timeout")
	}

	for _, name := range sortedArgNames(cd.args) {
		arg := cd.args[name]
		switch ptr := arg.value.(type) {
		case *string:
			flags.StringVarP(ptr, name, arg.shorthand, *ptr, arg.description)
		case *bool:
			flags.BoolVarP(ptr, name, arg.shorthand, *ptr, arg.description)
		case *int:
			flags.IntVarP(ptr, name, arg.shorthand, *ptr, arg.description)
		case *int64:
			flags.Int64VarP(ptr, name, arg.shorthand, *ptr, arg.description)
		case *float64:
			flags.Float64VarP(ptr, name, arg.shorthand, *ptr, arg.description)
		case *time.Duration:
			flags.DurationVarP(ptr, name, arg.shorthand, *ptr, arg.description)
		case *[]string:
			flags.StringSliceVarP(ptr, name, arg.shorthand, *ptr, arg.description)
		default:
			log.Errorf("unsupported argument type %T for %s", arg.value, name)
		}
	}
}

func sortedArgNames(args map[string]CheckArgument) []string {
	names := maps.Keys(args)
	slices.Sort(names)

	return names
}

// Prepare parses the thresholds and stores positional arguments. It must be
// called after the flags have been parsed.
func (cd *CheckData) Prepare(args []string) error {
	cd.rawArgs = args
	if cd.input == nil {
		cd.input = &Input{Timeout: DefaultTimeout, Stdin: os.Stdin}
	}

	thresholds, err := threshold.ParseThresholds(cd.warning, cd.critical)
	if err != nil {
		return err
	}
	cd.thresholds = thresholds

	for _, rng := range thresholds.Inverted() {
		log.Warnf("%s: threshold %q has min greater than max, it will always alarm", cd.name, rng.String())
	}
	log.Debugf("%s: warning=%q critical=%q args=%s", cd.name, cd.warning, cd.critical, strings.Join(args, " "))

	return nil
}

// Build creates handler and check data for the named plugin.
func Build(name string) (CheckHandler, *CheckData, error) {
	entry, ok := AvailableChecks[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownCheck, name)
	}
	handler := entry.Handler()
	check := handler.Build()
	if check.name == "" {
		check.name = name
	}

	return handler, check, nil
}

// RunCheck runs the named plugin with the given command line arguments.
func RunCheck(ctx context.Context, name string, args []string) (*checkresult.CheckResult, error) {
	handler, check, err := Build(name)
	if err != nil {
		return nil, err
	}

	flags := check.FlagSet()
	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("arguments: %w", err)
	}
	if err := check.Prepare(flags.Args()); err != nil {
		return nil, err
	}

	return handler.Check(ctx, check)
}
