package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/thomasvincent/nagios-plugins/pkg/checks"
	"github.com/thomasvincent/nagios-plugins/pkg/status"
)

// Version is the release version.
var Version = "0.1.0"

// Build contains the git commit id, set by main.
var Build = "unknown"

// GlobalFlags contains the flags shared by all sub commands.
type GlobalFlags struct {
	Help            bool
	Version         bool
	ConfigFile      string
	Verbose         int
	LogLevel        string
	LogFile         string
	LogFormat       string
	Format          string
	JSON            bool
	DeadlockTimeout int
}

// app holds the state of one command line invocation.
type app struct {
	flags    *GlobalFlags
	config   *Config
	exitCode int
	stdout   io.Writer
	changed  func(name string) bool
}

// Execute runs the command line and returns the exit code.
func Execute() int {
	return Run(os.Args[1:], os.Stdout)
}

// Run runs the command line with the given arguments and returns the exit code.
// Usage errors are printed as UNKNOWN result.
func Run(args []string, stdout io.Writer) int {
	root, cli := NewRootCommand(stdout)
	defer checks.CloseLogging()
	root.SetArgs(sanitizeArgs(root, args))
	if err := root.Execute(); err != nil {
		fmt.Fprintf(cli.stdout, "%s - %s\n", status.Unknown, err.Error())

		return status.Unknown.ExitCode()
	}

	return cli.exitCode
}

// NewRootCommand returns the command tree, all plugin output is written to stdout.
func NewRootCommand(stdout io.Writer) (*cobra.Command, *app) {
	cli := &app{
		flags:  &GlobalFlags{},
		config: &Config{},
		stdout: stdout,
	}

	rootCmd := &cobra.Command{
		Use:   "nagios-plugins [global flags] [check]",
		Short: "Nagios compatible monitoring plugins.",
		Long: `A collection of Nagios compatible monitoring plugins.

Every check prints a status line and exits with 0 (OK), 1 (WARNING),
2 (CRITICAL) or 3 (UNKNOWN). Thresholds use the Nagios range syntax.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return cli.setup()
		},
		Run: func(cmd *cobra.Command, _ []string) {
			if cli.flags.Version {
				fmt.Fprintf(cli.stdout, "nagios-plugins v%s (Build: %s)\n", Version, Build)

				return
			}
			cmd.SetOut(cli.stdout)
			_ = cmd.Help()
			cli.exitCode = status.Unknown.ExitCode()
		},
	}
	rootCmd.SetOut(stdout)
	cli.changed = rootCmd.PersistentFlags().Changed

	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&cli.flags.Help, "help", "h", false, "print help and exit")
	flags.BoolVarP(&cli.flags.Version, "version", "V", false, "print version and exit")
	flags.StringVar(&cli.flags.ConfigFile, "config", "", "path to yaml config file")
	flags.CountVarP(&cli.flags.Verbose, "verbose", "v", "increase loglevel, -v means debug, -vv means trace")
	flags.StringVar(&cli.flags.LogLevel, "loglevel", "error", "set loglevel to one of: off, error, info, debug, trace")
	flags.StringVar(&cli.flags.LogFormat, "logformat", "", "override logformat, see https://pkg.go.dev/github.com/kdar/factorlog")
	flags.StringVar(&cli.flags.LogFile, "logfile", "", "path to log file or stdout/stderr (default stderr)")
	flags.StringVar(&cli.flags.Format, "format", "text", "output format: text, json or prometheus")
	flags.BoolVar(&cli.flags.JSON, "json", false, "shortcut for --format=json")
	flags.IntVar(&cli.flags.DeadlockTimeout, "debug-deadlock", 0, "enable deadlock detection with given timeout in seconds")
	_ = flags.MarkHidden("debug-deadlock")

	rootCmd.DisableAutoGenTag = true
	rootCmd.DisableSuggestions = true
	rootCmd.PersistentFlags().SortFlags = false
	rootCmd.Flags().SortFlags = false
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddGroup(&cobra.Group{ID: "checks", Title: "Checks:"})
	for _, name := range checks.CheckNames() {
		rootCmd.AddCommand(cli.newCheckCommand(name))
	}
	rootCmd.AddCommand(cli.newMultiCommand())
	rootCmd.SetUsageTemplate(usageTemplate)

	return rootCmd, cli
}

// sanitizeArgs converts single dash long flags (-warning) into double dash flags.
func sanitizeArgs(rootCmd *cobra.Command, args []string) []string {
	replace := map[string]string{}
	addFlag := func(f *pflag.Flag) {
		if len(f.Name) > 1 {
			replace["-"+f.Name] = "--" + f.Name
		}
	}
	rootCmd.PersistentFlags().VisitAll(addFlag)
	for _, c := range rootCmd.Commands() {
		c.LocalFlags().VisitAll(addFlag)
	}

	res := make([]string, len(args))
	for i, arg := range args {
		res[i] = arg
		if r, ok := replace[arg]; ok {
			res[i] = r

			continue
		}
		if name, val, ok := strings.Cut(arg, "="); ok {
			if r, ok := replace[name]; ok {
				res[i] = r + "=" + val
			}
		}
	}

	return res
}

var usageTemplate = `Usage:{{if .Runnable}}
  {{.UseLine}}{{end}}{{if gt (len .Aliases) 0}}

Aliases:
  {{.NameAndAliases}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}{{if .HasAvailableSubCommands}}{{$cmds := .Commands}}{{if eq (len .Groups) 0}}

Available Commands:{{range $cmds}}{{if (or .IsAvailableCommand (eq .Name "help"))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{else}}{{range $group := .Groups}}

{{.Title}}{{range $cmds}}{{if (and (eq .GroupID $group.ID) (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{if not .AllChildCommandsHaveGroup}}

Additional Commands:{{range $cmds}}{{if (and (eq .GroupID "") (or .IsAvailableCommand (eq .Name "help")))}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasHelpSubCommands}}

Additional help topics:{{range .Commands}}{{if .IsAdditionalHelpTopicCommand}}
  {{rpad .CommandPath .CommandPathPadding}} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableSubCommands}}

Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}
`
