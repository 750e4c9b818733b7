package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/thomasvincent/nagios-plugins/pkg/checkresult"
	"github.com/thomasvincent/nagios-plugins/pkg/checks"
	"github.com/thomasvincent/nagios-plugins/pkg/status"
	"github.com/thomasvincent/nagios-plugins/pkg/threshold"
)

func (cli *app) newCheckCommand(name string) *cobra.Command {
	handler, check, err := checks.Build(name)
	if err != nil {
		panic(err.Error())
	}

	description := check.Description()
	short, _, _ := strings.Cut(description, ". ")
	cmd := &cobra.Command{
		Use:     strings.TrimSpace(name + " [flags] " + check.Usage()),
		Short:   strings.TrimSuffix(short, "."),
		Long:    description,
		GroupID: "checks",
		Args:    cobra.ArbitraryArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cli.applyConfigDefaults(cmd)
			res := cli.runSingle(cmd.Context(), name, func(ctx context.Context) (*checkresult.CheckResult, error) {
				if err := check.Prepare(args); err != nil {
					return nil, err
				}

				return handler.Check(ctx, check)
			})
			printed := cli.printResults([]string{name}, []*checkresult.CheckResult{res})
			cli.exitCode = printed.ExitCode()
		},
	}
	cmd.Flags().SortFlags = false
	check.AddFlags(cmd.Flags())

	return cmd
}

// applyConfigDefaults sets flags from the config file unless given on the command line.
func (cli *app) applyConfigDefaults(cmd *cobra.Command) {
	defaults := map[string]string{}
	if cli.config.Timeout > 0 {
		defaults["timeout"] = cli.config.Timeout.String()
	}
	if cli.config.StateFile != "" {
		defaults["state-file"] = cli.config.StateFile
	}

	for name, val := range defaults {
		flag := cmd.Flags().Lookup(name)
		if flag == nil || flag.Changed {
			continue
		}
		checks.LogDebug(flag.Value.Set(val))
	}
}

// runSingle runs a single check through the same runner the multi command uses.
func (cli *app) runSingle(ctx context.Context, name string, run func(context.Context) (*checkresult.CheckResult, error)) *checkresult.CheckResult {
	if ctx == nil {
		ctx = context.Background()
	}
	results := checks.RunAll(ctx, []checks.Task{{
		Name: name,
		Run: func(ctx context.Context) (*checkresult.CheckResult, error) {
			return runCheck(ctx, name, run), nil
		},
	}}, 1)

	return results[0]
}

// runCheck is the only place which converts errors into UNKNOWN results.
func runCheck(ctx context.Context, name string, run func(context.Context) (*checkresult.CheckResult, error)) *checkresult.CheckResult {
	res, err := run(ctx)

	var parseErr *threshold.ParseError
	switch {
	case errors.As(err, &parseErr):
		return checkresult.Unknown("invalid threshold: %s", parseErr.Error())
	case err != nil:
		return checkresult.Unknown("%s: %s", name, err.Error())
	case res == nil:
		return checkresult.Unknown("%s: no result", name)
	}

	return res
}

// printResults writes the results in the selected output format and returns
// the most severe status printed. Rendering errors are printed as UNKNOWN.
func (cli *app) printResults(names []string, results []*checkresult.CheckResult) status.Status {
	format, err := cli.outputFormat()
	if err != nil {
		format = formatText
	}

	printed := make([]status.Status, 0, len(results))
	switch format {
	case formatJSON:
		for _, res := range results {
			data, err := res.JSON()
			if err != nil {
				fmt.Fprintf(cli.stdout, "%s\n", checkresult.Unknown("%s", err.Error()).Text())
				printed = append(printed, status.Unknown)

				continue
			}
			fmt.Fprintf(cli.stdout, "%s\n", data)
			printed = append(printed, res.Status)
		}
	case formatPrometheus:
		if err := checkresult.WritePrometheus(cli.stdout, names, results); err != nil {
			fmt.Fprintf(cli.stdout, "%s\n", checkresult.Unknown("%s", err.Error()).Text())

			return status.Unknown
		}
		printed = append(printed, checkresult.MostSevere(results))
	default:
		for _, res := range results {
			fmt.Fprintf(cli.stdout, "%s\n", res.Text())
			printed = append(printed, res.Status)
		}
	}

	return status.MostSevere(printed...)
}
