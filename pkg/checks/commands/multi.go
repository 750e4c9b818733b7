package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/thomasvincent/nagios-plugins/pkg/checkresult"
	"github.com/thomasvincent/nagios-plugins/pkg/checks"
	"github.com/thomasvincent/nagios-plugins/pkg/status"
)

func (cli *app) newMultiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "multi",
		Short: "Run all checks from the config file",
		Long: `Runs all checks listed in the config file concurrently and exits with
the most severe state.

Example config:

  workers: 4
  checks:
    - name: root fs
      check: mounts
    - name: sshd
      check: procs
      args: ["--name", "sshd", "-c", "1:"]
`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			names, results := cli.runMulti(ctx)
			printed := cli.printMulti(names, results)
			cli.exitCode = printed.ExitCode()
		},
	}
}

func (cli *app) runMulti(ctx context.Context) (names []string, results []*checkresult.CheckResult) {
	if len(cli.config.Checks) == 0 {
		return []string{"multi"}, []*checkresult.CheckResult{checkresult.Unknown("multi: no checks configured, use --config")}
	}

	tasks := make([]checks.Task, 0, len(cli.config.Checks))
	for _, entry := range cli.config.Checks {
		entry := entry
		args := cli.defaultArgs(entry.Check, entry.Args)
		names = append(names, entry.Name)
		tasks = append(tasks, checks.Task{
			Name: entry.Name,
			Run: func(ctx context.Context) (*checkresult.CheckResult, error) {
				return runCheck(ctx, entry.Name, func(ctx context.Context) (*checkresult.CheckResult, error) {
					return checks.RunCheck(ctx, entry.Check, args)
				}), nil
			},
		})
	}

	return names, checks.RunAll(ctx, tasks, cli.config.Workers)
}

// defaultArgs prepends config defaults, later arguments override them.
func (cli *app) defaultArgs(name string, args []string) []string {
	_, check, err := checks.Build(name)
	if err != nil {
		return args
	}
	flags := check.FlagSet()
	res := []string{}
	if cli.config.Timeout > 0 && flags.Lookup("timeout") != nil {
		res = append(res, "--timeout="+cli.config.Timeout.String())
	}
	if cli.config.StateFile != "" && flags.Lookup("state-file") != nil {
		res = append(res, "--state-file="+cli.config.StateFile)
	}

	return append(res, args...)
}

type multiJSON struct {
	Status status.Status     `json:"status"`
	Checks []json.RawMessage `json:"checks"`
}

// printMulti writes the combined result and returns the status it printed.
func (cli *app) printMulti(names []string, results []*checkresult.CheckResult) status.Status {
	format, err := cli.outputFormat()
	if err != nil {
		format = formatText
	}

	switch format {
	case formatPrometheus:
		return cli.printResults(names, results)
	case formatJSON:
		out, overall, err := multiToJSON(names, results)
		if err != nil {
			fmt.Fprintf(cli.stdout, "%s\n", checkresult.Unknown("multi: %s", err.Error()).Text())

			return status.Unknown
		}
		fmt.Fprintf(cli.stdout, "%s\n", out)

		return overall
	default:
		overall := checkresult.MostSevere(results)
		counts := map[status.Status]int{}
		for _, res := range results {
			counts[res.Status]++
		}
		summary := []string{}
		for _, state := range []status.Status{status.Critical, status.Warning, status.Unknown, status.OK} {
			if counts[state] > 0 {
				summary = append(summary, fmt.Sprintf("%d %s", counts[state], state))
			}
		}
		fmt.Fprintf(cli.stdout, "%s - %d checks: %s\n", overall, len(results), strings.Join(summary, ", "))
		for i, res := range results {
			fmt.Fprintf(cli.stdout, "[%s] %s\n", names[i], res.Text())
		}

		return overall
	}
}

// multiToJSON renders all results into one document. Results which cannot be
// rendered are replaced by an UNKNOWN result, the overall status follows.
func multiToJSON(names []string, results []*checkresult.CheckResult) (out []byte, overall status.Status, err error) {
	states := make([]status.Status, 0, len(results))
	doc := multiJSON{Checks: []json.RawMessage{}}
	for i, res := range results {
		data, err := res.JSON()
		if err != nil {
			res = checkresult.Unknown("%s: %s", names[i], err.Error())
			data, err = res.JSON()
			if err != nil {
				return nil, status.Unknown, err
			}
		}
		states = append(states, res.Status)

		named := map[string]json.RawMessage{}
		if err := json.Unmarshal(data, &named); err != nil {
			return nil, status.Unknown, fmt.Errorf("json: %w", err)
		}
		nameJSON, err := json.Marshal(names[i])
		if err != nil {
			return nil, status.Unknown, fmt.Errorf("json: %w", err)
		}
		named["name"] = nameJSON
		data, err = json.Marshal(named)
		if err != nil {
			return nil, status.Unknown, fmt.Errorf("json: %w", err)
		}
		doc.Checks = append(doc.Checks, data)
	}

	doc.Status = status.MostSevere(states...)
	out, err = json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, status.Unknown, fmt.Errorf("json: %w", err)
	}

	return out, doc.Status, nil
}
