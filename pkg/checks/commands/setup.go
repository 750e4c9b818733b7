package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/sasha-s/go-deadlock"
	"github.com/thomasvincent/nagios-plugins/pkg/checks"
)

// setup reads the config file and applies logging and deadlock settings.
func (cli *app) setup() error {
	if cli.flags.ConfigFile != "" {
		conf, err := ReadConfig(cli.flags.ConfigFile)
		if err != nil {
			return err
		}
		cli.config = conf
	}

	level := cli.flags.LogLevel
	if cli.config.LogLevel != "" && !cli.flagChanged("loglevel") {
		level = cli.config.LogLevel
	}
	logFile := cli.flags.LogFile
	if logFile == "" {
		logFile = cli.config.LogFile
	}
	if err := checks.SetupLogging(checks.LogConfig{
		Level:   level,
		Verbose: cli.flags.Verbose,
		File:    logFile,
		Format:  cli.flags.LogFormat,
	}); err != nil {
		return err
	}

	if cli.flags.DeadlockTimeout <= 0 {
		deadlock.Opts.Disable = true
	} else {
		deadlock.Opts.Disable = false
		deadlock.Opts.DeadlockTimeout = time.Duration(cli.flags.DeadlockTimeout) * time.Second
		deadlock.Opts.LogBuf = checks.NewLogWriter("Error")
	}

	if _, err := cli.outputFormat(); err != nil {
		return err
	}

	return nil
}

// changed tracks global flags which have been set on the command line.
func (cli *app) flagChanged(name string) bool {
	return cli.changed != nil && cli.changed(name)
}

type outputFormat string

const (
	formatText       outputFormat = "text"
	formatJSON       outputFormat = "json"
	formatPrometheus outputFormat = "prometheus"
)

func (cli *app) outputFormat() (outputFormat, error) {
	format := cli.flags.Format
	if cli.config.Format != "" && !cli.flagChanged("format") {
		format = cli.config.Format
	}
	if cli.flags.JSON {
		format = string(formatJSON)
	}

	switch outputFormat(strings.ToLower(format)) {
	case formatText, "":
		return formatText, nil
	case formatJSON:
		return formatJSON, nil
	case formatPrometheus:
		return formatPrometheus, nil
	}

	return formatText, fmt.Errorf("unknown output format: %s", format)
}
