package checks

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kdar/factorlog"
	"github.com/sasha-s/go-deadlock"
	"golang.org/x/term"
)

// define all available log level.
const (
	// LogVerbosityNone disables logging.
	LogVerbosityNone = 0

	// LogVerbosityDefault sets the default log level.
	LogVerbosityDefault = 1

	// LogVerbosityDebug sets the debug log level.
	LogVerbosityDebug = 2

	// LogVerbosityTrace sets trace log level.
	LogVerbosityTrace = 3

	// LogColors sets colors for some log levels
	LogColors = `%{Color "yellow+b" "WARN"}` +
		`%{Color "red+b" "ERROR"}` +
		`%{Color "red+b" "FATAL"}` +
		`%{Color "white+b" "INFO"}` +
		`%{Color "white" "DEBUG"}` +
		`%{Color "white" "TRACE"}`

	// LogColorReset resets colors from LogColors
	LogColorReset = `%{Color "reset"}`
)

var (
	DateTimeLogFormat = `[%{Date} %{Time "15:04:05.000"}]`
	LogFormat         = `[%{Severity}][pid:%{Pid}][%{ShortFile}:%{Line}] %{Message}`

	// stdout belongs to the plugin output, so logs go to stderr unless a logfile is set.
	log          = factorlog.New(os.Stderr, BuildFormatter(DateTimeLogFormat+LogFormat))
	targetWriter io.Writer = os.Stderr

	// logFile is the currently opened logfile, if any.
	logFile     *os.File
	logFileLock deadlock.Mutex
)

// LogConfig contains everything needed to set up logging.
type LogConfig struct {
	Level   string // off, error, info, debug, trace
	Verbose int    // -v raises level to debug, -vv to trace
	File    string // path, stdout or stderr
	Format  string // overrides the factorlog format
}

// SetupLogging applies the given log configuration.
func SetupLogging(conf LogConfig) error {
	level := conf.Level
	switch {
	case conf.Verbose >= 2:
		level = "trace"
	case conf.Verbose == 1:
		level = "debug"
	}
	if err := setLogLevel(level); err != nil {
		return err
	}

	return setLogFile(conf.File, conf.Format)
}

func setLogLevel(level string) error {
	switch strings.ToLower(level) {
	case "off":
		log.SetMinMaxSeverity(factorlog.StringToSeverity("PANIC"), factorlog.StringToSeverity("PANIC"))
		log.SetVerbosity(LogVerbosityNone)
	case "error":
		log.SetMinMaxSeverity(factorlog.StringToSeverity(strings.ToUpper(level)), factorlog.StringToSeverity("PANIC"))
		log.SetVerbosity(LogVerbosityDefault)
	case "info", "":
		log.SetMinMaxSeverity(factorlog.StringToSeverity("INFO"), factorlog.StringToSeverity("PANIC"))
		log.SetVerbosity(LogVerbosityDefault)
	case "debug":
		log.SetMinMaxSeverity(factorlog.StringToSeverity(strings.ToUpper(level)), factorlog.StringToSeverity("PANIC"))
		log.SetVerbosity(LogVerbosityDebug)
	case "trace":
		log.SetMinMaxSeverity(factorlog.StringToSeverity(strings.ToUpper(level)), factorlog.StringToSeverity("PANIC"))
		log.SetVerbosity(LogVerbosityTrace)
	default:
		return fmt.Errorf("unknown log level: %s", level)
	}

	return nil
}

func setLogFile(file, format string) error {
	logColorOn := ""
	logColorReset := ""

	var logFormatter factorlog.Formatter
	var newFile *os.File
	switch file {
	case "stderr", "":
		if term.IsTerminal(int(os.Stderr.Fd())) {
			logColorOn = LogColors
			logColorReset = LogColorReset
		}
		logFormatter = BuildFormatter(logColorOn + DateTimeLogFormat + LogFormat + logColorReset)
		targetWriter = os.Stderr
	case "stdout":
		logFormatter = BuildFormatter(DateTimeLogFormat + LogFormat)
		targetWriter = os.Stdout
	default:
		logFormatter = BuildFormatter(DateTimeLogFormat + LogFormat)
		fHandle, err := os.OpenFile(file, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o600)
		if err != nil {
			return fmt.Errorf("failed to open logfile %s: %w", file, err)
		}
		targetWriter = fHandle
		newFile = fHandle
	}

	if format != "" {
		logFormatter = BuildFormatter(format)
	}

	log.SetFormatter(logFormatter)
	log.SetOutput(targetWriter)
	swapLogFile(newFile)

	return nil
}

// swapLogFile remembers the new logfile and closes the previous one.
// It must be called after the log output has been switched.
func swapLogFile(next *os.File) {
	logFileLock.Lock()
	prev := logFile
	logFile = next
	logFileLock.Unlock()

	if prev != nil && prev != next {
		if err := prev.Close(); err != nil {
			LogError(fmt.Errorf("closing logfile %s: %w", prev.Name(), err))
		}
	}
}

// CloseLogging resets the log output to stderr and closes the logfile.
func CloseLogging() {
	targetWriter = os.Stderr
	log.SetOutput(os.Stderr)
	swapLogFile(nil)
}

func BuildFormatter(format string) *factorlog.StdFormatter {
	format = strings.ReplaceAll(format, "%{Pid}", fmt.Sprintf("%d", os.Getpid()))

	return (factorlog.NewStdFormatter(format))
}

func LogError(err error) {
	if err != nil {
		logErr := log.Output(factorlog.ERROR, 2, err.Error())
		if logErr != nil {
			fmt.Fprintf(os.Stderr, "failed to log: %s (%s)\n", err.Error(), logErr.Error())
		}
	}
}

func LogDebug(err error) {
	if err != nil {
		logErr := log.Output(factorlog.DEBUG, 2, err.Error())
		if logErr != nil {
			fmt.Fprintf(os.Stderr, "failed to log: %s (%s)\n", err.Error(), logErr.Error())
		}
	}
}

// LogWriter implements the io.Writer interface and simply logs everything with given level.
type LogWriter struct {
	level string
}

func (l *LogWriter) Write(p []byte) (n int, err error) {
	msg := strings.TrimSpace(string(p))
	callLevel := 2

	switch strings.ToLower(l.level) {
	case "error":
		err = log.Output(factorlog.ERROR, callLevel, msg)
	case "warn":
		err = log.Output(factorlog.WARN, callLevel, msg)
	case "info":
		err = log.Output(factorlog.INFO, callLevel, msg)
	default:
		err = log.Output(factorlog.DEBUG, callLevel, msg)
	}

	if err != nil {
		return 0, fmt.Errorf("log: %s", err.Error())
	}

	return len(p), nil
}

func NewLogWriter(level string) *LogWriter {
	l := new(LogWriter)
	l.level = level

	return l
}
