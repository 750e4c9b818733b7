package checks

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/sni/shelltoken"
)

// Input describes where a plugin reads its data from.
type Input struct {
	File    string        // path, "-" reads Stdin
	Command string        // command line, stdout is used as data
	Timeout time.Duration // applies to Command
	Stdin   io.Reader

	duration time.Duration
}

// IsSet returns true if any input source has been configured.
func (in *Input) IsSet() bool {
	return in != nil && (in.File != "" || in.Command != "")
}

// Duration returns the runtime of the last command.
func (in *Input) Duration() time.Duration {
	return in.duration
}

// Read returns the raw data from the configured source.
func (in *Input) Read(ctx context.Context) ([]byte, error) {
	switch {
	case in == nil || !in.IsSet():
		return nil, ErrNoInput
	case in.Command != "":
		started := time.Now()
		stdout, err := runCommand(ctx, in.Command, in.Timeout)
		in.duration = time.Since(started)
		if err != nil {
			return nil, err
		}
		log.Tracef("command %q finished in %s", in.Command, in.duration)

		return stdout, nil
	case in.File == "-":
		if in.Stdin == nil {
			return nil, ErrNoInput
		}
		data, err := io.ReadAll(in.Stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}

		return data, nil
	default:
		data, err := os.ReadFile(in.File)
		if err != nil {
			return nil, fmt.Errorf("read input: %w", err)
		}

		return data, nil
	}
}

// ReadRetry is like Read but tries command inputs up to attempts times.
func (in *Input) ReadRetry(ctx context.Context, attempts int, delay time.Duration) ([]byte, error) {
	if attempts < 1 || in.Command == "" {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		data, err := in.Read(ctx)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if errors.Is(err, ErrNoInput) || attempt == attempts {
			break
		}
		log.Debugf("attempt %d/%d failed: %s, retrying in %s", attempt, attempts, err.Error(), delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()

			return nil, fmt.Errorf("retry: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return nil, lastErr
}

// ReadLines returns the non empty, trimmed lines of the input.
func (in *Input) ReadLines(ctx context.Context) ([]string, error) {
	data, err := in.Read(ctx)
	if err != nil {
		return nil, err
	}

	return splitLines(string(data)), nil
}

func splitLines(data string) []string {
	lines := []string{}
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}

	return lines
}

// runCommand runs the command and returns its trimmed stdout. Commands containing
// shell code are run through /bin/sh.
func runCommand(ctx context.Context, command string, timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd, err := makeCmd(ctx, command)
	if err != nil {
		return nil, err
	}

	var errbuf bytes.Buffer
	var outbuf bytes.Buffer
	cmd.Stdout = &outbuf
	cmd.Stderr = &errbuf

	setSysProcAttr(cmd)

	log.Debugf("running command: %s", command)
	err = cmd.Start()
	if err != nil {
		return nil, fmt.Errorf("proc: %w", err)
	}

	// timeout does not work for child processes and/or if file handles are still open
	go func(proc *os.Process) {
		<-ctx.Done()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			processTimeoutKill(proc)
		}
	}(cmd.Process)

	err = cmd.Wait()
	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
		return nil, fmt.Errorf("timeout after %s: %w", timeout, ctxErr)
	}
	if err != nil && cmd.ProcessState == nil {
		return nil, fmt.Errorf("proc: %w", err)
	}

	stdout := bytes.TrimSpace(bytes.Trim(outbuf.Bytes(), "\x00"))
	stderr := strings.TrimSpace(string(bytes.Trim(errbuf.Bytes(), "\x00")))
	if exitCode := cmd.ProcessState.ExitCode(); exitCode != 0 {
		if stderr == "" {
			stderr = string(stdout)
		}

		return nil, fmt.Errorf("%w: exit code %d: %s", ErrCommandFailed, exitCode, stderr)
	}
	if stderr != "" {
		log.Debugf("command stderr: %s", stderr)
	}

	return stdout, nil
}

func makeCmd(ctx context.Context, command string) (*exec.Cmd, error) {
	env, argv, err := splitCommand(command)
	if err != nil {
		var shellErr *shelltoken.ShellCharactersFoundError
		if errors.As(err, &shellErr) {
			return exec.CommandContext(ctx, shellPath, shellFlag, command), nil
		}

		return nil, fmt.Errorf("error parsing command: %w", err)
	}
	if len(argv) == 0 || argv[0] == "" {
		return nil, fmt.Errorf("error parsing command: empty command %q", command)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if len(env) > 0 {
		cmd.Env = append(os.Environ(), env...)
	}

	return cmd, nil
}
