package checks

import "errors"

var (
	// ErrNoInput is returned if a plugin requires input but neither --input nor --command is set.
	ErrNoInput = errors.New("no input, use --input or --command")

	// ErrCommandFailed is returned if the input command exits with a non zero exit code.
	ErrCommandFailed = errors.New("command failed")

	// ErrUnknownCheck is returned for plugin names which are not registered.
	ErrUnknownCheck = errors.New("unknown check")
)
