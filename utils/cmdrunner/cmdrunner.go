// Package cmdrunner abstracts process execution behind an interface so
// callers that spawn child processes (the wasm engine, in this daemon) can
// be tested without spawning real ones.
package cmdrunner

import (
	"context"
	"os/exec"
)

// CommandRunner builds *exec.Cmd values. The real implementation is a thin
// pass-through to os/exec; tests substitute a mock via SetMocked.
type CommandRunner interface {
	CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd
}

type execRunner struct{}

func (execRunner) CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd {
	return exec.CommandContext(ctx, name, args...)
}

var commandRunner CommandRunner = execRunner{}

// CommandContext builds a command through the configured runner.
func CommandContext(ctx context.Context, name string, args ...string) *exec.Cmd {
	return commandRunner.CommandContext(ctx, name, args...)
}
