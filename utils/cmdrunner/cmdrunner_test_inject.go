//go:build test

// All *_inject.go files are meant to be used by tests only. Purpose of this
// files is to provide a way to inject mocked data into the current setup.

package cmdrunner

import (
	runnerMock "github.com/vimana-cloud/vimanad/test/mocks/cmdrunner"
)

// SetMocked swaps the package-wide runner for a mock, and returns a func
// that restores the real one.
func SetMocked(runner *runnerMock.MockCommandRunner) func() {
	previous := commandRunner
	commandRunner = runner
	return func() { commandRunner = previous }
}
