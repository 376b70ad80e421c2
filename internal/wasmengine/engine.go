// Package wasmengine defines the entry point through which the daemon
// hands a container off to the actual Wasm execution engine. The daemon
// itself never interprets or runs component bytecode; it only starts and
// stops the engine process for a given component and tracks what it hands
// back.
package wasmengine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/vimana-cloud/vimanad/utils/cmdrunner"
)

// Handle identifies a running engine invocation for a single container.
type Handle struct {
	Pid int
}

// Engine starts and stops Wasm component instances. StartContainer calls
// Start with the component's on-disk path; StopContainer calls Stop with
// the handle Start returned.
type Engine interface {
	Start(ctx context.Context, componentPath, metadataPath string) (Handle, error)
	Stop(ctx context.Context, handle Handle, timeout time.Duration) (exitCode int32, err error)
}

// processEngine runs each container as a child process of a configured
// engine binary, passing the component and its metadata as arguments.
type processEngine struct {
	binary string
}

// New returns an Engine that launches binary (a Wasm component runtime) as
// a child process per container.
func New(binary string) Engine {
	return &processEngine{binary: binary}
}

// Start launches the engine process detached from ctx's lifetime: ctx is
// the RPC's request context and is canceled as soon as StartContainer
// returns, but the container it starts must keep running until an
// explicit Stop. Tying the child process to ctx would have grpc-go's
// post-handler cancellation kill it moments after the client sees success.
func (e *processEngine) Start(ctx context.Context, componentPath, metadataPath string) (Handle, error) {
	cmd := cmdrunner.CommandContext(context.Background(), e.binary, "run", "--metadata", metadataPath, componentPath)
	if err := cmd.Start(); err != nil {
		return Handle{}, fmt.Errorf("starting wasm engine for %s: %w", componentPath, err)
	}
	return Handle{Pid: cmd.Process.Pid}, nil
}

func (e *processEngine) Stop(ctx context.Context, handle Handle, timeout time.Duration) (int32, error) {
	proc, err := findProcess(handle.Pid)
	if err != nil {
		return -1, fmt.Errorf("locating wasm engine process %d: %w", handle.Pid, err)
	}

	done := make(chan *os.ProcessState, 1)
	go func() {
		state, _ := proc.Wait()
		done <- state
	}()

	if err := proc.Signal(terminateSignal); err != nil {
		return -1, fmt.Errorf("signaling wasm engine process %d: %w", handle.Pid, err)
	}

	select {
	case state := <-done:
		return int32(state.ExitCode()), nil
	case <-time.After(timeout):
		proc.Kill()
		<-done
		return -1, fmt.Errorf("wasm engine process %d did not exit within %s; killed", handle.Pid, timeout)
	case <-ctx.Done():
		proc.Kill()
		<-done
		return -1, ctx.Err()
	}
}
