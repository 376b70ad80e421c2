package wasmengine

import (
	"os"
	"syscall"
)

var terminateSignal = syscall.SIGTERM

func findProcess(pid int) (*os.Process, error) {
	return os.FindProcess(pid)
}
