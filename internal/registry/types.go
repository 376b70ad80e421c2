package registry

import (
	"fmt"
	"net"
	"time"

	runtimeapi "k8s.io/cri-api/pkg/apis/runtime/v1"

	"github.com/vimana-cloud/vimanad/internal/wasmengine"
)

// ErrPodNotFound is returned when an operation names a pod ID the
// registry has no record of.
var ErrPodNotFound = fmt.Errorf("pod sandbox not found")

// ErrContainerNotFound is returned when an operation names a container ID
// the registry has no record of.
var ErrContainerNotFound = fmt.Errorf("container not found")

// ErrPodNotReady is returned by CreateContainer when the parent pod isn't
// in SandboxReady.
var ErrPodNotReady = fmt.Errorf("pod sandbox is not ready")

// ErrDuplicateContainer is returned by CreateContainer when the pod
// already owns a container.
var ErrDuplicateContainer = fmt.Errorf("pod sandbox already has a container")

// ErrContainerNotCreated is returned by StartContainer when the container
// isn't in Created.
var ErrContainerNotCreated = fmt.Errorf("container is not in the created state")

// ErrContainerNotStoppable is returned by StopContainer when the container
// is in neither Running nor Created.
var ErrContainerNotStoppable = fmt.Errorf("container is not running or created")

// PodRecord is the registry's record of one managed pod sandbox.
type PodRecord struct {
	ID             string
	Config         *runtimeapi.PodSandboxConfig
	Attempt        uint32
	State          runtimeapi.PodSandboxState
	RuntimeHandler string
	IP             net.IP
	CreatedAt      time.Time
	ContainerID    string
}

// Labels returns the pod's labels, or an empty map if none were set.
func (p *PodRecord) Labels() map[string]string {
	if p.Config == nil || p.Config.Labels == nil {
		return map[string]string{}
	}
	return p.Config.Labels
}

// ContainerRecord is the registry's record of one managed container.
type ContainerRecord struct {
	ID         string
	PodID      string
	Config     *runtimeapi.ContainerConfig
	ImageRef   string
	State      runtimeapi.ContainerState
	CreatedAt  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	ExitCode   int32
	Engine     wasmengine.Handle
}

// Labels returns the container's labels, or an empty map if none were set.
func (c *ContainerRecord) Labels() map[string]string {
	if c.Config == nil || c.Config.Labels == nil {
		return map[string]string{}
	}
	return c.Config.Labels
}
