package registry

import (
	"context"
	"time"

	"k8s.io/apimachinery/pkg/util/sets"
	runtimeapi "k8s.io/cri-api/pkg/apis/runtime/v1"

	"github.com/vimana-cloud/vimanad/internal/ids"
	"github.com/vimana-cloud/vimanad/internal/log"
	"github.com/vimana-cloud/vimanad/internal/metrics"
)

func containerIDFor(podID string) (string, error) {
	parsed, err := ids.ParsePodID(podID)
	if err != nil {
		return "", err
	}
	return parsed.ContainerID(), nil
}

func (r *Registry) insertContainerState(id string, state runtimeapi.ContainerState) {
	if r.containersByState[state] == nil {
		r.containersByState[state] = sets.String{}
	}
	r.containersByState[state].Insert(id)
}

func (r *Registry) deleteContainerState(id string, state runtimeapi.ContainerState) {
	if s, ok := r.containersByState[state]; ok {
		s.Delete(id)
		if s.Len() == 0 {
			delete(r.containersByState, state)
		}
	}
}

// CreateContainer requires the pod to be SandboxReady and to not already
// own a container, and records the new container as Created.
func (r *Registry) CreateContainer(ctx context.Context, podID string, cfg *runtimeapi.ContainerConfig, imageRef string) (string, error) {
	r.mu.Lock()
	pod, ok := r.pods[podID]
	if !ok {
		r.mu.Unlock()
		return "", ErrPodNotFound
	}
	if pod.State != runtimeapi.PodSandboxState_SANDBOX_READY {
		r.mu.Unlock()
		return "", ErrPodNotReady
	}
	if pod.ContainerID != "" {
		r.mu.Unlock()
		return "", ErrDuplicateContainer
	}

	id, err := containerIDFor(podID)
	if err != nil {
		r.mu.Unlock()
		return "", err
	}

	record := &ContainerRecord{
		ID:        id,
		PodID:     podID,
		Config:    cfg,
		ImageRef:  imageRef,
		State:     runtimeapi.ContainerState_CONTAINER_CREATED,
		CreatedAt: time.Now(),
	}
	r.containers[id] = record
	pod.ContainerID = id
	indexInsert(r.containersByLabel, record.Labels(), id)
	r.insertContainerState(id, record.State)
	count := len(r.containers)
	r.mu.Unlock()

	metrics.Instance().MetricRegistrySizeSet("containers", float64(count))
	log.Infof(ctx, "Created container %s on pod %s", id, podID)
	return id, nil
}

// StartContainer requires Created, invokes the wasm engine's start hook,
// and on success transitions to Running.
func (r *Registry) StartContainer(ctx context.Context, id, componentPath, metadataPath string) error {
	r.mu.Lock()
	ctr, ok := r.containers[id]
	if !ok {
		r.mu.Unlock()
		return ErrContainerNotFound
	}
	if ctr.State != runtimeapi.ContainerState_CONTAINER_CREATED {
		r.mu.Unlock()
		return ErrContainerNotCreated
	}
	r.mu.Unlock()

	handle, err := r.engine.Start(ctx, componentPath, metadataPath)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.deleteContainerState(id, ctr.State)
	ctr.State = runtimeapi.ContainerState_CONTAINER_RUNNING
	ctr.StartedAt = time.Now()
	ctr.Engine = handle
	r.insertContainerState(id, ctr.State)
	r.mu.Unlock()

	log.Infof(ctx, "Started container %s", id)
	return nil
}

// StopContainer requests a graceful stop bounded by timeout and
// transitions the container to Exited.
func (r *Registry) StopContainer(ctx context.Context, id string, timeout time.Duration) error {
	r.mu.Lock()
	ctr, ok := r.containers[id]
	if !ok {
		r.mu.Unlock()
		return ErrContainerNotFound
	}
	if ctr.State != runtimeapi.ContainerState_CONTAINER_RUNNING && ctr.State != runtimeapi.ContainerState_CONTAINER_CREATED {
		r.mu.Unlock()
		return ErrContainerNotStoppable
	}
	wasRunning := ctr.State == runtimeapi.ContainerState_CONTAINER_RUNNING
	handle := ctr.Engine
	r.mu.Unlock()

	var exitCode int32
	if wasRunning {
		code, err := r.engine.Stop(ctx, handle, timeout)
		if err != nil {
			log.Warnf(ctx, "Stopping container %s: %v", id, err)
		}
		exitCode = code
	}

	r.mu.Lock()
	r.deleteContainerState(id, ctr.State)
	ctr.State = runtimeapi.ContainerState_CONTAINER_EXITED
	ctr.FinishedAt = time.Now()
	ctr.ExitCode = exitCode
	r.insertContainerState(id, ctr.State)
	r.mu.Unlock()

	log.Infof(ctx, "Stopped container %s with exit code %d", id, exitCode)
	return nil
}

// RemoveContainer deletes a container record from any state. A no-op on a
// missing ID.
func (r *Registry) RemoveContainer(ctx context.Context, id string) error {
	r.mu.Lock()
	ctr, ok := r.containers[id]
	if !ok {
		r.mu.Unlock()
		return nil
	}

	indexDelete(r.containersByLabel, ctr.Labels(), id)
	r.deleteContainerState(id, ctr.State)
	delete(r.containers, id)

	if pod, ok := r.pods[ctr.PodID]; ok && pod.ContainerID == id {
		pod.ContainerID = ""
	}
	count := len(r.containers)
	r.mu.Unlock()

	metrics.Instance().MetricRegistrySizeSet("containers", float64(count))
	log.Infof(ctx, "Removed container %s", id)
	return nil
}

// ContainerStatus returns a container's current record.
func (r *Registry) ContainerStatus(id string) (*ContainerRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ctr, ok := r.containers[id]
	if !ok {
		return nil, ErrContainerNotFound
	}
	return ctr, nil
}

// ContainerFilter selects containers by exact ID, exact pod ID, exact
// state, and/or label subset.
type ContainerFilter struct {
	ID     string
	PodID  string
	State  *runtimeapi.ContainerState
	Labels map[string]string
}

// ListContainers returns every managed container matching all of filter's
// criteria (logical AND).
func (r *Registry) ListContainers(filter ContainerFilter) []*ContainerRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*ContainerRecord
	for id, ctr := range r.containers {
		if filter.ID != "" && filter.ID != id {
			continue
		}
		if filter.PodID != "" && filter.PodID != ctr.PodID {
			continue
		}
		if filter.State != nil && ctr.State != *filter.State {
			continue
		}
		if !hasAllLabels(ctr.Labels(), filter.Labels) {
			continue
		}
		out = append(out, ctr)
	}
	return out
}
