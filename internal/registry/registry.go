// Package registry holds the in-memory pod/container records for every
// sandbox and container this daemon manages directly (as opposed to ones
// delegated to the downstream runtime).
package registry

import (
	"context"
	"sync"
	"time"

	"k8s.io/apimachinery/pkg/util/sets"
	runtimeapi "k8s.io/cri-api/pkg/apis/runtime/v1"

	"github.com/vimana-cloud/vimanad/internal/ids"
	"github.com/vimana-cloud/vimanad/internal/ipam"
	"github.com/vimana-cloud/vimanad/internal/log"
	"github.com/vimana-cloud/vimanad/internal/metrics"
	"github.com/vimana-cloud/vimanad/internal/wasmengine"
)

// Label keys the registry derives a pod's identity triple from.
const (
	LabelDomain  = "vimana.host/domain"
	LabelService = "vimana.host/service"
	LabelVersion = "vimana.host/version"
)

type labelValue struct {
	key   string
	value string
}

// Registry tracks every managed pod and container record behind a single
// lock, plus secondary indices by label and by lifecycle state. The indices
// are patched in the same critical section as every insert, delete and
// state change of the primary maps. ListPodSandbox and ListContainers do
// not read the indices; they scan the primary maps.
type Registry struct {
	mu sync.RWMutex

	pods       map[string]*PodRecord
	containers map[string]*ContainerRecord
	attempts   map[ids.TripleKey]uint32

	podsByLabel map[labelValue]sets.String
	podsByState map[runtimeapi.PodSandboxState]sets.String

	containersByLabel map[labelValue]sets.String
	containersByState map[runtimeapi.ContainerState]sets.String

	allocator *ipam.Allocator
	engine    wasmengine.Engine
}

// New returns an empty Registry that allocates addresses through allocator
// and starts/stops containers through engine.
func New(allocator *ipam.Allocator, engine wasmengine.Engine) *Registry {
	return &Registry{
		pods:              make(map[string]*PodRecord),
		containers:        make(map[string]*ContainerRecord),
		attempts:          make(map[ids.TripleKey]uint32),
		podsByLabel:       make(map[labelValue]sets.String),
		podsByState:       make(map[runtimeapi.PodSandboxState]sets.String),
		containersByLabel: make(map[labelValue]sets.String),
		containersByState: make(map[runtimeapi.ContainerState]sets.String),
		allocator:         allocator,
		engine:            engine,
	}
}

func indexInsert(index map[labelValue]sets.String, labels map[string]string, id string) {
	for k, v := range labels {
		key := labelValue{key: k, value: v}
		if index[key] == nil {
			index[key] = sets.String{}
		}
		index[key].Insert(id)
	}
}

func indexDelete(index map[labelValue]sets.String, labels map[string]string, id string) {
	for k, v := range labels {
		key := labelValue{key: k, value: v}
		if s, ok := index[key]; ok {
			s.Delete(id)
			if s.Len() == 0 {
				delete(index, key)
			}
		}
	}
}

// RunPodSandbox allocates an attempt number for the pod's identity triple,
// composes its ID, requests an IP, and records it as SandboxReady. A
// triple that fails ids.PodID validation is rejected before any attempt
// number is taken. No record is persisted if IP allocation fails.
func (r *Registry) RunPodSandbox(ctx context.Context, cfg *runtimeapi.PodSandboxConfig, runtimeHandler string) (string, error) {
	labels := cfg.GetLabels()
	triple := ids.TripleKey{Domain: labels[LabelDomain], Service: labels[LabelService], Version: labels[LabelVersion]}
	if err := (ids.PodID{Domain: triple.Domain, Service: triple.Service, Version: triple.Version}).Validate(); err != nil {
		return "", err
	}

	r.mu.Lock()
	attempt := r.attempts[triple]
	r.attempts[triple] = attempt + 1
	r.mu.Unlock()

	podID := ids.PodID{Domain: triple.Domain, Service: triple.Service, Version: triple.Version, Attempt: attempt}
	id := podID.String()

	ip, err := r.allocator.Allocate(ctx, id)
	if err != nil {
		return "", err
	}

	record := &PodRecord{
		ID:             id,
		Config:         cfg,
		Attempt:        attempt,
		State:          runtimeapi.PodSandboxState_SANDBOX_READY,
		RuntimeHandler: runtimeHandler,
		IP:             ip,
		CreatedAt:      time.Now(),
	}

	r.mu.Lock()
	r.pods[id] = record
	indexInsert(r.podsByLabel, record.Labels(), id)
	r.insertPodState(id, record.State)
	podCount := len(r.pods)
	r.mu.Unlock()

	metrics.Instance().MetricRegistrySizeSet("pods", float64(podCount))
	log.Infof(ctx, "Pod sandbox %s is ready with address %s", id, ip)
	return id, nil
}

func (r *Registry) insertPodState(id string, state runtimeapi.PodSandboxState) {
	if r.podsByState[state] == nil {
		r.podsByState[state] = sets.String{}
	}
	r.podsByState[state].Insert(id)
}

func (r *Registry) deletePodState(id string, state runtimeapi.PodSandboxState) {
	if s, ok := r.podsByState[state]; ok {
		s.Delete(id)
		if s.Len() == 0 {
			delete(r.podsByState, state)
		}
	}
}

// StopPodSandbox transitions a pod to SandboxNotReady and force-exits its
// container if it has one. Idempotent on an already-stopped pod.
func (r *Registry) StopPodSandbox(ctx context.Context, id string) error {
	r.mu.Lock()
	pod, ok := r.pods[id]
	if !ok {
		r.mu.Unlock()
		return ErrPodNotFound
	}
	if pod.State == runtimeapi.PodSandboxState_SANDBOX_NOTREADY {
		r.mu.Unlock()
		return nil
	}

	r.deletePodState(id, pod.State)
	pod.State = runtimeapi.PodSandboxState_SANDBOX_NOTREADY
	r.insertPodState(id, pod.State)

	if pod.ContainerID != "" {
		if ctr, ok := r.containers[pod.ContainerID]; ok && ctr.State != runtimeapi.ContainerState_CONTAINER_EXITED {
			r.deleteContainerState(ctr.ID, ctr.State)
			ctr.State = runtimeapi.ContainerState_CONTAINER_EXITED
			ctr.FinishedAt = time.Now()
			ctr.ExitCode = -1
			r.insertContainerState(ctr.ID, ctr.State)
		}
	}
	r.mu.Unlock()

	log.Infof(ctx, "Pod sandbox %s is not ready", id)
	return nil
}

// RemovePodSandbox deletes a pod and its container record, releasing its
// IP if not already released. Idempotent on a missing pod.
func (r *Registry) RemovePodSandbox(ctx context.Context, id string) error {
	r.mu.Lock()
	pod, ok := r.pods[id]
	if !ok {
		r.mu.Unlock()
		return nil
	}

	indexDelete(r.podsByLabel, pod.Labels(), id)
	r.deletePodState(id, pod.State)
	delete(r.pods, id)

	if pod.ContainerID != "" {
		if ctr, ok := r.containers[pod.ContainerID]; ok {
			indexDelete(r.containersByLabel, ctr.Labels(), ctr.ID)
			r.deleteContainerState(ctr.ID, ctr.State)
			delete(r.containers, ctr.ID)
		}
	}
	podCount := len(r.pods)
	r.mu.Unlock()

	r.allocator.Release(ctx, id)
	metrics.Instance().MetricRegistrySizeSet("pods", float64(podCount))
	log.Infof(ctx, "Removed pod sandbox %s", id)
	return nil
}

// PodSandboxStatus returns a pod's current record.
func (r *Registry) PodSandboxStatus(id string) (*PodRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pod, ok := r.pods[id]
	if !ok {
		return nil, ErrPodNotFound
	}
	return pod, nil
}

// PodFilter selects pods by exact ID, exact state, and/or label subset.
// A zero-value field means "don't filter on this".
type PodFilter struct {
	ID     string
	State  *runtimeapi.PodSandboxState
	Labels map[string]string
}

// ListPodSandbox returns every managed pod matching all of filter's
// criteria (logical AND).
func (r *Registry) ListPodSandbox(filter PodFilter) []*PodRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*PodRecord
	for id, pod := range r.pods {
		if filter.ID != "" && filter.ID != id {
			continue
		}
		if filter.State != nil && pod.State != *filter.State {
			continue
		}
		if !hasAllLabels(pod.Labels(), filter.Labels) {
			continue
		}
		out = append(out, pod)
	}
	return out
}

func hasAllLabels(have, want map[string]string) bool {
	for k, v := range want {
		if have[k] != v {
			return false
		}
	}
	return true
}
