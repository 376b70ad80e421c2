package dispatch

import (
	"context"

	runtimeapi "k8s.io/cri-api/pkg/apis/runtime/v1"

	"github.com/vimana-cloud/vimanad/internal/ids"
	"github.com/vimana-cloud/vimanad/internal/log"
	"github.com/vimana-cloud/vimanad/internal/metrics"
	"github.com/vimana-cloud/vimanad/internal/registry"
	"github.com/vimana-cloud/vimanad/pkg/cri"
)

// RunPodSandbox routes on the request's runtime handler (spec.md §4.1):
// HandlerName takes the managed path, anything else (including empty)
// delegates to the downstream runtime unchanged.
func (s *Server) RunPodSandbox(ctx context.Context, req *runtimeapi.RunPodSandboxRequest) (*runtimeapi.RunPodSandboxResponse, error) {
	if req.GetRuntimeHandler() != HandlerName {
		metrics.Instance().MetricDispatchRequestInc("RunPodSandbox", "downstream")
		down, err := s.requireDownstream()
		if err != nil {
			return nil, err
		}
		return down.RunPodSandbox(ctx, req)
	}
	metrics.Instance().MetricDispatchRequestInc("RunPodSandbox", "managed")

	id, err := s.registry.RunPodSandbox(ctx, req.GetConfig(), HandlerName)
	if err != nil {
		return nil, toStatus(err)
	}
	return &runtimeapi.RunPodSandboxResponse{PodSandboxId: id}, nil
}

// StopPodSandbox routes on the "p-" ID prefix (spec.md §4.1).
func (s *Server) StopPodSandbox(ctx context.Context, req *runtimeapi.StopPodSandboxRequest) (*runtimeapi.StopPodSandboxResponse, error) {
	if !ids.IsManaged(req.GetPodSandboxId()) {
		metrics.Instance().MetricDispatchRequestInc("StopPodSandbox", "downstream")
		down, err := s.requireDownstream()
		if err != nil {
			return nil, err
		}
		return down.StopPodSandbox(ctx, req)
	}
	metrics.Instance().MetricDispatchRequestInc("StopPodSandbox", "managed")

	if err := s.registry.StopPodSandbox(ctx, req.GetPodSandboxId()); err != nil {
		return nil, toStatus(err)
	}
	return &runtimeapi.StopPodSandboxResponse{}, nil
}

// RemovePodSandbox routes on the "p-" ID prefix (spec.md §4.1).
func (s *Server) RemovePodSandbox(ctx context.Context, req *runtimeapi.RemovePodSandboxRequest) (*runtimeapi.RemovePodSandboxResponse, error) {
	if !ids.IsManaged(req.GetPodSandboxId()) {
		metrics.Instance().MetricDispatchRequestInc("RemovePodSandbox", "downstream")
		down, err := s.requireDownstream()
		if err != nil {
			return nil, err
		}
		return down.RemovePodSandbox(ctx, req)
	}
	metrics.Instance().MetricDispatchRequestInc("RemovePodSandbox", "managed")

	if err := s.registry.RemovePodSandbox(ctx, req.GetPodSandboxId()); err != nil {
		return nil, toStatus(err)
	}
	return &runtimeapi.RemovePodSandboxResponse{}, nil
}

// PodSandboxStatus routes on the "p-" ID prefix (spec.md §4.1).
func (s *Server) PodSandboxStatus(ctx context.Context, req *runtimeapi.PodSandboxStatusRequest) (*runtimeapi.PodSandboxStatusResponse, error) {
	if !ids.IsManaged(req.GetPodSandboxId()) {
		metrics.Instance().MetricDispatchRequestInc("PodSandboxStatus", "downstream")
		down, err := s.requireDownstream()
		if err != nil {
			return nil, err
		}
		return down.PodSandboxStatus(ctx, req)
	}
	metrics.Instance().MetricDispatchRequestInc("PodSandboxStatus", "managed")

	pod, err := s.registry.PodSandboxStatus(req.GetPodSandboxId())
	if err != nil {
		return nil, toStatus(err)
	}
	return &runtimeapi.PodSandboxStatusResponse{Status: cri.PodSandboxStatus(pod)}, nil
}

// ListPodSandbox calls both the managed registry and the downstream
// runtime and concatenates their results, managed first (spec.md §4.1,
// testable scenario S3).
func (s *Server) ListPodSandbox(ctx context.Context, req *runtimeapi.ListPodSandboxRequest) (*runtimeapi.ListPodSandboxResponse, error) {
	filter := podFilterFrom(req.GetFilter())
	managed := s.registry.ListPodSandbox(filter)

	items := make([]*runtimeapi.PodSandbox, 0, len(managed))
	for _, pod := range managed {
		items = append(items, cri.PodSandbox(pod))
	}

	if s.downstream != nil {
		resp, err := s.downstream.ListPodSandbox(ctx, req)
		if err != nil {
			return nil, err
		}
		items = append(items, resp.GetItems()...)
	}

	log.Debugf(ctx, "ListPodSandbox: %d managed, %d total", len(managed), len(items))
	return &runtimeapi.ListPodSandboxResponse{Items: items}, nil
}

func podFilterFrom(f *runtimeapi.PodSandboxFilter) registry.PodFilter {
	if f == nil {
		return registry.PodFilter{}
	}
	filter := registry.PodFilter{ID: f.GetId(), Labels: f.GetLabelSelector()}
	if f.GetState() != nil {
		state := f.GetState().GetState()
		filter.State = &state
	}
	return filter
}
