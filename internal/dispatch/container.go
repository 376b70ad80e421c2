package dispatch

import (
	"context"
	"time"

	runtimeapi "k8s.io/cri-api/pkg/apis/runtime/v1"

	"github.com/vimana-cloud/vimanad/internal/ids"
	"github.com/vimana-cloud/vimanad/internal/metrics"
	"github.com/vimana-cloud/vimanad/internal/registry"
	"github.com/vimana-cloud/vimanad/pkg/cri"
)

// CreateContainer routes on the "p-" pod ID prefix (spec.md §4.1).
func (s *Server) CreateContainer(ctx context.Context, req *runtimeapi.CreateContainerRequest) (*runtimeapi.CreateContainerResponse, error) {
	if !ids.IsManaged(req.GetPodSandboxId()) {
		metrics.Instance().MetricDispatchRequestInc("CreateContainer", "downstream")
		down, err := s.requireDownstream()
		if err != nil {
			return nil, err
		}
		return down.CreateContainer(ctx, req)
	}
	metrics.Instance().MetricDispatchRequestInc("CreateContainer", "managed")

	imageRef := req.GetConfig().GetImage().GetImage()
	id, err := s.registry.CreateContainer(ctx, req.GetPodSandboxId(), req.GetConfig(), imageRef)
	if err != nil {
		return nil, toStatus(err)
	}
	return &runtimeapi.CreateContainerResponse{ContainerId: id}, nil
}

// StartContainer routes on the "c-" ID prefix (spec.md §4.1). It resolves
// the container's image to its on-disk component/metadata paths and
// invokes the wasm engine's start hook through the registry.
func (s *Server) StartContainer(ctx context.Context, req *runtimeapi.StartContainerRequest) (*runtimeapi.StartContainerResponse, error) {
	if !ids.IsManaged(req.GetContainerId()) {
		metrics.Instance().MetricDispatchRequestInc("StartContainer", "downstream")
		down, err := s.requireDownstream()
		if err != nil {
			return nil, err
		}
		return down.StartContainer(ctx, req)
	}
	metrics.Instance().MetricDispatchRequestInc("StartContainer", "managed")

	ctr, err := s.registry.ContainerStatus(req.GetContainerId())
	if err != nil {
		return nil, toStatus(err)
	}

	img, err := ids.ParseImageID(ctr.ImageRef)
	if err != nil {
		return nil, toStatus(err)
	}
	if _, err := s.images.Status(img); err != nil {
		return nil, err
	}
	componentPath, metadataPath := s.images.Paths(img)

	if err := s.registry.StartContainer(ctx, req.GetContainerId(), componentPath, metadataPath); err != nil {
		return nil, toStatus(err)
	}
	return &runtimeapi.StartContainerResponse{}, nil
}

// StopContainer routes on the "c-" ID prefix (spec.md §4.1).
func (s *Server) StopContainer(ctx context.Context, req *runtimeapi.StopContainerRequest) (*runtimeapi.StopContainerResponse, error) {
	if !ids.IsManaged(req.GetContainerId()) {
		metrics.Instance().MetricDispatchRequestInc("StopContainer", "downstream")
		down, err := s.requireDownstream()
		if err != nil {
			return nil, err
		}
		return down.StopContainer(ctx, req)
	}
	metrics.Instance().MetricDispatchRequestInc("StopContainer", "managed")

	timeout := time.Duration(req.GetTimeout()) * time.Second
	if err := s.registry.StopContainer(ctx, req.GetContainerId(), timeout); err != nil {
		return nil, toStatus(err)
	}
	return &runtimeapi.StopContainerResponse{}, nil
}

// RemoveContainer routes on the "c-" ID prefix (spec.md §4.1).
func (s *Server) RemoveContainer(ctx context.Context, req *runtimeapi.RemoveContainerRequest) (*runtimeapi.RemoveContainerResponse, error) {
	if !ids.IsManaged(req.GetContainerId()) {
		metrics.Instance().MetricDispatchRequestInc("RemoveContainer", "downstream")
		down, err := s.requireDownstream()
		if err != nil {
			return nil, err
		}
		return down.RemoveContainer(ctx, req)
	}
	metrics.Instance().MetricDispatchRequestInc("RemoveContainer", "managed")

	if err := s.registry.RemoveContainer(ctx, req.GetContainerId()); err != nil {
		return nil, toStatus(err)
	}
	return &runtimeapi.RemoveContainerResponse{}, nil
}

// ContainerStatus routes on the "c-" ID prefix (spec.md §4.1).
func (s *Server) ContainerStatus(ctx context.Context, req *runtimeapi.ContainerStatusRequest) (*runtimeapi.ContainerStatusResponse, error) {
	if !ids.IsManaged(req.GetContainerId()) {
		metrics.Instance().MetricDispatchRequestInc("ContainerStatus", "downstream")
		down, err := s.requireDownstream()
		if err != nil {
			return nil, err
		}
		return down.ContainerStatus(ctx, req)
	}
	metrics.Instance().MetricDispatchRequestInc("ContainerStatus", "managed")

	ctr, err := s.registry.ContainerStatus(req.GetContainerId())
	if err != nil {
		return nil, toStatus(err)
	}
	return &runtimeapi.ContainerStatusResponse{Status: cri.ContainerStatus(ctr, ctr.ImageRef)}, nil
}

// ListContainers calls both the managed registry and the downstream
// runtime and concatenates their results, managed first (spec.md §4.1).
func (s *Server) ListContainers(ctx context.Context, req *runtimeapi.ListContainersRequest) (*runtimeapi.ListContainersResponse, error) {
	filter := containerFilterFrom(req.GetFilter())
	managed := s.registry.ListContainers(filter)

	items := make([]*runtimeapi.Container, 0, len(managed))
	for _, ctr := range managed {
		items = append(items, cri.Container(ctr, ctr.ImageRef))
	}

	if s.downstream != nil {
		resp, err := s.downstream.ListContainers(ctx, req)
		if err != nil {
			return nil, err
		}
		items = append(items, resp.GetContainers()...)
	}

	return &runtimeapi.ListContainersResponse{Containers: items}, nil
}

func containerFilterFrom(f *runtimeapi.ContainerFilter) registry.ContainerFilter {
	if f == nil {
		return registry.ContainerFilter{}
	}
	filter := registry.ContainerFilter{ID: f.GetId(), PodID: f.GetPodSandboxId(), Labels: f.GetLabelSelector()}
	if f.GetState() != nil {
		state := f.GetState().GetState()
		filter.State = &state
	}
	return filter
}
