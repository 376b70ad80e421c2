package dispatch

// This file covers operations this daemon has no managed semantics for at
// all: exec, attach, port-forward, stats, checkpointing, and node-wide
// runtime config/status. These always delegate to the downstream runtime
// for a non-managed ID; a managed ID reaching one of them means the
// caller asked this daemon to do something it doesn't support for
// components, which fails closed with Unimplemented rather than silently
// forwarding a "p-"/"c-" ID the downstream runtime has never heard of.

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	runtimeapi "k8s.io/cri-api/pkg/apis/runtime/v1"

	"github.com/vimana-cloud/vimanad/internal/ids"
)

func errUnsupportedForManaged(op string) error {
	return status.Errorf(codes.Unimplemented, "%s is not supported for Vimana-managed components", op)
}

func (s *Server) UpdateContainerResources(ctx context.Context, req *runtimeapi.UpdateContainerResourcesRequest) (*runtimeapi.UpdateContainerResourcesResponse, error) {
	if ids.IsManaged(req.GetContainerId()) {
		return nil, errUnsupportedForManaged("UpdateContainerResources")
	}
	down, err := s.requireDownstream()
	if err != nil {
		return nil, err
	}
	return down.UpdateContainerResources(ctx, req)
}

func (s *Server) ReopenContainerLog(ctx context.Context, req *runtimeapi.ReopenContainerLogRequest) (*runtimeapi.ReopenContainerLogResponse, error) {
	if ids.IsManaged(req.GetContainerId()) {
		return nil, errUnsupportedForManaged("ReopenContainerLog")
	}
	down, err := s.requireDownstream()
	if err != nil {
		return nil, err
	}
	return down.ReopenContainerLog(ctx, req)
}

func (s *Server) ExecSync(ctx context.Context, req *runtimeapi.ExecSyncRequest) (*runtimeapi.ExecSyncResponse, error) {
	if ids.IsManaged(req.GetContainerId()) {
		return nil, errUnsupportedForManaged("ExecSync")
	}
	down, err := s.requireDownstream()
	if err != nil {
		return nil, err
	}
	return down.ExecSync(ctx, req)
}

func (s *Server) Exec(ctx context.Context, req *runtimeapi.ExecRequest) (*runtimeapi.ExecResponse, error) {
	if ids.IsManaged(req.GetContainerId()) {
		return nil, errUnsupportedForManaged("Exec")
	}
	down, err := s.requireDownstream()
	if err != nil {
		return nil, err
	}
	return down.Exec(ctx, req)
}

func (s *Server) Attach(ctx context.Context, req *runtimeapi.AttachRequest) (*runtimeapi.AttachResponse, error) {
	if ids.IsManaged(req.GetContainerId()) {
		return nil, errUnsupportedForManaged("Attach")
	}
	down, err := s.requireDownstream()
	if err != nil {
		return nil, err
	}
	return down.Attach(ctx, req)
}

func (s *Server) PortForward(ctx context.Context, req *runtimeapi.PortForwardRequest) (*runtimeapi.PortForwardResponse, error) {
	if ids.IsManaged(req.GetPodSandboxId()) {
		return nil, errUnsupportedForManaged("PortForward")
	}
	down, err := s.requireDownstream()
	if err != nil {
		return nil, err
	}
	return down.PortForward(ctx, req)
}

func (s *Server) ContainerStats(ctx context.Context, req *runtimeapi.ContainerStatsRequest) (*runtimeapi.ContainerStatsResponse, error) {
	if ids.IsManaged(req.GetContainerId()) {
		return nil, errUnsupportedForManaged("ContainerStats")
	}
	down, err := s.requireDownstream()
	if err != nil {
		return nil, err
	}
	return down.ContainerStats(ctx, req)
}

func (s *Server) ListContainerStats(ctx context.Context, req *runtimeapi.ListContainerStatsRequest) (*runtimeapi.ListContainerStatsResponse, error) {
	down, err := s.requireDownstream()
	if err != nil {
		return nil, err
	}
	return down.ListContainerStats(ctx, req)
}

func (s *Server) PodSandboxStats(ctx context.Context, req *runtimeapi.PodSandboxStatsRequest) (*runtimeapi.PodSandboxStatsResponse, error) {
	if ids.IsManaged(req.GetPodSandboxId()) {
		return nil, errUnsupportedForManaged("PodSandboxStats")
	}
	down, err := s.requireDownstream()
	if err != nil {
		return nil, err
	}
	return down.PodSandboxStats(ctx, req)
}

func (s *Server) ListPodSandboxStats(ctx context.Context, req *runtimeapi.ListPodSandboxStatsRequest) (*runtimeapi.ListPodSandboxStatsResponse, error) {
	down, err := s.requireDownstream()
	if err != nil {
		return nil, err
	}
	return down.ListPodSandboxStats(ctx, req)
}

func (s *Server) CheckpointContainer(ctx context.Context, req *runtimeapi.CheckpointContainerRequest) (*runtimeapi.CheckpointContainerResponse, error) {
	if ids.IsManaged(req.GetContainerId()) {
		return nil, errUnsupportedForManaged("CheckpointContainer")
	}
	down, err := s.requireDownstream()
	if err != nil {
		return nil, err
	}
	return down.CheckpointContainer(ctx, req)
}

func (s *Server) UpdateRuntimeConfig(ctx context.Context, req *runtimeapi.UpdateRuntimeConfigRequest) (*runtimeapi.UpdateRuntimeConfigResponse, error) {
	down, err := s.requireDownstream()
	if err != nil {
		return nil, err
	}
	return down.UpdateRuntimeConfig(ctx, req)
}

func (s *Server) Status(ctx context.Context, req *runtimeapi.StatusRequest) (*runtimeapi.StatusResponse, error) {
	down, err := s.requireDownstream()
	if err != nil {
		return nil, err
	}
	return down.Status(ctx, req)
}

func (s *Server) ListMetricDescriptors(ctx context.Context, req *runtimeapi.ListMetricDescriptorsRequest) (*runtimeapi.ListMetricDescriptorsResponse, error) {
	down, err := s.requireDownstream()
	if err != nil {
		return nil, err
	}
	return down.ListMetricDescriptors(ctx, req)
}

func (s *Server) ListPodSandboxMetrics(ctx context.Context, req *runtimeapi.ListPodSandboxMetricsRequest) (*runtimeapi.ListPodSandboxMetricsResponse, error) {
	down, err := s.requireDownstream()
	if err != nil {
		return nil, err
	}
	return down.ListPodSandboxMetrics(ctx, req)
}

func (s *Server) RuntimeConfig(ctx context.Context, req *runtimeapi.RuntimeConfigRequest) (*runtimeapi.RuntimeConfigResponse, error) {
	down, err := s.requireDownstream()
	if err != nil {
		return nil, err
	}
	return down.RuntimeConfig(ctx, req)
}

// GetContainerEvents is a server-streaming RPC this daemon never
// originates events for and has no transparent way to proxy; left
// Unimplemented, matching the fake downstream client's own stance.
func (s *Server) GetContainerEvents(req *runtimeapi.GetEventsRequest, stream runtimeapi.RuntimeService_GetContainerEventsServer) error {
	return status.Error(codes.Unimplemented, "GetContainerEvents is not implemented")
}
