package downstream

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	runtimeapi "k8s.io/cri-api/pkg/apis/runtime/v1"
)

// queued is one canned (response, error) pair awaiting a matching call.
type queued struct {
	resp interface{}
	err  error
}

// FakeClient is a Client whose every RPC method drains a per-method FIFO of
// canned responses, set up ahead of time with Push. Calling a method with
// an empty queue panics, which ginkgo surfaces as a failing spec — the
// Go-idiomatic rendering of monkey-patch-per-call mock frameworks: a typed
// queue per RPC instead of runtime attribute replacement.
type FakeClient struct {
	mu     sync.Mutex
	queues map[string][]queued
}

// NewFakeClient returns an empty FakeClient.
func NewFakeClient() *FakeClient {
	return &FakeClient{queues: make(map[string][]queued)}
}

// Push enqueues a canned (resp, err) pair to be returned by the next call
// to method.
func (f *FakeClient) Push(method string, resp interface{}, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queues[method] = append(f.queues[method], queued{resp: resp, err: err})
}

// IsClear reports whether every queue has been fully drained.
func (f *FakeClient) IsClear() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, q := range f.queues {
		if len(q) > 0 {
			return false
		}
	}
	return true
}

func pop[T any](f *FakeClient, method string) (T, error) {
	f.mu.Lock()
	q, ok := f.queues[method]
	if !ok || len(q) == 0 {
		f.mu.Unlock()
		panic(fmt.Sprintf("downstream.FakeClient: no queued response for %s", method))
	}
	item := q[0]
	f.queues[method] = q[1:]
	f.mu.Unlock()

	if item.err != nil {
		var zero T
		return zero, item.err
	}
	return item.resp.(T), nil
}

func (f *FakeClient) Version(ctx context.Context, in *runtimeapi.VersionRequest, opts ...grpc.CallOption) (*runtimeapi.VersionResponse, error) {
	return pop[*runtimeapi.VersionResponse](f, "Version")
}

func (f *FakeClient) RunPodSandbox(ctx context.Context, in *runtimeapi.RunPodSandboxRequest, opts ...grpc.CallOption) (*runtimeapi.RunPodSandboxResponse, error) {
	return pop[*runtimeapi.RunPodSandboxResponse](f, "RunPodSandbox")
}

func (f *FakeClient) StopPodSandbox(ctx context.Context, in *runtimeapi.StopPodSandboxRequest, opts ...grpc.CallOption) (*runtimeapi.StopPodSandboxResponse, error) {
	return pop[*runtimeapi.StopPodSandboxResponse](f, "StopPodSandbox")
}

func (f *FakeClient) RemovePodSandbox(ctx context.Context, in *runtimeapi.RemovePodSandboxRequest, opts ...grpc.CallOption) (*runtimeapi.RemovePodSandboxResponse, error) {
	return pop[*runtimeapi.RemovePodSandboxResponse](f, "RemovePodSandbox")
}

func (f *FakeClient) PodSandboxStatus(ctx context.Context, in *runtimeapi.PodSandboxStatusRequest, opts ...grpc.CallOption) (*runtimeapi.PodSandboxStatusResponse, error) {
	return pop[*runtimeapi.PodSandboxStatusResponse](f, "PodSandboxStatus")
}

func (f *FakeClient) ListPodSandbox(ctx context.Context, in *runtimeapi.ListPodSandboxRequest, opts ...grpc.CallOption) (*runtimeapi.ListPodSandboxResponse, error) {
	return pop[*runtimeapi.ListPodSandboxResponse](f, "ListPodSandbox")
}

func (f *FakeClient) CreateContainer(ctx context.Context, in *runtimeapi.CreateContainerRequest, opts ...grpc.CallOption) (*runtimeapi.CreateContainerResponse, error) {
	return pop[*runtimeapi.CreateContainerResponse](f, "CreateContainer")
}

func (f *FakeClient) StartContainer(ctx context.Context, in *runtimeapi.StartContainerRequest, opts ...grpc.CallOption) (*runtimeapi.StartContainerResponse, error) {
	return pop[*runtimeapi.StartContainerResponse](f, "StartContainer")
}

func (f *FakeClient) StopContainer(ctx context.Context, in *runtimeapi.StopContainerRequest, opts ...grpc.CallOption) (*runtimeapi.StopContainerResponse, error) {
	return pop[*runtimeapi.StopContainerResponse](f, "StopContainer")
}

func (f *FakeClient) RemoveContainer(ctx context.Context, in *runtimeapi.RemoveContainerRequest, opts ...grpc.CallOption) (*runtimeapi.RemoveContainerResponse, error) {
	return pop[*runtimeapi.RemoveContainerResponse](f, "RemoveContainer")
}

func (f *FakeClient) ListContainers(ctx context.Context, in *runtimeapi.ListContainersRequest, opts ...grpc.CallOption) (*runtimeapi.ListContainersResponse, error) {
	return pop[*runtimeapi.ListContainersResponse](f, "ListContainers")
}

func (f *FakeClient) ContainerStatus(ctx context.Context, in *runtimeapi.ContainerStatusRequest, opts ...grpc.CallOption) (*runtimeapi.ContainerStatusResponse, error) {
	return pop[*runtimeapi.ContainerStatusResponse](f, "ContainerStatus")
}

func (f *FakeClient) UpdateContainerResources(ctx context.Context, in *runtimeapi.UpdateContainerResourcesRequest, opts ...grpc.CallOption) (*runtimeapi.UpdateContainerResourcesResponse, error) {
	return pop[*runtimeapi.UpdateContainerResourcesResponse](f, "UpdateContainerResources")
}

func (f *FakeClient) ReopenContainerLog(ctx context.Context, in *runtimeapi.ReopenContainerLogRequest, opts ...grpc.CallOption) (*runtimeapi.ReopenContainerLogResponse, error) {
	return pop[*runtimeapi.ReopenContainerLogResponse](f, "ReopenContainerLog")
}

func (f *FakeClient) ExecSync(ctx context.Context, in *runtimeapi.ExecSyncRequest, opts ...grpc.CallOption) (*runtimeapi.ExecSyncResponse, error) {
	return pop[*runtimeapi.ExecSyncResponse](f, "ExecSync")
}

func (f *FakeClient) Exec(ctx context.Context, in *runtimeapi.ExecRequest, opts ...grpc.CallOption) (*runtimeapi.ExecResponse, error) {
	return pop[*runtimeapi.ExecResponse](f, "Exec")
}

func (f *FakeClient) Attach(ctx context.Context, in *runtimeapi.AttachRequest, opts ...grpc.CallOption) (*runtimeapi.AttachResponse, error) {
	return pop[*runtimeapi.AttachResponse](f, "Attach")
}

func (f *FakeClient) PortForward(ctx context.Context, in *runtimeapi.PortForwardRequest, opts ...grpc.CallOption) (*runtimeapi.PortForwardResponse, error) {
	return pop[*runtimeapi.PortForwardResponse](f, "PortForward")
}

func (f *FakeClient) ContainerStats(ctx context.Context, in *runtimeapi.ContainerStatsRequest, opts ...grpc.CallOption) (*runtimeapi.ContainerStatsResponse, error) {
	return pop[*runtimeapi.ContainerStatsResponse](f, "ContainerStats")
}

func (f *FakeClient) ListContainerStats(ctx context.Context, in *runtimeapi.ListContainerStatsRequest, opts ...grpc.CallOption) (*runtimeapi.ListContainerStatsResponse, error) {
	return pop[*runtimeapi.ListContainerStatsResponse](f, "ListContainerStats")
}

func (f *FakeClient) PodSandboxStats(ctx context.Context, in *runtimeapi.PodSandboxStatsRequest, opts ...grpc.CallOption) (*runtimeapi.PodSandboxStatsResponse, error) {
	return pop[*runtimeapi.PodSandboxStatsResponse](f, "PodSandboxStats")
}

func (f *FakeClient) ListPodSandboxStats(ctx context.Context, in *runtimeapi.ListPodSandboxStatsRequest, opts ...grpc.CallOption) (*runtimeapi.ListPodSandboxStatsResponse, error) {
	return pop[*runtimeapi.ListPodSandboxStatsResponse](f, "ListPodSandboxStats")
}

func (f *FakeClient) UpdateRuntimeConfig(ctx context.Context, in *runtimeapi.UpdateRuntimeConfigRequest, opts ...grpc.CallOption) (*runtimeapi.UpdateRuntimeConfigResponse, error) {
	return pop[*runtimeapi.UpdateRuntimeConfigResponse](f, "UpdateRuntimeConfig")
}

func (f *FakeClient) Status(ctx context.Context, in *runtimeapi.StatusRequest, opts ...grpc.CallOption) (*runtimeapi.StatusResponse, error) {
	return pop[*runtimeapi.StatusResponse](f, "Status")
}

func (f *FakeClient) CheckpointContainer(ctx context.Context, in *runtimeapi.CheckpointContainerRequest, opts ...grpc.CallOption) (*runtimeapi.CheckpointContainerResponse, error) {
	return pop[*runtimeapi.CheckpointContainerResponse](f, "CheckpointContainer")
}

func (f *FakeClient) GetContainerEvents(ctx context.Context, in *runtimeapi.GetEventsRequest, opts ...grpc.CallOption) (runtimeapi.RuntimeService_GetContainerEventsClient, error) {
	return nil, status.Error(codes.Unimplemented, "GetContainerEvents is not exercised by the fake downstream client")
}

func (f *FakeClient) ListMetricDescriptors(ctx context.Context, in *runtimeapi.ListMetricDescriptorsRequest, opts ...grpc.CallOption) (*runtimeapi.ListMetricDescriptorsResponse, error) {
	return pop[*runtimeapi.ListMetricDescriptorsResponse](f, "ListMetricDescriptors")
}

func (f *FakeClient) ListPodSandboxMetrics(ctx context.Context, in *runtimeapi.ListPodSandboxMetricsRequest, opts ...grpc.CallOption) (*runtimeapi.ListPodSandboxMetricsResponse, error) {
	return pop[*runtimeapi.ListPodSandboxMetricsResponse](f, "ListPodSandboxMetrics")
}

func (f *FakeClient) RuntimeConfig(ctx context.Context, in *runtimeapi.RuntimeConfigRequest, opts ...grpc.CallOption) (*runtimeapi.RuntimeConfigResponse, error) {
	return pop[*runtimeapi.RuntimeConfigResponse](f, "RuntimeConfig")
}

func (f *FakeClient) ListImages(ctx context.Context, in *runtimeapi.ListImagesRequest, opts ...grpc.CallOption) (*runtimeapi.ListImagesResponse, error) {
	return pop[*runtimeapi.ListImagesResponse](f, "ListImages")
}

func (f *FakeClient) ImageStatus(ctx context.Context, in *runtimeapi.ImageStatusRequest, opts ...grpc.CallOption) (*runtimeapi.ImageStatusResponse, error) {
	return pop[*runtimeapi.ImageStatusResponse](f, "ImageStatus")
}

func (f *FakeClient) PullImage(ctx context.Context, in *runtimeapi.PullImageRequest, opts ...grpc.CallOption) (*runtimeapi.PullImageResponse, error) {
	return pop[*runtimeapi.PullImageResponse](f, "PullImage")
}

func (f *FakeClient) RemoveImage(ctx context.Context, in *runtimeapi.RemoveImageRequest, opts ...grpc.CallOption) (*runtimeapi.RemoveImageResponse, error) {
	return pop[*runtimeapi.RemoveImageResponse](f, "RemoveImage")
}

func (f *FakeClient) ImageFsInfo(ctx context.Context, in *runtimeapi.ImageFsInfoRequest, opts ...grpc.CallOption) (*runtimeapi.ImageFsInfoResponse, error) {
	return pop[*runtimeapi.ImageFsInfoResponse](f, "ImageFsInfo")
}

var _ Client = (*FakeClient)(nil)
