// Package cri holds thin conversions between this daemon's internal
// registry/image-store records and the k8s.io/cri-api/pkg/apis/runtime/v1
// wire types, so the dispatcher's RPC handlers stay focused on routing
// rather than field-by-field struct construction.
package cri

import (
	runtimeapi "k8s.io/cri-api/pkg/apis/runtime/v1"

	"github.com/vimana-cloud/vimanad/internal/registry"
)

// PodSandbox renders a registry.PodRecord as the CRI PodSandbox summary
// used by ListPodSandbox.
func PodSandbox(p *registry.PodRecord) *runtimeapi.PodSandbox {
	return &runtimeapi.PodSandbox{
		Id:             p.ID,
		Metadata:       p.Config.GetMetadata(),
		State:          p.State,
		CreatedAt:      p.CreatedAt.UnixNano(),
		Labels:         p.Config.GetLabels(),
		Annotations:    p.Config.GetAnnotations(),
		RuntimeHandler: p.RuntimeHandler,
	}
}

// PodSandboxStatus renders a registry.PodRecord as the detailed CRI
// PodSandboxStatus returned by PodSandboxStatus, including the single
// allocated IP (spec.md §4.2 PodSandboxStatus).
func PodSandboxStatus(p *registry.PodRecord) *runtimeapi.PodSandboxStatus {
	var network *runtimeapi.PodSandboxNetworkStatus
	if p.IP != nil {
		network = &runtimeapi.PodSandboxNetworkStatus{Ip: p.IP.String()}
	}
	return &runtimeapi.PodSandboxStatus{
		Id:             p.ID,
		Metadata:       p.Config.GetMetadata(),
		State:          p.State,
		CreatedAt:      p.CreatedAt.UnixNano(),
		Network:        network,
		Labels:         p.Config.GetLabels(),
		Annotations:    p.Config.GetAnnotations(),
		RuntimeHandler: p.RuntimeHandler,
	}
}

// Container renders a registry.ContainerRecord as the CRI Container summary
// used by ListContainers. imageID is the canonical image id string (spec.md
// §3); it fills both Container.Image and Container.ImageRef, resolving the
// design note that the teacher left these as "TODO".
func Container(c *registry.ContainerRecord, imageID string) *runtimeapi.Container {
	return &runtimeapi.Container{
		Id:           c.ID,
		PodSandboxId: c.PodID,
		Metadata:     c.Config.GetMetadata(),
		Image:        &runtimeapi.ImageSpec{Image: imageID},
		ImageRef:     imageID,
		State:        c.State,
		CreatedAt:    c.CreatedAt.UnixNano(),
		Labels:       c.Config.GetLabels(),
		Annotations:  c.Config.GetAnnotations(),
	}
}

// ContainerStatus renders a registry.ContainerRecord as the detailed CRI
// ContainerStatus returned by ContainerStatus.
func ContainerStatus(c *registry.ContainerRecord, imageID string) *runtimeapi.ContainerStatus {
	status := &runtimeapi.ContainerStatus{
		Id:          c.ID,
		Metadata:    c.Config.GetMetadata(),
		State:       c.State,
		CreatedAt:   c.CreatedAt.UnixNano(),
		Image:       &runtimeapi.ImageSpec{Image: imageID},
		ImageRef:    imageID,
		ExitCode:    c.ExitCode,
		Labels:      c.Config.GetLabels(),
		Annotations: c.Config.GetAnnotations(),
		LogPath:     c.Config.GetLogPath(),
	}
	if !c.StartedAt.IsZero() {
		status.StartedAt = c.StartedAt.UnixNano()
	}
	if !c.FinishedAt.IsZero() {
		status.FinishedAt = c.FinishedAt.UnixNano()
	}
	return status
}
