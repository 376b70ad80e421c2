package cri_test

import (
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	runtimeapi "k8s.io/cri-api/pkg/apis/runtime/v1"

	"github.com/vimana-cloud/vimanad/internal/registry"
	"github.com/vimana-cloud/vimanad/pkg/cri"
)

var _ = Describe("Convert", func() {
	It("renders a pod sandbox summary from a pod record", func() {
		record := &registry.PodRecord{
			ID:             "p-1234567890abcdef1234567890abcdef:svc@1.0.0#0",
			Config:         &runtimeapi.PodSandboxConfig{Metadata: &runtimeapi.PodSandboxMetadata{Name: "svc"}},
			State:          runtimeapi.PodSandboxState_SANDBOX_READY,
			RuntimeHandler: "vimana",
			CreatedAt:      time.Unix(0, 1000),
		}

		sandbox := cri.PodSandbox(record)
		Expect(sandbox.Id).To(Equal(record.ID))
		Expect(sandbox.State).To(Equal(runtimeapi.PodSandboxState_SANDBOX_READY))
		Expect(sandbox.RuntimeHandler).To(Equal("vimana"))
		Expect(sandbox.CreatedAt).To(Equal(int64(1000)))
	})

	It("renders a pod sandbox status with network info when an IP is assigned", func() {
		record := &registry.PodRecord{
			ID:     "p-1234567890abcdef1234567890abcdef:svc@1.0.0#0",
			Config: &runtimeapi.PodSandboxConfig{},
			IP:     net.ParseIP("10.2.0.5"),
		}

		status := cri.PodSandboxStatus(record)
		Expect(status.Network).NotTo(BeNil())
		Expect(status.Network.Ip).To(Equal("10.2.0.5"))
	})

	It("omits network info when no IP has been assigned", func() {
		record := &registry.PodRecord{ID: "p-x", Config: &runtimeapi.PodSandboxConfig{}}
		status := cri.PodSandboxStatus(record)
		Expect(status.Network).To(BeNil())
	})

	It("fills both image fields of a container status from the canonical image ID", func() {
		record := &registry.ContainerRecord{
			ID:     "c-1234567890abcdef1234567890abcdef:svc@1.0.0#0",
			PodID:  "p-1234567890abcdef1234567890abcdef:svc@1.0.0#0",
			Config: &runtimeapi.ContainerConfig{Metadata: &runtimeapi.ContainerMetadata{Name: "svc"}},
			State:  runtimeapi.ContainerState_CONTAINER_RUNNING,
		}
		const imageID = "registry.example.com/1234567890abcdef1234567890abcdef/deadbeef:1.0.0"

		status := cri.ContainerStatus(record, imageID)
		Expect(status.Image.Image).To(Equal(imageID))
		Expect(status.ImageRef).To(Equal(imageID))
		Expect(status.StartedAt).To(BeZero())

		summary := cri.Container(record, imageID)
		Expect(summary.Image.Image).To(Equal(imageID))
		Expect(summary.ImageRef).To(Equal(imageID))
	})
})
