package dispatch_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	digest "github.com/opencontainers/go-digest"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	runtimeapi "k8s.io/cri-api/pkg/apis/runtime/v1"

	"github.com/vimana-cloud/vimanad/internal/dispatch"
	"github.com/vimana-cloud/vimanad/internal/downstream"
	"github.com/vimana-cloud/vimanad/internal/ids"
	"github.com/vimana-cloud/vimanad/internal/imagestore"
	"github.com/vimana-cloud/vimanad/internal/ipam"
	"github.com/vimana-cloud/vimanad/internal/puller"
	"github.com/vimana-cloud/vimanad/internal/registry"
	"github.com/vimana-cloud/vimanad/internal/wasmengine"
	. "github.com/vimana-cloud/vimanad/test/framework"
)

func TestDispatch(t *testing.T) {
	RegisterFailHandler(Fail)
	RunFrameworkSpecs(t, "Dispatch")
}

var tf *TestFramework

var _ = BeforeSuite(func() {
	tf = NewTestFramework(NilFunc, NilFunc)
	tf.Setup()
})

var _ = AfterSuite(func() {
	tf.Teardown()
})

const domain = "1234567890abcdef1234567890abcdef"

func writeFakeIPAM(dir string) string {
	path := filepath.Join(dir, "fake-ipam")
	script := `#!/bin/sh
case "$CNI_COMMAND" in
ADD) echo '{"cniVersion":"1.0.0","ips":[{"address":"10.2.0.5/24"}]}' ;;
DEL) ;;
esac
`
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		panic(err)
	}
	return path
}

const (
	componentBytes = "fake component bytes"
	metadataBytes  = "fake metadata bytes"
)

func imageServer() *httptest.Server {
	componentDigest := digest.Canonical.FromString(componentBytes)
	metadataDigest := digest.Canonical.FromString(metadataBytes)

	mux := http.NewServeMux()
	mux.HandleFunc("/v2/", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/manifests/"):
			m := map[string]interface{}{
				"schemaVersion": 2,
				"config": map[string]interface{}{
					"mediaType": "application/vnd.oci.image.config.v1+json",
					"digest":    "sha256:0000000000000000000000000000000000000000000000000000000000000",
					"size":      2,
				},
				"layers": []map[string]interface{}{
					{"mediaType": "application/wasm", "digest": componentDigest.String(), "size": len(componentBytes)},
					{"mediaType": "application/protobuf", "digest": metadataDigest.String(), "size": len(metadataBytes)},
				},
			}
			b, _ := json.Marshal(m)
			w.Write(b)
		case strings.HasSuffix(r.URL.Path, componentDigest.String()):
			w.Write([]byte(componentBytes))
		case strings.HasSuffix(r.URL.Path, metadataDigest.String()):
			w.Write([]byte(metadataBytes))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	return httptest.NewServer(mux)
}

func imageIDFor(server *httptest.Server) ids.ImageID {
	host, port, _ := strings.Cut(strings.TrimPrefix(server.URL, "http://"), ":")
	return ids.ImageID{Host: host, Port: port, Domain: domain, Service: "svc", Version: "1.0.0"}
}

func podConfig(service string) *runtimeapi.PodSandboxConfig {
	return &runtimeapi.PodSandboxConfig{
		Metadata: &runtimeapi.PodSandboxMetadata{Name: service, Namespace: "default"},
		Labels: map[string]string{
			registry.LabelDomain:  domain,
			registry.LabelService: service,
			registry.LabelVersion: "1.0.0",
		},
	}
}

var _ = Describe("Server", func() {
	var (
		server     *httptest.Server
		img        ids.ImageID
		alloc      *ipam.Allocator
		reg        *registry.Registry
		store      *imagestore.Store
		fakeDown   *downstream.FakeClient
		dispatcher *dispatch.Server
	)

	BeforeEach(func() {
		server = imageServer()
		img = imageIDFor(server)

		alloc = ipam.New(writeFakeIPAM(tf.MustTempDir("ipam")), "10.2.0.0/16", "eth0")
		reg = registry.New(alloc, wasmengine.New("/bin/true"))
		store = imagestore.New(tf.MustTempDir("store"), puller.New([]string{img.Registry()}))
		fakeDown = downstream.NewFakeClient()
		// dispatch.New lists downstream pods and containers once at startup.
		fakeDown.Push("ListPodSandbox", &runtimeapi.ListPodSandboxResponse{}, nil)
		fakeDown.Push("ListContainers", &runtimeapi.ListContainersResponse{}, nil)

		var err error
		dispatcher, err = dispatch.New(context.Background(), dispatch.Config{
			Registry:   reg,
			Images:     store,
			Downstream: fakeDown,
		})
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	It("runs a managed pod sandbox when the runtime handler matches", func() {
		resp, err := dispatcher.RunPodSandbox(context.Background(), &runtimeapi.RunPodSandboxRequest{
			Config:         podConfig("svc"),
			RuntimeHandler: dispatch.HandlerName,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.PodSandboxId).To(HavePrefix("p-"))
	})

	It("forwards RunPodSandbox to downstream for a non-matching handler", func() {
		fakeDown.Push("RunPodSandbox", &runtimeapi.RunPodSandboxResponse{PodSandboxId: "downstream-pod"}, nil)

		resp, err := dispatcher.RunPodSandbox(context.Background(), &runtimeapi.RunPodSandboxRequest{
			Config:         podConfig("svc"),
			RuntimeHandler: "runc",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.PodSandboxId).To(Equal("downstream-pod"))
	})

	It("fails downstream delegation with Unavailable when no downstream is configured", func() {
		noDownstream, err := dispatch.New(context.Background(), dispatch.Config{
			Registry: reg,
			Images:   store,
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = noDownstream.RunPodSandbox(context.Background(), &runtimeapi.RunPodSandboxRequest{
			Config:         podConfig("svc"),
			RuntimeHandler: "runc",
		})
		st, ok := status.FromError(err)
		Expect(ok).To(BeTrue())
		Expect(st.Code()).To(Equal(codes.Unavailable))
	})

	It("routes StopPodSandbox/RemovePodSandbox/PodSandboxStatus by ID prefix", func() {
		runResp, err := dispatcher.RunPodSandbox(context.Background(), &runtimeapi.RunPodSandboxRequest{
			Config:         podConfig("svc"),
			RuntimeHandler: dispatch.HandlerName,
		})
		Expect(err).NotTo(HaveOccurred())

		statusResp, err := dispatcher.PodSandboxStatus(context.Background(), &runtimeapi.PodSandboxStatusRequest{PodSandboxId: runResp.PodSandboxId})
		Expect(err).NotTo(HaveOccurred())
		Expect(statusResp.Status.State).To(Equal(runtimeapi.PodSandboxState_SANDBOX_READY))

		_, err = dispatcher.StopPodSandbox(context.Background(), &runtimeapi.StopPodSandboxRequest{PodSandboxId: runResp.PodSandboxId})
		Expect(err).NotTo(HaveOccurred())

		_, err = dispatcher.RemovePodSandbox(context.Background(), &runtimeapi.RemovePodSandboxRequest{PodSandboxId: runResp.PodSandboxId})
		Expect(err).NotTo(HaveOccurred())

		_, err = dispatcher.PodSandboxStatus(context.Background(), &runtimeapi.PodSandboxStatusRequest{PodSandboxId: runResp.PodSandboxId})
		st, ok := status.FromError(err)
		Expect(ok).To(BeTrue())
		Expect(st.Code()).To(Equal(codes.NotFound))
	})

	It("lists managed results before downstream results", func() {
		_, err := dispatcher.RunPodSandbox(context.Background(), &runtimeapi.RunPodSandboxRequest{
			Config:         podConfig("svc"),
			RuntimeHandler: dispatch.HandlerName,
		})
		Expect(err).NotTo(HaveOccurred())

		fakeDown.Push("ListPodSandbox", &runtimeapi.ListPodSandboxResponse{
			Items: []*runtimeapi.PodSandbox{{Id: "downstream-pod"}},
		}, nil)

		resp, err := dispatcher.ListPodSandbox(context.Background(), &runtimeapi.ListPodSandboxRequest{})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Items).To(HaveLen(2))
		Expect(resp.Items[0].Id).To(HavePrefix("p-"))
		Expect(resp.Items[1].Id).To(Equal("downstream-pod"))
	})

	It("creates, starts, and stops a managed container end to end", func() {
		_, err := store.Pull(context.Background(), img, nil)
		Expect(err).NotTo(HaveOccurred())

		runResp, err := dispatcher.RunPodSandbox(context.Background(), &runtimeapi.RunPodSandboxRequest{
			Config:         podConfig("svc"),
			RuntimeHandler: dispatch.HandlerName,
		})
		Expect(err).NotTo(HaveOccurred())

		createResp, err := dispatcher.CreateContainer(context.Background(), &runtimeapi.CreateContainerRequest{
			PodSandboxId: runResp.PodSandboxId,
			Config: &runtimeapi.ContainerConfig{
				Metadata: &runtimeapi.ContainerMetadata{Name: "svc"},
				Image:    &runtimeapi.ImageSpec{Image: img.String()},
			},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(createResp.ContainerId).To(HavePrefix("c-"))

		_, err = dispatcher.StartContainer(context.Background(), &runtimeapi.StartContainerRequest{ContainerId: createResp.ContainerId})
		Expect(err).NotTo(HaveOccurred())

		statusResp, err := dispatcher.ContainerStatus(context.Background(), &runtimeapi.ContainerStatusRequest{ContainerId: createResp.ContainerId})
		Expect(err).NotTo(HaveOccurred())
		Expect(statusResp.Status.Image.Image).To(Equal(img.String()))

		_, err = dispatcher.StopContainer(context.Background(), &runtimeapi.StopContainerRequest{ContainerId: createResp.ContainerId, Timeout: 1})
		Expect(err).NotTo(HaveOccurred())
	})

	It("reports an absent image status without an error (S5)", func() {
		resp, err := dispatcher.ImageStatus(context.Background(), &runtimeapi.ImageStatusRequest{
			Image: &runtimeapi.ImageSpec{Image: img.String(), RuntimeHandler: dispatch.HandlerName},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Image).To(BeNil())
	})

	It("lists managed images before downstream images", func() {
		_, err := store.Pull(context.Background(), img, nil)
		Expect(err).NotTo(HaveOccurred())

		fakeDown.Push("ListImages", &runtimeapi.ListImagesResponse{
			Images: []*runtimeapi.Image{{Id: "downstream-image"}},
		}, nil)

		resp, err := dispatcher.ListImages(context.Background(), &runtimeapi.ListImagesRequest{})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Images).To(HaveLen(2))

		var imageIDs []string
		for _, image := range resp.Images {
			imageIDs = append(imageIDs, image.Id)
		}
		Expect(imageIDs).To(Equal([]string{img.String(), "downstream-image"}))
	})

	It("fails a managed container ID reaching Exec with Unimplemented", func() {
		runResp, err := dispatcher.RunPodSandbox(context.Background(), &runtimeapi.RunPodSandboxRequest{
			Config:         podConfig("svc"),
			RuntimeHandler: dispatch.HandlerName,
		})
		Expect(err).NotTo(HaveOccurred())
		createResp, err := dispatcher.CreateContainer(context.Background(), &runtimeapi.CreateContainerRequest{
			PodSandboxId: runResp.PodSandboxId,
			Config:       &runtimeapi.ContainerConfig{Metadata: &runtimeapi.ContainerMetadata{Name: "svc"}},
		})
		Expect(err).NotTo(HaveOccurred())

		_, err = dispatcher.ExecSync(context.Background(), &runtimeapi.ExecSyncRequest{ContainerId: createResp.ContainerId})
		st, ok := status.FromError(err)
		Expect(ok).To(BeTrue())
		Expect(st.Code()).To(Equal(codes.Unimplemented))
	})
})
