package imagestore_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	digest "github.com/opencontainers/go-digest"

	"github.com/vimana-cloud/vimanad/internal/ids"
	"github.com/vimana-cloud/vimanad/internal/imagestore"
	"github.com/vimana-cloud/vimanad/internal/puller"
	. "github.com/vimana-cloud/vimanad/test/framework"
)

func TestImagestore(t *testing.T) {
	RegisterFailHandler(Fail)
	RunFrameworkSpecs(t, "Imagestore")
}

var tf *TestFramework

var _ = BeforeSuite(func() {
	tf = NewTestFramework(NilFunc, NilFunc)
	tf.Setup()
})

var _ = AfterSuite(func() {
	tf.Teardown()
})

const (
	componentBytes = "fake component bytes"
	metadataBytes  = "fake metadata bytes"
)

func testServer() *httptest.Server {
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
	return ids.ImageID{Host: host, Port: port, Domain: "1234567890abcdef1234567890abcdef", Service: "svc", Version: "1.0.0"}
}

var _ = Describe("Store", func() {
	var server *httptest.Server
	var img ids.ImageID
	var store *imagestore.Store

	BeforeEach(func() {
		server = testServer()
		img = imageIDFor(server)
		store = imagestore.New(tf.MustTempDir("store"), puller.New([]string{img.Registry()}))
	})

	AfterEach(func() {
		server.Close()
	})

	It("reports absence before any pull", func() {
		_, err := store.Status(img)
		Expect(err).To(HaveOccurred())
	})

	It("pulls an image and makes it available by status", func() {
		labels := map[string]string{"domain": img.Domain}
		ref, err := store.Pull(context.Background(), img, labels)
		Expect(err).NotTo(HaveOccurred())
		Expect(ref).To(Equal(img.String()))

		record, err := store.Status(img)
		Expect(err).NotTo(HaveOccurred())
		Expect(record.ComponentSize).To(BeEquivalentTo(len(componentBytes)))
		Expect(record.ManifestDigest).NotTo(BeEmpty())
		Expect(record.ConfigDigest).NotTo(BeEmpty())
		Expect(record.Labels).To(Equal(labels))
	})

	It("removes a pulled image and prunes empty directories", func() {
		_, err := store.Pull(context.Background(), img, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(store.Remove(img)).To(Succeed())
		_, err = store.Status(img)
		Expect(err).To(HaveOccurred())

		// The domain and service directories are gone along with the files.
		_, inodesUsed, err := store.FsInfo()
		Expect(err).NotTo(HaveOccurred())
		Expect(inodesUsed).To(BeZero())
	})

	It("is idempotent removing an image that was never pulled", func() {
		Expect(store.Remove(img)).To(Succeed())
	})

	It("reports nonzero filesystem usage once something has been pulled", func() {
		_, err := store.Pull(context.Background(), img, nil)
		Expect(err).NotTo(HaveOccurred())

		bytesUsed, inodesUsed, err := store.FsInfo()
		Expect(err).NotTo(HaveOccurred())
		Expect(bytesUsed).To(BeNumerically(">", 0))
		Expect(inodesUsed).To(BeNumerically(">", 0))
	})

	It("serves concurrent pulls of the same image exactly once each on disk", func() {
		results := make(chan error, 4)
		for i := 0; i < 4; i++ {
			go func() {
				_, err := store.Pull(context.Background(), img, nil)
				results <- err
			}()
		}
		for i := 0; i < 4; i++ {
			Expect(<-results).NotTo(HaveOccurred())
		}

		// Domain and service directories plus one component, metadata and index file.
		_, inodesUsed, err := store.FsInfo()
		Expect(err).NotTo(HaveOccurred())
		Expect(inodesUsed).To(BeEquivalentTo(5))
	})
})
