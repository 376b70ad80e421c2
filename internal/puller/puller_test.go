package puller_test

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	digest "github.com/opencontainers/go-digest"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vimana-cloud/vimanad/internal/ids"
	"github.com/vimana-cloud/vimanad/internal/puller"
)

func TestPuller(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Puller")
}

const (
	componentBytes = "fake component bytes"
	metadataBytes  = "fake metadata bytes"
)

func componentDigest() digest.Digest { return digest.Canonical.FromString(componentBytes) }
func metadataDigest() digest.Digest  { return digest.Canonical.FromString(metadataBytes) }

func validManifestJSON() []byte {
	m := map[string]interface{}{
		"schemaVersion": 2,
		"config": map[string]interface{}{
			"mediaType": "application/vnd.oci.image.config.v1+json",
			"digest":    "sha256:0000000000000000000000000000000000000000000000000000000000000",
			"size":      2,
		},
		"layers": []map[string]interface{}{
			{"mediaType": "application/wasm", "digest": componentDigest().String(), "size": len(componentBytes)},
			{"mediaType": "application/protobuf", "digest": metadataDigest().String(), "size": len(metadataBytes)},
		},
	}
	b, err := json.Marshal(m)
	if err != nil {
		panic(err)
	}
	return b
}

func testServer() *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/v2/", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "/manifests/"):
			w.Write(validManifestJSON())
		case strings.HasSuffix(r.URL.Path, componentDigest().String()):
			w.Write([]byte(componentBytes))
		case strings.HasSuffix(r.URL.Path, metadataDigest().String()):
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

var _ = Describe("Puller", func() {
	var server *httptest.Server
	var img ids.ImageID

	BeforeEach(func() {
		server = testServer()
		img = imageIDFor(server)
	})

	AfterEach(func() {
		server.Close()
	})

	It("fetches and validates a well-formed manifest", func() {
		p := puller.New([]string{img.Registry()})
		manifest, err := p.FetchManifest(context.Background(), img)
		Expect(err).NotTo(HaveOccurred())
		Expect(manifest.Layers).To(HaveLen(2))
		Expect(manifest.ComponentDescriptor().MediaType).To(Equal("application/wasm"))
		Expect(manifest.MetadataDescriptor().MediaType).To(Equal("application/protobuf"))
	})

	It("streams and verifies a blob's digest", func() {
		p := puller.New([]string{img.Registry()})
		manifest, err := p.FetchManifest(context.Background(), img)
		Expect(err).NotTo(HaveOccurred())

		var buf bytes.Buffer
		Expect(p.FetchBlob(context.Background(), img, manifest.ComponentDescriptor(), &buf)).To(Succeed())
		Expect(buf.String()).To(Equal(componentBytes))
	})

	It("rejects a blob whose body doesn't match the declared digest", func() {
		// Serves the component bytes for every blob, whatever digest is asked for.
		mismatched := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(componentBytes))
		}))
		defer mismatched.Close()
		mismatchedImg := imageIDFor(mismatched)

		p := puller.New([]string{mismatchedImg.Registry()})
		bad := puller.Descriptor{
			MediaType: "application/wasm",
			Digest:    digest.NewDigestFromBytes(digest.SHA256, sha256.New().Sum([]byte("wrong"))),
			Size:      int64(len(componentBytes)),
		}
		var buf bytes.Buffer
		err := p.FetchBlob(context.Background(), mismatchedImg, bad, &buf)
		Expect(err).To(HaveOccurred())
		Expect(status.Code(err)).To(Equal(codes.DataLoss))
	})

	It("treats a 404 manifest as InvalidArgument, not a crash", func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) })
		notFound := httptest.NewServer(mux)
		defer notFound.Close()

		notFoundImg := imageIDFor(notFound)
		p := puller.New([]string{notFoundImg.Registry()})
		_, err := p.FetchManifest(context.Background(), notFoundImg)
		Expect(err).To(HaveOccurred())
		Expect(status.Code(err)).To(Equal(codes.InvalidArgument))
	})
})
