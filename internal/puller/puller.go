// Package puller performs the registry-side half of an image pull: two
// fixed HTTP exchanges (manifest, then blobs) against a registry speaking
// the OCI distribution API, with digest verification on every blob.
package puller

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"hash"
	"io"
	"net/http"

	"github.com/docker/distribution/registry/api/errcode"
	digest "github.com/opencontainers/go-digest"
	v1 "github.com/opencontainers/image-spec/specs-go/v1"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vimana-cloud/vimanad/internal/ids"
	"github.com/vimana-cloud/vimanad/internal/log"
	"github.com/vimana-cloud/vimanad/server/useragent"
)

// wasmConfigMediaType is Vimana's own config media type; no upstream spec
// package defines it.
const wasmConfigMediaType = "application/vnd.wasm.config.v0+json"

const (
	componentLayerMediaType = "application/wasm"
	metadataLayerMediaType  = "application/protobuf"
)

// Descriptor is one entry of an OCI manifest (config or layer).
type Descriptor struct {
	MediaType string        `json:"mediaType"`
	Digest    digest.Digest `json:"digest"`
	Size      int64         `json:"size"`
}

// Manifest is the subset of the OCI image manifest this daemon cares
// about.
type Manifest struct {
	SchemaVersion int          `json:"schemaVersion"`
	Config        Descriptor   `json:"config"`
	Layers        []Descriptor `json:"layers"`

	// Digest is the manifest's own content digest, computed from the raw
	// response body by FetchManifest; it is not itself part of the
	// manifest JSON.
	Digest digest.Digest `json:"-"`
}

// ComponentDescriptor returns the manifest's wasm component layer.
func (m *Manifest) ComponentDescriptor() Descriptor { return m.Layers[0] }

// MetadataDescriptor returns the manifest's service-descriptor layer.
func (m *Manifest) MetadataDescriptor() Descriptor { return m.Layers[1] }

// Validate enforces spec.md §4.3 step 2: schema version 2, a single
// recognized config descriptor, and exactly two layers of the expected
// media types in the expected order.
func (m *Manifest) Validate() error {
	if m.SchemaVersion != 2 {
		return status.Errorf(codes.InvalidArgument, "unsupported manifest schemaVersion %d", m.SchemaVersion)
	}
	switch m.Config.MediaType {
	case v1.MediaTypeImageConfig, wasmConfigMediaType:
	default:
		return status.Errorf(codes.InvalidArgument, "unsupported config media type %q", m.Config.MediaType)
	}
	if len(m.Layers) != 2 {
		return status.Errorf(codes.InvalidArgument, "expected exactly 2 layers, got %d", len(m.Layers))
	}
	if m.Layers[0].MediaType != componentLayerMediaType {
		return status.Errorf(codes.InvalidArgument, "expected layer 0 media type %q, got %q", componentLayerMediaType, m.Layers[0].MediaType)
	}
	if m.Layers[1].MediaType != metadataLayerMediaType {
		return status.Errorf(codes.InvalidArgument, "expected layer 1 media type %q, got %q", metadataLayerMediaType, m.Layers[1].MediaType)
	}
	return nil
}

// Puller fetches manifests and blobs from OCI distribution registries.
// One-try semantics: the first transport-level response is final (spec.md
// §4.5). GET redirects are followed via the default net/http policy.
type Puller struct {
	client    *http.Client
	insecure  map[string]bool
	userAgent string
}

// New returns a Puller that treats every host:port in insecureRegistries
// as reachable over plain HTTP.
func New(insecureRegistries []string) *Puller {
	insecure := make(map[string]bool, len(insecureRegistries))
	for _, r := range insecureRegistries {
		insecure[r] = true
	}
	agent, _ := useragent.Get()
	return &Puller{client: &http.Client{}, insecure: insecure, userAgent: agent}
}

func (p *Puller) scheme(registry string) string {
	if p.insecure[registry] {
		return "http"
	}
	return "https"
}

// FetchManifest retrieves and validates the manifest for img.
func (p *Puller) FetchManifest(ctx context.Context, img ids.ImageID) (*Manifest, error) {
	url := fmt.Sprintf("%s://%s/v2/%s/%s/manifests/%s",
		p.scheme(img.Registry()), img.Registry(), img.Domain, ids.EncodeServiceHex(img.Service), img.Version)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/vnd.oci.image.manifest.v1+json")
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, status.Errorf(codes.Unavailable, "fetching manifest for %s: %v", img, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, status.Errorf(codes.Unavailable, "reading manifest body for %s: %v", img, err)
	}

	var manifest Manifest
	if err := json.Unmarshal(body, &manifest); err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "parsing manifest for %s: %v", img, err)
	}
	if err := manifest.Validate(); err != nil {
		return nil, err
	}
	manifest.Digest = digest.Canonical.FromBytes(body)
	return &manifest, nil
}

// FetchBlob streams the blob identified by desc into dest, verifying its
// digest as it goes. On a digest mismatch, dest has already received
// (invalid) bytes; callers are responsible for discarding a partial
// destination.
func (p *Puller) FetchBlob(ctx context.Context, img ids.ImageID, desc Descriptor, dest io.Writer) error {
	url := fmt.Sprintf("%s://%s/v2/%s/%s/blobs/%s",
		p.scheme(img.Registry()), img.Registry(), img.Domain, ids.EncodeServiceHex(img.Service), desc.Digest)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return status.Errorf(codes.Unavailable, "fetching blob %s for %s: %v", desc.Digest, img, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}

	h := sha256.New()
	if _, err := io.Copy(dest, io.TeeReader(resp.Body, h)); err != nil {
		return status.Errorf(codes.Unavailable, "streaming blob %s for %s: %v", desc.Digest, img, err)
	}

	if got := digestOf(h); got != desc.Digest {
		return status.Errorf(codes.DataLoss, "digest mismatch for blob %s: got %s", desc.Digest, got)
	}

	log.Debugf(ctx, "Verified blob %s (%d bytes) for %s", desc.Digest, desc.Size, img)
	return nil
}

func digestOf(h hash.Hash) digest.Digest {
	return digest.NewDigestFromBytes(digest.SHA256, h.Sum(nil))
}

// checkStatus classifies a non-2xx registry response the way spec.md §7
// does: 5xx/transport failures are Unavailable, 4xx are InvalidArgument.
// errcode is used to pull a structured message out of the registry's
// standard error body when present.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	msg := describeErrors(body)

	if resp.StatusCode >= 500 {
		return status.Errorf(codes.Unavailable, "registry returned %s: %s", resp.Status, msg)
	}
	return status.Errorf(codes.InvalidArgument, "registry returned %s: %s", resp.Status, msg)
}

func describeErrors(body []byte) string {
	var errs errcode.Errors
	if err := json.Unmarshal(body, &errs); err != nil || len(errs) == 0 {
		return string(bytes.TrimSpace(body))
	}
	return errs.Error()
}
