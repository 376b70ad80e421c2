// Package imagestore owns the on-disk image store: a directory tree keyed
// by domain/service/version holding a component blob, a metadata blob, and
// a JSON index record per version.
package imagestore

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"
	digest "github.com/opencontainers/go-digest"
	"golang.org/x/sync/singleflight"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vimana-cloud/vimanad/internal/ids"
	"github.com/vimana-cloud/vimanad/internal/log"
	"github.com/vimana-cloud/vimanad/internal/metrics"
	"github.com/vimana-cloud/vimanad/internal/puller"
	"github.com/vimana-cloud/vimanad/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Record is the persisted index entry for one pulled image version.
type Record struct {
	Image           string            `json:"image"`
	ManifestDigest  string            `json:"manifest_digest"`
	ConfigDigest    string            `json:"config_digest"`
	ComponentDigest string            `json:"component_digest"`
	ComponentSize   int64             `json:"component_size"`
	MetadataDigest  string            `json:"metadata_digest"`
	MetadataSize    int64             `json:"metadata_size"`
	Labels          map[string]string `json:"labels,omitempty"`
	PulledAt        time.Time         `json:"pulled_at"`
}

// Store manages the image store rooted at a configured directory.
type Store struct {
	root   string
	puller *puller.Puller
	group  singleflight.Group
}

// New returns a Store rooted at root, pulling through p.
func New(root string, p *puller.Puller) *Store {
	return &Store{root: root, puller: p}
}

func (s *Store) serviceDir(img ids.ImageID) string {
	return filepath.Join(s.root, img.Domain, img.Service)
}

func (s *Store) componentPath(img ids.ImageID) string {
	return filepath.Join(s.serviceDir(img), img.Version+".component")
}

func (s *Store) metadataPath(img ids.ImageID) string {
	return filepath.Join(s.serviceDir(img), img.Version+".metadata")
}

func (s *Store) indexPath(img ids.ImageID) string {
	return filepath.Join(s.serviceDir(img), img.Version+".json")
}

// Paths returns the on-disk component and metadata blob paths for img,
// the two files the wasm engine needs to start a container (spec.md §4.3
// layout). Callers are expected to have already confirmed the image is
// present via Status.
func (s *Store) Paths(img ids.ImageID) (componentPath, metadataPath string) {
	return s.componentPath(img), s.metadataPath(img)
}

// Pull fetches img if not already present, writing its component,
// metadata, and index record atomically; an image whose index record
// already exists is returned as is, without contacting the registry. Concurrent pulls of the same image key are
// serialized; distinct keys proceed in parallel. labels are the triggering
// pod's labels (spec.md §3), recorded alongside the pulled image.
func (s *Store) Pull(ctx context.Context, img ids.ImageID, labels map[string]string) (string, error) {
	key := img.String()
	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		return s.pull(ctx, img, labels)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Store) pull(ctx context.Context, img ids.ImageID, labels map[string]string) (string, error) {
	if _, err := s.Status(img); err == nil {
		return img.String(), nil
	}

	manifest, err := s.puller.FetchManifest(ctx, img)
	if err != nil {
		metrics.Instance().MetricImagePullsFailuresInc(img.String(), "manifest")
		return "", err
	}

	if err := os.MkdirAll(s.serviceDir(img), 0o755); err != nil {
		return "", fmt.Errorf("creating service directory for %s: %w", img, err)
	}

	componentDesc := manifest.ComponentDescriptor()
	if err := s.pullBlob(ctx, img, componentDesc, s.componentPath(img)); err != nil {
		metrics.Instance().MetricImagePullsFailuresInc(img.String(), "component")
		return "", err
	}
	metadataDesc := manifest.MetadataDescriptor()
	if err := s.pullBlob(ctx, img, metadataDesc, s.metadataPath(img)); err != nil {
		metrics.Instance().MetricImagePullsFailuresInc(img.String(), "metadata")
		return "", err
	}

	record := Record{
		Image:           img.String(),
		ManifestDigest:  manifest.Digest.String(),
		ConfigDigest:    manifest.Config.Digest.String(),
		ComponentDigest: componentDesc.Digest.String(),
		ComponentSize:   componentDesc.Size,
		MetadataDigest:  metadataDesc.Digest.String(),
		MetadataSize:    metadataDesc.Size,
		Labels:          labels,
		PulledAt:        time.Now(),
	}
	if err := s.writeIndex(img, record); err != nil {
		return "", err
	}

	metrics.Instance().MetricImagePullsSuccessesInc(img.String())
	metrics.Instance().MetricImagePullsBytesAdd(img.String(), float64(componentDesc.Size+metadataDesc.Size))
	log.Infof(ctx, "Pulled image %s", img)
	return img.String(), nil
}

func (s *Store) pullBlob(ctx context.Context, img ids.ImageID, desc puller.Descriptor, path string) error {
	if blobDigestMatches(path, desc.Digest) {
		return nil
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating %s: %w", tmp, err)
	}
	defer os.Remove(tmp)

	if err := s.puller.FetchBlob(ctx, img, desc, f); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", tmp, path, err)
	}
	return nil
}

// blobDigestMatches reports whether the file at path already holds exactly
// the bytes want digests (spec.md §4.3 step 3: "blob already on disk with
// a matching digest"). It hashes the file directly rather than trusting
// the index record, so a blob that landed on disk without its index ever
// being written (a pull that failed partway through) is still recognized
// as present instead of being re-fetched.
func blobDigestMatches(path string, want digest.Digest) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return false
	}
	return digest.NewDigestFromBytes(digest.SHA256, h.Sum(nil)) == want
}

func (s *Store) writeIndex(img ids.ImageID, record Record) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding index record for %s: %w", img, err)
	}

	path := s.indexPath(img)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", tmp, path, err)
	}
	return nil
}

// List walks the store and returns every pulled image's index record, in
// no particular order. Used by ListImages to report Vimana-managed images
// alongside the downstream runtime's own list (spec.md §4.1).
func (s *Store) List() ([]*Record, error) {
	var records []*Record
	err := filepath.WalkDir(s.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		var record Record
		if err := json.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("decoding %s: %w", path, err)
		}
		records = append(records, &record)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Status returns the stored record for img, or an error if absent.
func (s *Store) Status(img ids.ImageID) (*Record, error) {
	data, err := os.ReadFile(s.indexPath(img))
	if err != nil {
		return nil, status.Errorf(codes.NotFound, "image %s not found", img)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("decoding index record for %s: %w", img, err)
	}
	return &record, nil
}

// Remove deletes the three files for img's version, pruning now-empty
// service and domain directories. A no-op on a missing image.
func (s *Store) Remove(img ids.ImageID) error {
	for _, path := range []string{s.componentPath(img), s.metadataPath(img), s.indexPath(img)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", path, err)
		}
	}

	serviceDir := s.serviceDir(img)
	if removeIfEmpty(serviceDir) {
		removeIfEmpty(filepath.Dir(serviceDir))
	}
	return nil
}

func removeIfEmpty(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) > 0 {
		return false
	}
	return os.Remove(dir) == nil
}

// FsInfo reports the store's on-disk footprint: total bytes and inodes
// under the store root.
func (s *Store) FsInfo() (bytesUsed, inodesUsed uint64, err error) {
	return utils.GetDiskUsageStats(s.root)
}
