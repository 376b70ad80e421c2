package dispatch

import (
	"context"
	"time"

	runtimeapi "k8s.io/cri-api/pkg/apis/runtime/v1"

	"github.com/vimana-cloud/vimanad/internal/ids"
	"github.com/vimana-cloud/vimanad/internal/metrics"
)

// PullImage routes on the image spec's runtime handler (spec.md §4.1).
func (s *Server) PullImage(ctx context.Context, req *runtimeapi.PullImageRequest) (*runtimeapi.PullImageResponse, error) {
	if req.GetImage().GetRuntimeHandler() != HandlerName {
		metrics.Instance().MetricDispatchRequestInc("PullImage", "downstream")
		down, err := s.requireDownstream()
		if err != nil {
			return nil, err
		}
		return down.PullImage(ctx, req)
	}
	metrics.Instance().MetricDispatchRequestInc("PullImage", "managed")

	img, err := ids.ParseImageID(req.GetImage().GetImage())
	if err != nil {
		return nil, toStatus(err)
	}

	ref, err := s.images.Pull(ctx, img, req.GetSandboxConfig().GetLabels())
	if err != nil {
		return nil, toStatus(err)
	}
	return &runtimeapi.PullImageResponse{ImageRef: ref}, nil
}

// RemoveImage routes on the image spec's runtime handler (spec.md §4.1).
func (s *Server) RemoveImage(ctx context.Context, req *runtimeapi.RemoveImageRequest) (*runtimeapi.RemoveImageResponse, error) {
	if req.GetImage().GetRuntimeHandler() != HandlerName {
		metrics.Instance().MetricDispatchRequestInc("RemoveImage", "downstream")
		down, err := s.requireDownstream()
		if err != nil {
			return nil, err
		}
		return down.RemoveImage(ctx, req)
	}
	metrics.Instance().MetricDispatchRequestInc("RemoveImage", "managed")

	img, err := ids.ParseImageID(req.GetImage().GetImage())
	if err != nil {
		return nil, toStatus(err)
	}
	if err := s.images.Remove(img); err != nil {
		return nil, toStatus(err)
	}
	return &runtimeapi.RemoveImageResponse{}, nil
}

// ImageStatus routes on the image spec's runtime handler (spec.md §4.1).
// An image that was never pulled is reported as an absent result (no
// Image field set), not an error (testable scenario S5).
func (s *Server) ImageStatus(ctx context.Context, req *runtimeapi.ImageStatusRequest) (*runtimeapi.ImageStatusResponse, error) {
	if req.GetImage().GetRuntimeHandler() != HandlerName {
		metrics.Instance().MetricDispatchRequestInc("ImageStatus", "downstream")
		down, err := s.requireDownstream()
		if err != nil {
			return nil, err
		}
		return down.ImageStatus(ctx, req)
	}
	metrics.Instance().MetricDispatchRequestInc("ImageStatus", "managed")

	img, err := ids.ParseImageID(req.GetImage().GetImage())
	if err != nil {
		return nil, toStatus(err)
	}

	record, err := s.images.Status(img)
	if err != nil {
		if imageNotFound(err) {
			return &runtimeapi.ImageStatusResponse{}, nil
		}
		return nil, err
	}

	return &runtimeapi.ImageStatusResponse{
		Image: &runtimeapi.Image{
			Id:          record.Image,
			RepoTags:    []string{record.Image},
			RepoDigests: []string{record.ComponentDigest},
			Size_:       uint64(record.ComponentSize + record.MetadataSize),
			Spec:        &runtimeapi.ImageSpec{Image: record.Image, RuntimeHandler: HandlerName},
		},
	}, nil
}

// ListImages calls both the managed image store and the downstream
// runtime and concatenates results, managed first (spec.md §4.1).
func (s *Server) ListImages(ctx context.Context, req *runtimeapi.ListImagesRequest) (*runtimeapi.ListImagesResponse, error) {
	records, err := s.images.List()
	if err != nil {
		return nil, err
	}

	images := make([]*runtimeapi.Image, 0, len(records))
	for _, record := range records {
		images = append(images, &runtimeapi.Image{
			Id:          record.Image,
			RepoTags:    []string{record.Image},
			RepoDigests: []string{record.ComponentDigest},
			Size_:       uint64(record.ComponentSize + record.MetadataSize),
			Spec:        &runtimeapi.ImageSpec{Image: record.Image, RuntimeHandler: HandlerName},
		})
	}

	if s.downstream != nil {
		resp, err := s.downstream.ListImages(ctx, req)
		if err != nil {
			return nil, err
		}
		images = append(images, resp.GetImages()...)
	}

	return &runtimeapi.ListImagesResponse{Images: images}, nil
}

// ImageFsInfo computes the managed store's footprint on demand (spec.md
// §4.3) and concatenates it with the downstream runtime's own report,
// Vimana's filesystem listed first (spec.md §4.1).
func (s *Server) ImageFsInfo(ctx context.Context, req *runtimeapi.ImageFsInfoRequest) (*runtimeapi.ImageFsInfoResponse, error) {
	bytesUsed, inodesUsed, err := s.images.FsInfo()
	if err != nil {
		return nil, err
	}

	vimanaFs := &runtimeapi.FilesystemUsage{
		Timestamp:  time.Now().UnixNano(),
		FsId:       &runtimeapi.FilesystemIdentifier{Mountpoint: HandlerName},
		UsedBytes:  &runtimeapi.UInt64Value{Value: bytesUsed},
		InodesUsed: &runtimeapi.UInt64Value{Value: inodesUsed},
	}
	filesystems := []*runtimeapi.FilesystemUsage{vimanaFs}

	if s.downstream != nil {
		resp, err := s.downstream.ImageFsInfo(ctx, req)
		if err != nil {
			return nil, err
		}
		filesystems = append(filesystems, resp.GetImageFilesystems()...)
	}

	return &runtimeapi.ImageFsInfoResponse{ImageFilesystems: filesystems}, nil
}
