// Package dispatch implements the CRI gRPC surface: a single Server value
// that serves both RuntimeService and ImageService over a UNIX domain
// socket, routing every call to either the in-process managed path (pod
// registry, image store, IPAM) or the downstream delegate runtime.
//
// Routing follows spec.md §4.1: RunPodSandbox/PullImage/RemoveImage/
// ImageStatus route on the request's runtime handler; every other
// operation that names an existing pod/container/image ID routes on the
// "p-"/"c-" prefix of that ID. List/aggregate operations call both paths
// and concatenate, managed results first.
package dispatch

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	grpcmiddleware "github.com/grpc-ecosystem/go-grpc-middleware"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	runtimeapi "k8s.io/cri-api/pkg/apis/runtime/v1"

	"github.com/vimana-cloud/vimanad/internal/downstream"
	"github.com/vimana-cloud/vimanad/internal/imagestore"
	"github.com/vimana-cloud/vimanad/internal/log"
	"github.com/vimana-cloud/vimanad/internal/registry"
)

// HandlerName is the runtime_handler value that selects the managed path
// for RunPodSandbox/PullImage/RemoveImage/ImageStatus (spec.md §4.1).
const HandlerName = "vimana"

// daemonVersion is reported by Version; overridden at build time via
// -ldflags, matching server/useragent's Version variable.
var daemonVersion = "unknown"

// Server implements both k8s.io/cri-api v1 services. It embeds the
// Unimplemented server types so that future CRI methods this daemon
// doesn't yet know about fail closed with Unimplemented rather than a
// compile error, matching how generated gRPC server code is meant to be
// extended.
type Server struct {
	runtimeapi.UnimplementedRuntimeServiceServer
	runtimeapi.UnimplementedImageServiceServer

	registry   *registry.Registry
	images     *imagestore.Store
	downstream downstream.Client
}

// Config bundles the constructed collaborators a Server is wired from. The
// IPAM allocator has no direct role here: internal/registry already owns
// it and drives allocation/release itself as part of the pod lifecycle.
type Config struct {
	Registry   *registry.Registry
	Images     *imagestore.Store
	Downstream downstream.Client
}

// New builds a Server from its collaborators and logs a one-line startup
// reconciliation summary: the count of pre-existing downstream pods and
// containers, purely informational (spec.md §5 Startup — this daemon
// holds no cache of those IDs, since prefix alone is sufficient to route).
func New(ctx context.Context, cfg Config) (*Server, error) {
	s := &Server{
		registry:   cfg.Registry,
		images:     cfg.Images,
		downstream: cfg.Downstream,
	}

	if cfg.Downstream != nil {
		pods, err := cfg.Downstream.ListPodSandbox(ctx, &runtimeapi.ListPodSandboxRequest{})
		if err != nil {
			return nil, fmt.Errorf("listing downstream pod sandboxes at startup: %w", err)
		}
		ctrs, err := cfg.Downstream.ListContainers(ctx, &runtimeapi.ListContainersRequest{})
		if err != nil {
			return nil, fmt.Errorf("listing downstream containers at startup: %w", err)
		}
		log.Infof(ctx, "Startup reconciliation: %d downstream pod sandboxes, %d downstream containers pre-exist",
			len(pods.GetItems()), len(ctrs.GetContainers()))
	}

	return s, nil
}

// Serve listens on a UNIX socket at path, registers both CRI services on
// one grpc.Server, and blocks until ctx is canceled or a fatal accept
// error occurs. Any stale socket file at path is removed first, matching
// how every UNIX-socket CRI daemon in the corpus recovers from an unclean
// prior shutdown.
func (s *Server) Serve(ctx context.Context, path string) error {
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("removing stale socket %q: %w", path, err)
	}

	lis, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("listening on %q: %w", path, err)
	}

	grpcServer := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcmiddleware.ChainUnaryServer(
			loggingInterceptor,
			recoveryInterceptor,
		)),
	)
	runtimeapi.RegisterRuntimeServiceServer(grpcServer, s)
	runtimeapi.RegisterImageServiceServer(grpcServer, s)

	errCh := make(chan error, 1)
	go func() { errCh <- grpcServer.Serve(lis) }()

	log.Infof(ctx, "Serving CRI on unix://%s", path)

	select {
	case <-ctx.Done():
		grpcServer.GracefulStop()
		return nil
	case err := <-errCh:
		return err
	}
}

// loggingInterceptor logs every call's method name and duration. Carried
// regardless of the metrics/observability Non-goal (spec.md §1): this is
// baseline daemon hygiene, not an application-visible feature.
func loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	log.Debugf(ctx, "%s completed in %s (err=%v)", info.FullMethod, time.Since(start), err)
	return resp, err
}

// recoveryInterceptor converts a panicking handler into a gRPC Internal
// error instead of crashing the process, matching how the teacher and the
// rest of the corpus wrap every handler with go-grpc-middleware's
// recovery interceptor.
func recoveryInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf(ctx, "panic in %s: %v", info.FullMethod, r)
			err = status.Errorf(codes.Internal, "internal error handling %s: %v", info.FullMethod, r)
		}
	}()
	return handler(ctx, req)
}

// Version is served entirely locally (spec.md §4.1): it never needs the
// downstream runtime's own version.
func (s *Server) Version(ctx context.Context, req *runtimeapi.VersionRequest) (*runtimeapi.VersionResponse, error) {
	return &runtimeapi.VersionResponse{
		Version:           "0.1.0",
		RuntimeName:       HandlerName,
		RuntimeVersion:    daemonVersion,
		RuntimeApiVersion: "v1",
	}, nil
}
