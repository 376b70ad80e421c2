package dispatch

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vimana-cloud/vimanad/internal/downstream"
	"github.com/vimana-cloud/vimanad/internal/registry"
)

// toStatus translates a registry sentinel error into the gRPC status code
// table of spec.md §7. An error that already carries a gRPC status (e.g.
// the IPAM allocator's ResourceExhausted, the puller's
// Unavailable/DataLoss/InvalidArgument, or a malformed-ID InvalidArgument
// raised at the call site) is returned unchanged — the dispatcher never
// re-wraps a status its collaborators already chose.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, registry.ErrPodNotFound),
		errors.Is(err, registry.ErrContainerNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, registry.ErrPodNotReady),
		errors.Is(err, registry.ErrDuplicateContainer),
		errors.Is(err, registry.ErrContainerNotCreated),
		errors.Is(err, registry.ErrContainerNotStoppable):
		return status.Error(codes.FailedPrecondition, err.Error())
	}

	return status.Error(codes.InvalidArgument, err.Error())
}

// requireDownstream returns the configured downstream client, or an
// Unavailable status if this daemon was started with no downstream
// runtime (pkg/config's Downstream is optional). Every passthrough call
// site resolves its client through this instead of touching s.downstream
// directly, so an unconfigured downstream fails closed with a clean
// status instead of a nil-interface panic.
func (s *Server) requireDownstream() (downstream.Client, error) {
	if s.downstream == nil {
		return nil, status.Error(codes.Unavailable, "no downstream runtime configured")
	}
	return s.downstream, nil
}

// imageNotFound reports whether err is imagestore's "not found" status,
// the signal ImageStatus uses to return an absent result rather than an
// error (spec.md §4.3 ImageStatus, testable scenario S5).
func imageNotFound(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.NotFound
}
