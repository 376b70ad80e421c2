// Package downstream talks to the upstream-delegate CRI runtime that
// unmanaged pod/container requests are forwarded to.
package downstream

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	runtimeapi "k8s.io/cri-api/pkg/apis/runtime/v1"

	"github.com/vimana-cloud/vimanad/internal/log"
)

const dialTimeout = 3 * time.Second

// Client is the full surface the dispatcher forwards passthrough requests
// across: both CRI services, served by a single downstream socket.
type Client interface {
	runtimeapi.RuntimeServiceClient
	runtimeapi.ImageServiceClient
}

// grpcClient is the production Client, dialed over a UNIX socket. Both
// embedded interfaces are satisfied by the generated clients constructed
// from the same connection, so method calls need no hand-written
// forwarding.
type grpcClient struct {
	runtimeapi.RuntimeServiceClient
	runtimeapi.ImageServiceClient

	conn *grpc.ClientConn
}

// Dial connects to a CRI-compliant daemon listening on a UNIX socket at
// address, verifying connectivity with a Version call before returning.
func Dial(ctx context.Context, address string) (Client, error) {
	conn, err := grpc.NewClient(
		"unix:"+address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(unixDialer),
		grpc.WithDefaultCallOptions(grpc.MaxCallRecvMsgSize(16*1024*1024)),
	)
	if err != nil {
		return nil, fmt.Errorf("dialing downstream runtime at %q: %w", address, err)
	}

	c := &grpcClient{
		RuntimeServiceClient: runtimeapi.NewRuntimeServiceClient(conn),
		ImageServiceClient:   runtimeapi.NewImageServiceClient(conn),
		conn:                 conn,
	}

	versionCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if _, err := c.Version(versionCtx, &runtimeapi.VersionRequest{}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("downstream runtime at %q did not respond to Version: %w", address, err)
	}

	log.Infof(ctx, "Connected to downstream runtime at %s", address)
	return c, nil
}

// Close releases the underlying connection.
func (c *grpcClient) Close() error {
	return c.conn.Close()
}

func unixDialer(ctx context.Context, addr string) (net.Conn, error) {
	addr = strings.TrimPrefix(addr, "unix:")
	var d net.Dialer
	return d.DialContext(ctx, "unix", addr)
}
