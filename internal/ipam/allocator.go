// Package ipam allocates and releases pod IP addresses by invoking a
// CNI-style IPAM plugin binary as a child process.
package ipam

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/containernetworking/cni/pkg/invoke"
	current "github.com/containernetworking/cni/pkg/types/100"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/vimana-cloud/vimanad/internal/log"
)

const (
	cniVersion  = "1.0.0"
	networkName = "vimana"
	dataDir     = "/run/vimanad/ipam"
)

type netConf struct {
	CNIVersion string   `json:"cniVersion"`
	Name       string   `json:"name"`
	IPAM       ipamConf `json:"ipam"`
}

type ipamConf struct {
	Type    string         `json:"type"`
	Ranges  [][]rangeEntry `json:"ranges"`
	DataDir string         `json:"dataDir"`
}

type rangeEntry struct {
	Subnet string `json:"subnet"`
}

// Allocator invokes a CNI IPAM plugin binary to assign and release pod IP
// addresses. Exactly one invocation runs at a time so concurrent
// RunPodSandbox calls never race against the plugin's own on-disk
// database.
type Allocator struct {
	mu         sync.Mutex
	pluginPath string
	subnet     string
	ifName     string
	exec       invoke.Exec
}

// New returns an Allocator that invokes the IPAM plugin at pluginPath,
// allocating from subnet (a CIDR) and naming the pod-visible interface
// ifName.
func New(pluginPath, subnet, ifName string) *Allocator {
	return &Allocator{
		pluginPath: pluginPath,
		subnet:     subnet,
		ifName:     ifName,
		exec:       &invoke.RawExec{Stderr: os.Stderr},
	}
}

func (a *Allocator) netConfJSON() []byte {
	conf := netConf{
		CNIVersion: cniVersion,
		Name:       networkName,
		IPAM: ipamConf{
			Type:    networkName,
			Ranges:  [][]rangeEntry{{{Subnet: a.subnet}}},
			DataDir: dataDir,
		},
	}
	b, err := json.Marshal(conf)
	if err != nil {
		// conf has no cyclic or unmarshalable fields; this cannot fail.
		panic(err)
	}
	return b
}

// Allocate invokes the plugin with CNI_COMMAND=ADD for podID and returns
// the assigned address.
func (a *Allocator) Allocate(ctx context.Context, podID string) (net.IP, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	args := &invoke.Args{Command: "ADD", ContainerID: podID, IfName: a.ifName}
	result, err := invoke.ExecPluginWithResult(ctx, a.pluginPath, a.netConfJSON(), args, a.exec)
	if err != nil {
		return nil, fmt.Errorf("invoking IPAM plugin for %s: %w", podID, err)
	}

	res, err := current.NewResultFromResult(result)
	if err != nil {
		return nil, fmt.Errorf("decoding IPAM result for %s: %w", podID, err)
	}
	if len(res.IPs) == 0 {
		return nil, status.Error(codes.ResourceExhausted, "IPAM plugin returned no address")
	}
	return res.IPs[0].Address.IP, nil
}

// Release invokes the plugin with CNI_COMMAND=DEL for podID. Errors are
// logged and swallowed: DEL is best-effort, and a missing record on
// release is not the caller's problem.
func (a *Allocator) Release(ctx context.Context, podID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	args := &invoke.Args{Command: "DEL", ContainerID: podID, IfName: a.ifName}
	if _, err := invoke.ExecPluginWithResult(ctx, a.pluginPath, a.netConfJSON(), args, a.exec); err != nil {
		log.Warnf(ctx, "IPAM release for %s returned an error (ignored): %v", podID, err)
	}
}
