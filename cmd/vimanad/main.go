// Command vimanad is the Vimana node daemon: it serves the CRI gRPC
// surface on a UNIX socket, executing Wasm components directly and
// delegating every other request to a downstream OCI runtime.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/vimana-cloud/vimanad/internal/dispatch"
	"github.com/vimana-cloud/vimanad/internal/downstream"
	"github.com/vimana-cloud/vimanad/internal/imagestore"
	"github.com/vimana-cloud/vimanad/internal/ipam"
	"github.com/vimana-cloud/vimanad/internal/log"
	"github.com/vimana-cloud/vimanad/internal/puller"
	"github.com/vimana-cloud/vimanad/internal/registry"
	"github.com/vimana-cloud/vimanad/internal/wasmengine"
	"github.com/vimana-cloud/vimanad/pkg/config"
	"github.com/vimana-cloud/vimanad/server/useragent"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "unknown"

func main() {
	app := &cli.App{
		Name:    "vimanad",
		Usage:   "Vimana node daemon: a CRI runtime that executes Wasm components",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "path to a TOML file of flag defaults"},
			&cli.StringFlag{Name: "incoming", Usage: "UNIX socket path this daemon listens on"},
			&cli.StringFlag{Name: "downstream", Usage: "UNIX socket path of the downstream CRI runtime"},
			&cli.StringFlag{Name: "image-store", Usage: "root directory of the on-disk image store"},
			&cli.StringFlag{Name: "insecure-registries", Usage: "comma-separated host:port list reachable over plain HTTP"},
			&cli.StringFlag{Name: "ipam-plugin", Usage: "path to the CNI IPAM plugin executable"},
			&cli.StringFlag{Name: "network-interface", Usage: "network interface name exposed to pods"},
			&cli.StringFlag{Name: "pod-ips", Usage: "CIDR address pool for pod IPs"},
			&cli.StringFlag{Name: "wasm-engine", Usage: "path to the Wasm component engine binary"},
			&cli.StringFlag{Name: "log-level", Usage: "one of debug|info|warn|error"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	useragent.Version = version

	cfg, err := config.DefaultConfig()
	if err != nil {
		return fmt.Errorf("building default config: %w", err)
	}
	if path := c.String("config"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return err
		}
	}
	applyFlagOverrides(c, cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}

	log.InitFormat(false)
	if err := log.SetLevel(cfg.LogLevel); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	p := puller.New(cfg.InsecureRegistries)
	store := imagestore.New(cfg.ImageStore, p)
	allocator := ipam.New(cfg.IPAMPlugin, cfg.PodIPs, cfg.NetworkInterface)
	engine := wasmengine.New(cfg.WasmEngine)
	reg := registry.New(allocator, engine)

	var downstreamClient downstream.Client
	if cfg.Downstream != "" {
		downstreamClient, err = downstream.Dial(ctx, cfg.Downstream)
		if err != nil {
			return err
		}
	}

	server, err := dispatch.New(ctx, dispatch.Config{
		Registry:   reg,
		Images:     store,
		Downstream: downstreamClient,
	})
	if err != nil {
		return err
	}

	return server.Serve(ctx, cfg.Incoming)
}

// applyFlagOverrides copies every explicitly-set CLI flag onto cfg, so
// flags always win over a loaded TOML file and the file always wins over
// the built-in default (spec.md §6, SPEC_FULL.md §1).
func applyFlagOverrides(c *cli.Context, cfg *config.Config) {
	if c.IsSet("incoming") {
		cfg.Incoming = c.String("incoming")
	}
	if c.IsSet("downstream") {
		cfg.Downstream = c.String("downstream")
	}
	if c.IsSet("image-store") {
		cfg.ImageStore = c.String("image-store")
	}
	if c.IsSet("insecure-registries") {
		cfg.InsecureRegistries = splitNonEmpty(c.String("insecure-registries"), ",")
	}
	if c.IsSet("ipam-plugin") {
		cfg.IPAMPlugin = c.String("ipam-plugin")
	}
	if c.IsSet("network-interface") {
		cfg.NetworkInterface = c.String("network-interface")
	}
	if c.IsSet("pod-ips") {
		cfg.PodIPs = c.String("pod-ips")
	}
	if c.IsSet("wasm-engine") {
		cfg.WasmEngine = c.String("wasm-engine")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
}

func splitNonEmpty(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, sep) {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
