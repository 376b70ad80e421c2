// Package config defines the daemon's configuration: the set of values
// accepted both as CLI flags and as TOML file defaults, with CLI flags
// always taking precedence over the file, mirroring the teacher's
// file-plus-override layering.
package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// Config holds every tunable of the daemon.
type Config struct {
	// Incoming is the UNIX socket path this daemon listens on.
	Incoming string `toml:"incoming"`
	// Downstream is the UNIX socket path of the upstream-delegate CRI
	// runtime that unmanaged requests are forwarded to.
	Downstream string `toml:"downstream"`
	// ImageStore is the root directory of the on-disk image store.
	ImageStore string `toml:"image_store"`
	// InsecureRegistries lists "host:port" registries that may be reached
	// over plain HTTP instead of HTTPS.
	InsecureRegistries []string `toml:"insecure_registries"`
	// IPAMPlugin is the path to the CNI IPAM executable invoked for
	// address allocation.
	IPAMPlugin string `toml:"ipam_plugin"`
	// NetworkInterface is the interface name exposed inside pods.
	NetworkInterface string `toml:"network_interface"`
	// PodIPs is the CIDR address pool handed to the IPAM plugin.
	PodIPs string `toml:"pod_ips"`
	// WasmEngine is the path to the component engine binary this daemon
	// execs to start and stop managed containers.
	WasmEngine string `toml:"wasm_engine"`
	// LogLevel is one of debug|info|warn|error.
	LogLevel string `toml:"log_level"`
}

// DefaultConfig returns a Config with every field at its documented
// default, ready to be overridden by a TOML file and then by CLI flags.
func DefaultConfig() (*Config, error) {
	return &Config{
		Incoming:         "/run/vimanad/vimanad.sock",
		Downstream:       "",
		ImageStore:       "/var/lib/vimanad/images",
		IPAMPlugin:       "",
		NetworkInterface: "eth0",
		WasmEngine:       "wasmengine",
		LogLevel:         "info",
	}, nil
}

// LoadFile merges TOML-file values from path into c. Only fields present
// in the file are overwritten; this is meant to run before CLI flags are
// applied so flags always win.
func (c *Config) LoadFile(path string) error {
	if _, err := toml.DecodeFile(path, c); err != nil {
		return fmt.Errorf("loading config file %q: %w", path, err)
	}
	return nil
}

// Validate checks that the configuration is internally consistent enough
// to start the daemon.
func (c *Config) Validate() error {
	if c.Incoming == "" {
		return fmt.Errorf("incoming socket path must not be empty")
	}
	if c.ImageStore == "" {
		return fmt.Errorf("image store path must not be empty")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug|info|warn|error", c.LogLevel)
	}
	return nil
}
