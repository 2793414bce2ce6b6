package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"mistveil-core/internal/corelog"
)

// Config is the daemon's on-disk configuration (§1 Non-goals: "on-disk
// configuration file format" is out of scope for the engine itself, but a
// concrete daemon binary still needs one to exist).
type Config struct {
	DataDir string `yaml:"data_dir"`

	VpnApiURL     string `yaml:"vpn_api_url"`
	GatewayDirURL string `yaml:"gateway_dir_url"`

	// DNSModule mirrors NYM_DNS_MODULE (§4.3): "systemd" is the only
	// backend this Linux-only tree implements; any other value disables
	// the DNS monitor entirely and leaves system DNS untouched.
	DNSModule string `yaml:"dns_module"`

	// FilteringResolverAddr, if set, starts the loopback filtering
	// resolver (internal/platform/dns) bound to this address, with no
	// upstreams and no allow list. The DNS backend is not pointed at it
	// and keeps installing the tunnel's own DNS servers.
	FilteringResolverAddr string `yaml:"filtering_resolver_addr,omitempty"`

	// AllowLAN seeds TunnelSettings.AllowLAN before the first Connect; a
	// later SetTunnelSettings command overrides it.
	AllowLAN bool `yaml:"allow_lan"`

	Logging corelog.Config `yaml:"logging"`
}

// DefaultConfig returns sane development defaults; a real deployment always
// supplies its own file.
func DefaultConfig() Config {
	return Config{
		DataDir:       "/var/lib/mistveild",
		VpnApiURL:     "https://nymvpn.com/api/v1",
		GatewayDirURL: "https://nymvpn.com/api/v1/directory",
		DNSModule:     "systemd",
		AllowLAN:      false,
		Logging:       corelog.Config{Level: "info"},
	}
}

// LoadConfig reads and parses a YAML config file at path, falling back to
// DefaultConfig for any field the file leaves unset.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
