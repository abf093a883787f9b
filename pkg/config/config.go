// Package config loads the agent's JSON configuration file: a document at
// a path named by FC_AGENT_CONFIG (default
// /etc/cloudstack/firecracker-agent.json), holding bind_host/bind_port plus
// a defaults.{host,storage,net} block and an optional console/ui block.
// Filesystem paths and binaries carry no hardcoded defaults: a missing
// required key is fatal, mirroring load_agent_config's "no hardcoded
// defaults" contract.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

const EnvConfigPath = "FC_AGENT_CONFIG"
const DefaultConfigPath = "/etc/cloudstack/firecracker-agent.json"

// HostDefaults names the host-side directories and binaries the agent
// needs. Validate requires firecracker_bin, conf_dir, run_dir, log_dir and
// payload_dir; image_dir and kernel_dir are not checked.
type HostDefaults struct {
	FirecrackerBin string `json:"firecracker_bin"`
	ConfDir        string `json:"conf_dir"`
	RunDir         string `json:"run_dir"`
	LogDir         string `json:"log_dir"`
	PayloadDir     string `json:"payload_dir"`
	ImageDir       string `json:"image_dir"`
	KernelDir      string `json:"kernel_dir"`
}

// StorageDefaults configures the default storage backend selection.
type StorageDefaults struct {
	Driver      string `json:"driver"`
	VolumeDir   string `json:"volume_dir"`
	VolumeGroup string `json:"volume_group"`
	Thinpool    string `json:"thinpool"`
}

// NetDefaults configures the default networking backend selection.
type NetDefaults struct {
	Driver     string `json:"driver"`
	HostBridge string `json:"host_bridge"`
	Uplink     string `json:"uplink"`
}

// Defaults bundles the three agent-default sub-objects.
type Defaults struct {
	Host    HostDefaults    `json:"host"`
	Storage StorageDefaults `json:"storage"`
	Net     NetDefaults     `json:"net"`
}

// ConsoleConfig configures the optional console bridge's port range and bind
// address.
type ConsoleConfig struct {
	Enabled    bool   `json:"enabled"`
	BindHost   string `json:"bind_host"`
	PortMin    int    `json:"port_min"`
	PortMax    int    `json:"port_max"`
	DisplayGeo string `json:"display_geometry"`
}

// UIConfig configures the optional management UI session behavior.
type UIConfig struct {
	Enabled               bool `json:"enabled"`
	SessionTimeoutSeconds int  `json:"session_timeout_seconds"`
}

// Config is the parsed agent configuration file.
type Config struct {
	BindHost string        `json:"bind_host"`
	BindPort int           `json:"bind_port"`
	Defaults Defaults      `json:"defaults"`
	Console  ConsoleConfig `json:"console"`
	UI       UIConfig      `json:"ui"`
	LogLevel string        `json:"log_level"`
}

// Load reads and parses the agent config file named by FC_AGENT_CONFIG (or
// DefaultConfigPath), applying defaults for bind_host/bind_port/ui and then
// validating required host paths/binaries. A parse error or a missing
// required key is fatal: the server must not start.
func Load() (*Config, error) {
	path := os.Getenv(EnvConfigPath)
	if path == "" {
		path = DefaultConfigPath
	}
	return LoadFromPath(path)
}

// LoadFromPath is Load with an explicit path, used directly by tests.
func LoadFromPath(path string) (*Config, error) {
	cfg := &Config{
		BindHost: "0.0.0.0",
		BindPort: 8080,
		UI:       UIConfig{Enabled: true, SessionTimeoutSeconds: 1800},
		Console:  ConsoleConfig{PortMin: 5900, PortMax: 5999},
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file %s does not exist: required host paths cannot default", path)
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid JSON in %s=%q: %w", EnvConfigPath, path, err)
	}

	if cfg.UI.SessionTimeoutSeconds < 0 {
		cfg.UI.SessionTimeoutSeconds = 0
	}
	if cfg.Console.PortMin == 0 {
		cfg.Console.PortMin = 5900
	}
	if cfg.Console.PortMax == 0 {
		cfg.Console.PortMax = 5999
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate enforces the required host defaults. volume_dir is only
// required when the default storage driver is "file"; LVM-backed drivers
// require volume_group/thinpool instead, checked by the storage factory at
// use time rather than here.
func (c *Config) Validate() error {
	if c.BindPort <= 0 || c.BindPort > 65535 {
		return fmt.Errorf("invalid bind_port: %d", c.BindPort)
	}
	h := c.Defaults.Host
	for name, val := range map[string]string{
		"defaults.host.firecracker_bin": h.FirecrackerBin,
		"defaults.host.conf_dir":        h.ConfDir,
		"defaults.host.run_dir":         h.RunDir,
		"defaults.host.log_dir":         h.LogDir,
		"defaults.host.payload_dir":     h.PayloadDir,
	} {
		if val == "" {
			return fmt.Errorf("%s is required", name)
		}
	}
	driver := c.Defaults.Storage.Driver
	if driver == "" {
		driver = "file"
	}
	if driver == "file" && c.Defaults.Storage.VolumeDir == "" {
		return fmt.Errorf("defaults.storage.volume_dir is required when using the file storage driver")
	}
	return nil
}
