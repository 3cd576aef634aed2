package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MonitorConfig represents the tuning parameters for the live presence
// monitor. All fields are pointers so a partial JSON file only overrides
// what it names; the Get* methods supply defaults for the rest.
type MonitorConfig struct {
	// OBU link params
	Host          *string `json:"host,omitempty"`
	Port          *int    `json:"port,omitempty"`
	User          *string `json:"user,omitempty"`
	Password      *string `json:"password,omitempty"`
	RemoteRxPath  *string `json:"remote_rx_path,omitempty"`
	KinematicsCmd *string `json:"kinematics_cmd,omitempty"`

	// Detector params
	PacketSizeBytes *int    `json:"packet_size_bytes,omitempty"`
	PollInterval    *string `json:"poll_interval,omitempty"` // duration string like "1s"
	EntryTicks      *int    `json:"entry_ticks,omitempty"`
	ExitTicks       *int    `json:"exit_ticks,omitempty"`
	WindowTicks     *int    `json:"window_ticks,omitempty"`

	// Output params
	OutDir *string `json:"out_dir,omitempty"`
}

// Helper functions to create pointers
func ptrString(v string) *string { return &v }
func ptrInt(v int) *int          { return &v }

// EmptyMonitorConfig returns a MonitorConfig with all fields set to nil.
func EmptyMonitorConfig() *MonitorConfig {
	return &MonitorConfig{}
}

// LoadMonitorConfig loads a MonitorConfig from a JSON file. Fields omitted
// from the file retain their defaults, so partial configs are safe.
func LoadMonitorConfig(path string) (*MonitorConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyMonitorConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *MonitorConfig) Validate() error {
	if c.Port != nil {
		if *c.Port < 1 || *c.Port > 65535 {
			return fmt.Errorf("port must be between 1 and 65535, got %d", *c.Port)
		}
	}

	if c.PollInterval != nil && *c.PollInterval != "" {
		d, err := time.ParseDuration(*c.PollInterval)
		if err != nil {
			return fmt.Errorf("invalid poll_interval '%s': %w", *c.PollInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("poll_interval must be positive, got %s", d)
		}
	}

	if c.PacketSizeBytes != nil {
		if *c.PacketSizeBytes <= 0 {
			return fmt.Errorf("packet_size_bytes must be positive, got %d", *c.PacketSizeBytes)
		}
	}

	if c.EntryTicks != nil && *c.EntryTicks < 1 {
		return fmt.Errorf("entry_ticks must be at least 1, got %d", *c.EntryTicks)
	}
	if c.ExitTicks != nil && *c.ExitTicks < 1 {
		return fmt.Errorf("exit_ticks must be at least 1, got %d", *c.ExitTicks)
	}
	if c.WindowTicks != nil && *c.WindowTicks < 1 {
		return fmt.Errorf("window_ticks must be at least 1, got %d", *c.WindowTicks)
	}

	return nil
}

// GetHost returns the host value or the default.
func (c *MonitorConfig) GetHost() string {
	if c.Host == nil {
		return "192.168.1.100"
	}
	return *c.Host
}

// GetPort returns the port value or the default.
func (c *MonitorConfig) GetPort() int {
	if c.Port == nil {
		return 22
	}
	return *c.Port
}

// GetUser returns the user value or the default.
func (c *MonitorConfig) GetUser() string {
	if c.User == nil {
		return "root"
	}
	return *c.User
}

// GetPassword returns the password value or the default.
func (c *MonitorConfig) GetPassword() string {
	if c.Password == nil {
		return ""
	}
	return *c.Password
}

// GetRemoteRxPath returns the remote_rx_path value or the default.
func (c *MonitorConfig) GetRemoteRxPath() string {
	if c.RemoteRxPath == nil {
		return "/mnt/rw/example1609/rx.pcap"
	}
	return *c.RemoteRxPath
}

// GetKinematicsCmd returns the kinematics_cmd value or the default.
func (c *MonitorConfig) GetKinematicsCmd() string {
	if c.KinematicsCmd == nil {
		return "cd /mnt/rw/example1609 && kinematics-sample-client -a -n1"
	}
	return *c.KinematicsCmd
}

// GetPacketSizeBytes returns the packet_size_bytes value or the default.
func (c *MonitorConfig) GetPacketSizeBytes() int {
	if c.PacketSizeBytes == nil {
		return 98
	}
	return *c.PacketSizeBytes
}

// GetPollInterval parses and returns the PollInterval as a time.Duration.
func (c *MonitorConfig) GetPollInterval() time.Duration {
	if c.PollInterval == nil || *c.PollInterval == "" {
		return time.Second // default
	}
	d, err := time.ParseDuration(*c.PollInterval)
	if err != nil {
		return time.Second // default on parse error
	}
	return d
}

// GetEntryTicks returns the entry_ticks value or the default.
func (c *MonitorConfig) GetEntryTicks() int {
	if c.EntryTicks == nil {
		return 3
	}
	return *c.EntryTicks
}

// GetExitTicks returns the exit_ticks value or the default.
func (c *MonitorConfig) GetExitTicks() int {
	if c.ExitTicks == nil {
		return 4
	}
	return *c.ExitTicks
}

// GetWindowTicks returns the window_ticks value or the default.
func (c *MonitorConfig) GetWindowTicks() int {
	if c.WindowTicks == nil {
		return 4
	}
	return *c.WindowTicks
}

// GetOutDir returns the out_dir value or the default.
func (c *MonitorConfig) GetOutDir() string {
	if c.OutDir == nil {
		return "Raw"
	}
	return *c.OutDir
}
