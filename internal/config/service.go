// Package config loads the optional JSON service configuration. Fields are
// pointers so a partial file only overrides what it names; Get* methods
// supply defaults for everything else. Command-line flags still win over the
// file, which wins over defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Defaults applied when neither file nor flags provide a value.
const (
	DefaultUDPPort          = 2368
	DefaultHTTPListen       = ":8081"
	DefaultRcvBuf           = 4 << 20
	DefaultRotationCapacity = 40000
	DefaultLogInterval      = "1m"
	DefaultForwardAddress   = "localhost"
	DefaultForwardPort      = 2368
)

// ServiceConfig is the root JSON configuration for the service.
type ServiceConfig struct {
	// Ingest
	UDPAddress       *string `json:"udp_address,omitempty"` // bind address, empty = all interfaces
	UDPPort          *int    `json:"udp_port,omitempty"`
	RcvBuf           *int    `json:"rcvbuf,omitempty"`
	RotationCapacity *int    `json:"rotation_capacity,omitempty"`

	// HTTP monitor
	HTTPListen *string `json:"http_listen,omitempty"`

	// Diagnostics
	LogInterval *string `json:"log_interval,omitempty"` // duration string like "30s"

	// Packet forwarding
	ForwardEnabled *bool   `json:"forward_enabled,omitempty"`
	ForwardAddress *string `json:"forward_address,omitempty"`
	ForwardPort    *int    `json:"forward_port,omitempty"`

	// Raw packet capture
	RecordEnabled *bool   `json:"record_enabled,omitempty"`
	RecordDir     *string `json:"record_dir,omitempty"`
}

// LoadServiceConfig loads a ServiceConfig from a JSON file. Omitted fields
// stay nil, so partial configs are safe.
func LoadServiceConfig(path string) (*ServiceConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 << 20
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &ServiceConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that provided values are usable.
func (c *ServiceConfig) Validate() error {
	if c.UDPPort != nil && (*c.UDPPort < 1 || *c.UDPPort > 65535) {
		return fmt.Errorf("udp_port must be in [1, 65535], got %d", *c.UDPPort)
	}
	if c.ForwardPort != nil && (*c.ForwardPort < 1 || *c.ForwardPort > 65535) {
		return fmt.Errorf("forward_port must be in [1, 65535], got %d", *c.ForwardPort)
	}
	if c.RotationCapacity != nil && *c.RotationCapacity < 1 {
		return fmt.Errorf("rotation_capacity must be positive, got %d", *c.RotationCapacity)
	}
	if c.RcvBuf != nil && *c.RcvBuf < 0 {
		return fmt.Errorf("rcvbuf must not be negative, got %d", *c.RcvBuf)
	}
	if c.LogInterval != nil && *c.LogInterval != "" {
		if _, err := time.ParseDuration(*c.LogInterval); err != nil {
			return fmt.Errorf("invalid log_interval '%s': %w", *c.LogInterval, err)
		}
	}
	return nil
}

// GetUDPAddress returns the bind address, default empty (all interfaces).
func (c *ServiceConfig) GetUDPAddress() string {
	if c.UDPAddress != nil {
		return *c.UDPAddress
	}
	return ""
}

// GetUDPPort returns the sensor data port.
func (c *ServiceConfig) GetUDPPort() int {
	if c.UDPPort != nil {
		return *c.UDPPort
	}
	return DefaultUDPPort
}

// GetRcvBuf returns the UDP receive buffer size in bytes.
func (c *ServiceConfig) GetRcvBuf() int {
	if c.RcvBuf != nil {
		return *c.RcvBuf
	}
	return DefaultRcvBuf
}

// GetRotationCapacity returns the rotation history bound.
func (c *ServiceConfig) GetRotationCapacity() int {
	if c.RotationCapacity != nil {
		return *c.RotationCapacity
	}
	return DefaultRotationCapacity
}

// GetHTTPListen returns the monitor listen address.
func (c *ServiceConfig) GetHTTPListen() string {
	if c.HTTPListen != nil {
		return *c.HTTPListen
	}
	return DefaultHTTPListen
}

// GetLogInterval returns the stats logging interval.
func (c *ServiceConfig) GetLogInterval() time.Duration {
	if c.LogInterval != nil && *c.LogInterval != "" {
		if d, err := time.ParseDuration(*c.LogInterval); err == nil {
			return d
		}
	}
	d, _ := time.ParseDuration(DefaultLogInterval)
	return d
}

// GetForwardEnabled reports whether packet forwarding is on.
func (c *ServiceConfig) GetForwardEnabled() bool {
	return c.ForwardEnabled != nil && *c.ForwardEnabled
}

// GetForwardAddress returns the forwarding destination host.
func (c *ServiceConfig) GetForwardAddress() string {
	if c.ForwardAddress != nil {
		return *c.ForwardAddress
	}
	return DefaultForwardAddress
}

// GetForwardPort returns the forwarding destination port.
func (c *ServiceConfig) GetForwardPort() int {
	if c.ForwardPort != nil {
		return *c.ForwardPort
	}
	return DefaultForwardPort
}

// GetRecordEnabled reports whether raw packet capture is on.
func (c *ServiceConfig) GetRecordEnabled() bool {
	return c.RecordEnabled != nil && *c.RecordEnabled
}

// GetRecordDir returns the capture directory, empty meaning the system
// temporary directory.
func (c *ServiceConfig) GetRecordDir() string {
	if c.RecordDir != nil {
		return *c.RecordDir
	}
	return ""
}
