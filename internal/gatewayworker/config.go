// Package gatewayworker implements the acquisition side of the gateway
// client: the command facade, sensor discovery, the acquisition
// orchestrator, the waveform parser, the output sink, and the worker
// registry that runs one of these per configured gateway.
package gatewayworker

import (
	"fmt"
	"net/http"
	"time"
)

// WorkerConfig is the validated configuration record for a single gateway
// worker: the endpoint, credentials, and timeouts the session and
// orchestrator need. Required: URL, LoginEmail, LoginPassword. Everything
// else defaults.
type WorkerConfig struct {
	URL             string
	LoginEmail      string
	LoginPassword   string
	PreferredSerial string
	Header          http.Header

	ConnectTimeout     time.Duration
	CommandTimeout     time.Duration
	AcquisitionTimeout time.Duration
	HeartbeatInterval  time.Duration
	LogLevel           string
}

// DefaultWorkerConfig returns the timeout defaults named in §4.14:
// command 30s, acquisition 60s, heartbeat interval 30s.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		ConnectTimeout:     10 * time.Second,
		CommandTimeout:     30 * time.Second,
		AcquisitionTimeout: 60 * time.Second,
		HeartbeatInterval:  30 * time.Second,
	}
}

// Validate fails fast on missing required fields and replaces any zero or
// negative timeout with its default.
func (c *WorkerConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("gatewayworker: URL is required")
	}
	if c.LoginEmail == "" {
		return fmt.Errorf("gatewayworker: LoginEmail is required")
	}
	if c.LoginPassword == "" {
		return fmt.Errorf("gatewayworker: LoginPassword is required")
	}

	def := DefaultWorkerConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = def.CommandTimeout
	}
	if c.AcquisitionTimeout <= 0 {
		c.AcquisitionTimeout = def.AcquisitionTimeout
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	return nil
}
