// Package httpclient provides the HTTP client factory shared by all provider
// adapters. Whole-call timeouts come from the provider descriptor, not from a
// global constant: long-reasoning providers legitimately hold a connection
// open for most of an hour.
package httpclient

import (
	"net"
	"net/http"
	"os"
	"strconv"
	"time"
)

// ClientConfig holds configuration options for creating HTTP clients.
type ClientConfig struct {
	// Timeout specifies a time limit for the whole request, streaming reads
	// included. Zero means no client-side limit.
	Timeout time.Duration

	// DialTimeout is the maximum amount of time a dial will wait for a
	// connect to complete.
	DialTimeout time.Duration

	// KeepAlive specifies the interval between keep-alive probes for an
	// active network connection.
	KeepAlive time.Duration

	// TLSHandshakeTimeout specifies the maximum amount of time to wait for a
	// TLS handshake.
	TLSHandshakeTimeout time.Duration

	// ResponseHeaderTimeout specifies the amount of time to wait for the
	// server's response headers. For reasoning models the first SSE bytes can
	// lag by minutes, so this tracks the whole-call timeout.
	ResponseHeaderTimeout time.Duration
}

// getEnvDuration reads a duration from an environment variable, returning the
// default if not set or invalid. Accepts plain integers (seconds) or Go
// duration strings (e.g. "10m", "1h30m").
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	if secs, err := strconv.Atoi(val); err == nil {
		return time.Duration(secs) * time.Second
	}
	if d, err := time.ParseDuration(val); err == nil {
		return d
	}
	return defaultVal
}

// ConfigForTimeout returns a ClientConfig for one provider's whole-call
// budget. HTTP_TIMEOUT overrides the catalog value for all providers at once,
// which is mainly useful against local mock servers.
func ConfigForTimeout(timeout time.Duration) ClientConfig {
	timeout = getEnvDuration("HTTP_TIMEOUT", timeout)
	return ClientConfig{
		Timeout:               timeout,
		DialTimeout:           30 * time.Second,
		KeepAlive:             30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
	}
}

// NewHTTPClient creates a new HTTP client with the provided configuration.
func NewHTTPClient(config ClientConfig) *http.Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   config.DialTimeout,
			KeepAlive: config.KeepAlive,
		}).DialContext,
		TLSHandshakeTimeout:   config.TLSHandshakeTimeout,
		ResponseHeaderTimeout: config.ResponseHeaderTimeout,
		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   config.Timeout,
	}
}

// NewClientForTimeout is the convenience composition adapters actually call.
func NewClientForTimeout(timeout time.Duration) *http.Client {
	return NewHTTPClient(ConfigForTimeout(timeout))
}
