// Package server provides the HTTP, WebSocket and gRPC health surfaces
package server

import "time"

// Server configuration constants
const (
	// Status push cadence over WebSocket: polled often, sent on change or at least once per push interval
	StatusPollInterval = 200 * time.Millisecond
	StatusPushInterval = time.Second

	// Per-connection command rate limit
	RateLimitMessages = 10
	RateLimitWindow   = time.Second

	// Image endpoints scale captures down to these heights
	CaptureMaxHeight = 720
	PreviewMaxHeight = 240

	// gRPC health service name and refresh cadence
	HealthService  = "queue-sentinel"
	HealthInterval = time.Second

	// Write deadline for a single WebSocket frame
	WriteTimeout = 5 * time.Second
)
