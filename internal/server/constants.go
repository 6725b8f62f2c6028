// Package server provides HTTP and WebSocket handlers
package server

import "time"

// Server configuration constants
const (
	// Per-connection sliding window rate limit for inbound chunks
	RateLimitMessages = 30
	RateLimitWindow   = time.Second

	// Summary preview limit for API responses
	TextPreviewLimit = 500
)
