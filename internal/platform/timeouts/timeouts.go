// Package timeouts defines shared timeout constants used across the service.
package timeouts

import "time"

// GRPCDial caps the wait time when dialing the gRPC health endpoint.
const GRPCDial = 2 * time.Second

// ReadHeader limits how long the HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long servers wait for in-flight work during graceful
// shutdown.
const Shutdown = 5 * time.Second

// FrameWrite bounds a single outbound WebSocket frame write. A peer that
// cannot accept a frame in this window is dropped.
const FrameWrite = 10 * time.Second

// JournalDrain bounds how long the journal writer keeps flushing queued
// events after the service stops.
const JournalDrain = 3 * time.Second
