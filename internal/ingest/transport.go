// Package ingest moves waveform packets from a transport into the buffer
// manager: the transport clients, the polling ingest loop and the lifecycle
// controller that runs it.
package ingest

import (
	"context"
	"errors"

	"waveplot/internal/waveform"
)

var (
	// ErrTransportClosed is returned by Poll once the transport can no longer
	// deliver packets.
	ErrTransportClosed = errors.New("transport closed")

	// ErrTransportFailure ends an ingest run when the transport reports it is
	// no longer alive.
	ErrTransportFailure = errors.New("transport failure")

	// ErrNotOpen is returned when pushing into a transport that is not open.
	ErrNotOpen = errors.New("transport not open")

	// ErrQueueFull is returned when the in-process queue cannot take a packet.
	ErrQueueFull = errors.New("transport queue full")
)

// Client is the transport the ingest loop polls.
type Client interface {
	// Open establishes the session. It is called once per ingest run.
	Open(ctx context.Context) error
	// Alive reports whether the transport can still serve packets.
	Alive() bool
	// Poll returns the next available packet without blocking; ok is false
	// when nothing is available.
	Poll(ctx context.Context) (p waveform.Packet, ok bool, err error)
	// Goodbye notifies the transport that this session is ending.
	Goodbye(ctx context.Context) error
}
