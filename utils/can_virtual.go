package utils

import (
	"context"
	"sync"

	"go.einride.tech/can"
)

// VirtualWriter is an in-process loopback bus: sends always succeed and are
// retained for inspection. Used for self-test runs and CI.
type VirtualWriter struct {
	mu     sync.Mutex
	frames []can.Frame
	closed bool

	// SendHook, when set, runs before each send and may return an error to
	// simulate a transport fault.
	SendHook func(frame can.Frame) error
}

func NewVirtualWriter() *VirtualWriter { return &VirtualWriter{} }

func (w *VirtualWriter) WriteFrame(_ context.Context, frame can.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return &TransportError{Op: "send", Err: errClosed}
	}
	if w.SendHook != nil {
		if err := w.SendHook(frame); err != nil {
			return &TransportError{Op: "send", Err: err}
		}
	}
	w.frames = append(w.frames, frame)
	return nil
}

func (w *VirtualWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

// Sent returns a copy of every frame written so far.
func (w *VirtualWriter) Sent() []can.Frame {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]can.Frame, len(w.frames))
	copy(out, w.frames)
	return out
}

// SentCount returns the number of frames written so far.
func (w *VirtualWriter) SentCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.frames)
}
