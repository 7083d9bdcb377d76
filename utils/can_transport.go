package utils

import (
	"context"
	"errors"
	"fmt"
	"net"

	"go.einride.tech/can"
	"go.einride.tech/can/pkg/socketcan"
)

var errClosed = errors.New("writer is closed")

// TransportError wraps any failure in a CAN backend. The run loop decides
// retry policy; backends only classify and surface.
type TransportError struct {
	Op  string // "open", "send", "close"
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("can transport %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// FrameWriter is the polymorphic send-side transport contract: hardware
// adapter, serial bridge, or in-process loopback.
type FrameWriter interface {
	WriteFrame(ctx context.Context, frame can.Frame) error
	Close() error
}

// SocketCANWriter transmits over a Linux CAN interface (can0, vcan0, ...).
type SocketCANWriter struct {
	conn net.Conn
	tx   *socketcan.Transmitter
}

func NewSocketCANWriter(ctx context.Context, iface string) (*SocketCANWriter, error) {
	conn, err := socketcan.DialContext(ctx, "can", iface)
	if err != nil {
		return nil, &TransportError{Op: "open", Err: fmt.Errorf("socketcan dial %s: %w", iface, err)}
	}
	return &SocketCANWriter{
		conn: conn,
		tx:   socketcan.NewTransmitter(conn),
	}, nil
}

func (w *SocketCANWriter) WriteFrame(ctx context.Context, frame can.Frame) error {
	if err := w.tx.TransmitFrame(ctx, frame); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

func (w *SocketCANWriter) Close() error {
	if w.conn != nil {
		if err := w.conn.Close(); err != nil {
			return &TransportError{Op: "close", Err: err}
		}
	}
	return nil
}
