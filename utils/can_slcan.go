package utils

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
	"go.einride.tech/can"
)

// SLCANBitrateCodes maps CAN bitrates to Lawicel Sx setup commands.
var SLCANBitrateCodes = map[int]string{
	10_000:    "S0",
	20_000:    "S1",
	50_000:    "S2",
	100_000:   "S3",
	125_000:   "S4",
	250_000:   "S5",
	500_000:   "S6",
	800_000:   "S7",
	1_000_000: "S8",
}

type SLCANConfig struct {
	Port        string
	Bitrate     int
	SerialBaud  int  // default 115200
	SkipBitrate bool // adapters without Sx support
}

// SLCANWriter drives a Lawicel SLCAN serial adapter (USB CAN dongle).
type SLCANWriter struct {
	port io.WriteCloser
}

// NewSLCANWriter opens the serial port and brings the CAN channel up.
func NewSLCANWriter(cfg SLCANConfig) (*SLCANWriter, error) {
	if cfg.Port == "" {
		return nil, &TransportError{Op: "open", Err: fmt.Errorf("slcan requires a serial port")}
	}
	baud := cfg.SerialBaud
	if baud <= 0 {
		baud = 115200
	}
	code, ok := SLCANBitrateCodes[cfg.Bitrate]
	if !ok && !cfg.SkipBitrate {
		return nil, &TransportError{Op: "open", Err: fmt.Errorf("unsupported slcan bitrate %d", cfg.Bitrate)}
	}

	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(cfg.Port, mode)
	if err != nil {
		return nil, &TransportError{Op: "open", Err: fmt.Errorf("open %s: %w", cfg.Port, err)}
	}
	if err := port.SetReadTimeout(500 * time.Millisecond); err != nil {
		port.Close()
		return nil, &TransportError{Op: "open", Err: fmt.Errorf("set timeout: %w", err)}
	}

	w := &SLCANWriter{port: port}
	// Close any stale channel before reconfiguring.
	cmds := []string{"C"}
	if !cfg.SkipBitrate {
		cmds = append(cmds, code)
	}
	cmds = append(cmds, "O")
	for _, cmd := range cmds {
		if err := w.command(cmd); err != nil {
			port.Close()
			return nil, &TransportError{Op: "open", Err: err}
		}
	}
	return w, nil
}

func (w *SLCANWriter) command(cmd string) error {
	if _, err := w.port.Write([]byte(cmd + "\r")); err != nil {
		return fmt.Errorf("slcan command %q: %w", cmd, err)
	}
	return nil
}

func (w *SLCANWriter) WriteFrame(_ context.Context, frame can.Frame) error {
	line, err := MarshalSLCAN(frame)
	if err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	if _, err := w.port.Write(line); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

func (w *SLCANWriter) Close() error {
	if w.port == nil {
		return nil
	}
	// Best effort: bring the channel down before releasing the port.
	_ = w.command("C")
	if err := w.port.Close(); err != nil {
		return &TransportError{Op: "close", Err: err}
	}
	return nil
}

// MarshalSLCAN renders a frame in Lawicel ASCII form:
// tIIILDD..\r for standard ids, TIIIIIIIIL..\r for extended ids.
func MarshalSLCAN(frame can.Frame) ([]byte, error) {
	if frame.Length > 8 {
		return nil, fmt.Errorf("invalid DLC %d", frame.Length)
	}
	var out []byte
	if frame.IsExtended {
		out = fmt.Appendf(nil, "T%08X%d", frame.ID, frame.Length)
	} else {
		if frame.ID > 0x7FF {
			return nil, fmt.Errorf("standard frame id 0x%X exceeds 11 bits", frame.ID)
		}
		out = fmt.Appendf(nil, "t%03X%d", frame.ID, frame.Length)
	}
	for _, b := range frame.Data[:frame.Length] {
		out = fmt.Appendf(out, "%02X", b)
	}
	return append(out, '\r'), nil
}
