package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"ecusim-ms/utils"
)

// Counters are the run loop's observability counters.
type Counters struct {
	Ticks    uint64 `json:"ticks"`
	TxFrames uint64 `json:"tx_frames"`
	TxErrors uint64 `json:"tx_errors"`
	Overruns uint64 `json:"overruns"`
}

// TelemetrySnapshot is the externally consumed view of the run: current
// signal values, clamp flags, and counters. Only the latest snapshot matters;
// it is rewritten in place.
type TelemetrySnapshot struct {
	RunID     string             `json:"run_id"`
	TS        float64            `json:"ts"` // unix seconds
	Iface     string             `json:"iface"`
	Bitrate   int                `json:"bitrate"`
	Hz        float64            `json:"hz"`
	Mode      string             `json:"mode"`
	State     string             `json:"state"`
	LastError string             `json:"last_error,omitempty"`
	Signals   map[string]float64 `json:"signals"`
	Clamped   map[string]bool    `json:"clamped"`
	Counters  Counters           `json:"counters"`
}

// TelemetryWriter persists snapshots at a fixed cadence, decoupled from the
// main tick. Strictly best-effort: a failed write is logged and skipped, and
// never surfaces to the run loop's error path.
type TelemetryWriter struct {
	path string
	dt   time.Duration
	log  *utils.Logger
	now  func() time.Time
	next time.Time
}

func NewTelemetryWriter(path string, hz float64, log *utils.Logger, now func() time.Time) (*TelemetryWriter, error) {
	if hz <= 0 {
		return nil, fmt.Errorf("telemetry hz must be positive, got %g", hz)
	}
	return &TelemetryWriter{
		path: path,
		dt:   time.Duration(float64(time.Second) / hz),
		log:  log,
		now:  now,
		next: now(),
	}, nil
}

// MaybeWrite persists the snapshot if the cadence slot has arrived.
func (w *TelemetryWriter) MaybeWrite(snap *TelemetrySnapshot) {
	if w.path == "" {
		return
	}
	now := w.now()
	if now.Before(w.next) {
		return
	}
	for !w.next.After(now) {
		w.next = w.next.Add(w.dt)
	}
	w.write(snap)
}

// Flush writes immediately, ignoring the cadence; used for the final snapshot
// on shutdown.
func (w *TelemetryWriter) Flush(snap *TelemetrySnapshot) {
	if w.path == "" {
		return
	}
	w.write(snap)
}

func (w *TelemetryWriter) write(snap *TelemetrySnapshot) {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		w.log.Warn("telemetry marshal failed: %v", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		w.log.Warn("telemetry mkdir failed: %v", err)
		return
	}
	// Write-then-rename so readers never observe a torn snapshot.
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		w.log.Warn("telemetry write failed: %v", err)
		return
	}
	if err := os.Rename(tmp, w.path); err != nil {
		w.log.Warn("telemetry rename failed: %v", err)
	}
}
