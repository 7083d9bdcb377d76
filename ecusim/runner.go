package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.einride.tech/can"

	"ecusim-ms/utils"
)

// RunState is the scheduler's lifecycle state machine.
type RunState int32

const (
	StateInitializing RunState = iota
	StateRunning
	StateStopping
	StateStopped
	StateFaulted
)

func (s RunState) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type RunnerConfig struct {
	Control       ControlConfig
	CatalogPath   string // optional catalog CSV; empty uses the builtin set
	TelemetryPath string
	StopFile      string
	Duration      time.Duration // optional auto-stop for smoke tests; 0 runs until stopped

	SendTimeout    time.Duration // per-frame send deadline (default 100ms)
	SendRetries    int           // attempts per frame within one tick (default 3)
	FaultThreshold int           // consecutive failed ticks before Faulted (default 3)
	TelemetryHz    float64       // snapshot cadence (default 5)

	// Injection points. Each nil field gets the production implementation:
	// transport from Control.Backend, stop check from StopFile, overrides
	// from the control document, clock from the time package.
	Transport utils.FrameWriter
	StopCheck func() bool
	Overrides OverrideSource
	Now       func() time.Time
	Sleep     func(time.Duration)
}

func (c *RunnerConfig) applyDefaults() {
	if c.SendTimeout <= 0 {
		c.SendTimeout = 100 * time.Millisecond
	}
	if c.SendRetries <= 0 {
		c.SendRetries = 3
	}
	if c.FaultThreshold <= 0 {
		c.FaultThreshold = 3
	}
	if c.TelemetryHz <= 0 {
		c.TelemetryHz = 5
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Sleep == nil {
		c.Sleep = time.Sleep
	}
}

// Runner owns one simulated broadcast run: engine state, transport handle,
// and counters. Each run starts from clean state; nothing is process-global,
// so tests drive several runners side by side.
type Runner struct {
	cfg       RunnerConfig
	log       *utils.Logger
	catalog   *utils.Catalog
	state     *EngineState
	gen       Generator
	mode      Mode
	writer    utils.FrameWriter
	overrides OverrideSource
	stopCheck func() bool
	telem     *TelemetryWriter
	runID     string

	runState  atomic.Int32
	closeOnce sync.Once

	counters  Counters
	lastError string
	clamped   map[string]bool // merged state + encoder clamp flags, by signal
}

// NewRunner performs the Initializing phase: validate the control document,
// load the catalog, resolve the scenario generator, and open the transport.
// Any failure here is fatal and the Running state is never entered.
func NewRunner(ctx context.Context, cfg RunnerConfig, log *utils.Logger) (*Runner, error) {
	cfg.applyDefaults()

	if err := cfg.Control.Validate(); err != nil {
		return nil, err
	}
	mode, err := ParseMode(cfg.Control.Mode)
	if err != nil {
		return nil, err
	}

	catalog := utils.SimplifiedDashCatalog()
	if cfg.CatalogPath != "" {
		catalog, err = utils.LoadCatalog(cfg.CatalogPath)
		if err != nil {
			return nil, &ConfigError{Field: "catalog", Reason: err.Error()}
		}
	}
	if err := utils.ValidateSimplifiedDash(catalog); err != nil {
		return nil, &ConfigError{Field: "catalog", Reason: err.Error()}
	}

	writer := cfg.Transport
	if writer == nil {
		writer, err = openTransport(ctx, cfg.Control)
		if err != nil {
			return nil, err
		}
	}

	stopCheck := cfg.StopCheck
	if stopCheck == nil {
		stopCheck = FileStopCheck(cfg.StopFile)
	}

	overrides := cfg.Overrides
	if overrides == nil && len(cfg.Control.Custom) > 0 {
		overrides = StaticOverrides(cfg.Control.Custom)
	}

	telem, err := NewTelemetryWriter(cfg.TelemetryPath, cfg.TelemetryHz, log, cfg.Now)
	if err != nil {
		writer.Close()
		return nil, &ConfigError{Field: "telemetry", Reason: err.Error()}
	}

	r := &Runner{
		cfg:       cfg,
		log:       log,
		catalog:   catalog,
		state:     NewEngineState(catalog),
		gen:       generatorForMode(mode),
		mode:      mode,
		writer:    writer,
		overrides: overrides,
		stopCheck: stopCheck,
		telem:     telem,
		runID:     uuid.NewString(),
		clamped:   map[string]bool{},
	}
	r.runState.Store(int32(StateInitializing))
	return r, nil
}

func openTransport(ctx context.Context, cc ControlConfig) (utils.FrameWriter, error) {
	switch cc.Backend {
	case BackendSocketCAN:
		return utils.NewSocketCANWriter(ctx, cc.Iface)
	case BackendSLCAN:
		return utils.NewSLCANWriter(utils.SLCANConfig{
			Port:        cc.Port,
			Bitrate:     cc.Bitrate,
			SerialBaud:  cc.SerialBaud,
			SkipBitrate: cc.SkipBitrate,
		})
	case BackendVirtual:
		return utils.NewVirtualWriter(), nil
	default:
		return nil, &ConfigError{Field: "backend", Reason: fmt.Sprintf("unsupported backend %q", cc.Backend)}
	}
}

func (r *Runner) State() RunState { return RunState(r.runState.Load()) }

func (r *Runner) setState(s RunState) { r.runState.Store(int32(s)) }

// Counters returns a copy of the run counters.
func (r *Runner) Counters() Counters { return r.counters }

// RunID identifies this run in telemetry and logs.
func (r *Runner) RunID() string { return r.runID }

// Close releases the transport. Safe to call more than once and always called
// by Run on every exit path.
func (r *Runner) Close() {
	r.closeOnce.Do(func() {
		if r.writer != nil {
			if err := r.writer.Close(); err != nil {
				r.log.Warn("transport close: %v", err)
			}
		}
	})
}

// Run drives the fixed-rate broadcast until the stop marker appears, the
// context is canceled, the optional duration elapses, or the transport
// faults. It returns nil on a clean stop and the fault cause otherwise;
// errors never escape any other way.
func (r *Runner) Run(ctx context.Context) error {
	cc := r.cfg.Control
	period := time.Duration(float64(time.Second) / cc.Hz)

	r.log.Info("RUN id=%s profile=%s backend=%s iface=%s bitrate=%d hz=%.2f mode=%s",
		r.runID, cc.ProfileID, cc.Backend, cc.Iface, cc.Bitrate, cc.Hz, r.mode)

	r.setState(StateRunning)
	defer r.Close()

	start := r.cfg.Now()
	next := start.Add(period)
	consecFailed := 0

	for {
		now := r.cfg.Now()
		elapsed := now.Sub(start)

		if ctx.Err() != nil {
			r.log.Warn("context canceled; stopping")
			return r.shutdown(nil)
		}
		if r.stopCheck() {
			r.log.Info("stop marker present; stopping")
			return r.shutdown(nil)
		}
		if r.cfg.Duration > 0 && elapsed >= r.cfg.Duration {
			r.log.Info("duration reached (%.2fs); stopping", r.cfg.Duration.Seconds())
			return r.shutdown(nil)
		}

		if err := r.tick(ctx, elapsed.Seconds(), &consecFailed); err != nil {
			r.lastError = err.Error()
			r.setState(StateFaulted)
			r.log.Critical("run fault: %v", err)
			r.telem.Flush(r.buildSnapshot())
			return err
		}

		r.telem.MaybeWrite(r.buildSnapshot())

		// Drift-corrected wait: sleep to the deadline; on overrun, realign to
		// now instead of compounding the delay.
		now = r.cfg.Now()
		if wait := next.Sub(now); wait > 0 {
			r.cfg.Sleep(wait)
		} else if wait < 0 {
			r.counters.Overruns++
			next = now
		}
		next = next.Add(period)
	}
}

// tick advances the simulation by one cycle: generate, apply, encode, send.
// A non-nil return is fatal: either the generator and catalog disagree, or
// the transport crossed the fault threshold.
func (r *Runner) tick(ctx context.Context, t float64, consecFailed *int) error {
	delta := r.gen(t)
	if r.mode == ModeCustom && r.overrides != nil {
		for name, v := range r.overrides.Overrides() {
			delta[name] = v
		}
	}

	events, err := r.state.Apply(delta)
	if err != nil {
		// An unknown signal can only come from a mismatched catalog; fatal
		// rather than broadcasting a partial state.
		return err
	}
	for _, ev := range events {
		r.log.Debug("clamp %s: requested=%.3f applied=%.3f", ev.Signal, ev.Requested, ev.Applied)
	}

	snap := r.state.Snapshot()
	frames, _, encClamped := r.catalog.EncodeAll(snap.Values)
	r.clamped = snap.Clamped
	for name, info := range encClamped {
		r.clamped[name] = true
		if info.Overflow {
			r.log.Warn("bit-width overflow %s: requested=%.3f sent=%.3f", name, info.Requested, info.Sent)
		}
	}

	if r.mode == ModeSilent {
		r.counters.Ticks++
		return nil
	}

	if err := r.sendAll(ctx, frames); err != nil {
		r.counters.TxErrors++
		*consecFailed++
		r.lastError = err.Error()
		r.log.Error("tick send failed (%d/%d): %v", *consecFailed, r.cfg.FaultThreshold, err)
		if *consecFailed >= r.cfg.FaultThreshold {
			return err
		}
		return nil
	}

	*consecFailed = 0
	r.counters.Ticks++
	r.counters.TxFrames += uint64(len(frames))
	return nil
}

// sendAll transmits the tick's frames, retrying each a bounded number of
// times. Every attempt runs under the send timeout so a wedged adapter
// surfaces as a transport failure instead of stalling the tick clock.
func (r *Runner) sendAll(ctx context.Context, frames []can.Frame) error {
	for _, frame := range frames {
		var lastErr error
		for attempt := 0; attempt < r.cfg.SendRetries; attempt++ {
			lastErr = r.sendOne(ctx, frame)
			if lastErr == nil {
				break
			}
			r.log.Debug("send id=0x%X attempt %d/%d failed: %v", frame.ID, attempt+1, r.cfg.SendRetries, lastErr)
		}
		if lastErr != nil {
			return fmt.Errorf("frame 0x%X: %w", frame.ID, lastErr)
		}
	}
	return nil
}

func (r *Runner) sendOne(ctx context.Context, frame can.Frame) error {
	sendCtx, cancel := context.WithTimeout(ctx, r.cfg.SendTimeout)
	defer cancel()
	return r.writer.WriteFrame(sendCtx, frame)
}

// shutdown runs the Stopping sequence: release the transport, flush a final
// snapshot, land in Stopped.
func (r *Runner) shutdown(err error) error {
	r.setState(StateStopping)
	r.Close()
	r.setState(StateStopped)
	r.telem.Flush(r.buildSnapshot())
	r.log.Info("run complete id=%s ticks=%d tx_frames=%d tx_errors=%d overruns=%d",
		r.runID, r.counters.Ticks, r.counters.TxFrames, r.counters.TxErrors, r.counters.Overruns)
	return err
}

func (r *Runner) buildSnapshot() *TelemetrySnapshot {
	snap := r.state.Snapshot()
	clamped := make(map[string]bool, len(snap.Clamped))
	for name, flag := range snap.Clamped {
		clamped[name] = flag || r.clamped[name]
	}
	return &TelemetrySnapshot{
		RunID:     r.runID,
		TS:        float64(r.cfg.Now().UnixNano()) / float64(time.Second),
		Iface:     r.cfg.Control.Iface,
		Bitrate:   r.cfg.Control.Bitrate,
		Hz:        r.cfg.Control.Hz,
		Mode:      r.mode.String(),
		State:     r.State().String(),
		LastError: r.lastError,
		Signals:   snap.Values,
		Clamped:   clamped,
		Counters:  r.counters,
	}
}
