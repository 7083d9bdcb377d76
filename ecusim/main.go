package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ecusim-ms/utils"
)

type flagValues struct {
	backend     string
	iface       string
	channel     int
	port        string
	serialBaud  int
	skipBitrate bool
	bitrate     int
	hz          float64
	mode        string
}

func main() {
	os.Exit(run())
}

func run() int {
	fs := flag.NewFlagSet("ecusim", flag.ExitOnError)

	controlPath := fs.String("control", "control.json", "control document (JSON or YAML)")
	catalogPath := fs.String("catalog", "", "signal catalog CSV (empty uses the builtin Simplified Dash set)")
	telemetryPath := fs.String("telemetry", "telemetry.json", "telemetry snapshot file (empty disables)")
	stopFile := fs.String("stop-file", "ecusim.stop", "stop marker file watched by the run loop")
	duration := fs.Duration("duration", 0, "auto-stop after this long (0 runs until stopped)")
	logLevel := fs.String("log", "info", "log level: trace|debug|info|warn|error|critical")
	logFile := fs.String("log-file", "", "append log lines to this file as well as stdout")

	var fv flagValues
	fs.StringVar(&fv.backend, "backend", BackendSocketCAN, "transport backend: socketcan|slcan|virtual")
	fs.StringVar(&fv.iface, "iface", "vcan0", "socketcan interface name")
	fs.IntVar(&fv.channel, "channel", 0, "adapter channel index")
	fs.StringVar(&fv.port, "port", "", "slcan serial port, e.g. /dev/ttyACM0")
	fs.IntVar(&fv.serialBaud, "serial-baud", 115200, "slcan serial line baud rate")
	fs.BoolVar(&fv.skipBitrate, "skip-bitrate", false, "skip slcan bitrate programming (adapter preconfigured)")
	fs.IntVar(&fv.bitrate, "bitrate", defaultBitrate, "CAN bus bitrate in bit/s")
	fs.Float64Var(&fv.hz, "hz", defaultHz, "broadcast tick rate")
	fs.StringVar(&fv.mode, "mode", "", "scenario mode: loop|koeo|idle|pull|custom|silent")
	fs.Parse(os.Args[1:])

	log := utils.NewStdoutLogger(utils.ParseLevel(*logLevel))
	if *logFile != "" {
		fileLog, err := utils.NewFileLogger(*logFile, utils.ParseLevel(*logLevel), true)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cannot open log file %s: %v\n", *logFile, err)
			return 2
		}
		defer fileLog.Close()
		log = fileLog
	}

	cfg := LoadControl(*controlPath, log.Warn)
	mergeFlags(&cfg, fs, &fv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var overrides OverrideSource
	if cfg.Mode == "custom" {
		// Re-read the control document between ticks so a bench operator can
		// nudge signals without restarting the broadcast.
		overrides = NewFileOverrides(*controlPath, utils.SimplifiedDashCatalog().SignalNames())
	}

	runner, err := NewRunner(ctx, RunnerConfig{
		Control:       cfg,
		CatalogPath:   *catalogPath,
		TelemetryPath: *telemetryPath,
		StopFile:      *stopFile,
		Duration:      *duration,
		Overrides:     overrides,
	}, log)
	if err != nil {
		log.Critical("startup failed: %v", err)
		return 2
	}

	started := time.Now()
	if err := runner.Run(ctx); err != nil {
		log.Critical("run aborted after %s: %v", time.Since(started).Round(time.Millisecond), err)
		return 1
	}
	return 0
}
