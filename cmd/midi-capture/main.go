package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Pi-3-14/i-forgot-to-record-my-piano/config"
	"github.com/Pi-3-14/i-forgot-to-record-my-piano/device"
	"github.com/Pi-3-14/i-forgot-to-record-my-piano/music"
	"github.com/Pi-3-14/i-forgot-to-record-my-piano/session"
	. "github.com/Pi-3-14/i-forgot-to-record-my-piano/shared"
	"github.com/Pi-3-14/i-forgot-to-record-my-piano/ui"

	charmlog "github.com/charmbracelet/log"
	flag "github.com/spf13/pflag"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := parseFlags(args, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		return 2
	}
	startup := ui.NewLogger(os.Stderr, "info")

	if opts.listPorts {
		defer midi.CloseDriver()
		fmt.Println(device.PortNames(device.GomidiRegistry{}))
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		startup.Error("can't load config", "err", err)
		return 1
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		startup.Error("invalid config", "path", opts.configPath, "err", err)
		return 1
	}

	if opts.saveConfig {
		if err := cfg.Save(opts.configPath); err != nil {
			startup.Error("can't save config", "err", err)
			return 1
		}
		startup.Info("config saved", "path", opts.configPath)
		return 0
	}
	if opts.installAutostart {
		exe, err := os.Executable()
		if err != nil {
			startup.Error("can't locate executable", "err", err)
			return 1
		}
		path, err := ui.InstallAutostart(exe, opts.passthrough())
		if err != nil {
			startup.Error("can't install autostart", "err", err)
			return 1
		}
		startup.Info("autostart installed", "file", path)
		return 0
	}

	var out io.Writer = os.Stderr
	logFile, err := ui.OpenLogFile(cfg.RecordingsDir)
	if err != nil {
		startup.Warn("logging to stderr only", "err", err)
	} else {
		defer logFile.Close()
		out = io.MultiWriter(os.Stderr, logFile)
	}
	// log output must not hold up capture when the disk is slow
	pipe := ui.NewAsyncWriter(out, ui.LogBufferLines)
	defer pipe.Close()
	logger := ui.NewLogger(pipe, cfg.LogLevel)
	capture(cfg, logger)
	return 0
}

func withLogger(ctx context.Context, logger *charmlog.Logger, prefix string) context.Context {
	return context.WithValue(ctx, charmlog.ContextKey, logger.WithPrefix(prefix))
}

// capture runs until SIGINT or SIGTERM, then flushes the open segment and
// waits for every queued file to be written.
func capture(cfg *config.Config, logger *charmlog.Logger) {
	defer midi.CloseDriver()

	recs, err := ui.Recordings(cfg.RecordingsDir)
	if err != nil {
		logger.Warn("can't list recordings", "dir", cfg.RecordingsDir, "err", err)
	} else if latest, ok := recs.Latest(); ok {
		logger.Info("recordings", "dir", cfg.RecordingsDir, "total", len(recs),
			"last24h", len(recs.Since(time.Now().Add(-24*time.Hour))), "latest", filepath.Base(latest.Path))
	} else {
		logger.Info("no recordings yet", "dir", cfg.RecordingsDir)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	status := make(chan Message, 64)

	enc := music.Encoder{Tempo: cfg.Tempo, Resolution: smf.MetricTicks(cfg.Resolution)}
	writer := music.NewWriter(withLogger(ctx, logger, "writer"), cfg.RecordingsDir, enc, status)

	hotkey := music.NewHotkey(cfg.Hotkey.Note, cfg.Hotkey.Presses, cfg.Hotkey.Window)
	controller := session.New(writer, hotkey, status)
	controller.SegmentLength = cfg.SegmentLength
	controller.MinEvents = cfg.MinEvents
	controller.TickInterval = cfg.TickInterval

	monitor := device.NewMonitor(device.GomidiRegistry{}, cfg.Device, cfg.PollInterval)

	var revealer ui.Revealer
	if cfg.Reveal {
		revealer = ui.FileBrowser{Command: cfg.RevealCommand}
	}

	// the log surface outlives ctx so it can report the final writes
	uiDone := make(chan struct{})
	go func() {
		ui.Run(withLogger(context.Background(), logger, "ui"), status, revealer, cfg.RecordingsDir)
		close(uiDone)
	}()
	go monitor.Run(withLogger(ctx, logger, "device"))
	sessionDone := make(chan struct{})
	go func() {
		controller.Run(withLogger(ctx, logger, "session"), monitor.Events())
		close(sessionDone)
	}()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	sig := <-signalCh
	signal.Stop(signalCh)
	logger.Info("shutting down", "signal", sig)
	cancel()

	<-sessionDone
	if n := writer.Pending(); n > 0 {
		logger.Info("writing remaining segments", "count", n)
	}
	writer.Close()
	status <- Message{Type: Quit}
	<-uiDone
	logger.Info("bye")
}
