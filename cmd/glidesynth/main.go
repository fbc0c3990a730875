package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/cbegin/glidesynth"
	"github.com/cbegin/glidesynth/internal/audio"
	"github.com/cbegin/glidesynth/internal/feed"
	"github.com/cbegin/glidesynth/internal/monitor"
)

func main() {
	cfg := glidesynth.DefaultConfig()
	if err := cfg.LoadEnv(); err != nil {
		log.Fatal(err)
	}

	var (
		midiPath     = flag.String("midi", "", "Standard MIDI File to play; empty listens to a MIDI input port")
		port         = flag.String("port", "", "MIDI input port name or number (default: first port)")
		listPorts    = flag.Bool("list-ports", false, "print MIDI input ports and exit")
		ramp         = flag.Int("ramp", cfg.Ramp, "attack/release length in frames")
		drinks       = flag.Int("drinks", cfg.Drinks, "percent chance per second of a pitch glide (0..100)")
		sampleRate   = flag.Int("sample-rate", cfg.SampleRate, "output sample rate")
		block        = flag.Int("block", cfg.BlockSize, "frames rendered per block")
		backend      = flag.String("backend", cfg.Backend, "audio backend: "+strings.Join(audio.Backends(), "|"))
		showMonitor  = flag.Bool("monitor", false, "show a live status panel")
		logLevel     = flag.String("log-level", "info", "debug|info|warn|error")
		logFile      = flag.String("log-file", "", "write logs here instead of stderr")
		seed         = flag.Int64("seed", cfg.Seed, "glide random seed")
		legacyRetire = flag.Bool("legacy-retire", cfg.LegacyRetire, "drop notes when their release starts")
		volume       = flag.Float64("volume", 1.0, "master volume scalar")
	)
	flag.Parse()

	if *listPorts {
		for i, name := range feed.Ports() {
			fmt.Printf("%d: %s\n", i, name)
		}
		return
	}

	logger, closeLog, err := newLogger(*logLevel, *logFile, *showMonitor)
	if err != nil {
		log.Fatal(err)
	}
	defer closeLog()

	cfg.Ramp = *ramp
	cfg.Drinks = *drinks
	cfg.SampleRate = *sampleRate
	cfg.BlockSize = *block
	cfg.Backend = *backend
	cfg.Seed = *seed
	cfg.LegacyRetire = *legacyRetire
	cfg.Logger = logger

	src, err := openSource(*midiPath, *port)
	if err != nil {
		log.Fatal(err)
	}
	synth, err := glidesynth.NewWithConfig(cfg)
	if err != nil {
		log.Fatal(err)
	}
	synth.SetMasterVolume(*volume)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- synth.Run(ctx, src) }()

	if *showMonitor {
		go func() {
			if _, err := monitor.Run(ctx, synth, "glidesynth"); err != nil {
				logger.Error("monitor failed", "err", err)
			}
			cancel()
		}()
	} else {
		go printEvents(ctx, synth.Watch())
	}

	runErr := <-done
	cancel()
	if err := synth.Close(); err != nil {
		logger.Error("closing audio", "err", err)
	}
	if runErr != nil && ctx.Err() == nil {
		logger.Error("playback failed", "err", runErr)
		closeLog()
		os.Exit(1)
	}
}

func openSource(path, port string) (feed.Source, error) {
	if strings.TrimSpace(path) == "" {
		return &feed.PortSource{Port: port}, nil
	}
	return feed.OpenSMF(path)
}

func printEvents(ctx context.Context, events <-chan glidesynth.PlaybackEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			switch ev.Kind {
			case glidesynth.EventGlideArmed:
				fmt.Printf("glide %+d -> %+d\n", ev.Offset, ev.Offset+ev.Adjust)
			case glidesynth.EventGlideCommitted:
				fmt.Printf("glide settled at %+d\n", ev.Offset)
			case glidesynth.EventSourceEnded:
				fmt.Println("playback completed")
			}
		}
	}
}

func newLogger(level, path string, quiet bool) (*slog.Logger, func(), error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, nil, fmt.Errorf("invalid -log-level %q (expected debug|info|warn|error)", level)
	}
	var out io.Writer = os.Stderr
	closeFn := func() {}
	switch {
	case path != "":
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		out = f
		closeFn = func() { _ = f.Close() }
	case quiet:
		// the status panel owns the terminal
		out = io.Discard
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger, closeFn, nil
}
