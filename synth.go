// Package glidesynth is a realtime polyphonic sine synthesizer driven by
// note events, with a random pitch glide swept across every sounding note.
package glidesynth

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cbegin/glidesynth/internal/audio"
	"github.com/cbegin/glidesynth/internal/engine"
	"github.com/cbegin/glidesynth/internal/feed"
)

// ErrClosed is returned by operations on a closed Synth.
var ErrClosed = errors.New("synth closed")

// PlaybackEvent carries glide and source notifications from Watch().
type PlaybackEvent struct {
	Kind   int // EventGlideArmed, EventGlideCommitted or EventSourceEnded
	Offset int
	Adjust int
	Frame  int64
}

const (
	EventGlideArmed int = iota
	EventGlideCommitted
	EventSourceEnded
)

// Stats is a snapshot of the synth counters, safe to take from any goroutine.
type Stats struct {
	engine.Stats
	SampleRate int
	Backend    string
	Elapsed    time.Duration
}

type Synth struct {
	mu      sync.Mutex
	cfg     Config
	log     *slog.Logger
	engine  *engine.Engine
	rng     *rand.Rand
	volume  atomic.Uint32
	backend audio.Backend
	started bool
	closed  bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	runMu      sync.Mutex
	eventClock int64

	eventCh   chan PlaybackEvent
	eventChMu sync.Mutex
}

// New builds a synth. Nothing touches the audio device until Start or Run.
func New(opts ...Option) (*Synth, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig builds a synth from a fully populated Config.
func NewWithConfig(cfg Config) (*Synth, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Synth{
		cfg: cfg,
		log: cfg.logger(),
		engine: engine.New(cfg.SampleRate, engine.Params{
			BlockSize:    cfg.BlockSize,
			Ramp:         cfg.Ramp,
			QueueSize:    cfg.QueueSize,
			LegacyRetire: cfg.LegacyRetire,
		}),
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
	s.volume.Store(math.Float32bits(1))
	return s, nil
}

// Config returns the settings the synth was built with.
func (s *Synth) Config() Config { return s.cfg }

// FillBlock renders one block. It is the audio callback and must only be
// driven by one goroutine at a time.
func (s *Synth) FillBlock(dst []float32, status error) {
	s.engine.FillBlock(dst, status)
	if v := math.Float32frombits(s.volume.Load()); v != 1 {
		for i := range dst {
			dst[i] *= v
		}
	}
	if s.cfg.SampleTap != nil {
		s.cfg.SampleTap(dst)
	}
}

// Start opens the audio backend and starts the glide ticker.
func (s *Synth) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.started {
		return nil
	}
	backend, err := audio.NewBackend(s.cfg.Backend, s, audio.Options{
		SampleRate:   s.cfg.SampleRate,
		BlockSize:    s.cfg.BlockSize,
		BufferFrames: s.cfg.BufferFrames,
	})
	if err != nil {
		return err
	}
	if err := backend.Start(); err != nil {
		return err
	}
	s.backend = backend
	s.started = true
	s.log.Info("audio started", "backend", backend.Name(), "sample_rate", s.cfg.SampleRate, "block", s.cfg.BlockSize)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.tickLoop(ctx)
	return nil
}

// tickLoop rolls for a glide once per TickInterval and reports what the
// audio goroutine published since the last tick.
func (s *Synth) tickLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	last := s.engine.Stats()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if _, err := s.engine.Tick(ctx, s.rng, s.cfg.Drinks); err != nil && !errors.Is(err, engine.ErrStopped) && ctx.Err() == nil {
			s.log.Warn("glide tick failed", "err", err)
		}
		last = s.report(last)
	}
}

// report logs and publishes the differences between two stat snapshots.
func (s *Synth) report(last engine.Stats) engine.Stats {
	cur := s.engine.Stats()
	if n := cur.Statuses - last.Statuses; n > 0 {
		s.log.Warn("audio sink status", "count", n, "last", cur.LastStatus)
	}
	if cur.GlideAdjust != 0 && last.GlideAdjust == 0 {
		s.log.Debug("glide armed", "offset", cur.GlideOffset, "adjust", cur.GlideAdjust, "frame", cur.FrameClock)
		s.sendEvent(PlaybackEvent{Kind: EventGlideArmed, Offset: cur.GlideOffset, Adjust: cur.GlideAdjust, Frame: cur.FrameClock})
	}
	if cur.GlideOffset != last.GlideOffset {
		s.log.Debug("glide committed", "offset", cur.GlideOffset, "frame", cur.FrameClock)
		s.sendEvent(PlaybackEvent{Kind: EventGlideCommitted, Offset: cur.GlideOffset, Frame: cur.FrameClock})
	}
	if n := cur.SynthFailures - last.SynthFailures; n > 0 {
		s.log.Warn("note synthesis failed", "count", n)
	}
	return cur
}

// Run starts the synth if needed and feeds it events from src until the
// source ends or ctx is done. After a replayed source ends, Run waits for
// the last release to finish sounding.
func (s *Synth) Run(ctx context.Context, src feed.Source) error {
	if err := s.Start(); err != nil {
		return err
	}
	s.runMu.Lock()
	defer s.runMu.Unlock()

	live := src.Live()
	err := src.Run(ctx, func(ev feed.Event) error {
		return s.ingest(ctx, ev, live)
	})
	if err == nil && !live {
		err = s.waitFrame(ctx, s.eventClock+int64(s.cfg.Ramp+s.cfg.BlockSize))
	}
	s.sendEvent(PlaybackEvent{Kind: EventSourceEnded, Frame: s.engine.FrameClock()})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Error("event source stopped", "err", err)
	}
	return err
}

func (s *Synth) waitFrame(ctx context.Context, frame int64) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for !s.engine.Stopped() && s.engine.FrameClock() < frame && (s.engine.Pending() > 0 || s.engine.Stats().ActiveNotes > 0) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// NoteOn starts pitch as if played live: it sounds one block from now.
func (s *Synth) NoteOn(ctx context.Context, pitch, velocity int) error {
	return s.ingest(ctx, feed.Event{Kind: feed.NoteOn, Pitch: pitch, Velocity: velocity}.Normalize(), true)
}

// NoteOff releases pitch as if played live.
func (s *Synth) NoteOff(ctx context.Context, pitch int) error {
	return s.ingest(ctx, feed.Event{Kind: feed.NoteOff, Pitch: pitch}, true)
}

// SetMasterVolume scales the output; values are clamped to [0, 1].
func (s *Synth) SetMasterVolume(volume float64) {
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}
	s.volume.Store(math.Float32bits(float32(volume)))
}

func (s *Synth) MasterVolume() float64 {
	return float64(math.Float32frombits(s.volume.Load()))
}

func (s *Synth) Stats() Stats {
	st := Stats{Stats: s.engine.Stats(), SampleRate: s.cfg.SampleRate}
	st.Elapsed = time.Duration(st.FrameClock) * time.Second / time.Duration(s.cfg.SampleRate)
	s.mu.Lock()
	if s.backend != nil {
		st.Backend = s.backend.Name()
	}
	s.mu.Unlock()
	return st
}

// Watch returns a channel that receives playback events:
//   - EventGlideArmed: a glide was scheduled (Offset, Adjust set)
//   - EventGlideCommitted: a glide finished and Offset moved
//   - EventSourceEnded: Run's event source finished
//
// Glide events are sampled once per tick. Only the most recent Watch()
// channel receives events.
func (s *Synth) Watch() <-chan PlaybackEvent {
	ch := make(chan PlaybackEvent, 16)
	s.eventChMu.Lock()
	s.eventCh = ch
	s.eventChMu.Unlock()
	return ch
}

func (s *Synth) sendEvent(ev PlaybackEvent) {
	s.eventChMu.Lock()
	ch := s.eventCh
	s.eventChMu.Unlock()
	if ch != nil {
		select {
		case ch <- ev:
		default:
			// Channel full; drop event
		}
	}
}

// Close silences the output, then stops the ticker and releases the device.
// Pending commands are discarded.
func (s *Synth) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.engine.Stop()
	backend := s.backend
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	var err error
	if backend != nil {
		err = backend.Close()
		s.log.Info("audio stopped", "backend", backend.Name())
	}
	st := s.engine.Stats()
	if st.UnknownNoteOffs > 0 {
		s.log.Info("note-offs without a sounding note", "count", st.UnknownNoteOffs)
	}
	return err
}
