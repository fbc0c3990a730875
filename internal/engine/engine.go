package engine

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/cbegin/glidesynth/internal/wave"
)

// ErrStopped is returned by senders once the engine has been flushed.
var ErrStopped = errors.New("engine stopped")

// Params controls the synthesis engine.
type Params struct {
	BlockSize    int  // frames per sink block; also the live scheduling lead
	Ramp         int  // attack/release ramp length in frames (0 = hard edges)
	QueueSize    int  // capacity of the ingestion command queue
	LegacyRetire bool // retire at frameClock+N >= end instead of end+ramp
}

// DefaultParams returns the stock engine settings.
func DefaultParams() Params {
	return Params{
		BlockSize: 28,
		Ramp:      12,
		QueueSize: 256,
	}
}

type commandKind int

const (
	cmdNoteOn commandKind = iota
	cmdNoteOff
	cmdArmGlide
)

type command struct {
	kind     commandKind
	pitch    int
	velocity int
	frame    int64
	offset   int // glide offset the loop was built at
	loop     []float32
	adjust   int
	start    int64
	stop     int64
}

type voice struct {
	pitch int
	note  Note
	loop  Loop
}

// Engine mixes every sounding note into a mono block per FillBlock call.
//
// All note, loop and glide state is owned by the goroutine that calls
// FillBlock. Other goroutines talk to the engine only through NoteOn,
// NoteOff, ArmGlide and Tick, which enqueue commands drained at the start
// of the next block, and through Stats, which reads published counters.
type Engine struct {
	sampleRate int
	params     Params
	cache      *wave.Cache
	cmds       chan command

	voices  map[int]*voice
	order   []int
	glide   Glide
	clock   int64
	playing bool

	frameClock  atomic.Int64
	activeNotes atomic.Int32
	glideOffset atomic.Int32
	glideAdjust atomic.Int32
	stopped     atomic.Bool

	statuses        atomic.Uint64
	lastStatus      atomic.Value // statusRecord
	unknownNoteOffs atomic.Uint64
	synthFailures   atomic.Uint64
	blocks          atomic.Uint64
}

type statusRecord struct{ err error }

// New creates an engine at the given sample rate.
func New(sampleRate int, params Params) *Engine {
	def := DefaultParams()
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	if params.BlockSize <= 0 {
		params.BlockSize = def.BlockSize
	}
	if params.Ramp < 0 {
		params.Ramp = 0
	}
	if params.QueueSize <= 0 {
		params.QueueSize = def.QueueSize
	}
	return &Engine{
		sampleRate: sampleRate,
		params:     params,
		cache:      wave.NewCache(sampleRate),
		cmds:       make(chan command, params.QueueSize),
		voices:     make(map[int]*voice),
		order:      make([]int, 0, 128),
	}
}

// SampleRate returns the engine sample rate.
func (e *Engine) SampleRate() int { return e.sampleRate }

// Params returns the effective parameters after defaults were applied.
func (e *Engine) Params() Params { return e.params }

// FrameClock returns the number of frames delivered so far.
func (e *Engine) FrameClock() int64 { return e.frameClock.Load() }

// Stop switches the engine to silence. Pending and future commands are
// discarded; FillBlock keeps filling zeros so the sink never starves.
func (e *Engine) Stop() {
	e.stopped.Store(true)
	for {
		select {
		case <-e.cmds:
		default:
			return
		}
	}
}

// Pending reports how many commands wait for the next block.
func (e *Engine) Pending() int { return len(e.cmds) }

// Stopped reports whether Stop was called.
func (e *Engine) Stopped() bool { return e.stopped.Load() }

func (e *Engine) send(ctx context.Context, c command) error {
	if e.stopped.Load() {
		return ErrStopped
	}
	select {
	case e.cmds <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// drain applies at most one queue's worth of commands so a flooding sender
// cannot stall a block.
func (e *Engine) drain() {
	for i := 0; i < e.params.QueueSize; i++ {
		select {
		case c := <-e.cmds:
			e.apply(c)
		default:
			return
		}
	}
}

func (e *Engine) apply(c command) {
	switch c.kind {
	case cmdNoteOn:
		e.holdStart(c)
	case cmdNoteOff:
		e.holdEnd(c.pitch, c.frame)
	case cmdArmGlide:
		e.armGlide(c.adjust, c.start, c.stop)
	}
}

// FillBlock writes exactly len(dst) mono samples. A non-nil status is the
// sink's report for this block; it is recorded and never aborts the fill.
func (e *Engine) FillBlock(dst []float32, status error) {
	if status != nil {
		e.statuses.Add(1)
		e.lastStatus.Store(statusRecord{err: status})
	}
	clear(dst)
	if e.stopped.Load() {
		return
	}
	// Commit first so note-ons drained below see the settled offset.
	e.commitGlide()
	e.drain()
	if !e.playing || len(dst) == 0 {
		return
	}

	mixed := 0
	for _, pitch := range e.order {
		if e.render(e.voices[pitch], dst) {
			mixed++
		}
	}
	// Block-level normalization: one divisor for the whole block.
	if mixed > 1 {
		scale := 1 / float32(mixed)
		for i := range dst {
			dst[i] *= scale
		}
	}

	e.retire(int64(len(dst)))
	e.clock += int64(len(dst))
	e.publish()
	e.blocks.Add(1)
}

// render mixes one voice into dst and advances its loop one sample per frame.
// It reports whether the voice contributed to any frame of the block.
func (e *Engine) render(v *voice, dst []float32) bool {
	ramp := int64(e.params.Ramp)
	n := &v.note
	contributed := false
	for x := range dst {
		f := e.clock + 1 + int64(x)
		if n.Restarting && f >= n.RestartFrame {
			n.restart()
		}
		if f >= n.StartFrame && (!n.HasEnd || f <= n.EndFrame+ramp) {
			s := v.loop.sample()
			if ramp > 0 {
				if f <= n.StartFrame+ramp {
					s *= float32(f-n.StartFrame) / float32(ramp)
				}
				if n.HasEnd && f >= n.EndFrame {
					s *= 1 - float32(f-n.EndFrame)/float32(ramp)
				}
			}
			dst[x] += s
			contributed = true
		}
		e.advance(v, f)
	}
	return contributed
}

func (e *Engine) publish() {
	e.frameClock.Store(e.clock)
	e.activeNotes.Store(int32(len(e.voices)))
	e.glideOffset.Store(int32(e.glide.Offset))
	e.glideAdjust.Store(int32(e.glide.Adjust))
}

func (e *Engine) sine(pitch int) []float32 {
	buf, err := e.cache.Sine(pitch)
	if err != nil {
		e.synthFailures.Add(1)
		return nil
	}
	return buf
}

// Stats is a point-in-time view of the published engine counters.
type Stats struct {
	FrameClock      int64
	ActiveNotes     int
	GlideOffset     int
	GlideAdjust     int
	Blocks          uint64
	Statuses        uint64
	LastStatus      error
	UnknownNoteOffs uint64
	SynthFailures   uint64
	Stopped         bool
}

// Stats may be called from any goroutine.
func (e *Engine) Stats() Stats {
	s := Stats{
		FrameClock:      e.frameClock.Load(),
		ActiveNotes:     int(e.activeNotes.Load()),
		GlideOffset:     int(e.glideOffset.Load()),
		GlideAdjust:     int(e.glideAdjust.Load()),
		Blocks:          e.blocks.Load(),
		Statuses:        e.statuses.Load(),
		UnknownNoteOffs: e.unknownNoteOffs.Load(),
		SynthFailures:   e.synthFailures.Load(),
		Stopped:         e.stopped.Load(),
	}
	if rec, ok := e.lastStatus.Load().(statusRecord); ok {
		s.LastStatus = rec.err
	}
	return s
}
