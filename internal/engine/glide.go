package engine

import (
	"context"
	"math/rand"
)

// maxGlideStep is the largest semitone jump a single glide may take.
const maxGlideStep = 3

// Glide is the process-wide pitch glide window. StopFrame == 0 means no
// glide is in flight.
type Glide struct {
	Offset     int // committed semitone offset applied to every note
	Adjust     int // pending delta being glided to
	StartFrame int64
	StopFrame  int64
}

// Active reports whether a glide window is armed.
func (g Glide) Active() bool { return g.StopFrame != 0 }

// Glide returns the current window. Same goroutine rules as Note.
func (e *Engine) Glide() Glide { return e.glide }

// ArmGlide queues a glide of adjust semitones over [start, stop). The engine
// ignores it if another glide is still pending when the command is applied.
func (e *Engine) ArmGlide(ctx context.Context, adjust int, start, stop int64) error {
	return e.send(ctx, command{kind: cmdArmGlide, adjust: adjust, start: start, stop: stop})
}

// GlidePending reports, from any goroutine, whether a glide awaits commit.
func (e *Engine) GlidePending() bool { return e.glideAdjust.Load() != 0 }

// Tick is the once-per-second glide roll. With probability drinks% (capped at
// 100) and no glide pending, it arms a glide of ±1..3 semitones starting one
// block ahead and lasting 1 to 3 seconds. It reports whether a glide was
// queued.
func (e *Engine) Tick(ctx context.Context, rng *rand.Rand, drinks int) (bool, error) {
	if drinks <= 0 || e.GlidePending() {
		return false, nil
	}
	if drinks > 100 {
		drinks = 100
	}
	if rng.Intn(100)+1 > drinks {
		return false, nil
	}
	adjust := rng.Intn(maxGlideStep) + 1
	if rng.Intn(2) == 0 {
		adjust = -adjust
	}
	seconds := int64(rng.Intn(3) + 1)
	start := e.frameClock.Load() + int64(e.params.BlockSize)
	stop := start + seconds*int64(e.sampleRate)
	if err := e.ArmGlide(ctx, adjust, start, stop); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) armGlide(adjust int, start, stop int64) {
	if adjust == 0 || e.glide.Adjust != 0 || e.glide.Active() || stop <= start || stop <= 0 {
		return
	}
	e.glide.Adjust = adjust
	e.glide.StartFrame = start
	e.glide.StopFrame = stop
	e.glideAdjust.Store(int32(adjust))
}

// commitGlide folds a finished window into the offset.
func (e *Engine) commitGlide() {
	g := &e.glide
	if !g.Active() || e.clock <= g.StopFrame {
		return
	}
	g.Offset += g.Adjust
	g.Adjust = 0
	g.StartFrame = 0
	g.StopFrame = 0
	e.glideOffset.Store(int32(g.Offset))
	e.glideAdjust.Store(0)
}
