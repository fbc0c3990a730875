package glidesynth

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/cbegin/glidesynth/internal/engine"
	"github.com/cbegin/glidesynth/internal/feed"
)

// stamp assigns ev its start or end frame. Replayed events advance the event
// clock by their delta; live events land just past the block being rendered,
// because their arrival time has no relation to the replay clock.
func (s *Synth) stamp(ev feed.Event, live bool) int64 {
	if live {
		return s.engine.FrameClock() + int64(s.cfg.BlockSize) + 1
	}
	s.eventClock += int64(math.Floor(ev.Delta.Seconds() * float64(s.cfg.SampleRate)))
	return s.eventClock
}

func (s *Synth) ingest(ctx context.Context, ev feed.Event, live bool) error {
	return s.enqueue(ctx, ev, s.stamp(ev, live))
}

func (s *Synth) enqueue(ctx context.Context, ev feed.Event, at int64) error {
	var err error
	switch ev.Kind {
	case feed.NoteOn:
		err = s.engine.NoteOn(ctx, ev.Pitch, ev.Velocity, at)
	case feed.NoteOff:
		err = s.engine.NoteOff(ctx, ev.Pitch, at)
	default:
		return nil
	}
	if errors.Is(err, engine.ErrStopped) {
		return ErrClosed
	}
	if err != nil {
		return fmt.Errorf("%s %d at frame %d: %w", ev.Kind, ev.Pitch, at, err)
	}
	return nil
}
