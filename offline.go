package glidesynth

import (
	"context"
	"fmt"

	"github.com/cbegin/glidesynth/internal/feed"
)

// Render plays src through a fresh synth with no audio device and returns
// seconds of mono output. Events are queued as their frames come due and
// the glide roll happens every TickInterval of rendered audio, so a fixed
// seed renders identically every time.
func Render(ctx context.Context, src feed.Source, seconds float64, opts ...Option) ([]float32, error) {
	if src.Live() {
		return nil, fmt.Errorf("%w: cannot render a live source", ErrInvalidConfig)
	}
	s, err := New(opts...)
	if err != nil {
		return nil, err
	}
	events, err := collectEvents(ctx, src)
	if err != nil {
		return nil, err
	}
	stamps := make([]int64, len(events))
	for i, ev := range events {
		stamps[i] = s.stamp(ev, false)
	}

	cfg := s.cfg
	frames := int(float64(cfg.SampleRate) * seconds)
	out := make([]float32, frames)
	tickFrames := int(cfg.TickInterval.Seconds() * float64(cfg.SampleRate))
	if tickFrames <= 0 {
		tickFrames = 1
	}
	nextTick := tickFrames
	next := 0
	started := false

	for pos := 0; pos < frames; {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n := min(cfg.BlockSize, frames-pos)
		horizon := s.engine.FrameClock() + int64(n)
		room := cfg.QueueSize - s.engine.Pending() - 1
		for ; next < len(events) && room > 0; next, room = next+1, room-1 {
			if started && stamps[next] > horizon {
				break
			}
			ev := events[next]
			if err := s.enqueue(ctx, ev, stamps[next]); err != nil {
				return nil, err
			}
			started = started || ev.Kind == feed.NoteOn
		}
		if pos >= nextTick {
			nextTick += tickFrames
			if _, err := s.engine.Tick(ctx, s.rng, cfg.Drinks); err != nil {
				return nil, err
			}
		}
		s.FillBlock(out[pos:pos+n], nil)
		pos += n
	}
	return out, nil
}

func collectEvents(ctx context.Context, src feed.Source) ([]feed.Event, error) {
	var list []feed.Event
	switch src := src.(type) {
	case *feed.SliceSource:
		list = src.Events
	case *feed.SMFSource:
		list = src.Events()
	}
	if list != nil {
		events := make([]feed.Event, 0, len(list))
		for _, ev := range list {
			events = append(events, ev.Normalize())
		}
		return events, nil
	}
	var events []feed.Event
	err := src.Run(ctx, func(ev feed.Event) error {
		events = append(events, ev)
		return nil
	})
	return events, err
}
