package feed

import (
	"context"
	"time"
)

// SliceSource replays a fixed list of events.
type SliceSource struct {
	Events []Event
	// Paced makes Run sleep each Delta before emitting.
	Paced bool
}

func (s *SliceSource) Live() bool { return false }

func (s *SliceSource) Run(ctx context.Context, emit func(Event) error) error {
	for _, ev := range s.Events {
		if s.Paced {
			if err := sleep(ctx, ev.Delta); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(ev.Normalize()); err != nil {
			return err
		}
	}
	return nil
}

// Duration is the sum of all deltas.
func (s *SliceSource) Duration() time.Duration {
	var d time.Duration
	for _, ev := range s.Events {
		d += ev.Delta
	}
	return d
}
