// Package feed produces note events for the synth from MIDI files, live MIDI
// ports or fixed lists.
package feed

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoPort is returned when no MIDI input port matches.
var ErrNoPort = errors.New("no MIDI input port")

// Kind distinguishes note starts from note ends.
type Kind int

const (
	NoteOn Kind = iota
	NoteOff
)

func (k Kind) String() string {
	switch k {
	case NoteOn:
		return "note_on"
	case NoteOff:
		return "note_off"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Event is one note start or end. Delta is the time since the previous event
// of the same source; live sources leave it zero.
type Event struct {
	Kind     Kind
	Pitch    int
	Velocity int
	Delta    time.Duration
}

// Normalize turns a zero-velocity NoteOn into a NoteOff.
func (e Event) Normalize() Event {
	if e.Kind == NoteOn && e.Velocity == 0 {
		e.Kind = NoteOff
	}
	return e
}

// Source delivers events to emit until it runs out, ctx is cancelled or emit
// fails. Live sources stamp events on arrival rather than by Delta.
type Source interface {
	Run(ctx context.Context, emit func(Event) error) error
	Live() bool
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
