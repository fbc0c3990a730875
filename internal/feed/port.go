package feed

import (
	"context"
	"fmt"
	"strconv"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// PortSource listens to a live MIDI input. A driver must be registered by
// importing one, e.g. gitlab.com/gomidi/midi/v2/drivers/rtmididrv.
type PortSource struct {
	// Port is a port name (substring match) or number. Empty picks port 0.
	Port string
	// Buffer bounds the events held between the driver callback and emit.
	Buffer int
}

func (p *PortSource) Live() bool { return true }

// Ports lists the available input port names.
func Ports() []string {
	var names []string
	for _, in := range midi.GetInPorts() {
		names = append(names, in.String())
	}
	return names
}

func (p *PortSource) open() (drivers.In, error) {
	if len(midi.GetInPorts()) == 0 {
		return nil, ErrNoPort
	}
	if p.Port == "" {
		in, err := midi.InPort(0)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoPort, err)
		}
		return in, nil
	}
	if n, err := strconv.Atoi(p.Port); err == nil {
		in, err := midi.InPort(n)
		if err != nil {
			return nil, fmt.Errorf("%w %d: %v", ErrNoPort, n, err)
		}
		return in, nil
	}
	in, err := midi.FindInPort(p.Port)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrNoPort, p.Port, err)
	}
	return in, nil
}

// Run forwards note events until ctx is done or the listener fails. The
// driver callback never blocks: when the buffer is full the event is dropped.
func (p *PortSource) Run(ctx context.Context, emit func(Event) error) error {
	in, err := p.open()
	if err != nil {
		return err
	}
	size := p.Buffer
	if size <= 0 {
		size = 256
	}
	events := make(chan Event, size)
	failed := make(chan error, 1)

	stop, err := midi.ListenTo(in, func(msg midi.Message, _ int32) {
		ev, ok := decode(msg)
		if !ok {
			return
		}
		select {
		case events <- ev:
		default:
		}
	}, midi.HandleError(func(err error) {
		select {
		case failed <- err:
		default:
		}
	}))
	if err != nil {
		return fmt.Errorf("listen %s: %w", in.String(), err)
	}
	defer func() {
		stop()
		_ = in.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-failed:
			return fmt.Errorf("midi input %s: %w", in.String(), err)
		case ev := <-events:
			if err := emit(ev); err != nil {
				return err
			}
		}
	}
}

func decode(msg midi.Message) (Event, bool) {
	var ch, key, vel uint8
	switch {
	case msg.GetNoteStart(&ch, &key, &vel):
		return Event{Kind: NoteOn, Pitch: int(key), Velocity: int(vel)}, true
	case msg.GetNoteEnd(&ch, &key):
		return Event{Kind: NoteOff, Pitch: int(key)}, true
	}
	return Event{}, false
}
