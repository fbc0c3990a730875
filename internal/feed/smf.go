package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// SMFSource replays the note events of a Standard MIDI File. Tracks are
// merged by absolute time; channels are ignored.
type SMFSource struct {
	events []Event
	// NoPacing emits every event immediately. Used for offline rendering.
	NoPacing bool
}

// OpenSMF reads and decodes the file at path.
func OpenSMF(path string) (*SMFSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	src, err := ReadSMF(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return src, nil
}

// ReadSMF decodes a Standard MIDI File from r.
func ReadSMF(r io.Reader) (*SMFSource, error) {
	type timed struct {
		at int64
		ev Event
	}
	var all []timed
	rd := smf.ReadTracksFrom(r).Do(func(te smf.TrackEvent) {
		ev, ok := decode(midi.Message(te.Message))
		if !ok {
			return
		}
		all = append(all, timed{at: te.AbsMicroSeconds, ev: ev})
	})
	if err := rd.Error(); err != nil {
		return nil, fmt.Errorf("read midi: %w", err)
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].at < all[j].at })
	events := make([]Event, len(all))
	var prev int64
	for i, t := range all {
		ev := t.ev
		ev.Delta = time.Duration(t.at-prev) * time.Microsecond
		prev = t.at
		events[i] = ev
	}
	return &SMFSource{events: events}, nil
}

func (s *SMFSource) Live() bool { return false }

// Events returns the decoded events in playback order.
func (s *SMFSource) Events() []Event { return s.events }

// Duration is the time of the last event.
func (s *SMFSource) Duration() time.Duration {
	return (&SliceSource{Events: s.events}).Duration()
}

func (s *SMFSource) Run(ctx context.Context, emit func(Event) error) error {
	return (&SliceSource{Events: s.events, Paced: !s.NoPacing}).Run(ctx, emit)
}
