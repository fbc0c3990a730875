package engine

import (
	"context"
	"sort"
)

// Note is the envelope timing of one sounding pitch.
type Note struct {
	StartFrame int64
	EndFrame   int64
	HasEnd     bool // false while at least one hold is active
	Channels   int  // concurrent holds on this pitch
	Velocity   int  // loudest velocity requested while held

	// A re-strike stamped after the release began restarts the note at
	// RestartFrame; until then the release plays out.
	RestartFrame int64
	Restarting   bool

	nextEnd    int64 // release requested for the restarted note
	hasNextEnd bool
}

// restart starts the note over at RestartFrame with a fresh attack.
func (n *Note) restart() {
	n.StartFrame = n.RestartFrame
	n.EndFrame, n.HasEnd = n.nextEnd, n.hasNextEnd
	n.Restarting = false
	n.nextEnd, n.hasNextEnd = 0, false
}

// NoteOn queues a hold on pitch starting at frame at. The initial loop is
// built here, on the caller's goroutine, at the currently committed glide
// offset; neighbouring pitches a glide may reach are cached as well.
func (e *Engine) NoteOn(ctx context.Context, pitch, velocity int, at int64) error {
	offset := int(e.glideOffset.Load())
	loop, err := e.cache.Sine(pitch + offset)
	if err != nil {
		return err
	}
	e.cache.Prewarm(pitch+offset-maxGlideStep, pitch+offset+maxGlideStep)
	return e.send(ctx, command{
		kind:     cmdNoteOn,
		pitch:    pitch,
		velocity: velocity,
		frame:    at,
		offset:   offset,
		loop:     loop,
	})
}

// NoteOff queues the release of one hold on pitch at frame at.
func (e *Engine) NoteOff(ctx context.Context, pitch int, at int64) error {
	return e.send(ctx, command{kind: cmdNoteOff, pitch: pitch, frame: at})
}

func (e *Engine) holdStart(c command) {
	e.playing = true
	if v, ok := e.voices[c.pitch]; ok {
		v.note.Channels++
		if c.velocity > v.note.Velocity {
			v.note.Velocity = c.velocity
		}
		switch {
		case v.note.Restarting:
			v.note.hasNextEnd = false
		case v.note.HasEnd && c.frame <= v.note.EndFrame:
			// Held again before the release began.
			v.note.HasEnd = false
			v.note.EndFrame = 0
		case v.note.HasEnd:
			v.note.Restarting = true
			v.note.RestartFrame = c.frame
		}
		return
	}

	loop, offset := c.loop, c.offset
	if offset != e.glide.Offset || len(loop) == 0 {
		// A glide committed while the command was queued.
		if buf := e.sine(c.pitch + e.glide.Offset); buf != nil {
			loop, offset = buf, e.glide.Offset
		}
	}
	if len(loop) == 0 {
		return
	}
	e.voices[c.pitch] = &voice{
		pitch: c.pitch,
		note: Note{
			StartFrame: c.frame,
			Channels:   1,
			Velocity:   c.velocity,
		},
		loop: Loop{buffer: loop, offset: offset},
	}
	i := sort.SearchInts(e.order, c.pitch)
	e.order = append(e.order, 0)
	copy(e.order[i+1:], e.order[i:])
	e.order[i] = c.pitch
	e.activeNotes.Store(int32(len(e.voices)))
}

func (e *Engine) holdEnd(pitch int, at int64) {
	v, ok := e.voices[pitch]
	if !ok || v.note.Channels == 0 {
		e.unknownNoteOffs.Add(1)
		return
	}
	v.note.Channels--
	if v.note.Channels > 0 {
		return
	}
	switch {
	case v.note.Restarting && at <= v.note.RestartFrame:
		// Released before it restarted: the first release stands.
		v.note.Restarting = false
	case v.note.Restarting:
		v.note.nextEnd, v.note.hasNextEnd = at, true
	default:
		v.note.EndFrame = at
		v.note.HasEnd = true
	}
}

// retire drops voices whose release has played out by the end of a block of
// n frames starting after the current clock.
func (e *Engine) retire(n int64) {
	ramp := int64(e.params.Ramp)
	kept := e.order[:0]
	for _, pitch := range e.order {
		v := e.voices[pitch]
		if v.note.HasEnd && !v.note.Restarting {
			limit := v.note.EndFrame + ramp
			if e.params.LegacyRetire {
				limit = v.note.EndFrame
			}
			if e.clock+n >= limit {
				delete(e.voices, pitch)
				continue
			}
		}
		kept = append(kept, pitch)
	}
	e.order = kept
}

// IsActive reports whether pitch has a registry entry. Like Note and Loop it
// must be called from the goroutine that drives FillBlock.
func (e *Engine) IsActive(pitch int) bool {
	_, ok := e.voices[pitch]
	return ok
}

// Note returns a copy of the registry entry for pitch.
func (e *Engine) Note(pitch int) (Note, bool) {
	v, ok := e.voices[pitch]
	if !ok {
		return Note{}, false
	}
	return v.note, true
}

// Pitches returns the sounding pitches in ascending order.
func (e *Engine) Pitches() []int {
	out := make([]int, len(e.order))
	copy(out, e.order)
	return out
}
