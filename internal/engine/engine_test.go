package engine

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/cbegin/glidesynth/internal/wave"
)

// render drives e for frames frames in blocks of block and returns the
// output; out[i] is frame clock0+1+i.
func render(e *Engine, frames, block int) []float32 {
	out := make([]float32, 0, frames)
	buf := make([]float32, block)
	for len(out) < frames {
		n := block
		if rem := frames - len(out); rem < n {
			n = rem
		}
		e.FillBlock(buf[:n], nil)
		out = append(out, buf[:n]...)
	}
	return out
}

// constVoice installs a voice whose loop is a constant, bypassing the queue.
func constVoice(e *Engine, pitch int, value float32, start int64) {
	e.voices[pitch] = &voice{
		pitch: pitch,
		note:  Note{StartFrame: start, Channels: 1, Velocity: 100},
		loop:  Loop{buffer: []float32{value, value, value, value}},
	}
	e.order = append(e.order, pitch)
	e.playing = true
}

func TestSilentUntilFirstNote(t *testing.T) {
	e := New(44100, DefaultParams())
	out := render(e, 28*4, 28)
	for i, s := range out {
		if s != 0 {
			t.Fatalf("sample %d = %f before any note", i, s)
		}
	}
	if got := e.FrameClock(); got != 0 {
		t.Fatalf("frame clock advanced to %d before playback started", got)
	}
}

func TestFillBlockAdvancesClockByRequestedFrames(t *testing.T) {
	e := New(44100, DefaultParams())
	if err := e.NoteOn(context.Background(), 69, 100, 0); err != nil {
		t.Fatal(err)
	}
	total := 0
	for _, n := range []int{28, 1, 512, 28, 7} {
		buf := make([]float32, n)
		for i := range buf {
			buf[i] = 42
		}
		e.FillBlock(buf, nil)
		total += n
		for i, s := range buf {
			if s == 42 {
				t.Fatalf("block of %d: sample %d left unfilled", n, i)
			}
		}
		if got := e.FrameClock(); got != int64(total) {
			t.Fatalf("frame clock = %d, want %d", got, total)
		}
	}
}

func TestBlockNormalizationTwoConstantNotes(t *testing.T) {
	p := DefaultParams()
	p.Ramp = 0
	e := New(44100, p)
	constVoice(e, 60, 1, 0)
	constVoice(e, 64, 1, 0)

	out := render(e, 28, 28)
	for i, s := range out {
		if s != 1 {
			t.Fatalf("sample %d = %f, want 1.0", i, s)
		}
	}
}

func TestBlockNormalizationIsPerBlockNotPerSample(t *testing.T) {
	p := DefaultParams()
	p.Ramp = 0
	e := New(44100, p)
	constVoice(e, 60, 1, 0)
	constVoice(e, 64, 1, 15) // joins halfway through the first block
	constVoice(e, 67, 1, 1000)

	out := render(e, 28, 28)
	for i, s := range out {
		f := i + 1
		want := float32(0.5)
		if f >= 15 {
			want = 1
		}
		if s != want {
			t.Fatalf("frame %d = %f, want %f", f, s, want)
		}
	}
}

func TestEnvelopeBoundaries(t *testing.T) {
	e := New(44100, DefaultParams())
	const start = 100
	if err := e.NoteOn(context.Background(), 69, 100, start); err != nil {
		t.Fatal(err)
	}
	loop, err := wave.SineLoop(440, 44100)
	if err != nil {
		t.Fatal(err)
	}
	out := render(e, 200, 28)

	for f := 1; f < start; f++ {
		if out[f-1] != 0 {
			t.Fatalf("frame %d before start = %f", f, out[f-1])
		}
	}
	if out[start-1] != 0 {
		t.Fatalf("frame at start = %f, want 0", out[start-1])
	}
	full := loop[(start+12-1)%len(loop)]
	if got := out[start+12-1]; got != full {
		t.Fatalf("frame at start+ramp = %f, want unramped %f", got, full)
	}
	half := loop[(start+6-1)%len(loop)] * 0.5
	if got := out[start+6-1]; math.Abs(float64(got-half)) > 1e-6 {
		t.Fatalf("frame mid-ramp = %f, want %f", got, half)
	}
}

func TestNoteLifecycleScenario(t *testing.T) {
	const (
		sr    = 44100
		block = 28
		ramp  = 12
		end   = 44100
	)
	e := New(sr, DefaultParams())
	ctx := context.Background()
	if err := e.NoteOn(ctx, 69, 100, 0); err != nil {
		t.Fatal(err)
	}
	if err := e.NoteOff(ctx, 69, end); err != nil {
		t.Fatal(err)
	}
	loop, err := wave.SineLoop(wave.Frequency(69), sr)
	if err != nil {
		t.Fatal(err)
	}

	out := render(e, block, block)
	n, ok := e.Note(69)
	if !ok {
		t.Fatal("note 69 not registered")
	}
	if !n.HasEnd || n.EndFrame != end || n.StartFrame != 0 || n.Velocity != 100 {
		t.Fatalf("unexpected note %+v", n)
	}
	out = append(out, render(e, end+4*block-block, block)...)

	for i, s := range out {
		f := i + 1
		gain := float32(1)
		switch {
		case f <= ramp:
			gain = float32(f) / float32(ramp)
		case f >= end && f <= end+ramp:
			gain = 1 - float32(f-end)/float32(ramp)
		case f > end+ramp:
			gain = 0
		}
		want := loop[(f-1)%len(loop)] * gain
		if math.Abs(float64(s-want)) > 1e-6 {
			t.Fatalf("frame %d = %f, want %f", f, s, want)
		}
	}
	if e.IsActive(69) {
		t.Fatal("note should be retired after its release ramp")
	}
	if got := e.Stats().ActiveNotes; got != 0 {
		t.Fatalf("active notes = %d, want 0", got)
	}
}

func TestRetireBoundary(t *testing.T) {
	for _, tc := range []struct {
		name   string
		legacy bool
		// clock after the last block in which the note is still registered
		lastAlive int64
	}{
		{"release ramp plays out", false, 44100},
		{"eager legacy boundary", true, 44072},
	} {
		t.Run(tc.name, func(t *testing.T) {
			p := DefaultParams()
			p.LegacyRetire = tc.legacy
			e := New(44100, p)
			ctx := context.Background()
			_ = e.NoteOn(ctx, 69, 100, 0)
			_ = e.NoteOff(ctx, 69, 44100)
			buf := make([]float32, 28)
			for e.FrameClock() < tc.lastAlive {
				e.FillBlock(buf, nil)
				if !e.IsActive(69) {
					t.Fatalf("retired early at clock %d", e.FrameClock())
				}
			}
			e.FillBlock(buf, nil)
			if e.IsActive(69) {
				t.Fatalf("still active at clock %d", e.FrameClock())
			}
		})
	}
}

func TestLegacyRetireCutsReleaseShort(t *testing.T) {
	p := DefaultParams()
	p.LegacyRetire = true
	e := New(44100, p)
	ctx := context.Background()
	_ = e.NoteOn(ctx, 69, 100, 0)
	_ = e.NoteOff(ctx, 69, 44100)
	out := render(e, 44100+56, 28)
	for f := 44101; f <= len(out); f++ {
		if out[f-1] != 0 {
			t.Fatalf("frame %d = %f after eager retirement", f, out[f-1])
		}
	}
}

func TestSinkStatusIsRecordedAndBlockStillFilled(t *testing.T) {
	e := New(44100, DefaultParams())
	_ = e.NoteOn(context.Background(), 69, 100, 0)
	underrun := errors.New("output underflow")
	buf := make([]float32, 64)
	e.FillBlock(buf, underrun)

	var energy float64
	for _, s := range buf {
		energy += math.Abs(float64(s))
	}
	if energy == 0 {
		t.Fatal("expected audio despite sink status")
	}
	st := e.Stats()
	if st.Statuses != 1 || !errors.Is(st.LastStatus, underrun) {
		t.Fatalf("stats = %+v", st)
	}
}

func TestStopSilencesAndRejectsCommands(t *testing.T) {
	e := New(44100, DefaultParams())
	ctx := context.Background()
	_ = e.NoteOn(ctx, 69, 100, 0)
	render(e, 280, 28)
	_ = e.NoteOff(ctx, 69, 400)
	e.Stop()
	if n := e.Pending(); n != 0 {
		t.Fatalf("%d commands still queued after Stop", n)
	}

	out := render(e, 280, 28)
	for i, s := range out {
		if s != 0 {
			t.Fatalf("sample %d = %f after Stop", i, s)
		}
	}
	if err := e.NoteOn(ctx, 70, 100, 0); !errors.Is(err, ErrStopped) {
		t.Fatalf("NoteOn after Stop: err = %v", err)
	}
	if !e.Stats().Stopped {
		t.Fatal("stats should report stopped")
	}
}

func TestFullQueueHonoursContext(t *testing.T) {
	p := DefaultParams()
	p.QueueSize = 1
	e := New(44100, p)
	if err := e.NoteOn(context.Background(), 60, 100, 0); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := e.NoteOn(ctx, 62, 100, 0); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestNewAppliesDefaults(t *testing.T) {
	e := New(0, Params{Ramp: -4})
	p := e.Params()
	if e.SampleRate() != 44100 || p.BlockSize != 28 || p.Ramp != 0 || p.QueueSize != 256 {
		t.Fatalf("unexpected defaults: sr=%d %+v", e.SampleRate(), p)
	}
}

func BenchmarkFillBlock(b *testing.B) {
	e := New(44100, DefaultParams())
	ctx := context.Background()
	for p := 48; p < 64; p++ {
		_ = e.NoteOn(ctx, p, 100, 0)
	}
	buf := make([]float32, 28)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.FillBlock(buf, nil)
	}
}
