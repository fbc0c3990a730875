package engine

import "github.com/cbegin/glidesynth/internal/wave"

// LoopState is the glide state of a voice's loop.
type LoopState int

const (
	LoopStable        LoopState = iota // single-cycle sine at a fixed pitch
	LoopChirping                       // buffer holds a chirp segment
	LoopChirpJustDone                  // chirp finished; glide window not yet elapsed
)

func (s LoopState) String() string {
	switch s {
	case LoopStable:
		return "stable"
	case LoopChirping:
		return "chirping"
	case LoopChirpJustDone:
		return "chirp-done"
	default:
		return "unknown"
	}
}

// Loop is the waveform a voice replays circularly. The buffer is swapped,
// never written, at wrap boundaries. While chirping the samples come from seg
// and buffer keeps the pre-glide loop.
type Loop struct {
	buffer []float32
	offset int // glide offset buffer was built at
	seg    wave.Segment
	index  int
	state  LoopState

	// Set while chirping or just after: the window this chirp belongs to and
	// the sweep it renders.
	windowStop   int64
	segmentStart int64
	f0, f1       float64
}

func (l *Loop) length() int {
	if l.state == LoopChirping {
		return l.seg.Len()
	}
	return len(l.buffer)
}

func (l *Loop) sample() float32 {
	if l.state == LoopChirping {
		return l.seg.At(l.index)
	}
	return l.buffer[l.index]
}

// LoopInfo describes a voice's loop for inspection.
type LoopInfo struct {
	Len          int
	Index        int
	State        LoopState
	Offset       int   // glide offset of the stable loop
	SegmentStart int64 // first frame of the current or last chirp
	SegmentEnd   int64 // last frame of the current or last chirp
	F0, F1       float64
}

// Loop returns the loop of pitch. Same goroutine rules as Note.
func (e *Engine) Loop(pitch int) (LoopInfo, bool) {
	v, ok := e.voices[pitch]
	if !ok {
		return LoopInfo{}, false
	}
	l := &v.loop
	return LoopInfo{
		Len:          l.length(),
		Index:        l.index,
		State:        l.state,
		Offset:       l.offset,
		SegmentStart: l.segmentStart,
		SegmentEnd:   l.windowStop,
		F0:           l.f0,
		F1:           l.f1,
	}, true
}

// advance moves the read cursor after frame f was emitted and decides the
// next buffer when the cursor wraps.
func (e *Engine) advance(v *voice, f int64) {
	l := &v.loop
	l.index++
	if l.index < l.length() {
		return
	}
	l.index = 0

	g := &e.glide
	switch {
	case l.state == LoopChirping:
		// If the target loop cannot be built the pre-glide loop plays on.
		target := g.Offset + g.Adjust
		if buf := e.sine(v.pitch + target); buf != nil {
			l.buffer, l.offset = buf, target
		}
		l.state = LoopChirpJustDone

	case g.Active() && f >= g.StartFrame && f < g.StopFrame && l.state == LoopStable:
		// One chirp spans the rest of the window so the sweep lands on f1
		// at StopFrame however late the boundary came. Samples are computed
		// as they play; nothing is allocated here.
		f0 := wave.Frequency(float64(v.pitch + l.offset))
		f1 := wave.Frequency(float64(v.pitch + g.Offset + g.Adjust))
		seg, err := wave.NewSegment(int(g.StopFrame-f), float64(e.sampleRate), f0, f1, 0)
		if err != nil {
			e.synthFailures.Add(1)
			return
		}
		l.seg = seg
		l.state = LoopChirping
		l.windowStop = g.StopFrame
		l.segmentStart = f + 1
		l.f0, l.f1 = f0, f1

	case l.state == LoopChirpJustDone && e.clock > l.windowStop:
		l.state = LoopStable

	case l.state == LoopStable && l.offset != g.Offset:
		// Never swept: the note arrived too late in the window to chirp.
		if buf := e.sine(v.pitch + g.Offset); buf != nil {
			l.buffer = buf
		}
		l.offset = g.Offset
	}
}
