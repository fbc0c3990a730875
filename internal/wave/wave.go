package wave

import (
	"errors"
	"fmt"
	"math"
)

const twoPi = math.Pi * 2

// ErrInvalidParameter is returned when a generator is asked for a
// non-positive or non-finite rate or frequency.
var ErrInvalidParameter = errors.New("invalid waveform parameter")

// Frequency returns the frequency in Hz of a pitch in semitones, A4 = 69 = 440 Hz.
func Frequency(pitch float64) float64 {
	return 440 * math.Pow(2, (pitch-69)/12)
}

// SineLoop returns one cycle of a unit sine at freq, truncated to
// floor(sampleRate/freq) samples. The two samples either side of the
// truncation seam are smoothed with a 3-point average.
func SineLoop(freq, sampleRate float64) ([]float32, error) {
	if err := positive("frequency", freq); err != nil {
		return nil, err
	}
	if err := positive("sample rate", sampleRate); err != nil {
		return nil, err
	}
	n := int(sampleRate / freq)
	if n <= 0 {
		return nil, fmt.Errorf("%w: frequency %g Hz is above sample rate %g Hz", ErrInvalidParameter, freq, sampleRate)
	}
	buf := make([]float32, n)
	for i := range buf {
		buf[i] = float32(math.Sin(twoPi * float64(i) * freq / sampleRate))
	}
	for _, i := range [...]int{n - 2, 1} {
		i = wrap(i, n)
		buf[i] = (buf[wrap(i-1, n)] + buf[i] + buf[wrap(i+1, n)]) / 3
	}
	return buf, nil
}

// Chirp returns floor(sampleRate/repRate) samples of a linear sweep from f0 to
// f1 lasting T = 1/repRate seconds. Sample times are evenly spaced over [0, T]
// inclusive, so the last sample sits exactly at T where the instantaneous
// frequency is f1.
func Chirp(sampleRate, repRate, f0, f1, phase float64) ([]float32, error) {
	if err := positive("sample rate", sampleRate); err != nil {
		return nil, err
	}
	if err := positive("repetition rate", repRate); err != nil {
		return nil, err
	}
	if !finite(f0) || !finite(f1) {
		return nil, fmt.Errorf("%w: chirp endpoints %g..%g Hz", ErrInvalidParameter, f0, f1)
	}
	n := int(sampleRate / repRate)
	if n <= 0 {
		return nil, fmt.Errorf("%w: repetition rate %g Hz leaves no samples at %g Hz", ErrInvalidParameter, repRate, sampleRate)
	}
	return chirp(n, 1/repRate, f0, f1, phase), nil
}

// ChirpFrames is Chirp expressed as a frame count: n samples sweeping f0 to f1
// over n/sampleRate seconds.
func ChirpFrames(n int, sampleRate, f0, f1, phase float64) ([]float32, error) {
	seg, err := NewSegment(n, sampleRate, f0, f1, phase)
	if err != nil {
		return nil, err
	}
	return seg.Render(), nil
}

// Segment is a chirp described by its endpoints and evaluated one sample at a
// time, so a player can sweep without allocating a buffer.
type Segment struct {
	n      int
	step   float64
	period float64
	f0, f1 float64
	phase  float64
}

// NewSegment describes the same sweep ChirpFrames renders.
func NewSegment(n int, sampleRate, f0, f1, phase float64) (Segment, error) {
	if n <= 0 {
		return Segment{}, fmt.Errorf("%w: chirp length %d", ErrInvalidParameter, n)
	}
	if err := positive("sample rate", sampleRate); err != nil {
		return Segment{}, err
	}
	if !finite(f0) || !finite(f1) {
		return Segment{}, fmt.Errorf("%w: chirp endpoints %g..%g Hz", ErrInvalidParameter, f0, f1)
	}
	return newSegment(n, float64(n)/sampleRate, f0, f1, phase), nil
}

func newSegment(n int, period, f0, f1, phase float64) Segment {
	step := 0.0
	if n > 1 {
		step = period / float64(n-1)
	}
	return Segment{n: n, step: step, period: period, f0: f0, f1: f1, phase: phase}
}

// Len is the number of samples in the segment.
func (s Segment) Len() int { return s.n }

// At returns sample i, 0 <= i < Len().
func (s Segment) At(i int) float32 {
	return float32(math.Sin(ChirpPhase(float64(i)*s.step, s.period, s.f0, s.f1, s.phase)))
}

// Render returns every sample of the segment.
func (s Segment) Render() []float32 {
	buf := make([]float32, s.n)
	for i := range buf {
		buf[i] = s.At(i)
	}
	return buf
}

func chirp(n int, period, f0, f1, phase float64) []float32 {
	return newSegment(n, period, f0, f1, phase).Render()
}

// ChirpPhase is the instantaneous phase in radians at time t of a sweep from
// f0 to f1 over period seconds.
func ChirpPhase(t, period, f0, f1, phase float64) float64 {
	c := (f1 - f0) / period
	return twoPi*(c*t*t/2+f0*t) + phase
}

// ChirpFrequencyAt is the instantaneous frequency at time t of the same sweep.
func ChirpFrequencyAt(t, period, f0, f1 float64) float64 {
	return f0 + (f1-f0)*t/period
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func positive(name string, v float64) error {
	if v <= 0 || !finite(v) {
		return fmt.Errorf("%w: %s %g", ErrInvalidParameter, name, v)
	}
	return nil
}

func wrap(i, n int) int {
	i %= n
	if i < 0 {
		i += n
	}
	return i
}
