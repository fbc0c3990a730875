package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrUnderrun is passed as block status when the sink came back later
	// than the audio it was last given would last.
	ErrUnderrun = errors.New("audio sink underrun")
	// ErrMisaligned is passed as block status when the sink asked for a byte
	// count that is not a whole number of frames.
	ErrMisaligned = errors.New("audio sink requested a partial frame")
)

// SampleSource fills mono blocks. status carries whatever the sink reported
// for the block; the source must fill dst regardless.
type SampleSource interface {
	FillBlock(dst []float32, status error)
}

// StreamReader adapts a SampleSource to the pull-style readers audio
// libraries expect. Each request is split into blockSize-frame blocks so the
// source sees the same cadence whatever buffer size the device uses.
type StreamReader struct {
	mu         sync.Mutex
	source     SampleSource
	sampleRate int
	blockSize  int
	channels   int
	buf        []float32

	now        func() time.Time
	last       time.Time
	lastFrames int
	sinkErr    func() error
	lastSink   error

	silent atomic.Bool
}

// NewStreamReader returns a reader producing float32 little-endian frames
// with the mono signal copied to each of channels.
func NewStreamReader(source SampleSource, sampleRate, blockSize, channels int) *StreamReader {
	if blockSize <= 0 {
		blockSize = 28
	}
	if channels <= 0 {
		channels = 1
	}
	return &StreamReader{
		source:     source,
		sampleRate: sampleRate,
		blockSize:  blockSize,
		channels:   channels,
		buf:        make([]float32, blockSize),
		now:        time.Now,
	}
}

// SetSinkErr installs a check for errors the device reports itself.
func (r *StreamReader) SetSinkErr(fn func() error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinkErr = fn
}

// Silence makes every further read produce zeros without consulting the
// source. Used to flush the device before it is closed.
func (r *StreamReader) Silence() { r.silent.Store(true) }

func (r *StreamReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frameBytes := 4 * r.channels
	frames := len(p) / frameBytes
	var status error
	if len(p)%frameBytes != 0 {
		status = ErrMisaligned
		clear(p[frames*frameBytes:])
	}
	if s := r.status(frames); s != nil {
		status = s
	}

	off := 0
	r.fill(frames, status, func(blk []float32) {
		for _, s := range blk {
			u := math.Float32bits(s)
			for c := 0; c < r.channels; c++ {
				binary.LittleEndian.PutUint32(p[off:], u)
				off += 4
			}
		}
	})
	return len(p), nil
}

// Stream lets the reader drive stereo float64 sinks such as beep.
func (r *StreamReader) Stream(samples [][2]float64) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := r.status(len(samples))
	i := 0
	r.fill(len(samples), status, func(blk []float32) {
		for _, s := range blk {
			samples[i][0] = float64(s)
			samples[i][1] = float64(s)
			i++
		}
	})
	return len(samples), true
}

// Err is part of the beep.Streamer contract; the reader never fails.
func (r *StreamReader) Err() error { return nil }

func (r *StreamReader) Close() error {
	r.Silence()
	return nil
}

// fill pulls frames from the source in blockSize chunks. status is attached
// to the first block only.
func (r *StreamReader) fill(frames int, status error, emit func([]float32)) {
	silent := r.silent.Load()
	for done := 0; done < frames; {
		n := r.blockSize
		if rem := frames - done; rem < n {
			n = rem
		}
		blk := r.buf[:n]
		if silent {
			clear(blk)
		} else {
			r.source.FillBlock(blk, status)
		}
		status = nil
		emit(blk)
		done += n
	}
}

// status works out what to report for a request of frames frames: a device
// error that changed since the last request, else an underrun if the gap
// since the previous request outlasted the audio handed over then.
func (r *StreamReader) status(frames int) error {
	now := r.now()
	defer func() {
		r.last = now
		r.lastFrames = frames
	}()

	if r.sinkErr != nil {
		if err := r.sinkErr(); err != nil && err != r.lastSink {
			r.lastSink = err
			return err
		}
	}
	if r.last.IsZero() || r.lastFrames == 0 || r.sampleRate <= 0 {
		return nil
	}
	delivered := time.Duration(r.lastFrames) * time.Second / time.Duration(r.sampleRate)
	if gap := now.Sub(r.last); gap > 2*delivered {
		return fmt.Errorf("%w: %v gap after %v of audio", ErrUnderrun, gap, delivered)
	}
	return nil
}
