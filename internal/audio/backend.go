package audio

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownBackend is returned by NewBackend for an unsupported name.
var ErrUnknownBackend = errors.New("unknown audio backend")

// Backend is an output device pulling blocks from a SampleSource.
type Backend interface {
	Name() string
	Start() error
	// Close silences the stream, then releases the device.
	Close() error
}

// Options configures a backend.
type Options struct {
	SampleRate int
	BlockSize  int
	// BufferFrames is the device-side buffer; 0 lets the backend choose.
	BufferFrames int
}

// Backends lists the names NewBackend accepts.
func Backends() []string {
	return []string{"ebiten", "oto", "beep", "headless"}
}

// NewBackend builds the named backend without starting it.
func NewBackend(name string, source SampleSource, opts Options) (Backend, error) {
	if opts.SampleRate <= 0 {
		return nil, fmt.Errorf("audio: sample rate %d must be positive", opts.SampleRate)
	}
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ebiten", "":
		return newEbitenBackend(source, opts), nil
	case "oto":
		return newOtoBackend(source, opts), nil
	case "beep":
		return newBeepBackend(source, opts), nil
	case "headless":
		return NewHeadless(source, opts), nil
	default:
		return nil, fmt.Errorf("%w %q (expected %s)", ErrUnknownBackend, name, strings.Join(Backends(), "|"))
	}
}
