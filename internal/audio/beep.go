package audio

import (
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
)

const beepDefaultBuffer = 50 * time.Millisecond

// beepBackend hands the reader to beep's speaker as a Streamer.
type beepBackend struct {
	opts   Options
	reader *StreamReader
	ctrl   *beep.Ctrl
}

func newBeepBackend(source SampleSource, opts Options) *beepBackend {
	return &beepBackend{
		opts:   opts,
		reader: NewStreamReader(source, opts.SampleRate, opts.BlockSize, 2),
	}
}

func (b *beepBackend) Name() string { return "beep" }

func (b *beepBackend) Start() error {
	sr := beep.SampleRate(b.opts.SampleRate)
	buffer := b.opts.BufferFrames
	if buffer <= 0 {
		buffer = sr.N(beepDefaultBuffer)
	}
	if err := speaker.Init(sr, buffer); err != nil {
		return err
	}
	b.ctrl = &beep.Ctrl{Streamer: b.reader}
	speaker.Play(b.ctrl)
	return nil
}

func (b *beepBackend) Close() error {
	b.reader.Silence()
	if b.ctrl == nil {
		return nil
	}
	speaker.Lock()
	b.ctrl.Paused = true
	speaker.Unlock()
	speaker.Clear()
	speaker.Close()
	b.ctrl = nil
	return nil
}
