package audio

import (
	"fmt"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

var (
	otoOnce       sync.Once
	otoContext    *oto.Context
	otoErr        error
	otoSampleRate int
)

func sharedOtoContext(sampleRate int, buffer time.Duration) (*oto.Context, error) {
	otoOnce.Do(func() {
		otoSampleRate = sampleRate
		var ready chan struct{}
		otoContext, ready, otoErr = oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 1,
			Format:       oto.FormatFloat32LE,
			BufferSize:   buffer,
		})
		if otoErr == nil {
			<-ready
		}
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoSampleRate != sampleRate {
		return nil, fmt.Errorf("oto context already initialized at %d Hz (requested %d Hz)", otoSampleRate, sampleRate)
	}
	return otoContext, nil
}

// otoBackend drives oto directly in mono float32.
type otoBackend struct {
	opts   Options
	reader *StreamReader
	player *oto.Player
}

func newOtoBackend(source SampleSource, opts Options) *otoBackend {
	return &otoBackend{
		opts:   opts,
		reader: NewStreamReader(source, opts.SampleRate, opts.BlockSize, 1),
	}
}

func (b *otoBackend) Name() string { return "oto" }

func (b *otoBackend) Start() error {
	var buffer time.Duration
	if b.opts.BufferFrames > 0 {
		buffer = time.Duration(b.opts.BufferFrames) * time.Second / time.Duration(b.opts.SampleRate)
	}
	ctx, err := sharedOtoContext(b.opts.SampleRate, buffer)
	if err != nil {
		return err
	}
	pl := ctx.NewPlayer(b.reader)
	b.reader.SetSinkErr(pl.Err)
	b.player = pl
	pl.Play()
	return nil
}

func (b *otoBackend) Close() error {
	b.reader.Silence()
	if b.player == nil {
		return nil
	}
	b.player.Pause()
	err := b.player.Close()
	b.player = nil
	return err
}
