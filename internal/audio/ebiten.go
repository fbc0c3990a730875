package audio

import (
	"fmt"
	"sync"
	"time"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

var (
	audioContextOnce sync.Once
	audioContext     *ebitaudio.Context
	audioSampleRate  int
)

// ebiten allows a single audio context per process.
func sharedAudioContext(sampleRate int) (*ebitaudio.Context, error) {
	audioContextOnce.Do(func() {
		audioSampleRate = sampleRate
		audioContext = ebitaudio.NewContext(sampleRate)
	})
	if audioSampleRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", audioSampleRate, sampleRate)
	}
	return audioContext, nil
}

// ebitenBackend plays through ebiten's float32 stereo player; the mono
// signal is written to both channels.
type ebitenBackend struct {
	opts   Options
	reader *StreamReader
	player *ebitaudio.Player
}

func newEbitenBackend(source SampleSource, opts Options) *ebitenBackend {
	return &ebitenBackend{
		opts:   opts,
		reader: NewStreamReader(source, opts.SampleRate, opts.BlockSize, 2),
	}
}

func (b *ebitenBackend) Name() string { return "ebiten" }

func (b *ebitenBackend) Start() error {
	ctx, err := sharedAudioContext(b.opts.SampleRate)
	if err != nil {
		return err
	}
	pl, err := ctx.NewPlayerF32(b.reader)
	if err != nil {
		return err
	}
	if b.opts.BufferFrames > 0 {
		pl.SetBufferSize(time.Duration(b.opts.BufferFrames) * time.Second / time.Duration(b.opts.SampleRate))
	}
	b.player = pl
	pl.Play()
	return nil
}

func (b *ebitenBackend) Close() error {
	b.reader.Silence()
	if b.player == nil {
		return nil
	}
	b.player.Pause()
	err := b.player.Close()
	b.player = nil
	return err
}
