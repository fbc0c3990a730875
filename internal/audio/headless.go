package audio

import (
	"sync"
	"time"
)

// Headless pulls blocks on a wall-clock ticker and throws them away. It keeps
// the engine running at real-time pace without an audio device.
type Headless struct {
	opts   Options
	reader *StreamReader
	period time.Duration

	mu     sync.Mutex
	stop   chan struct{}
	wg     sync.WaitGroup
	frames int64
}

// NewHeadless returns a device-free backend.
func NewHeadless(source SampleSource, opts Options) *Headless {
	return &Headless{
		opts:   opts,
		reader: NewStreamReader(source, opts.SampleRate, opts.BlockSize, 1),
		period: 10 * time.Millisecond,
	}
}

func (h *Headless) Name() string { return "headless" }

func (h *Headless) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stop != nil {
		return nil
	}
	h.stop = make(chan struct{})
	h.wg.Add(1)
	go h.loop(h.stop)
	return nil
}

func (h *Headless) loop(stop <-chan struct{}) {
	defer h.wg.Done()
	ticker := time.NewTicker(h.period)
	defer ticker.Stop()

	frames := int(h.period * time.Duration(h.opts.SampleRate) / time.Second)
	if frames <= 0 {
		frames = 1
	}
	out := make([]byte, frames*4)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			n, _ := h.reader.Read(out)
			h.mu.Lock()
			h.frames += int64(n / 4)
			h.mu.Unlock()
		}
	}
}

// Frames reports how many frames have been pulled so far.
func (h *Headless) Frames() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frames
}

func (h *Headless) Close() error {
	h.reader.Silence()
	h.mu.Lock()
	stop := h.stop
	h.stop = nil
	h.mu.Unlock()
	if stop != nil {
		close(stop)
		h.wg.Wait()
	}
	return nil
}
