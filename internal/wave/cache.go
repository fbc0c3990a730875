package wave

import "sync"

// Cache holds sine loops keyed by integer pitch. Buffers are shared and must
// be treated as read-only. Generation happens outside the lock.
type Cache struct {
	sampleRate float64

	mu    sync.RWMutex
	loops map[int][]float32
}

// NewCache returns an empty cache for the given sample rate.
func NewCache(sampleRate int) *Cache {
	return &Cache{
		sampleRate: float64(sampleRate),
		loops:      make(map[int][]float32),
	}
}

// Sine returns the cached loop for pitch, building it on first use.
func (c *Cache) Sine(pitch int) ([]float32, error) {
	c.mu.RLock()
	buf, ok := c.loops[pitch]
	c.mu.RUnlock()
	if ok {
		return buf, nil
	}

	buf, err := SineLoop(Frequency(float64(pitch)), c.sampleRate)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.loops[pitch]; ok {
		return existing, nil
	}
	c.loops[pitch] = buf
	return buf, nil
}

// Prewarm builds loops for every pitch in [lo, hi] that is not cached yet.
func (c *Cache) Prewarm(lo, hi int) {
	for p := lo; p <= hi; p++ {
		_, _ = c.Sine(p)
	}
}

// Len reports how many loops are cached.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.loops)
}
