package glidesynth

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cbegin/glidesynth/internal/audio"
)

// ErrInvalidConfig is returned when a Config fails validation.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds everything a Synth needs before it starts.
type Config struct {
	SampleRate int
	BlockSize  int
	// Ramp is the attack and release length in frames. 0 disables both.
	Ramp int
	// Drinks is the percent chance per tick of arming a glide.
	Drinks    int
	QueueSize int
	Backend   string
	// BufferFrames sizes the device buffer; 0 leaves it to the backend.
	BufferFrames int
	TickInterval time.Duration
	Seed         int64
	// LegacyRetire drops notes as soon as their release starts instead of
	// after the release ramp.
	LegacyRetire bool
	Logger       *slog.Logger
	SampleTap    func([]float32)
}

// DefaultConfig returns the stock settings.
func DefaultConfig() Config {
	return Config{
		SampleRate:   44100,
		BlockSize:    28,
		Ramp:         12,
		QueueSize:    256,
		Backend:      "ebiten",
		TickInterval: time.Second,
		Seed:         time.Now().UnixNano(),
	}
}

type Option func(*Config)

func WithSampleRate(sampleRate int) Option {
	return func(cfg *Config) {
		cfg.SampleRate = sampleRate
	}
}

func WithBlockSize(frames int) Option {
	return func(cfg *Config) {
		cfg.BlockSize = frames
	}
}

func WithRamp(frames int) Option {
	return func(cfg *Config) {
		cfg.Ramp = frames
	}
}

func WithDrinks(percent int) Option {
	return func(cfg *Config) {
		cfg.Drinks = percent
	}
}

// WithQueueSize bounds the commands waiting for the audio goroutine.
func WithQueueSize(n int) Option {
	return func(cfg *Config) {
		cfg.QueueSize = n
	}
}

func WithBackend(name string) Option {
	return func(cfg *Config) {
		cfg.Backend = name
	}
}

func WithBufferFrames(frames int) Option {
	return func(cfg *Config) {
		cfg.BufferFrames = frames
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(cfg *Config) {
		cfg.Logger = logger
	}
}

// WithSeed fixes the glide randomness.
func WithSeed(seed int64) Option {
	return func(cfg *Config) {
		cfg.Seed = seed
	}
}

func WithLegacyRetire(enabled bool) Option {
	return func(cfg *Config) {
		cfg.LegacyRetire = enabled
	}
}

func WithTickInterval(d time.Duration) Option {
	return func(cfg *Config) {
		cfg.TickInterval = d
	}
}

// WithSampleTap installs a callback invoked with each filled block.
// The callback runs on the audio thread; keep work brief and non-blocking.
func WithSampleTap(tap func([]float32)) Option {
	return func(cfg *Config) {
		cfg.SampleTap = tap
	}
}

// Env var names read by LoadEnv.
const (
	EnvSampleRate = "GLIDESYNTH_SAMPLE_RATE"
	EnvBlockSize  = "GLIDESYNTH_BLOCK_SIZE"
	EnvRamp       = "GLIDESYNTH_RAMP"
	EnvDrinks     = "GLIDESYNTH_DRINKS"
	EnvBackend    = "GLIDESYNTH_BACKEND"
)

// LoadEnv overrides cfg from the process environment.
func (cfg *Config) LoadEnv() error {
	return cfg.loadEnv(os.LookupEnv)
}

func (cfg *Config) loadEnv(lookup func(string) (string, bool)) error {
	ints := []struct {
		key string
		dst *int
	}{
		{EnvSampleRate, &cfg.SampleRate},
		{EnvBlockSize, &cfg.BlockSize},
		{EnvRamp, &cfg.Ramp},
		{EnvDrinks, &cfg.Drinks},
	}
	for _, e := range ints {
		raw, ok := lookup(e.key)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, e.key, raw, err)
		}
		*e.dst = v
	}
	if raw, ok := lookup(EnvBackend); ok && strings.TrimSpace(raw) != "" {
		cfg.Backend = strings.TrimSpace(raw)
	}
	return nil
}

// Validate reports the first bad setting.
func (cfg Config) Validate() error {
	switch {
	case cfg.SampleRate <= 0:
		return fmt.Errorf("%w: sample rate %d must be positive", ErrInvalidConfig, cfg.SampleRate)
	case cfg.BlockSize <= 0:
		return fmt.Errorf("%w: block size %d must be positive", ErrInvalidConfig, cfg.BlockSize)
	case cfg.Ramp < 0:
		return fmt.Errorf("%w: ramp %d must not be negative", ErrInvalidConfig, cfg.Ramp)
	case cfg.Drinks < 0 || cfg.Drinks > 100:
		return fmt.Errorf("%w: drinks %d outside 0..100", ErrInvalidConfig, cfg.Drinks)
	case cfg.QueueSize <= 0:
		return fmt.Errorf("%w: queue size %d must be positive", ErrInvalidConfig, cfg.QueueSize)
	case cfg.TickInterval <= 0:
		return fmt.Errorf("%w: tick interval %v must be positive", ErrInvalidConfig, cfg.TickInterval)
	}
	for _, name := range audio.Backends() {
		if strings.EqualFold(strings.TrimSpace(cfg.Backend), name) {
			return nil
		}
	}
	return fmt.Errorf("%w: %w %q", ErrInvalidConfig, audio.ErrUnknownBackend, cfg.Backend)
}

func (cfg Config) logger() *slog.Logger {
	if cfg.Logger != nil {
		return cfg.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
