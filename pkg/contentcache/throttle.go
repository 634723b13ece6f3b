package contentcache

import (
	"context"
	"sync"
	"time"

	"github.com/jmylchreest/tagmend/internal/logger"
)

// ThrottleConfig bounds the download rate.
type ThrottleConfig struct {
	// WindowSize is the length of a clock-aligned rate window.
	// Default: 60s.
	WindowSize time.Duration `mapstructure:"window_size" yaml:"window_size"`

	// WindowLimit is the number of downloads allowed per window.
	// Default: 100. Negative disables the window limit.
	WindowLimit int `mapstructure:"window_limit" yaml:"window_limit"`

	// MinInterval is the minimum gap between two downloads.
	// Default: 500ms. Negative disables it.
	MinInterval time.Duration `mapstructure:"min_interval" yaml:"min_interval"`
}

// DefaultThrottleConfig returns the default download rate.
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		WindowSize:  time.Minute,
		WindowLimit: 100,
		MinInterval: 500 * time.Millisecond,
	}
}

// Throttle hands out download slots. Each Wait reserves the next free slot
// under a mutex and then sleeps outside of it, so concurrent callers are
// spread out instead of released together.
type Throttle struct {
	config ThrottleConfig

	mu     sync.Mutex
	window time.Time
	count  int
	last   time.Time

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewThrottle creates a throttle. Zero fields take their defaults.
func NewThrottle(cfg ThrottleConfig) *Throttle {
	def := DefaultThrottleConfig()
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = def.WindowSize
	}
	if cfg.WindowLimit == 0 {
		cfg.WindowLimit = def.WindowLimit
	}
	if cfg.MinInterval == 0 {
		cfg.MinInterval = def.MinInterval
	}
	return &Throttle{
		config: cfg,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// Wait blocks until the caller may start a download. A canceled context
// returns its error; the reserved slot is not given back.
func (t *Throttle) Wait(ctx context.Context) error {
	d := t.reserve()
	if d <= 0 {
		return ctx.Err()
	}
	logger.Debug("throttling download", "wait", d)
	return t.sleep(ctx, d)
}

// reserve books the next slot and returns how long the caller must wait
// for it.
func (t *Throttle) reserve() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	at := now
	if t.last.After(at) {
		at = t.last
	}
	if t.config.MinInterval > 0 && !t.last.IsZero() {
		if next := t.last.Add(t.config.MinInterval); next.After(at) {
			at = next
		}
	}

	if t.config.WindowLimit > 0 {
		window := at.Truncate(t.config.WindowSize)
		if !window.Equal(t.window) {
			t.window = window
			t.count = 0
		}
		if t.count >= t.config.WindowLimit {
			t.window = t.window.Add(t.config.WindowSize)
			t.count = 0
			at = t.window
		}
		t.count++
	}

	t.last = at
	return at.Sub(now)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
