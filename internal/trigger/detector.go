package trigger

import (
	"math"
	"sync"
	"time"

	"github.com/kursadbilgin/safeher/internal/domain"
)

const (
	standardGravity = 9.80665

	DefaultShakeThreshold = 15.0
	DefaultDebounce       = time.Second
	DefaultShakeWindow    = 3 * time.Second
	minShakeGap           = 500 * time.Millisecond
)

type DetectorConfig struct {
	// Threshold is the acceleration above gravity, in m/s^2, that counts as a shake.
	Threshold float64
	// Debounce collapses firings closer together than this into one.
	Debounce time.Duration
	// RequiredCount shakes must land inside Window to fire.
	RequiredCount int
	Window        time.Duration
}

// ShakeDetector turns accelerometer samples into trigger firings.
type ShakeDetector struct {
	cfg DetectorConfig
	now func() time.Time

	mu        sync.Mutex
	shakes    []time.Time
	lastShake time.Time
	lastFire  time.Time
}

func NewShakeDetector(cfg DetectorConfig) *ShakeDetector {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultShakeThreshold
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.RequiredCount < 1 {
		cfg.RequiredCount = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultShakeWindow
	}
	return &ShakeDetector{cfg: cfg, now: time.Now}
}

// Magnitude is the acceleration of s with gravity removed.
func Magnitude(s domain.MotionSample) float64 {
	return math.Sqrt(s.X*s.X+s.Y*s.Y+s.Z*s.Z) - standardGravity
}

// Observe feeds one sample and reports whether it fires the trigger.
func (d *ShakeDetector) Observe(s domain.MotionSample) bool {
	if Magnitude(s) <= d.cfg.Threshold {
		return false
	}

	at := s.At
	if at.IsZero() {
		at = d.now()
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.lastShake.IsZero() && at.Sub(d.lastShake) < minShakeGap && d.cfg.RequiredCount > 1 {
		return false
	}
	d.lastShake = at

	cutoff := at.Add(-d.cfg.Window)
	kept := d.shakes[:0]
	for _, t := range d.shakes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	d.shakes = append(kept, at)

	if len(d.shakes) < d.cfg.RequiredCount {
		return false
	}
	d.shakes = d.shakes[:0]

	if !d.lastFire.IsZero() && at.Sub(d.lastFire) < d.cfg.Debounce {
		return false
	}
	d.lastFire = at
	return true
}
