package config

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

// ErrInvalidParameter is returned when a runtime setter rejects a value.
var ErrInvalidParameter = errors.New("invalid parameter")

// Runtime parameter defaults and limits.
const (
	DefaultThreshold   = 0.5
	DefaultCooldown    = 1.0
	DefaultConsecutive = 3
	MinCooldown        = 0.1
)

// Runtime holds the parameters that can change while the process is serving.
// Every field is read and written atomically on its own; there is no
// cross-field consistency, the last writer of each field wins.
type Runtime struct {
	threshold   atomic.Uint64 // float64 bits
	cooldown    atomic.Uint64 // float64 bits, seconds
	consecutive atomic.Int64
	mirror      atomic.Bool
}

// NewRuntime creates a Runtime populated with the default values.
func NewRuntime() *Runtime {
	r := &Runtime{}
	r.threshold.Store(math.Float64bits(DefaultThreshold))
	r.cooldown.Store(math.Float64bits(DefaultCooldown))
	r.consecutive.Store(DefaultConsecutive)
	r.mirror.Store(true)
	return r
}

// Threshold returns the minimum confidence for a sample to count as a gesture.
func (r *Runtime) Threshold() float64 {
	return math.Float64frombits(r.threshold.Load())
}

// Cooldown returns the minimum time between two voting evaluations.
func (r *Runtime) Cooldown() time.Duration {
	return time.Duration(r.CooldownSeconds() * float64(time.Second))
}

// CooldownSeconds returns the cooldown as fractional seconds.
func (r *Runtime) CooldownSeconds() float64 {
	return math.Float64frombits(r.cooldown.Load())
}

// RequiredConsecutive returns how many agreeing evaluations confirm a gesture.
func (r *Runtime) RequiredConsecutive() int {
	return int(r.consecutive.Load())
}

// Mirror reports whether frames are flipped horizontally.
func (r *Runtime) Mirror() bool {
	return r.mirror.Load()
}

// SetThreshold updates the confidence threshold. v must be within [0, 1].
func (r *Runtime) SetThreshold(v float64) error {
	if math.IsNaN(v) || v < 0 || v > 1 {
		return fmt.Errorf("%w: threshold must be between 0.0 and 1.0", ErrInvalidParameter)
	}
	r.threshold.Store(math.Float64bits(v))
	return nil
}

// SetCooldown updates the cooldown in seconds. v must be at least 0.1.
func (r *Runtime) SetCooldown(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < MinCooldown {
		return fmt.Errorf("%w: cooldown must be at least %.1f seconds", ErrInvalidParameter, MinCooldown)
	}
	r.cooldown.Store(math.Float64bits(v))
	return nil
}

// SetRequiredConsecutive updates the agreement count. n must be at least 1.
func (r *Runtime) SetRequiredConsecutive(n int) error {
	if n < 1 {
		return fmt.Errorf("%w: consecutive predictions must be at least 1", ErrInvalidParameter)
	}
	r.consecutive.Store(int64(n))
	return nil
}

// SetMirror enables or disables horizontal mirroring.
func (r *Runtime) SetMirror(enabled bool) {
	r.mirror.Store(enabled)
}

// Snapshot is a point-in-time copy of the runtime parameters. Fields are read
// one by one, so a concurrent writer may be observed on some fields only.
type Snapshot struct {
	Threshold   float64 `json:"threshold" yaml:"threshold"`
	Cooldown    float64 `json:"cooldown" yaml:"cooldown"`
	Consecutive int     `json:"consecutive" yaml:"consecutive"`
	Mirror      bool    `json:"mirror_enabled" yaml:"mirror"`
}

// Snapshot returns the current values.
func (r *Runtime) Snapshot() Snapshot {
	return Snapshot{
		Threshold:   r.Threshold(),
		Cooldown:    r.CooldownSeconds(),
		Consecutive: r.RequiredConsecutive(),
		Mirror:      r.Mirror(),
	}
}

// Apply sets every field of s through the validating setters. It stops at
// the first invalid value; fields applied before it keep their new value.
func (r *Runtime) Apply(s Snapshot) error {
	if err := r.SetThreshold(s.Threshold); err != nil {
		return err
	}
	if err := r.SetCooldown(s.Cooldown); err != nil {
		return err
	}
	if err := r.SetRequiredConsecutive(s.Consecutive); err != nil {
		return err
	}
	r.SetMirror(s.Mirror)
	return nil
}
