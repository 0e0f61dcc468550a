// Package delay computes the wait before each outbound request from the
// recent success/error history.
package delay

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

const (
	// LongPauseThreshold is the number of consecutive errors after which
	// ReportError asks the caller for a long pause.
	LongPauseThreshold = 5

	relaxEvery  = 20
	relaxFactor = 0.9
	jitterSpan  = 1.25
)

// Settings configures a Controller.
type Settings struct {
	Min           time.Duration
	Max           time.Duration
	BackoffFactor float64
	MaxBackoff    time.Duration
	// Adaptive=false keeps the bounds at Min/Max regardless of feedback.
	// Consecutive errors are still counted for the long-pause signal.
	Adaptive bool
}

// State is a snapshot of the controller.
type State struct {
	BaseMin           time.Duration
	BaseMax           time.Duration
	CurrentMin        time.Duration
	CurrentMax        time.Duration
	ConsecutiveErrors int
	SuccessCount      int
}

// Controller is an adaptive delay controller: bounds inflate on errors,
// relax slowly on sustained success, and consecutive errors switch the delay
// to an exponential backoff envelope with jitter.
type Controller struct {
	mu sync.Mutex

	baseMin       time.Duration
	baseMax       time.Duration
	currentMin    time.Duration
	currentMax    time.Duration
	backoffFactor float64
	maxBackoff    time.Duration
	adaptive      bool

	consecutiveErrors int
	successCount      int
	errorsByKind      map[string]int

	rng *rand.Rand
}

// Option customises a Controller.
type Option func(*Controller)

// WithRand sets the random source used for jitter.
func WithRand(r *rand.Rand) Option {
	return func(c *Controller) {
		c.rng = r
	}
}

// New builds a controller starting at the base bounds.
func New(s Settings, opts ...Option) *Controller {
	if s.Max < s.Min {
		s.Max = s.Min
	}
	if s.BackoffFactor < 1 {
		s.BackoffFactor = 1
	}
	if s.MaxBackoff < s.Max {
		s.MaxBackoff = s.Max
	}

	c := &Controller{
		baseMin:       s.Min,
		baseMax:       s.Max,
		currentMin:    s.Min,
		currentMax:    s.Max,
		backoffFactor: s.BackoffFactor,
		maxBackoff:    s.MaxBackoff,
		adaptive:      s.Adaptive,
		errorsByKind:  make(map[string]int),
		rng:           rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DelayBeforeRequest returns how long to wait before the next request.
func (c *Controller) DelayBeforeRequest() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.consecutiveErrors == 0 || !c.adaptive {
		return c.uniform(c.currentMin, c.currentMax)
	}

	backoff := c.backoffLocked()
	upper := time.Duration(float64(backoff) * jitterSpan)
	return c.uniform(backoff, upper)
}

// Backoff returns the lower edge of the current backoff envelope, or zero
// when there are no consecutive errors.
func (c *Controller) Backoff() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.consecutiveErrors == 0 {
		return 0
	}
	return c.backoffLocked()
}

func (c *Controller) backoffLocked() time.Duration {
	scaled := float64(c.currentMin) * math.Pow(c.backoffFactor, float64(c.consecutiveErrors))
	if scaled > float64(c.maxBackoff) || math.IsInf(scaled, 1) {
		return c.maxBackoff
	}
	return time.Duration(scaled)
}

// ReportSuccess resets the error streak and, every 20th success, relaxes the
// bounds by 10% toward their base values.
func (c *Controller) ReportSuccess() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.successCount++
	c.consecutiveErrors = 0

	if !c.adaptive || c.successCount%relaxEvery != 0 {
		return
	}
	c.currentMin = maxDuration(c.baseMin, time.Duration(float64(c.currentMin)*relaxFactor))
	c.currentMax = maxDuration(c.baseMax, time.Duration(float64(c.currentMax)*relaxFactor))
	if c.currentMin > c.currentMax {
		c.currentMin = c.currentMax
	}
}

// ReportError records a failure of the given kind and inflates the bounds.
// It returns true once the error streak warrants a long pause.
func (c *Controller) ReportError(kind string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.consecutiveErrors++
	c.errorsByKind[kind]++

	if c.adaptive {
		c.currentMin = minDuration(time.Duration(float64(c.currentMin)*c.backoffFactor), c.maxBackoff/2)
		c.currentMax = minDuration(time.Duration(float64(c.currentMax)*c.backoffFactor), c.maxBackoff)
		c.currentMin = maxDuration(c.currentMin, c.baseMin)
		c.currentMax = maxDuration(c.currentMax, c.baseMax)
		if c.currentMin > c.currentMax {
			c.currentMin = c.currentMax
		}
	}

	return c.consecutiveErrors >= LongPauseThreshold
}

// State returns a snapshot of the controller's counters and bounds.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		BaseMin:           c.baseMin,
		BaseMax:           c.baseMax,
		CurrentMin:        c.currentMin,
		CurrentMax:        c.currentMax,
		ConsecutiveErrors: c.consecutiveErrors,
		SuccessCount:      c.successCount,
	}
}

// ErrorsByKind returns how many errors of each kind were reported.
func (c *Controller) ErrorsByKind() map[string]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]int, len(c.errorsByKind))
	for k, v := range c.errorsByKind {
		out[k] = v
	}
	return out
}

// uniform returns a random duration in [lo, hi].
func (c *Controller) uniform(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(c.rng.Int64N(int64(hi-lo)+1))
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
