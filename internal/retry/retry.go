package retry

import (
	"context"
	"io"
	"math"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
)

// Unbounded disables the retry limit.
const Unbounded = -1

// Sleeper blocks for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Controller runs operations, retrying transient faults with full-jitter exponential backoff:
// after the n-th consecutive transient fault it sleeps a uniform random duration in [0, 2^n) units.
type Controller struct {
	maxRetries int
	unit       time.Duration
	maxDelay   time.Duration
	sleep      Sleeper
	rand       func() float64
	logger     *log.Logger
}

// Option configures a [Controller].
type Option func(*Controller)

// WithMaxRetries bounds the number of retries. A negative value retries forever.
func WithMaxRetries(n int) Option {
	return func(c *Controller) {
		if n < 0 {
			n = Unbounded
		}
		c.maxRetries = n
	}
}

// WithUnit sets the backoff unit, one second by default.
func WithUnit(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.unit = d
		}
	}
}

// WithMaxDelay caps a single backoff sleep. Zero leaves the delay uncapped.
func WithMaxDelay(d time.Duration) Option {
	return func(c *Controller) { c.maxDelay = d }
}

// WithSleeper replaces the sleep function.
func WithSleeper(s Sleeper) Option {
	return func(c *Controller) {
		if s != nil {
			c.sleep = s
		}
	}
}

// WithRand replaces the jitter source. fn must return values in [0, 1).
func WithRand(fn func() float64) Option {
	return func(c *Controller) {
		if fn != nil {
			c.rand = fn
		}
	}
}

// WithLogger sets the logger retries are reported on.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Controller. Without options it retries transient faults forever.
func New(opts ...Option) *Controller {
	c := &Controller{
		maxRetries: Unbounded,
		unit:       time.Second,
		sleep:      sleepContext,
		rand:       rand.Float64,
		logger:     log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxRetries returns the configured limit, or [Unbounded].
func (c *Controller) MaxRetries() int { return c.maxRetries }

// Run calls fn until it succeeds, fails permanently, or the retry limit is exceeded.
//
// Permanent faults return immediately without sleeping. The returned error is the last one fn produced,
// unchanged, so callers can still inspect it with [KindOf] or errors.As.
func (c *Controller) Run(ctx context.Context, op string, fn func(context.Context) error) error {
	attempt := 0
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}

		kind := KindOf(err)
		if !kind.Transient() {
			return err
		}

		attempt++
		if c.maxRetries != Unbounded && attempt > c.maxRetries {
			c.logger.Error("retry limit reached", "op", op, "attempts", attempt, "kind", kind, "err", err)
			return err
		}

		wait := c.Backoff(attempt)
		c.logger.Debug("retryable error",
			"op", op,
			"attempt", strconv.Itoa(attempt)+"/"+c.maxLabel(),
			"kind", kind,
			"err", err,
			"wait", wait.Round(100*time.Millisecond),
		)

		if err := c.sleep(ctx, wait); err != nil {
			return Permanent(op, err)
		}
	}
}

// Do is [Controller.Run] for operations that return a value.
func Do[T any](ctx context.Context, c *Controller, op string, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := c.Run(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Backoff returns the sleep before retry number attempt (1-based).
func (c *Controller) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}

	ceiling := math.Ldexp(float64(c.unit), attempt)
	if c.maxDelay > 0 && ceiling > float64(c.maxDelay) {
		ceiling = float64(c.maxDelay)
	}

	d := c.rand() * ceiling
	if d >= math.MaxInt64 || math.IsInf(d, 0) || math.IsNaN(d) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

func (c *Controller) maxLabel() string {
	if c.maxRetries == Unbounded {
		return "-"
	}
	return strconv.Itoa(c.maxRetries)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
