// Package gate holds a confirmed candidate crash behind a cancellable countdown
// before it is allowed to dispatch.
package gate

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"trafficSOS/internal/device/detection"
	"trafficSOS/pkg/e"
)

type Outcome string

const (
	OutcomeCancelled   Outcome = "CANCELLED"
	OutcomeDispatchNow Outcome = "DISPATCH_NOW"
)

type Cause string

const (
	CauseUserCancel  Cause = "user_cancel"
	CauseUserSendNow Cause = "user_send_now"
	CauseTimeout     Cause = "timeout"
	CauseShutdown    Cause = "shutdown"
)

type Decision struct {
	Outcome Outcome
	Cause   Cause
	Event   detection.CandidateCrash
	At      time.Time
}

type Config struct {
	Ticks int
	Tick  time.Duration
}

func DefaultConfig() Config {
	return Config{Ticks: 15, Tick: time.Second}
}

type Option func(*Gate)

// WithTickHandler reports the remaining ticks after every tick of a pending countdown.
func WithTickHandler(fn func(remaining int)) Option {
	return func(g *Gate) { g.onTick = fn }
}

// Gate allows at most one pending countdown at a time.
type Gate struct {
	cfg    Config
	logger *slog.Logger
	onTick func(remaining int)

	mu      sync.Mutex
	current *Countdown
}

func New(cfg Config, logger *slog.Logger, opts ...Option) *Gate {
	if cfg.Ticks <= 0 {
		cfg.Ticks = DefaultConfig().Ticks
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultConfig().Tick
	}
	g := &Gate{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Arm starts the countdown for ev. Cancelling ctx resolves a pending countdown as
// CANCELLED with CauseShutdown.
func (g *Gate) Arm(ctx context.Context, ev detection.CandidateCrash) (*Countdown, error) {
	const op = "gate.Arm"

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.current != nil && g.current.Pending() {
		return nil, e.Wrap(op, e.ErrGateBusy)
	}

	c := &Countdown{
		gate:      g,
		event:     ev,
		remaining: g.cfg.Ticks,
		done:      make(chan Decision, 1),
		stop:      make(chan struct{}),
	}
	g.current = c

	g.logger.Info("override countdown armed",
		slog.String("candidate_id", ev.ID),
		slog.Int("ticks", g.cfg.Ticks),
	)
	go c.run(ctx, g.cfg.Tick)
	return c, nil
}

type countdownState int

const (
	statePending countdownState = iota
	stateCancelled
	stateFired
)

// Countdown is the single-flight outcome holder for one candidate event.
type Countdown struct {
	gate  *Gate
	event detection.CandidateCrash

	mu        sync.Mutex
	state     countdownState
	remaining int
	done      chan Decision
	stop      chan struct{}
}

func (c *Countdown) Done() <-chan Decision { return c.done }

func (c *Countdown) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == statePending
}

func (c *Countdown) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Cancel reports whether this call decided the outcome.
func (c *Countdown) Cancel() bool {
	return c.resolve(OutcomeCancelled, CauseUserCancel)
}

// SendNow reports whether this call decided the outcome.
func (c *Countdown) SendNow() bool {
	return c.resolve(OutcomeDispatchNow, CauseUserSendNow)
}

// resolve is the only place the countdown state changes.
func (c *Countdown) resolve(outcome Outcome, cause Cause) bool {
	c.mu.Lock()
	if c.state != statePending {
		c.mu.Unlock()
		return false
	}
	if outcome == OutcomeCancelled {
		c.state = stateCancelled
	} else {
		c.state = stateFired
	}
	close(c.stop)
	c.done <- Decision{Outcome: outcome, Cause: cause, Event: c.event, At: time.Now()}
	c.mu.Unlock()

	c.gate.logger.Info("override countdown resolved",
		slog.String("candidate_id", c.event.ID),
		slog.String("outcome", string(outcome)),
		slog.String("cause", string(cause)),
	)
	return true
}

func (c *Countdown) run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ctx.Done():
			c.resolve(OutcomeCancelled, CauseShutdown)
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		if c.state != statePending {
			c.mu.Unlock()
			return
		}
		c.remaining--
		remaining := c.remaining
		c.mu.Unlock()

		if c.gate.onTick != nil {
			c.gate.onTick(remaining)
		}
		if remaining <= 0 {
			c.resolve(OutcomeDispatchNow, CauseTimeout)
			return
		}
	}
}
