// Package detection runs the on-device four-stage crash pipeline over a live
// sensor stream and emits candidate crash events.
package detection

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"trafficSOS/internal/device/sensor"
	"trafficSOS/internal/domain"

	"github.com/google/uuid"
)

type State int32

const (
	StateIdle State = iota
	StateWatching
	StateCandidate
	StateConfirmed
	StateRejected
	StateConfirming
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateWatching:
		return "WATCHING"
	case StateCandidate:
		return "CANDIDATE"
	case StateConfirmed:
		return "CONFIRMED"
	case StateRejected:
		return "REJECTED"
	case StateConfirming:
		return "CONFIRMING"
	}
	return "UNKNOWN"
}

// Scorer is the opaque ML model. It returns a confidence in [0,1].
type Scorer interface {
	Score(ctx context.Context, window []sensor.Sample) (float64, error)
}

// SpeedSource reports the current ground speed in km/h.
type SpeedSource interface {
	Speed(ctx context.Context) (float64, error)
}

type Config struct {
	Stage1GForce      float64
	AutoConfirmGForce float64
	MLThreshold       float64
	MovingSpeedKmh    float64
	SpeedDropKmh      float64
	RolloverRadPerSec float64
	SpeedWindow       time.Duration
	ScorerTimeout     time.Duration
	SampleRateHz      int
	WindowSpan        time.Duration
}

func DefaultConfig() Config {
	return Config{
		Stage1GForce:      4.0,
		AutoConfirmGForce: 8.0,
		MLThreshold:       0.75,
		MovingSpeedKmh:    15,
		SpeedDropKmh:      20,
		RolloverRadPerSec: 3.0,
		SpeedWindow:       3 * time.Second,
		ScorerTimeout:     500 * time.Millisecond,
		SampleRateHz:      100,
		WindowSpan:        2 * time.Second,
	}
}

// CandidateCrash is emitted once per confirmed detection, before human override.
type CandidateCrash struct {
	ID         string
	DetectedAt time.Time
	Metrics    domain.CrashMetrics
}

type Option func(*Detector)

// WithTransitionHook registers fn to observe every state change.
func WithTransitionHook(fn func(from, to State)) Option {
	return func(d *Detector) { d.onTransition = fn }
}

type Detector struct {
	cfg    Config
	scorer Scorer
	speed  SpeedSource
	logger *slog.Logger
	window *sensor.Window

	state        atomic.Int32
	events       chan CandidateCrash
	onTransition func(from, to State)
	wg           sync.WaitGroup
}

// New builds a detector in IDLE. scorer may be nil when no model is installed.
func New(cfg Config, scorer Scorer, speed SpeedSource, logger *slog.Logger, opts ...Option) *Detector {
	d := &Detector{
		cfg:    cfg,
		scorer: scorer,
		speed:  speed,
		logger: logger,
		window: sensor.NewWindow(sensor.CapacityFor(cfg.SampleRateHz, cfg.WindowSpan)),
		events: make(chan CandidateCrash, 1),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Detector) Events() <-chan CandidateCrash { return d.events }

func (d *Detector) State() State { return State(d.state.Load()) }

// Start moves IDLE -> WATCHING.
func (d *Detector) Start() {
	d.transition(StateIdle, StateWatching)
}

// Feed records one sample and runs Stage 1. It never waits on the candidate
// pipeline; samples arriving while a candidate is in flight only fill the window.
func (d *Detector) Feed(ctx context.Context, s sensor.Sample) bool {
	d.window.Push(s)
	if s.Magnitude() <= d.cfg.Stage1GForce {
		return false
	}
	if !d.transition(StateWatching, StateCandidate) {
		return false
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.evaluate(ctx, s)
	}()
	return true
}

// Resolve releases CONFIRMING once the override gate has produced its outcome.
func (d *Detector) Resolve() bool {
	return d.transition(StateConfirming, StateWatching)
}

// Wait blocks until the in-flight candidate pipeline, if any, has finished.
func (d *Detector) Wait() {
	d.wg.Wait()
}

func (d *Detector) transition(from, to State) bool {
	if !d.state.CompareAndSwap(int32(from), int32(to)) {
		return false
	}
	if d.onTransition != nil {
		d.onTransition(from, to)
	}
	return true
}

type evidence struct {
	gForce      float64
	confidence  float64
	mlAvailable bool
	speedBefore float64
	speedAfter  float64
	moving      bool
	rollover    bool
	peak        sensor.Sample
}

func (d *Detector) evaluate(ctx context.Context, trigger sensor.Sample) {
	log := d.logger.With(slog.Float64("trigger_g", trigger.Magnitude()))

	ev, err := d.collect(ctx, trigger)
	if err != nil {
		log.Warn("candidate pipeline aborted", slog.Any("error", err))
		d.transition(StateCandidate, StateRejected)
		d.transition(StateRejected, StateWatching)
		return
	}

	if !d.confirmed(ev) {
		log.Info("candidate rejected",
			slog.Float64("g_force", ev.gForce),
			slog.Float64("ml_confidence", ev.confidence),
			slog.Bool("ml_available", ev.mlAvailable),
			slog.Float64("speed_before", ev.speedBefore),
			slog.Float64("speed_after", ev.speedAfter),
		)
		d.transition(StateCandidate, StateRejected)
		d.transition(StateRejected, StateWatching)
		return
	}

	crash := CandidateCrash{
		ID:         uuid.NewString(),
		DetectedAt: trigger.At,
		Metrics:    d.metrics(ev),
	}
	d.transition(StateCandidate, StateConfirmed)
	log.Info("candidate confirmed",
		slog.String("candidate_id", crash.ID),
		slog.String("crash_type", string(crash.Metrics.CrashType)),
		slog.Float64("g_force", ev.gForce),
	)

	// CONFIRMING is set before the hand-off so a receiver can Resolve at once.
	d.transition(StateConfirmed, StateConfirming)
	select {
	case d.events <- crash:
	case <-ctx.Done():
		log.Warn("candidate dropped on shutdown", slog.String("candidate_id", crash.ID))
		d.transition(StateConfirming, StateWatching)
	}
}

func (d *Detector) collect(ctx context.Context, trigger sensor.Sample) (evidence, error) {
	var ev evidence

	before := d.window.Snapshot()
	ev.peak = trigger
	if p, ok := sensor.Peak(before); ok && p.Magnitude() > trigger.Magnitude() {
		ev.peak = p
	}
	ev.gForce = ev.peak.Magnitude()

	// Stage 3 speed at impact, taken before the model call can delay it.
	speedBefore, okBefore := d.sampleSpeed(ctx)

	// Stage 2
	ev.confidence, ev.mlAvailable = d.score(ctx, before)

	// Stage 3 speed after the window
	select {
	case <-ctx.Done():
		return ev, ctx.Err()
	case <-time.After(d.cfg.SpeedWindow):
	}
	speedAfter, okAfter := d.sampleSpeed(ctx)
	if okBefore {
		ev.speedBefore = speedBefore
		ev.speedAfter = speedBefore
		if okAfter {
			ev.speedAfter = speedAfter
		}
		ev.moving = speedBefore >= d.cfg.MovingSpeedKmh
	}

	// Stage 4, over the window including post-impact rotation
	ev.rollover = sensor.MaxAngularRate(d.window.Snapshot()) > d.cfg.RolloverRadPerSec

	return ev, nil
}

func (d *Detector) score(ctx context.Context, window []sensor.Sample) (float64, bool) {
	if d.scorer == nil {
		return 0, false
	}
	ctx, cancel := context.WithTimeout(ctx, d.cfg.ScorerTimeout)
	defer cancel()

	type result struct {
		conf float64
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := d.scorer.Score(ctx, window)
		ch <- result{c, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			d.logger.Warn("ml scorer failed, continuing without stage 2", slog.Any("error", r.err))
			return 0, false
		}
		return math.Min(1, math.Max(0, r.conf)), true
	case <-ctx.Done():
		d.logger.Warn("ml scorer unavailable, continuing without stage 2", slog.Any("error", ctx.Err()))
		return 0, false
	}
}

func (d *Detector) sampleSpeed(ctx context.Context) (float64, bool) {
	if d.speed == nil {
		return 0, false
	}
	v, err := d.speed.Speed(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			d.logger.Warn("speed sample failed", slog.Any("error", err))
		}
		return 0, false
	}
	return math.Max(0, v), true
}

// confirmed is a logical OR over independent evidence, not a weighted score.
func (d *Detector) confirmed(ev evidence) bool {
	if ev.gForce >= d.cfg.AutoConfirmGForce {
		return true
	}
	if ev.mlAvailable && ev.confidence >= d.cfg.MLThreshold {
		return true
	}
	return ev.moving && ev.speedBefore-ev.speedAfter >= d.cfg.SpeedDropKmh
}

func (d *Detector) metrics(ev evidence) domain.CrashMetrics {
	crashType := domain.CrashProbable
	switch {
	case ev.mlAvailable && ev.confidence >= d.cfg.MLThreshold:
		crashType = domain.CrashConfirmed
	case ev.rollover:
		crashType = domain.CrashRollover
	}

	m := domain.CrashMetrics{
		GForce:           round2(ev.gForce),
		SpeedBefore:      round2(ev.speedBefore),
		SpeedAfter:       round2(ev.speedAfter),
		MLConfidence:     ev.confidence,
		CrashType:        crashType,
		RolloverDetected: ev.rollover,
	}
	if dir, ok := impactDirection(ev.peak); ok {
		m.ImpactDirection = &dir
	}
	return m
}

// impactDirection uses the device frame: +x right, +y forward.
func impactDirection(s sensor.Sample) (domain.ImpactDirection, bool) {
	x, y := s.Accel[0], s.Accel[1]
	if x == 0 && y == 0 {
		return "", false
	}
	if math.Abs(y) >= math.Abs(x) {
		if y < 0 {
			return domain.ImpactFront, true
		}
		return domain.ImpactRear, true
	}
	if x < 0 {
		return domain.ImpactLeft, true
	}
	return domain.ImpactRight, true
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
