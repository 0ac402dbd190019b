// Package replay drives the device pipeline from a recorded sensor trace:
// detector, override gate, then dispatch.
package replay

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"trafficSOS/internal/device/detection"
	"trafficSOS/internal/device/dispatch"
	"trafficSOS/internal/device/gate"
	"trafficSOS/internal/device/sensor"
	"trafficSOS/internal/domain"
)

// Line is one JSON line of a trace. SpeedKmh and ML, when present, update what
// the replayed speed source and scorer report from that point on.
type Line struct {
	sensor.Sample
	SpeedKmh *float64 `json:"speedKmh,omitempty"`
	ML       *float64 `json:"ml,omitempty"`
}

// Response is what the simulated user does during the countdown.
type Response string

const (
	RespondNothing Response = "none"
	RespondCancel  Response = "cancel"
	RespondSendNow Response = "send"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, metrics domain.CrashMetrics) (dispatch.Receipt, error)
}

type Config struct {
	Detector detection.Config
	Gate     gate.Config
	Pace     time.Duration
	Response Response
}

type Report struct {
	Samples    int
	Candidates int
	Cancelled  int
	Dispatched []dispatch.Receipt
	Failed     []error
}

// traceState backs both the scorer and the speed source with the latest
// values seen in the trace.
type traceState struct {
	speed atomic.Uint64
	ml    atomic.Uint64
}

func (t *traceState) set(l Line) {
	if l.SpeedKmh != nil {
		t.speed.Store(math.Float64bits(*l.SpeedKmh))
	}
	if l.ML != nil {
		t.ml.Store(math.Float64bits(*l.ML))
	}
}

func (t *traceState) Speed(ctx context.Context) (float64, error) {
	return math.Float64frombits(t.speed.Load()), ctx.Err()
}

func (t *traceState) Score(ctx context.Context, _ []sensor.Sample) (float64, error) {
	return math.Float64frombits(t.ml.Load()), ctx.Err()
}

// Run replays r and blocks until the trace is consumed and the last candidate
// has been resolved.
func Run(ctx context.Context, cfg Config, r io.Reader, d Dispatcher, logger *slog.Logger) (Report, error) {
	state := &traceState{}
	det := detection.New(cfg.Detector, state, state, logger)
	g := gate.New(cfg.Gate, logger.With(slog.String("component", "gate")))

	var (
		report Report
		mu     sync.Mutex
		wg     sync.WaitGroup
	)

	pipeCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-pipeCtx.Done():
				return
			case ev := <-det.Events():
				outcome := confirm(pipeCtx, g, ev, cfg.Response, d)

				mu.Lock()
				report.Candidates++
				switch {
				case outcome.err != nil:
					report.Failed = append(report.Failed, outcome.err)
				case outcome.cancelled:
					report.Cancelled++
				default:
					report.Dispatched = append(report.Dispatched, outcome.receipt)
				}
				mu.Unlock()

				det.Resolve()
			}
		}
	}()

	det.Start()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64<<10), 1<<20)
	lineNo := 0
	var readErr error
	for sc.Scan() {
		lineNo++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var l Line
		if err := json.Unmarshal(sc.Bytes(), &l); err != nil {
			readErr = fmt.Errorf("line %d: %w", lineNo, err)
			break
		}
		state.set(l)
		det.Feed(pipeCtx, l.Sample)

		mu.Lock()
		report.Samples++
		mu.Unlock()

		if cfg.Pace > 0 && !sleep(pipeCtx, cfg.Pace) {
			break
		}
	}
	if readErr == nil {
		readErr = sc.Err()
	}

	det.Wait()
	for det.State() == detection.StateConfirming && pipeCtx.Err() == nil {
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	return report, readErr
}

type confirmation struct {
	cancelled bool
	receipt   dispatch.Receipt
	err       error
}

func confirm(ctx context.Context, g *gate.Gate, ev detection.CandidateCrash, resp Response, d Dispatcher) confirmation {
	cd, err := g.Arm(ctx, ev)
	if err != nil {
		return confirmation{err: err}
	}

	switch resp {
	case RespondCancel:
		cd.Cancel()
	case RespondSendNow:
		cd.SendNow()
	}

	decision := <-cd.Done()
	if decision.Outcome != gate.OutcomeDispatchNow {
		return confirmation{cancelled: true}
	}

	receipt, err := d.Dispatch(ctx, ev.Metrics)
	return confirmation{receipt: receipt, err: err}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
