// Package dispatch submits a confirmed crash to the server as an SOS envelope.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"trafficSOS/internal/domain"
	"trafficSOS/pkg/e"
)

// LocationProvider supplies a live fix, falling back to the last known one.
type LocationProvider interface {
	CurrentFix(ctx context.Context) (domain.GeoPoint, error)
	LastKnown() (domain.GeoPoint, bool)
}

type ProfileStore interface {
	Profile(ctx context.Context) (domain.MedicalProfile, error)
}

// Credentials resolves the device user and the bearer token to present.
type Credentials interface {
	Principal() domain.Principal
	Token(ctx context.Context) (string, error)
}

// EvidenceBroadcaster receives the accident id once the server accepted the case.
type EvidenceBroadcaster interface {
	Broadcast(ctx context.Context, r Receipt)
}

// Handover receives envelopes that could not be delivered.
type Handover interface {
	Handover(ctx context.Context, env domain.Envelope[domain.SOSPayload], cause error)
}

type Receipt struct {
	AccidentID string
	Status     domain.CaseStatus
}

// RejectedError carries the server's revalidation verdict.
type RejectedError struct {
	Reason string
	Stage  int
	Score  float64
}

func (r *RejectedError) Error() string {
	return fmt.Sprintf("rejected at stage %d: %s", r.Stage, r.Reason)
}

func (r *RejectedError) Unwrap() error { return e.ErrRejected }

type Config struct {
	BaseURL       string
	Env           string
	FixTimeout    time.Duration
	SubmitTimeout time.Duration
	MaxAttempts   int
	Backoff       time.Duration
}

func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:       baseURL,
		Env:           "prod",
		FixTimeout:    2 * time.Second,
		SubmitTimeout: 10 * time.Second,
		MaxAttempts:   3,
		Backoff:       time.Second,
	}
}

type Deps struct {
	Location    LocationProvider
	Profiles    ProfileStore
	Credentials Credentials
	Broadcaster EvidenceBroadcaster
	Handover    Handover
	HTTP        *http.Client
}

type Client struct {
	cfg    Config
	deps   Deps
	logger *slog.Logger
}

func New(cfg Config, deps Deps, logger *slog.Logger) *Client {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if deps.HTTP == nil {
		deps.HTTP = &http.Client{}
	}
	return &Client{cfg: cfg, deps: deps, logger: logger}
}

// Dispatch builds the SOS envelope and submits it. Any envelope that cannot be
// delivered is passed to the Handover collaborator before the error is returned.
func (c *Client) Dispatch(ctx context.Context, metrics domain.CrashMetrics) (Receipt, error) {
	const op = "dispatch.Dispatch"

	env, token, err := c.Build(ctx, metrics)
	if err != nil {
		c.handover(ctx, env, err)
		return Receipt{}, e.Wrap(op, err)
	}

	receipt, err := c.Submit(ctx, env, token)
	if err != nil {
		c.handover(ctx, env, err)
		return Receipt{}, e.Wrap(op, err)
	}

	c.logger.Info("sos accepted",
		slog.String("accident_id", receipt.AccidentID),
		slog.String("request_id", env.Meta.RequestID),
	)
	if c.deps.Broadcaster != nil {
		c.deps.Broadcaster.Broadcast(ctx, receipt)
	}
	return receipt, nil
}

// Build resolves location, profile and credentials into a fresh envelope.
func (c *Client) Build(ctx context.Context, metrics domain.CrashMetrics) (domain.Envelope[domain.SOSPayload], string, error) {
	var profile domain.MedicalProfile
	if c.deps.Profiles != nil {
		p, err := c.deps.Profiles.Profile(ctx)
		if err != nil {
			c.logger.Warn("medical profile unavailable, sending empty profile", slog.Any("error", err))
		} else {
			profile = p
		}
	}

	principal := c.deps.Credentials.Principal()
	env := domain.NewEnvelope(c.cfg.Env, principal, domain.SOSPayload{
		Metrics:        metrics,
		MedicalProfile: profile,
	})

	loc, err := c.locate(ctx)
	if err != nil {
		return env, "", err
	}
	env.Payload.Location = loc

	token, err := c.deps.Credentials.Token(ctx)
	if err != nil {
		return env, "", e.Wrap("resolve token", err)
	}
	env.Auth.Token = token
	return env, token, nil
}

func (c *Client) locate(ctx context.Context) (domain.GeoPoint, error) {
	if c.deps.Location == nil {
		return domain.GeoPoint{}, e.ErrNoLocation
	}

	fixCtx, cancel := context.WithTimeout(ctx, c.cfg.FixTimeout)
	defer cancel()

	p, err := c.deps.Location.CurrentFix(fixCtx)
	if err == nil {
		return p, nil
	}
	c.logger.Warn("live fix unavailable, using last known", slog.Any("error", err))

	if last, ok := c.deps.Location.LastKnown(); ok {
		return last, nil
	}
	return domain.GeoPoint{}, e.ErrNoLocation
}

// Submit posts env to /sos with bounded retry. Transport errors and 5xx are
// retried with linear backoff; 4xx responses are final.
func (c *Client) Submit(ctx context.Context, env domain.Envelope[domain.SOSPayload], token string) (Receipt, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return Receipt{}, e.Wrap("marshal envelope", err)
	}
	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/sos"

	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return Receipt{}, ctx.Err()
		}

		receipt, retry, err := c.post(ctx, url, body, token)
		if err == nil {
			return receipt, nil
		}
		lastErr = err
		if !retry {
			return Receipt{}, err
		}

		c.logger.Warn("sos submit failed",
			slog.Int("attempt", attempt),
			slog.String("request_id", env.Meta.RequestID),
			slog.String("reason", err.Error()),
		)
		if attempt == c.cfg.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return Receipt{}, ctx.Err()
		case <-time.After(time.Duration(attempt) * c.cfg.Backoff):
		}
	}
	return Receipt{}, fmt.Errorf("gave up after %d attempts: %w", c.cfg.MaxAttempts, lastErr)
}

func (c *Client) post(ctx context.Context, url string, body []byte, token string) (Receipt, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.SubmitTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Receipt{}, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.deps.HTTP.Do(req)
	if err != nil {
		return Receipt{}, true, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Receipt{}, true, err
	}

	switch {
	case resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK:
		var out domain.Envelope[domain.SOSCreated]
		if err := json.Unmarshal(raw, &out); err != nil {
			return Receipt{}, false, e.Wrap("decode receipt", err)
		}
		if !domain.ValidAccidentID(out.Payload.AccidentID) {
			return Receipt{}, false, e.Wrap("decode receipt", e.ErrInvalidCaseID)
		}
		return Receipt{AccidentID: out.Payload.AccidentID, Status: out.Payload.Status}, false, nil

	case resp.StatusCode == http.StatusUnprocessableEntity:
		var rej domain.SOSRejected
		if err := json.Unmarshal(raw, &rej); err != nil {
			return Receipt{}, false, e.Wrap("decode rejection", e.ErrRejected)
		}
		return Receipt{}, false, &RejectedError{Reason: rej.Reason, Stage: rej.Stage, Score: rej.Score}

	case resp.StatusCode == http.StatusUnauthorized:
		return Receipt{}, false, e.ErrUnauthorized
	case resp.StatusCode == http.StatusForbidden:
		return Receipt{}, false, e.ErrForbidden
	case resp.StatusCode >= 500:
		return Receipt{}, true, fmt.Errorf("server returned %s", resp.Status)
	default:
		return Receipt{}, false, fmt.Errorf("server returned %s: %w", resp.Status, e.ErrInvalidInput)
	}
}

func (c *Client) handover(ctx context.Context, env domain.Envelope[domain.SOSPayload], cause error) {
	var rej *RejectedError
	if errors.As(cause, &rej) {
		c.logger.Info("sos rejected by server", slog.Int("stage", rej.Stage), slog.String("reason", rej.Reason))
	} else {
		c.logger.Error("sos dispatch failed, handing over", slog.Any("error", cause))
	}
	if c.deps.Handover != nil {
		c.deps.Handover.Handover(ctx, env, cause)
	}
}
