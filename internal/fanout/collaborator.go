package fanout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"trafficSOS/internal/domain"
)

// HTTPCollaborator posts the full case envelope to an external endpoint
// (corridor initialisation, notifications).
type HTTPCollaborator struct {
	name   string
	url    string
	client *http.Client
}

func NewHTTPCollaborator(name, url string, client *http.Client) *HTTPCollaborator {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPCollaborator{name: name, url: url, client: client}
}

func (c *HTTPCollaborator) Name() string { return c.name }

func (c *HTTPCollaborator) Notify(ctx context.Context, env domain.Envelope[domain.CaseRecord]) error {
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", env.Meta.RequestID)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s: unexpected status %s", c.name, resp.Status)
	}
	return nil
}
