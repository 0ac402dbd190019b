package auth

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"

	"trafficSOS/internal/domain"
	"trafficSOS/pkg/e"
)

//go:embed authz.rego
var defaultPolicy string

const policyQuery = "data.sos.authz.allow"

// Policy evaluates the sos.authz Rego module for every case action.
type Policy struct {
	query rego.PreparedEvalQuery
}

// NewPolicy compiles module, or the built-in policy when module is empty.
func NewPolicy(ctx context.Context, module string) (*Policy, error) {
	if module == "" {
		module = defaultPolicy
	}
	pq, err := rego.New(
		rego.Query(policyQuery),
		rego.Module("authz.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile authz policy: %w", err)
	}
	return &Policy{query: pq}, nil
}

func (p *Policy) Authorize(ctx context.Context, req domain.AccessRequest) error {
	const op = "auth.Authorize"

	input := map[string]interface{}{
		"action": string(req.Action),
		"principal": map[string]interface{}{
			"user_id": req.Principal.UserID,
			"role":    string(req.Principal.Role),
		},
		"owner_id": req.OwnerID,
		"target":   string(req.Target),
	}

	rs, err := p.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return e.Wrap(op, err)
	}
	if !rs.Allowed() {
		return e.Wrap(op, e.ErrForbidden)
	}
	return nil
}
