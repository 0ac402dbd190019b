package auth

import (
	"context"
	"errors"
	"testing"

	"trafficSOS/internal/domain"
	"trafficSOS/pkg/e"
)

func TestPolicy_Authorize(t *testing.T) {
	t.Parallel()

	p, err := NewPolicy(context.Background(), "")
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}

	victim := domain.Principal{UserID: "victim", Role: domain.RoleUser}
	stranger := domain.Principal{UserID: "stranger", Role: domain.RoleUser}
	responder := domain.Principal{UserID: "amb-1", Role: domain.RoleResponder}
	operator := domain.Principal{UserID: "op-1", Role: domain.RoleOperator}
	nobody := domain.Principal{UserID: "x", Role: "GUEST"}

	cases := []struct {
		name  string
		req   domain.AccessRequest
		allow bool
	}{
		{"user creates", domain.AccessRequest{Action: domain.ActionCreate, Principal: victim}, true},
		{"unknown role creates", domain.AccessRequest{Action: domain.ActionCreate, Principal: nobody}, false},
		{"responder reads", domain.AccessRequest{Action: domain.ActionRead, Principal: responder}, true},
		{"unknown role reads", domain.AccessRequest{Action: domain.ActionRead, Principal: nobody}, false},
		{"owner cancels", domain.AccessRequest{Action: domain.ActionCancel, Principal: victim, OwnerID: "victim"}, true},
		{"stranger cancels", domain.AccessRequest{Action: domain.ActionCancel, Principal: stranger, OwnerID: "victim"}, false},
		{"operator cancels", domain.AccessRequest{Action: domain.ActionCancel, Principal: operator, OwnerID: "victim"}, true},
		{"responder cancels", domain.AccessRequest{Action: domain.ActionCancel, Principal: responder, OwnerID: "victim"}, false},
		{"responder dispatches", domain.AccessRequest{Action: domain.ActionSetStatus, Principal: responder, OwnerID: "victim", Target: domain.StatusDispatched}, true},
		{"operator resolves", domain.AccessRequest{Action: domain.ActionSetStatus, Principal: operator, OwnerID: "victim", Target: domain.StatusResolved}, true},
		{"user sets status", domain.AccessRequest{Action: domain.ActionSetStatus, Principal: victim, OwnerID: "victim", Target: domain.StatusResolved}, false},
		{"operator reads stats", domain.AccessRequest{Action: domain.ActionStats, Principal: operator}, true},
		{"responder reads stats", domain.AccessRequest{Action: domain.ActionStats, Principal: responder}, false},
		{"unknown action", domain.AccessRequest{Action: "delete", Principal: operator}, false},
	}

	for _, tc := range cases {
		err := p.Authorize(context.Background(), tc.req)
		if tc.allow && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.allow && !errors.Is(err, e.ErrForbidden) {
			t.Errorf("%s: err = %v, want ErrForbidden", tc.name, err)
		}
	}
}

func TestPolicy_CustomModule(t *testing.T) {
	t.Parallel()

	lockdown := "package sos.authz\n\ndefault allow := false\n\nallow if input.principal.role == \"OPERATOR\"\n"
	p, err := NewPolicy(context.Background(), lockdown)
	if err != nil {
		t.Fatalf("NewPolicy: %v", err)
	}

	user := domain.Principal{UserID: "u", Role: domain.RoleUser}
	if err := p.Authorize(context.Background(), domain.AccessRequest{Action: domain.ActionRead, Principal: user}); !errors.Is(err, e.ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}

	if _, err := NewPolicy(context.Background(), "package broken\nallow if {"); err == nil {
		t.Fatalf("expected compile error")
	}
}
