package domain

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "USER"
	RoleResponder Role = "RESPONDER"
	RoleOperator  Role = "OPERATOR"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleResponder, RoleOperator:
		return true
	}
	return false
}

const EnvelopeVersion = "1.0"

type Meta struct {
	RequestID string    `json:"requestId" validate:"required,max=64"`
	Timestamp time.Time `json:"timestamp" validate:"required"`
	Env       string    `json:"env" validate:"required,oneof=local dev staging prod"`
	Version   string    `json:"version" validate:"required,max=16"`
}

// Auth identifies the caller. Token is only ever set on outbound device requests.
type Auth struct {
	UserID string `json:"userId" validate:"required,max=128"`
	Role   Role   `json:"role" validate:"required,role"`
	Token  string `json:"token,omitempty"`
}

// Envelope wraps every request, response and published event.
type Envelope[T any] struct {
	Meta    Meta `json:"meta"`
	Auth    Auth `json:"auth"`
	Payload T    `json:"payload"`
}

// Principal is the caller identity resolved from a bearer credential.
type Principal struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// NewEnvelope builds an envelope with a fresh request id. The token is never copied.
func NewEnvelope[T any](env string, p Principal, payload T) Envelope[T] {
	return Envelope[T]{
		Meta: Meta{
			RequestID: uuid.NewString(),
			Timestamp: time.Now().UTC(),
			Env:       env,
			Version:   EnvelopeVersion,
		},
		Auth:    Auth{UserID: p.UserID, Role: p.Role},
		Payload: payload,
	}
}
