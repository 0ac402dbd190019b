// Package auth verifies bearer tokens and decides which roles may act on a case.
package auth

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"trafficSOS/internal/domain"
	"trafficSOS/pkg/e"
)

// Claims carries the caller role next to the registered claims; sub is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Role domain.Role `json:"role"`
}

// TokenProvider validates RS256/ES256 bearer tokens. With a private key it can
// also issue them, which devices and local tooling use.
type TokenProvider struct {
	privateKey crypto.Signer
	publicKey  crypto.PublicKey
	issuer     string
	audience   string
	ttl        time.Duration
}

func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, ttl time.Duration) *TokenProvider {
	if publicKey == nil && privateKey != nil {
		publicKey = privateKey.Public()
	}
	return &TokenProvider{
		privateKey: privateKey,
		publicKey:  publicKey,
		issuer:     issuer,
		audience:   audience,
		ttl:        ttl,
	}
}

// Issue signs a token for p and returns it with its expiry.
func (p *TokenProvider) Issue(principal domain.Principal) (string, time.Time, error) {
	const op = "auth.Issue"

	if p.privateKey == nil {
		return "", time.Time{}, e.Wrap(op, errors.New("no signing key configured"))
	}
	if principal.UserID == "" || !principal.Role.Valid() {
		return "", time.Time{}, e.Wrap(op, e.ErrInvalidInput)
	}

	var method jwt.SigningMethod
	switch p.privateKey.Public().(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return "", time.Time{}, e.Wrap(op, errors.New("unsupported key type"))
	}

	now := time.Now().UTC()
	expiresAt := now.Add(p.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   principal.UserID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role: principal.Role,
	}

	token, err := jwt.NewWithClaims(method, claims).SignedString(p.privateKey)
	if err != nil {
		return "", time.Time{}, e.Wrap(op, err)
	}
	return token, expiresAt, nil
}

// Verify checks signature, expiry, issuer and audience and returns the caller.
// Every failure unwraps to e.ErrUnauthorized.
func (p *TokenProvider) Verify(tokenString string) (domain.Principal, error) {
	const op = "auth.Verify"

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return p.publicKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg(), jwt.SigningMethodES256.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return domain.Principal{}, e.Wrap(op, e.ErrUnauthorized)
	}
	if claims.Subject == "" || !claims.Role.Valid() {
		return domain.Principal{}, e.Wrap(op, e.ErrUnauthorized)
	}
	return domain.Principal{UserID: claims.Subject, Role: claims.Role}, nil
}

// StaticCredentials hands a fixed principal and a freshly issued token to the
// device dispatch client.
type StaticCredentials struct {
	principal domain.Principal
	provider  *TokenProvider
}

func NewStaticCredentials(principal domain.Principal, provider *TokenProvider) *StaticCredentials {
	return &StaticCredentials{principal: principal, provider: provider}
}

func (c *StaticCredentials) Principal() domain.Principal { return c.principal }

func (c *StaticCredentials) Token(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	token, _, err := c.provider.Issue(c.principal)
	return token, err
}
