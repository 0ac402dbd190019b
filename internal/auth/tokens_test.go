package auth

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"trafficSOS/internal/config"
	"trafficSOS/internal/domain"
	"trafficSOS/pkg/e"
)

func rsaKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	k, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa key: %v", err)
	}
	return k
}

func ecKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("ec key: %v", err)
	}
	return k
}

func TestTokenProvider_RoundTrip(t *testing.T) {
	t.Parallel()

	for name, key := range map[string]crypto.Signer{"RS256": rsaKey(t), "ES256": ecKey(t)} {
		key := key
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			p := NewTokenProvider(key, nil, "traffic-sos", "traffic-sos-api", time.Minute)
			want := domain.Principal{UserID: "victim-1", Role: domain.RoleUser}

			token, exp, err := p.Issue(want)
			if err != nil {
				t.Fatalf("Issue: %v", err)
			}
			if time.Until(exp) <= 0 {
				t.Fatalf("expiry in the past: %v", exp)
			}

			got, err := p.Verify(token)
			if err != nil {
				t.Fatalf("Verify: %v", err)
			}
			if got != want {
				t.Fatalf("principal = %+v, want %+v", got, want)
			}
		})
	}
}

func TestTokenProvider_Rejects(t *testing.T) {
	t.Parallel()

	key := rsaKey(t)
	verifier := NewTokenProvider(nil, key.Public(), "traffic-sos", "traffic-sos-api", time.Minute)
	principal := domain.Principal{UserID: "u1", Role: domain.RoleOperator}

	sign := func(claims Claims, method jwt.SigningMethod, k interface{}) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(k)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}
	valid := func() Claims {
		now := time.Now()
		return Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   principal.UserID,
				Issuer:    "traffic-sos",
				Audience:  jwt.ClaimStrings{"traffic-sos-api"},
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
			},
			Role: principal.Role,
		}
	}

	wrongIssuer := valid()
	wrongIssuer.Issuer = "someone-else"
	wrongAudience := valid()
	wrongAudience.Audience = jwt.ClaimStrings{"other-api"}
	expired := valid()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	noExpiry := valid()
	noExpiry.ExpiresAt = nil
	badRole := valid()
	badRole.Role = "ADMIN"
	noSubject := valid()
	noSubject.Subject = ""

	cases := map[string]string{
		"garbage":        "not-a-jwt",
		"wrong issuer":   sign(wrongIssuer, jwt.SigningMethodRS256, key),
		"wrong audience": sign(wrongAudience, jwt.SigningMethodRS256, key),
		"expired":        sign(expired, jwt.SigningMethodRS256, key),
		"no expiry":      sign(noExpiry, jwt.SigningMethodRS256, key),
		"unknown role":   sign(badRole, jwt.SigningMethodRS256, key),
		"no subject":     sign(noSubject, jwt.SigningMethodRS256, key),
		"hmac":           sign(valid(), jwt.SigningMethodHS256, []byte("shared-secret")),
		"other key":      sign(valid(), jwt.SigningMethodRS256, rsaKey(t)),
	}

	for name, token := range cases {
		if _, err := verifier.Verify(token); !errors.Is(err, e.ErrUnauthorized) {
			t.Errorf("%s: err = %v, want ErrUnauthorized", name, err)
		}
	}

	if _, err := verifier.Verify(sign(valid(), jwt.SigningMethodRS256, key)); err != nil {
		t.Fatalf("valid token rejected: %v", err)
	}
}

func TestTokenProvider_IssueWithoutKey(t *testing.T) {
	t.Parallel()

	p := NewTokenProvider(nil, rsaKey(t).Public(), "i", "a", time.Minute)
	if _, _, err := p.Issue(domain.Principal{UserID: "u", Role: domain.RoleUser}); err == nil {
		t.Fatalf("expected error without signing key")
	}
}

func TestStaticCredentials(t *testing.T) {
	t.Parallel()

	p := NewTokenProvider(ecKey(t), nil, "i", "a", time.Minute)
	principal := domain.Principal{UserID: "device-7", Role: domain.RoleUser}
	c := NewStaticCredentials(principal, p)

	token, err := c.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	got, err := p.Verify(token)
	if err != nil || got != c.Principal() {
		t.Fatalf("Verify = %+v, %v", got, err)
	}
}

func TestNewTokenProviderFromConfig(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	key := ecKey(t)

	privDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal private: %v", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(key.Public())
	if err != nil {
		t.Fatalf("marshal public: %v", err)
	}
	privPath := filepath.Join(dir, "jwt.key")
	pubPath := filepath.Join(dir, "jwt.pub")
	if err := os.WriteFile(privPath, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(pubPath, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}), 0o600); err != nil {
		t.Fatal(err)
	}

	p, err := NewTokenProviderFromConfig(config.AuthConfig{
		PublicKeyPath:  pubPath,
		PrivateKeyPath: privPath,
		Issuer:         "traffic-sos",
		Audience:       "traffic-sos-api",
		TokenTTL:       time.Minute,
	})
	if err != nil {
		t.Fatalf("NewTokenProviderFromConfig: %v", err)
	}

	token, _, err := p.Issue(domain.Principal{UserID: "r1", Role: domain.RoleResponder})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := p.Verify(token); err != nil {
		t.Fatalf("Verify: %v", err)
	}

	if _, err := LoadPublicKey(filepath.Join(dir, "missing.pub")); err == nil {
		t.Fatalf("expected error for missing key file")
	}
}
