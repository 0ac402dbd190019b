package auth

import (
	"crypto"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"

	"trafficSOS/internal/config"
)

// LoadPublicKey reads an RSA or EC public key from a PEM file.
func LoadPublicKey(path string) (crypto.PublicKey, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read public key: %w", err)
	}
	if k, err := jwt.ParseRSAPublicKeyFromPEM(pem); err == nil {
		return k, nil
	}
	if k, err := jwt.ParseECPublicKeyFromPEM(pem); err == nil {
		return k, nil
	}
	return nil, fmt.Errorf("public key %s: not an RSA or EC PEM key", path)
}

// LoadPrivateKey reads an RSA or EC private key from a PEM file.
func LoadPrivateKey(path string) (crypto.Signer, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	if k, err := jwt.ParseRSAPrivateKeyFromPEM(pem); err == nil {
		return k, nil
	}
	if k, err := jwt.ParseECPrivateKeyFromPEM(pem); err == nil {
		return k, nil
	}
	return nil, fmt.Errorf("private key %s: not an RSA or EC PEM key", path)
}

// NewTokenProviderFromConfig loads the verification key and, when configured,
// the signing key.
func NewTokenProviderFromConfig(cfg config.AuthConfig) (*TokenProvider, error) {
	pub, err := LoadPublicKey(cfg.PublicKeyPath)
	if err != nil {
		return nil, err
	}

	var priv crypto.Signer
	if cfg.PrivateKeyPath != "" {
		if priv, err = LoadPrivateKey(cfg.PrivateKeyPath); err != nil {
			return nil, err
		}
	}
	return NewTokenProvider(priv, pub, cfg.Issuer, cfg.Audience, cfg.TokenTTL), nil
}
