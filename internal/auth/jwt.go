package auth

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// APIKeyClaims are the JWT claims carried by an Omnara API key.
type APIKeyClaims struct {
	jwt.RegisteredClaims
	KeyType string `json:"key_type,omitempty"`
}

// ParseECKeyFromEnv parses a P-256 private key from an environment variable
// value. Accepts PEM or base64-encoded DER.
func ParseECKeyFromEnv(envValue string) (*ecdsa.PrivateKey, error) {
	if envValue == "" {
		return nil, fmt.Errorf("OMNARA_RELAY_JWT_KEY is required — generate one with GenerateECKey")
	}
	return parseECKey(envValue)
}

// GenerateECKey creates a new P-256 private key and returns it along with
// its base64-DER encoding, suitable as the OMNARA_RELAY_JWT_KEY value.
func GenerateECKey() (*ecdsa.PrivateKey, string, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, "", fmt.Errorf("generate ec key: %w", err)
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, "", fmt.Errorf("marshal ec key: %w", err)
	}
	return key, base64.StdEncoding.EncodeToString(der), nil
}

func parseECKey(data string) (*ecdsa.PrivateKey, error) {
	if block, _ := pem.Decode([]byte(data)); block != nil {
		key, err := x509.ParseECPrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parse pem ec key: %w", err)
		}
		return key, nil
	}

	der, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode base64 ec key: %w", err)
	}
	key, err := x509.ParseECPrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parse der ec key: %w", err)
	}
	return key, nil
}

// IssueAPIKey creates an ES256-signed JWT that serves as an Omnara API key.
// Not exercised by the relay itself (keys are minted by the out-of-scope
// account service) but kept so the verifier and issuer stay symmetric for
// tests and local development.
func IssueAPIKey(key *ecdsa.PrivateKey, ownerID string, ttl time.Duration) (string, error) {
	claims := APIKeyClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   ownerID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		KeyType: "api_key",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodES256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign api key: %w", err)
	}
	return signed, nil
}

func validateAPIKeyJWT(pubKey *ecdsa.PublicKey, tokenString string) (*APIKeyClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &APIKeyClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return pubKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse jwt: %w", err)
	}

	claims, ok := token.Claims.(*APIKeyClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid jwt claims")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("jwt missing subject claim")
	}
	return claims, nil
}
