// Package auth implements the credential verifier (spec §4.2): turning an
// API-key JWT or an OAuth bearer token into an owning identity.
package auth

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"
)

// AuthError is the only error type the verifier raises; its Error() text is
// safe to put on the wire verbatim (spec §4.2: "callers must not expose the
// underlying cause to the wire beyond a generic message").
type AuthError struct {
	msg string
}

func (e *AuthError) Error() string { return e.msg }

var (
	// ErrMissingCredentials is returned when no credential source was found
	// in the request (no header, no subprotocol).
	ErrMissingCredentials = &AuthError{"Missing authentication credentials"}
	// ErrInvalidCredentials is returned for any verification failure —
	// bad signature, missing subject, expired token, unknown identity.
	ErrInvalidCredentials = &AuthError{"Invalid credentials"}
)

// Credentials is the result of successful verification. APIKeyHash is nil
// for bearer-token credentials.
type Credentials struct {
	OwnerID    string
	APIKeyHash *string
}

// IdentityLookup calls the external identity service to resolve a bearer
// token to an owner id. This is the one call in the verifier that leaves
// the process; everything else is local JWT verification.
type IdentityLookup func(ctx context.Context, token string) (ownerID string, err error)

const (
	// bearerCacheTTL bounds how long a successful bearer lookup is trusted
	// without re-checking the identity service (spec §4.2: "≤5 minutes").
	bearerCacheTTL = 5 * time.Minute
	// bearerCacheMaxEntries bounds cache size; on overflow the whole cache
	// is evicted rather than picking a victim, matching spec §4.2's
	// "bounded LRU (evict all on overflow)" literally.
	bearerCacheMaxEntries = 4096
)

type bearerCacheEntry struct {
	ownerID   string
	fetchedAt time.Time
}

// Verifier implements both credential paths described in spec §4.2.
type Verifier struct {
	pubKey *ecdsa.PublicKey
	lookup IdentityLookup

	mu    sync.Mutex
	cache map[string]bearerCacheEntry
}

// NewVerifier constructs a Verifier. lookup is used for bearer-token
// credentials; pubKey verifies API-key JWTs.
func NewVerifier(pubKey *ecdsa.PublicKey, lookup IdentityLookup) *Verifier {
	return &Verifier{
		pubKey: pubKey,
		lookup: lookup,
		cache:  make(map[string]bearerCacheEntry),
	}
}

// CredentialsFromAPIKey decodes key as a signed API-key JWT.
func (v *Verifier) CredentialsFromAPIKey(key string) (Credentials, error) {
	if key == "" {
		return Credentials{}, ErrMissingCredentials
	}
	claims, err := validateAPIKeyJWT(v.pubKey, key)
	if err != nil {
		return Credentials{}, ErrInvalidCredentials
	}
	if claims.KeyType != "" && claims.KeyType != "api_key" {
		return Credentials{}, ErrInvalidCredentials
	}

	sum := sha256.Sum256([]byte(key))
	hash := hex.EncodeToString(sum[:])
	return Credentials{OwnerID: claims.Subject, APIKeyHash: &hash}, nil
}

// CredentialsFromBearer resolves token via the external identity service,
// with a bounded, TTL-limited in-process cache.
func (v *Verifier) CredentialsFromBearer(ctx context.Context, token string) (Credentials, error) {
	if token == "" {
		return Credentials{}, ErrMissingCredentials
	}

	if ownerID, ok := v.cachedOwner(token); ok {
		return Credentials{OwnerID: ownerID, APIKeyHash: nil}, nil
	}

	if v.lookup == nil {
		return Credentials{}, ErrInvalidCredentials
	}
	ownerID, err := v.lookup(ctx, token)
	if err != nil || ownerID == "" {
		return Credentials{}, ErrInvalidCredentials
	}

	v.storeOwner(token, ownerID)
	return Credentials{OwnerID: ownerID, APIKeyHash: nil}, nil
}

func (v *Verifier) cachedOwner(token string) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	entry, ok := v.cache[token]
	if !ok {
		return "", false
	}
	if time.Since(entry.fetchedAt) >= bearerCacheTTL {
		delete(v.cache, token)
		return "", false
	}
	return entry.ownerID, true
}

func (v *Verifier) storeOwner(token, ownerID string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(v.cache) >= bearerCacheMaxEntries {
		v.cache = make(map[string]bearerCacheEntry)
	}
	v.cache[token] = bearerCacheEntry{ownerID: ownerID, fetchedAt: time.Now()}
}

// IsAuthError reports whether err is (or wraps) an *AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// WireMessage returns the message safe to send to a client for err, falling
// back to the generic invalid-credentials text for anything unexpected.
func WireMessage(err error) string {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.msg
	}
	return fmt.Sprintf("%s", ErrInvalidCredentials)
}
