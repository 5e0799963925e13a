package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCredentialsFromAPIKeyRoundTrip(t *testing.T) {
	priv, _, err := GenerateECKey()
	if err != nil {
		t.Fatalf("GenerateECKey: %v", err)
	}
	key, err := IssueAPIKey(priv, "owner-1", time.Hour)
	if err != nil {
		t.Fatalf("IssueAPIKey: %v", err)
	}

	v := NewVerifier(&priv.PublicKey, nil)
	creds, err := v.CredentialsFromAPIKey(key)
	if err != nil {
		t.Fatalf("CredentialsFromAPIKey: %v", err)
	}
	if creds.OwnerID != "owner-1" {
		t.Errorf("owner = %q, want owner-1", creds.OwnerID)
	}
	if creds.APIKeyHash == nil || *creds.APIKeyHash == "" {
		t.Error("expected a non-empty api key hash")
	}
}

func TestCredentialsFromAPIKeyRejectsWrongKey(t *testing.T) {
	priv1, _, _ := GenerateECKey()
	priv2, _, _ := GenerateECKey()
	key, _ := IssueAPIKey(priv1, "owner-1", time.Hour)

	v := NewVerifier(&priv2.PublicKey, nil)
	if _, err := v.CredentialsFromAPIKey(key); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("got %v, want ErrInvalidCredentials", err)
	}
}

func TestCredentialsFromAPIKeyEmpty(t *testing.T) {
	priv, _, _ := GenerateECKey()
	v := NewVerifier(&priv.PublicKey, nil)
	if _, err := v.CredentialsFromAPIKey(""); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("got %v, want ErrMissingCredentials", err)
	}
}

func TestCredentialsFromBearerCachesResult(t *testing.T) {
	priv, _, _ := GenerateECKey()
	calls := 0
	lookup := func(ctx context.Context, token string) (string, error) {
		calls++
		return "owner-from-bearer", nil
	}
	v := NewVerifier(&priv.PublicKey, lookup)

	for i := 0; i < 3; i++ {
		creds, err := v.CredentialsFromBearer(context.Background(), "tok-1")
		if err != nil {
			t.Fatalf("CredentialsFromBearer: %v", err)
		}
		if creds.OwnerID != "owner-from-bearer" || creds.APIKeyHash != nil {
			t.Errorf("unexpected creds: %+v", creds)
		}
	}
	if calls != 1 {
		t.Errorf("lookup called %d times, want 1 (cached)", calls)
	}
}

func TestCredentialsFromBearerRejectsUnknown(t *testing.T) {
	priv, _, _ := GenerateECKey()
	lookup := func(ctx context.Context, token string) (string, error) {
		return "", errors.New("no such user")
	}
	v := NewVerifier(&priv.PublicKey, lookup)

	if _, err := v.CredentialsFromBearer(context.Background(), "bad-token"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("got %v, want ErrInvalidCredentials", err)
	}
}

func TestCredentialsFromBearerCacheEvictsAllOnOverflow(t *testing.T) {
	priv, _, _ := GenerateECKey()
	n := 0
	lookup := func(ctx context.Context, token string) (string, error) {
		n++
		return token, nil
	}
	v := NewVerifier(&priv.PublicKey, lookup)
	v.cache = make(map[string]bearerCacheEntry, bearerCacheMaxEntries)

	for i := 0; i < bearerCacheMaxEntries; i++ {
		tok := time.Duration(i).String()
		if _, err := v.CredentialsFromBearer(context.Background(), tok); err != nil {
			t.Fatalf("CredentialsFromBearer: %v", err)
		}
	}
	if len(v.cache) != bearerCacheMaxEntries {
		t.Fatalf("cache len = %d, want %d", len(v.cache), bearerCacheMaxEntries)
	}

	// One more distinct token should trigger an evict-all, not an LRU
	// single-entry eviction.
	if _, err := v.CredentialsFromBearer(context.Background(), "overflow-token"); err != nil {
		t.Fatalf("CredentialsFromBearer: %v", err)
	}
	if len(v.cache) != 1 {
		t.Errorf("cache len after overflow = %d, want 1", len(v.cache))
	}
}
