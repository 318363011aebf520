package handlers

import (
	"testing"
	"time"

	"github.com/arogya-labs/teleconsult/internal/config"
	"github.com/arogya-labs/teleconsult/internal/models"
)

func newAuthHandlers(secret string, now time.Time) *Handlers {
	return &Handlers{
		config: &config.Config{JWTSecret: secret},
		nowFn:  func() time.Time { return now },
	}
}

func TestTokenRoundTrip(t *testing.T) {
	// The library validates expiry against the wall clock, so issue from a
	// current timestamp. Truncate to seconds to match NumericDate precision.
	now := time.Now().Truncate(time.Second)
	h := newAuthHandlers("test-secret", now)

	user := &models.User{ID: "user-1", Role: models.RoleDoctor}
	token, err := h.generateToken(user)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	claims, err := h.parseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != "user-1" || claims.Role != models.RoleDoctor {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if !claims.ExpiresAt.Time.Equal(now.Add(tokenLifetime)) {
		t.Fatalf("unexpected expiry %v", claims.ExpiresAt.Time)
	}
}

func TestTokenWrongSecretRejected(t *testing.T) {
	now := time.Now()
	issuer := newAuthHandlers("secret-a", now)
	verifier := newAuthHandlers("secret-b", now)

	token, err := issuer.generateToken(&models.User{ID: "user-1", Role: models.RolePatient})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := verifier.parseToken(token); err == nil {
		t.Fatal("token signed with a different secret should be rejected")
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	// jwt validates expiry against the wall clock, so issue a token far
	// enough in the past that it is already dead.
	past := time.Now().Add(-2 * tokenLifetime)
	h := newAuthHandlers("test-secret", past)

	token, err := h.generateToken(&models.User{ID: "user-1", Role: models.RolePatient})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, err := h.parseToken(token); err == nil {
		t.Fatal("expired token should be rejected")
	}
}

func TestGarbageTokenRejected(t *testing.T) {
	h := newAuthHandlers("test-secret", time.Now())
	for _, raw := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := h.parseToken(raw); err == nil {
			t.Fatalf("token %q should be rejected", raw)
		}
	}
}
