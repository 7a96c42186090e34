package token

import (
	"testing"
	"time"

	"marketplace_backend/platform/config"
	"marketplace_backend/platform/httpkit"

	"github.com/google/uuid"
)

func testConfig() *config.Config {
	return &config.Config{
		JWTAccessSecret:  "access-secret",
		JWTRefreshSecret: "refresh-secret",
		AccessTokenTTL:   time.Hour,
		RefreshTokenTTL:  24 * time.Hour,
	}
}

func TestAccessTokenRoundTrip(t *testing.T) {
	cfg := testConfig()
	issuer := NewIssuer(cfg)
	userID := uuid.New()

	raw, err := issuer.GenerateAccessToken(userID, "vendor")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	gotID, role, err := httpkit.ParseAccessToken(raw, cfg)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if gotID != userID || role != "vendor" {
		t.Fatalf("unexpected claims: %s %s", gotID, role)
	}
}

func TestRefreshTokenRoundTrip(t *testing.T) {
	issuer := NewIssuer(testConfig())
	userID := uuid.New()

	raw, err := issuer.GenerateRefreshToken(userID)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	got, err := issuer.ParseRefreshToken(raw)
	if err != nil || got != userID {
		t.Fatalf("expected %s, got %s (%v)", userID, got, err)
	}
}

func TestTokensAreNotInterchangeable(t *testing.T) {
	cfg := testConfig()
	issuer := NewIssuer(cfg)
	userID := uuid.New()

	access, _ := issuer.GenerateAccessToken(userID, "customer")
	if _, err := issuer.ParseRefreshToken(access); err != ErrInvalid {
		t.Fatalf("access token must not refresh, got %v", err)
	}

	refresh, _ := issuer.GenerateRefreshToken(userID)
	if _, _, err := httpkit.ParseAccessToken(refresh, cfg); err == nil {
		t.Fatalf("refresh token must not authenticate")
	}
}

func TestExpiredRefreshToken(t *testing.T) {
	issuer := NewIssuer(testConfig())
	issuer.now = func() time.Time { return time.Now().Add(-48 * time.Hour) }

	raw, err := issuer.GenerateRefreshToken(uuid.New())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	issuer.now = time.Now
	if _, err := issuer.ParseRefreshToken(raw); err != ErrInvalid {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}
