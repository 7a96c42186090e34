// Package token issues and verifies the JWTs handed out at login.
// Access tokens are checked by httpkit.AuthRequired; refresh tokens use a
// separate secret and are only accepted by the refresh endpoint.
package token

import (
	"errors"
	"time"

	"marketplace_backend/platform/config"
	"marketplace_backend/platform/httpkit"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const RefreshTokenType = "refresh"

var ErrInvalid = errors.New("invalid token")

// Issuer signs tokens with the configured secrets and lifetimes.
type Issuer struct {
	cfg config.AuthServiceConfig
	now func() time.Time
}

func NewIssuer(cfg config.AuthServiceConfig) *Issuer {
	return &Issuer{cfg: cfg, now: time.Now}
}

// GenerateAccessToken signs a short-lived token carrying the user's role.
func (i *Issuer) GenerateAccessToken(userID uuid.UUID, role string) (string, error) {
	return i.sign(jwt.MapClaims{
		"sub":  userID.String(),
		"role": role,
		"type": httpkit.AccessTokenType,
	}, i.cfg.GetAccessTokenTTL(), i.cfg.GetJWTAccessSecret())
}

// GenerateRefreshToken signs a long-lived token that can only mint new access tokens.
func (i *Issuer) GenerateRefreshToken(userID uuid.UUID) (string, error) {
	return i.sign(jwt.MapClaims{
		"sub":  userID.String(),
		"type": RefreshTokenType,
	}, i.cfg.GetRefreshTokenTTL(), i.cfg.GetJWTRefreshSecret())
}

// ParseRefreshToken verifies a refresh token and returns its subject.
func (i *Issuer) ParseRefreshToken(raw string) (uuid.UUID, error) {
	parsed, err := jwt.Parse(raw, func(*jwt.Token) (interface{}, error) {
		return []byte(i.cfg.GetJWTRefreshSecret()), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(i.now))
	if err != nil || !parsed.Valid {
		return uuid.Nil, ErrInvalid
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, ErrInvalid
	}
	if tokenType, _ := claims["type"].(string); tokenType != RefreshTokenType {
		return uuid.Nil, ErrInvalid
	}

	subject, _ := claims["sub"].(string)
	userID, err := uuid.Parse(subject)
	if err != nil {
		return uuid.Nil, ErrInvalid
	}
	return userID, nil
}

func (i *Issuer) sign(claims jwt.MapClaims, ttl time.Duration, secret string) (string, error) {
	now := i.now()
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(ttl).Unix()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
