// Package httpkit provides HTTP middleware infrastructure.
// This is part of the platform layer and contains no business logic.
package httpkit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"marketplace_backend/platform/apperr"
	"marketplace_backend/platform/config"
	"marketplace_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	// ContextUserIDKey is the gin context key for the authenticated user ID.
	ContextUserIDKey = "userID"
	// ContextRoleKey is the gin context key for the user's role.
	ContextRoleKey = "role"

	// AccessTokenType marks access tokens in the "type" claim.
	AccessTokenType = "access"

	// HeaderRequestID carries the request id in both directions.
	HeaderRequestID = "X-Request-ID"

	errMissingToken  = "Not authorized to access this route"
	errInvalidToken  = "Not authorized to access this route"
	errUserGone      = "User no longer exists"
	errUserInactive  = "Your account has been deactivated"
	errLimitExceeded = "Too many requests from this IP, please try again later"
)

// UserStatusChecker confirms that a token subject still maps to a usable account.
type UserStatusChecker interface {
	// CheckActive returns the user's current role. It returns an apperr NotFound
	// when the user no longer exists and Forbidden when the account is deactivated.
	CheckActive(ctx context.Context, userID uuid.UUID) (string, error)
}

// RequestID tags the request with the caller's X-Request-ID, or a new one, and
// echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(HeaderRequestID, id)
		setContextValue(c, logger.RequestIDKey, id)
		c.Next()
	}
}

// RequestLogger logs HTTP requests with timing, tagged with the request and
// user ids found in the request context.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		clientIP := c.ClientIP()
		log := log.WithContext(c.Request.Context())

		if len(c.Errors) > 0 {
			log.HTTPError(c.Request.Method, path, status, c.Errors.Last(), clientIP)
			return
		}
		log.HTTPRequest(c.Request.Method, path, status, float64(latency.Milliseconds()), clientIP)
	}
}

// SecurityHeaders adds security headers to responses.
func SecurityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "0")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Cross-Origin-Resource-Policy", "same-origin")

		if c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age=15552000; includeSubDomains")
		}

		c.Next()
	}
}

// BodyLimit caps request bodies at maxBytes.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// IPRateLimiter manages per-IP rate limiters.
type IPRateLimiter struct {
	limiters sync.Map
	rate     rate.Limit
	burst    int
	log      *logger.Logger
}

// NewIPRateLimiter creates a new IP-based rate limiter.
func NewIPRateLimiter(r rate.Limit, burst int, log *logger.Logger) *IPRateLimiter {
	return &IPRateLimiter{
		rate:  r,
		burst: burst,
		log:   log,
	}
}

// NewWindowRateLimiter allows max requests per window, refilling evenly.
func NewWindowRateLimiter(window time.Duration, max int, log *logger.Logger) *IPRateLimiter {
	if window <= 0 || max <= 0 {
		return NewIPRateLimiter(rate.Inf, 0, log)
	}
	return NewIPRateLimiter(rate.Limit(float64(max)/window.Seconds()), max, log)
}

func (i *IPRateLimiter) getLimiter(ip string) *rate.Limiter {
	limiter, _ := i.limiters.LoadOrStore(ip, rate.NewLimiter(i.rate, i.burst))
	return limiter.(*rate.Limiter)
}

// RateLimit returns a middleware that rate limits by IP.
func (i *IPRateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		limiter := i.getLimiter(ip)

		if !limiter.Allow() {
			if i.log != nil {
				i.log.RateLimitExceeded(ip, c.Request.URL.Path)
			}
			HandleError(c, apperr.New(apperr.KindTooManyRequests, errLimitExceeded))
			c.Abort()
			return
		}

		c.Next()
	}
}

// AuthRateLimiter is a stricter rate limiter for auth endpoints.
type AuthRateLimiter struct {
	*IPRateLimiter
}

// NewAuthRateLimiter creates a rate limiter for authentication endpoints
// allowing 5 requests per 15 minutes per IP.
func NewAuthRateLimiter(log *logger.Logger) *AuthRateLimiter {
	return &AuthRateLimiter{
		IPRateLimiter: NewWindowRateLimiter(15*time.Minute, 5, log),
	}
}

// AuthRequired returns middleware that validates JWT access tokens and confirms
// the user still exists and is active. The token may come from the Authorization
// header or, for socket upgrades, the "token" query parameter.
func AuthRequired(cfg config.JWTConfig, users UserStatusChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawToken, ok := requestToken(c)
		if !ok {
			abortUnauthorized(c, errMissingToken)
			return
		}

		userID, role, err := ParseAccessToken(rawToken, cfg)
		if err != nil {
			abortUnauthorized(c, errInvalidToken)
			return
		}

		if users != nil {
			current, err := users.CheckActive(c.Request.Context(), userID)
			switch {
			case apperr.Is(err, apperr.KindNotFound):
				abortUnauthorized(c, errUserGone)
				return
			case apperr.Is(err, apperr.KindForbidden):
				abortUnauthorized(c, errUserInactive)
				return
			case err != nil:
				abortUnauthorized(c, errInvalidToken)
				return
			}
			role = current
		}

		setIdentity(c, userID, role)
		c.Next()
	}
}

// OptionalAuth sets the identity when a valid access token is present and
// continues anonymously otherwise.
func OptionalAuth(cfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rawToken, ok := requestToken(c); ok {
			if userID, role, err := ParseAccessToken(rawToken, cfg); err == nil {
				setIdentity(c, userID, role)
			}
		}
		c.Next()
	}
}

// RequireRole returns middleware that admits users holding any of the given roles.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ContextRoleKey)
		for _, allowed := range roles {
			if role == allowed {
				c.Next()
				return
			}
		}

		HandleError(c, apperr.Forbidden(fmt.Sprintf("User role %s is not authorized to access this route", role)))
		c.Abort()
	}
}

// ParseAccessToken verifies an HS256 access token and returns its subject and role.
func ParseAccessToken(rawToken string, cfg config.JWTConfig) (uuid.UUID, string, error) {
	parsed, err := jwt.Parse(rawToken, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return []byte(cfg.GetJWTAccessSecret()), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return uuid.Nil, "", errors.New(errInvalidToken)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, "", errors.New(errInvalidToken)
	}

	if tokenType, _ := claims["type"].(string); tokenType != AccessTokenType {
		return uuid.Nil, "", errors.New(errInvalidToken)
	}

	subject, _ := claims["sub"].(string)
	userID, err := uuid.Parse(subject)
	if err != nil {
		return uuid.Nil, "", errors.New(errInvalidToken)
	}

	role, _ := claims["role"].(string)
	return userID, role, nil
}

func requestToken(c *gin.Context) (string, bool) {
	if rawToken, ok := extractBearerToken(c.GetHeader("Authorization")); ok {
		return rawToken, true
	}
	if rawToken := strings.TrimSpace(c.Query("token")); rawToken != "" {
		return rawToken, true
	}
	return "", false
}

func extractBearerToken(authHeader string) (string, bool) {
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}

	rawToken := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if rawToken == "" {
		return "", false
	}

	return rawToken, true
}

func setIdentity(c *gin.Context, userID uuid.UUID, role string) {
	c.Set(ContextUserIDKey, userID)
	c.Set(ContextRoleKey, role)
	setContextValue(c, logger.UserIDKey, userID.String())
}

func setContextValue(c *gin.Context, key, value any) {
	c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), key, value))
}

func abortUnauthorized(c *gin.Context, message string) {
	HandleError(c, apperr.Unauthorized(message))
	c.Abort()
}
