package httpkit

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"marketplace_backend/platform/apperr"
	"marketplace_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const testSecret = "test-access-secret"

type testJWTConfig struct{}

func (testJWTConfig) GetJWTAccessSecret() string { return testSecret }

type testUsers struct {
	role string
	err  error
}

func (u testUsers) CheckActive(context.Context, uuid.UUID) (string, error) {
	return u.role, u.err
}

func init() {
	gin.SetMode(gin.TestMode)
}

func signTestToken(t *testing.T, userID uuid.UUID, role, tokenType string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  userID.String(),
		"role": role,
		"type": tokenType,
		"exp":  time.Now().Add(time.Hour).Unix(),
		"iat":  time.Now().Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newTestEngine(middleware ...gin.HandlerFunc) *gin.Engine {
	engine := gin.New()
	handlers := append(middleware, func(c *gin.Context) {
		id := GetIdentity(c)
		c.JSON(http.StatusOK, gin.H{"user": id.UserID().String(), "role": id.Role(), "auth": id.IsAuthenticated()})
	})
	engine.GET("/ping", handlers...)
	return engine
}

func doRequest(engine *gin.Engine, target, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestAuthRequiredAcceptsValidToken(t *testing.T) {
	userID := uuid.New()
	engine := newTestEngine(AuthRequired(testJWTConfig{}, testUsers{role: "vendor"}))

	rec := doRequest(engine, "/ping", signTestToken(t, userID, "customer", AccessTokenType))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), userID.String()) {
		t.Fatalf("expected user id in body, got %s", rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"role":"vendor"`) {
		t.Fatalf("expected role refreshed from user store, got %s", rec.Body.String())
	}
}

func TestAuthRequiredAcceptsQueryToken(t *testing.T) {
	engine := newTestEngine(AuthRequired(testJWTConfig{}, nil))

	rec := doRequest(engine, "/ping?token="+signTestToken(t, uuid.New(), "customer", AccessTokenType), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthRequiredRejections(t *testing.T) {
	userID := uuid.New()
	cases := []struct {
		name    string
		token   string
		users   UserStatusChecker
		message string
	}{
		{name: "missing", token: "", message: errMissingToken},
		{name: "garbage", token: "not-a-jwt", message: errInvalidToken},
		{name: "refresh type", token: signTestToken(t, userID, "customer", "refresh"), message: errInvalidToken},
		{name: "deleted user", token: signTestToken(t, userID, "customer", AccessTokenType), users: testUsers{err: apperr.NotFound("user")}, message: errUserGone},
		{name: "inactive user", token: signTestToken(t, userID, "customer", AccessTokenType), users: testUsers{err: apperr.Forbidden("inactive")}, message: errUserInactive},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			engine := newTestEngine(AuthRequired(testJWTConfig{}, tc.users))
			rec := doRequest(engine, "/ping", tc.token)
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tc.message) {
				t.Fatalf("expected message %q, got %s", tc.message, rec.Body.String())
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	token := signTestToken(t, uuid.New(), "customer", AccessTokenType)

	engine := newTestEngine(AuthRequired(testJWTConfig{}, nil), RequireRole("vendor", "admin"))
	rec := doRequest(engine, "/ping", token)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "User role customer is not authorized") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}

	engine = newTestEngine(AuthRequired(testJWTConfig{}, nil), RequireRole("customer"))
	if rec := doRequest(engine, "/ping", token); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for allowed role, got %d", rec.Code)
	}
}

func TestOptionalAuthNeverFails(t *testing.T) {
	engine := newTestEngine(OptionalAuth(testJWTConfig{}))

	rec := doRequest(engine, "/ping", "broken")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"auth":false`) {
		t.Fatalf("expected anonymous pass-through, got %d %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(engine, "/ping", signTestToken(t, uuid.New(), "admin", AccessTokenType))
	if !strings.Contains(rec.Body.String(), `"auth":true`) {
		t.Fatalf("expected identity for valid token, got %s", rec.Body.String())
	}
}

func TestRateLimitBlocksAfterBurst(t *testing.T) {
	limiter := NewWindowRateLimiter(time.Hour, 2, nil)
	engine := newTestEngine(limiter.RateLimit())

	for i := 0; i < 2; i++ {
		if rec := doRequest(engine, "/ping", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
	if rec := doRequest(engine, "/ping", ""); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
}

func TestRequestIDEchoesOrGenerates(t *testing.T) {
	engine := newTestEngine(RequestID())

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "req-abc")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if got := rec.Header().Get(HeaderRequestID); got != "req-abc" {
		t.Fatalf("expected caller id echoed, got %q", got)
	}

	rec = doRequest(engine, "/ping", "")
	if _, err := uuid.Parse(rec.Header().Get(HeaderRequestID)); err != nil {
		t.Fatalf("expected generated uuid, got %q", rec.Header().Get(HeaderRequestID))
	}
}

func TestRequestLoggerTagsRequestAndUser(t *testing.T) {
	var buf bytes.Buffer
	log := logger.NewWithWriter("production", &buf)
	userID := uuid.New()

	engine := newTestEngine(RequestID(), RequestLogger(log), AuthRequired(testJWTConfig{}, nil))
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, userID, "customer", AccessTokenType))
	engine.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, want := range []string{`"msg":"http_request"`, `"request_id":"req-42"`, `"user_id":"` + userID.String() + `"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in log output, got %s", want, out)
		}
	}
}
