package tracking

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"marketplace_backend/internal/events"
	apphttp "marketplace_backend/internal/http"
	"marketplace_backend/internal/realtime"
	"marketplace_backend/platform/httpkit"
	"marketplace_backend/platform/logger"
	"marketplace_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordedBroadcast struct {
	room  string
	event string
}

type memoryBroadcaster struct {
	mu   sync.Mutex
	sent []recordedBroadcast
}

func (b *memoryBroadcaster) Broadcast(room, event string, _ any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sent = append(b.sent, recordedBroadcast{room: room, event: event})
}

type staticStats struct{}

func (staticStats) Stats() realtime.Stats { return realtime.Stats{Connections: 5, Rooms: 4} }

// fakeAuth trusts the X-Test-Role header so routes can be exercised without tokens.
func fakeAuth(c *gin.Context) {
	role := c.GetHeader("X-Test-Role")
	if role == "" {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	c.Set(httpkit.ContextUserIDKey, uuid.New())
	c.Set(httpkit.ContextRoleKey, role)
	c.Next()
}

func newTestEngine(t *testing.T) (*gin.Engine, *events.InMemoryBus, *memoryBroadcaster) {
	t.Helper()
	bus := events.NewInMemoryBus(nil)
	out := &memoryBroadcaster{}
	module := NewModule(bus, out, nil, staticStats{}, validator.New(), logger.Discard())

	engine := gin.New()
	v1 := engine.Group("/api/v1")
	protected := v1.Group("", fakeAuth)
	admin := v1.Group("/admin", fakeAuth, httpkit.RequireRole("admin"))
	module.RegisterRoutes(&apphttp.RouterContext{Engine: engine, V1: v1, Protected: protected, Admin: admin})
	return engine, bus, out
}

func send(engine *gin.Engine, method, target, role, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		req.Header.Set("X-Test-Role", role)
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestOrderStatusRoute(t *testing.T) {
	engine, bus, _ := newTestEngine(t)
	var got []events.OrderStatusChanged
	bus.Subscribe(events.OrderStatusChanged{}.EventName(), events.HandlerFunc(func(_ context.Context, e events.Event) error {
		got = append(got, e.(events.OrderStatusChanged))
		return nil
	}))

	rec := send(engine, http.MethodPatch, "/api/v1/orders/o1/status", "customer", `{"status":"shipped"}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("customer: expected 403, got %d", rec.Code)
	}

	rec = send(engine, http.MethodPatch, "/api/v1/orders/o1/status", "vendor", `{"status":"teleported"}`)
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "status") {
		t.Fatalf("bad status: expected 400 naming the field, got %d %s", rec.Code, rec.Body.String())
	}

	rec = send(engine, http.MethodPatch, "/api/v1/orders/o1/status", "vendor", `{"status":"shipped","note":"left warehouse"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("vendor: expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	if len(got) != 1 || got[0].OrderID != "o1" || got[0].Status != "shipped" {
		t.Fatalf("unexpected events: %+v", got)
	}
}

func TestLocationRoute(t *testing.T) {
	engine, bus, _ := newTestEngine(t)
	var got []events.DeliveryLocationUpdated
	bus.Subscribe(events.DeliveryLocationUpdated{}.EventName(), events.HandlerFunc(func(_ context.Context, e events.Event) error {
		got = append(got, e.(events.DeliveryLocationUpdated))
		return nil
	}))

	if rec := send(engine, http.MethodPost, "/api/v1/delivery/d1/location", "vendor", `{"lat":1,"lng":2}`); rec.Code != http.StatusForbidden {
		t.Fatalf("vendor: expected 403, got %d", rec.Code)
	}
	if rec := send(engine, http.MethodPost, "/api/v1/delivery/d1/location", "delivery", `{"lat":91,"lng":2}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("out of range: expected 400, got %d", rec.Code)
	}
	if rec := send(engine, http.MethodPost, "/api/v1/delivery/d1/location", "delivery", `{"lng":2}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("missing lat: expected 400, got %d", rec.Code)
	}

	rec := send(engine, http.MethodPost, "/api/v1/delivery/d1/location", "delivery", `{"lat":0,"lng":31.2,"heading":180}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d %s", rec.Code, rec.Body.String())
	}
	if len(got) != 1 || got[0].DeliveryID != "d1" || got[0].Latitude != 0 || got[0].Longitude != 31.2 {
		t.Fatalf("unexpected events: %+v", got)
	}
}

func TestSupportMessageRoute(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	if rec := send(engine, http.MethodPost, "/api/v1/support/tickets/t1/messages", "", `{"text":"hi"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: expected 401, got %d", rec.Code)
	}
	if rec := send(engine, http.MethodPost, "/api/v1/support/tickets/t1/messages", "customer", `{"text":""}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty text: expected 400, got %d", rec.Code)
	}

	rec := send(engine, http.MethodPost, "/api/v1/support/tickets/t1/messages", "customer", `{"text":"where is my parcel"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"ticketId":"t1"`) || !strings.Contains(rec.Body.String(), "where is my parcel") {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestAdminBroadcastRoute(t *testing.T) {
	engine, _, out := newTestEngine(t)

	if rec := send(engine, http.MethodPost, "/api/v1/admin/broadcasts", "vendor", `{"room":"user:1","event":"x"}`); rec.Code != http.StatusForbidden {
		t.Fatalf("vendor: expected 403, got %d", rec.Code)
	}
	if rec := send(engine, http.MethodPost, "/api/v1/admin/broadcasts", "admin", `{"room":"lobby","event":"x"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad room: expected 400, got %d", rec.Code)
	}
	if rec := send(engine, http.MethodPost, "/api/v1/admin/broadcasts", "admin", `{"room":"user:1","event":"x","sendAt":"2999-01-01T00:00:00Z"}`); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("no scheduler: expected 503, got %d", rec.Code)
	}

	rec := send(engine, http.MethodPost, "/api/v1/admin/broadcasts", "admin", `{"room":"user:1","event":"notification","data":{"title":"sale"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	if len(out.sent) != 1 || out.sent[0] != (recordedBroadcast{room: "user:1", event: "notification"}) {
		t.Fatalf("unexpected broadcasts: %+v", out.sent)
	}
}

func TestAdminStatsRoute(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	rec := send(engine, http.MethodGet, "/api/v1/admin/realtime/stats", "admin", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"connections":5`) || !strings.Contains(rec.Body.String(), `"rooms":4`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}
