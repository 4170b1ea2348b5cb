package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func newLimitedRouter(limit int) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachRequestData())
	r.Use(RateLimit(RateLimitConfig{Limit: limit, Window: time.Hour}))
	r.POST("/upload", func(c *gin.Context) { c.Status(http.StatusCreated) })
	return r
}

func post(r http.Handler, owner string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/upload", nil)
	if owner != "" {
		req.Header.Set(headerOwnerID, owner)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitRejectsOverLimit(t *testing.T) {
	r := newLimitedRouter(2)
	for i := 0; i < 2; i++ {
		if rec := post(r, ""); rec.Code != http.StatusCreated {
			t.Fatalf("request %d: status %d", i+1, rec.Code)
		}
	}
	rec := post(r, "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("third request: status %d, want 429", rec.Code)
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Fatalf("remaining header = %q", rec.Header().Get("X-RateLimit-Remaining"))
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}
}

func TestRateLimitKeysByOwner(t *testing.T) {
	r := newLimitedRouter(1)
	a, b := uuid.NewString(), uuid.NewString()
	if rec := post(r, a); rec.Code != http.StatusCreated {
		t.Fatalf("owner a: status %d", rec.Code)
	}
	if rec := post(r, a); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("owner a again: status %d, want 429", rec.Code)
	}
	if rec := post(r, b); rec.Code != http.StatusCreated {
		t.Fatalf("owner b: status %d", rec.Code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	r := newLimitedRouter(0)
	for i := 0; i < 5; i++ {
		if rec := post(r, ""); rec.Code != http.StatusCreated {
			t.Fatalf("request %d: status %d", i+1, rec.Code)
		}
	}
}
