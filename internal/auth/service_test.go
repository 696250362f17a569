package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"adminbot/internal/models"
)

func TestNewGateRejectsEmptySet(t *testing.T) {
	if _, err := NewGate(nil); !errors.Is(err, ErrNoPrincipals) {
		t.Fatalf("expected ErrNoPrincipals, got %v", err)
	}
	if _, err := NewGate([]int64{}); !errors.Is(err, ErrNoPrincipals) {
		t.Fatalf("expected ErrNoPrincipals for empty slice, got %v", err)
	}
}

func TestGateAllowed(t *testing.T) {
	gate, err := NewGate([]int64{42, 7, 42})
	if err != nil {
		t.Fatalf("NewGate error: %v", err)
	}
	if !gate.Allowed(42) || !gate.Allowed(7) {
		t.Fatalf("configured principals should be allowed")
	}
	if gate.Allowed(8) {
		t.Fatalf("unknown principal allowed")
	}
	got := gate.Principals()
	if len(got) != 2 || got[0] != models.Principal(7) || got[1] != models.Principal(42) {
		t.Fatalf("unexpected principals: %v", got)
	}

	var nilGate *Gate
	if nilGate.Allowed(42) {
		t.Fatalf("nil gate must deny")
	}
}

func TestWebhookSecret(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/hook", WebhookSecret("s3cret"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/hook", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing secret: want 401 got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/hook", nil)
	req.Header.Set(SecretTokenHeader, "s3cret")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid secret: want 200 got %d", rec.Code)
	}
}

func TestWebhookSecretEmptyRejectsAll(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	reached := false
	router.POST("/hook", WebhookSecret(""), func(c *gin.Context) {
		reached = true
		c.Status(http.StatusNoContent)
	})
	for _, header := range []string{"", "anything"} {
		req := httptest.NewRequest(http.MethodPost, "/hook", nil)
		if header != "" {
			req.Header.Set(SecretTokenHeader, header)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: want 401 got %d", header, rec.Code)
		}
	}
	if reached {
		t.Fatalf("handler reached without a configured secret")
	}
}
