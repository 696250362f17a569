package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adminbot/internal/auth"
	"adminbot/internal/worker"
)

type fixedStats worker.Stats

func (s fixedStats) Stats() worker.Stats { return worker.Stats(s) }

type fixedSessions int

func (n fixedSessions) Len() int { return int(n) }

func newTestRouter(t *testing.T, opts Options) (*gin.Engine, *Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewHandler(fixedStats{Workers: 3, IdleWorkers: 1, Queued: 4, InFlight: 2}, fixedSessions(5), opts)
	router := gin.New()
	h.RegisterRoutes(router)
	return router, h
}

func TestHealth(t *testing.T) {
	started := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	router, h := newTestRouter(t, Options{StartedAt: started, Version: "1.2.3"})
	h.now = func() time.Time { return started.Add(90 * time.Second) }

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "1.2.3", body.Version)
	assert.Equal(t, int64(90), body.UptimeSeconds)
	assert.Equal(t, 5, body.ActiveSessions)
	assert.Equal(t, worker.Stats{Workers: 3, IdleWorkers: 1, Queued: 4, InFlight: 2}, body.Workers)
}

func TestWebhookRequiresSecret(t *testing.T) {
	var delivered []string
	hook := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		delivered = append(delivered, string(b))
		w.WriteHeader(http.StatusOK)
	})
	router, _ := newTestRouter(t, Options{Webhook: hook, WebhookPath: "/telegram/webhook", WebhookSecret: "s3cret"})

	post := func(secret string) int {
		req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(`{"update_id":1}`))
		if secret != "" {
			req.Header.Set(auth.SecretTokenHeader, secret)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, post(""))
	assert.Equal(t, http.StatusUnauthorized, post("wrong"))
	assert.Empty(t, delivered)
	assert.Equal(t, http.StatusOK, post("s3cret"))
	assert.Equal(t, []string{`{"update_id":1}`}, delivered)
}

func TestNoWebhookRouteInPollingMode(t *testing.T) {
	router, _ := newTestRouter(t, Options{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/telegram/webhook", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookWithoutSecretRejectsForgedUpdate(t *testing.T) {
	delivered := 0
	hook := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered++
	})
	router, _ := newTestRouter(t, Options{Webhook: hook, WebhookPath: "/telegram/webhook"})

	forged := `{"update_id":1,"message":{"message_id":1,"from":{"id":123456789},"chat":{"id":123456789,"type":"private"},"text":"/execute id"}}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(forged)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Zero(t, delivered)
}
