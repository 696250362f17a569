package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"adminbot/internal/auth"
	"adminbot/internal/worker"
)

// StatsSource reports dispatcher load.
type StatsSource interface {
	Stats() worker.Stats
}

// SessionCounter reports how many conversations are in progress.
type SessionCounter interface {
	Len() int
}

type Options struct {
	StartedAt time.Time
	Version   string

	// Webhook receives Telegram updates. When nil no webhook route is
	// registered.
	Webhook       http.Handler
	WebhookPath   string
	WebhookSecret string
}

// Handler serves the bot's HTTP surface: health reporting and, in webhook
// mode, update delivery.
type Handler struct {
	stats    StatsSource
	sessions SessionCounter
	opts     Options
	now      func() time.Time
}

func NewHandler(stats StatsSource, sessions SessionCounter, opts Options) *Handler {
	if opts.StartedAt.IsZero() {
		opts.StartedAt = time.Now()
	}
	return &Handler{stats: stats, sessions: sessions, opts: opts, now: time.Now}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.health)
	if h.opts.Webhook != nil && h.opts.WebhookPath != "" {
		router.POST(h.opts.WebhookPath, auth.WebhookSecret(h.opts.WebhookSecret), gin.WrapH(h.opts.Webhook))
	}
}

type healthResponse struct {
	Status         string       `json:"status"`
	Version        string       `json:"version,omitempty"`
	UptimeSeconds  int64        `json:"uptime_seconds"`
	ActiveSessions int          `json:"active_sessions"`
	Workers        worker.Stats `json:"workers"`
}

func (h *Handler) health(c *gin.Context) {
	resp := healthResponse{
		Status:        "ok",
		Version:       h.opts.Version,
		UptimeSeconds: int64(h.now().Sub(h.opts.StartedAt) / time.Second),
	}
	if h.sessions != nil {
		resp.ActiveSessions = h.sessions.Len()
	}
	if h.stats != nil {
		resp.Workers = h.stats.Stats()
	}
	c.JSON(http.StatusOK, resp)
}
