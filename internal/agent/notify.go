package agent

import (
	"context"
	"fmt"
	"html"
	"os"
	"runtime"

	"go.uber.org/zap"
)

// NotifyStartup tells every admin the bot is up. Send failures are logged.
func (h *Handler) NotifyStartup(ctx context.Context) {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	text := fmt.Sprintf("🟢 Bot v%s started\n"+
		"⏰ Started at: %s\n"+
		"🐹 Go: %s\n"+
		"💻 Server:\n"+
		"  system: %s\n"+
		"  node: %s\n"+
		"  arch: %s",
		html.EscapeString(h.opts.Version),
		h.opts.StartedAt.Format("2006-01-02 15:04:05"),
		runtime.Version(),
		runtime.GOOS,
		html.EscapeString(host),
		runtime.GOARCH,
	)
	h.broadcast(ctx, text)
}

func (h *Handler) NotifyShutdown(ctx context.Context) {
	h.broadcast(ctx, "🛑 Bot is shutting down...")
}

func (h *Handler) broadcast(ctx context.Context, text string) {
	for _, p := range h.gate.Principals() {
		if err := h.out.SendText(ctx, p, text); err != nil {
			h.logger.Error("notify admin failed", zap.Stringer("principal", p), zap.Error(err))
		}
	}
}
