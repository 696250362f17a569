package agent

import (
	"context"
	"fmt"
	"html"
	"strings"

	"go.uber.org/zap"

	"adminbot/internal/audit"
	"adminbot/internal/chunker"
	"adminbot/internal/executor"
	"adminbot/internal/models"
	"adminbot/internal/registry"
)

var statusSteps = []registry.Step{
	{Label: "Uptime", Command: "uptime"},
	{Label: "Load average", Command: "cat /proc/loadavg"},
	{Label: "Users", Command: "who"},
	{Label: "Date", Command: "date"},
	{Label: "Disk space", Command: "df -h | grep -v tmpfs"},
}

func (h *Handler) cmdStart(ctx context.Context, ev models.Event) {
	var b strings.Builder
	fmt.Fprintf(&b, "🖥️ <b>Server admin bot v%s</b>\n\n", html.EscapeString(h.opts.Version))
	fmt.Fprintf(&b, "⏱ Uptime: <code>%s</code>\n", formatUptime(h.uptime()))
	fmt.Fprintf(&b, "🆔 Your ID: <code>%s</code>\n\n", ev.Principal)
	b.WriteString("📋 <b>Commands:</b>")

	var custom []registry.Info
	for _, info := range h.registry.Commands() {
		if info.Composite {
			custom = append(custom, info)
			continue
		}
		fmt.Fprintf(&b, "\n/%s - %s", info.Name, html.EscapeString(info.Description))
	}
	if len(custom) > 0 {
		b.WriteString("\n\n🛠️ <b>Custom commands:</b>")
		for _, info := range custom {
			fmt.Fprintf(&b, "\n/%s - %s", info.Name, html.EscapeString(info.Description))
		}
	}
	h.sendChunks(ctx, ev.Principal, chunker.Split(b.String(), h.opts.MaxMessageLength))
	h.record(ctx, ev, audit.ActionCommand, ev.Command, audit.OutcomeOK)
}

func (h *Handler) cmdStatus(ctx context.Context, ev models.Event) {
	header := []string{
		"<b>🔄 Server status:</b>",
		"",
		fmt.Sprintf("⏱ <b>Bot uptime:</b> <code>%s</code>", formatUptime(h.uptime())),
	}
	results := h.runSteps(ctx, ev, statusSteps)
	h.sendChunks(ctx, ev.Principal, renderReport(header, results, h.opts.MaxMessageLength))
	h.record(ctx, ev, audit.ActionCommand, ev.Command, stepsOutcome(results))
}

// runComposite runs every step in file order; a failing step does not stop
// the ones after it.
func (h *Handler) runComposite(ctx context.Context, ev models.Event, c *registry.Composite) {
	results := h.runSteps(ctx, ev, c.Steps)
	h.sendChunks(ctx, ev.Principal, renderReport([]string{c.DisplayTitle()}, results, h.opts.MaxMessageLength))
	h.record(ctx, ev, audit.ActionCommand, c.Name, stepsOutcome(results))
}

func (h *Handler) runSteps(ctx context.Context, ev models.Event, steps []registry.Step) []stepResult {
	results := make([]stepResult, 0, len(steps))
	for _, s := range steps {
		res := h.runner.Run(ctx, s.Command)
		if !res.OK() {
			h.logger.Info("step failed",
				zap.String("event_id", ev.ID),
				zap.String("command", ev.Command),
				zap.String("step", s.Label),
				zap.Int("exit_code", res.ExitCode),
			)
		}
		results = append(results, stepResult{label: s.Label, res: res})
	}
	return results
}

func stepsOutcome(results []stepResult) string {
	for _, r := range results {
		if !r.res.OK() {
			return audit.OutcomeFailed
		}
	}
	return audit.OutcomeOK
}

func (h *Handler) cmdExecute(ctx context.Context, ev models.Event) {
	p := ev.Principal
	command := strings.TrimSpace(ev.Args)
	if command == "" {
		h.send(ctx, p, "ℹ️ Specify a command to run. Example: /execute ls -la")
		return
	}
	if err := h.send(ctx, p, "🔄 Running: <code>"+html.EscapeString(command)+"</code>"); err != nil {
		return
	}

	res := h.runner.Run(ctx, command)
	if !res.OK() {
		h.send(ctx, p, errorBlock("❌ Command failed:", res.ErrorText(), h.opts.MaxMessageLength))
		h.record(ctx, ev, audit.ActionExecute, command, audit.OutcomeFailed)
		return
	}
	if res.Stdout == "" {
		h.send(ctx, p, "✅ Command completed, no output.")
	} else {
		h.sendChunks(ctx, p, preChunks(res.Stdout, h.opts.MaxMessageLength))
	}
	h.record(ctx, ev, audit.ActionExecute, command, audit.OutcomeOK)
}

func (h *Handler) cmdReboot(ctx context.Context, ev models.Event) {
	prompt := "⚠️ <b>Reboot the server?</b>\n\nThis runs: <code>" + html.EscapeString(h.opts.RebootCommand) + "</code>"
	h.present(ctx, ev.Principal, prompt,
		models.Choice{Label: "✅ Yes", Data: CallbackConfirmReboot},
		models.Choice{Label: "❌ No", Data: CallbackCancel},
	)
}

// confirmReboot announces the reboot before running it: a successful reboot
// may take the process down before the command returns.
func (h *Handler) confirmReboot(ctx context.Context, ev models.Event) {
	h.resolve(ctx, ev, "🔄 Rebooting the server...")
	h.logger.Warn("reboot confirmed", zap.String("event_id", ev.ID), zap.Stringer("principal", ev.Principal))
	h.record(ctx, ev, audit.ActionReboot, h.opts.RebootCommand, audit.OutcomeOK)

	res := h.runner.Run(ctx, h.opts.RebootCommand)
	if res.OK() {
		return
	}
	h.logger.Error("reboot command failed", zap.Int("exit_code", res.ExitCode), zap.String("stderr", res.Stderr))
	h.send(ctx, ev.Principal, errorBlock("❌ Reboot failed:", res.ErrorText(), h.opts.MaxMessageLength))
	h.record(ctx, ev, audit.ActionReboot, res.ErrorText(), audit.OutcomeFailed)
}

type stepResult struct {
	label string
	res   executor.Result
}
