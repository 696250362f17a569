// Package agent turns authorized events into bot behaviour: command
// dispatch, the upload/download conversations and reboot confirmation.
package agent

import (
	"context"
	"time"

	"go.uber.org/zap"

	"adminbot/internal/audit"
	"adminbot/internal/auth"
	"adminbot/internal/executor"
	"adminbot/internal/models"
	"adminbot/internal/registry"
	"adminbot/internal/session"
	"adminbot/internal/transfer"
)

// Outbound is what the agent needs from the chat transport. Texts use
// Telegram's HTML subset.
type Outbound interface {
	SendText(ctx context.Context, p models.Principal, text string) error
	SendDocument(ctx context.Context, p models.Principal, data []byte, filename, caption string) error
	PresentChoice(ctx context.Context, p models.Principal, prompt string, choices []models.Choice) error
	// ResolveChoice acknowledges a button press and replaces the prompt with
	// text. An empty text only acknowledges.
	ResolveChoice(ctx context.Context, p models.Principal, cb *models.Callback, text string) error
}

type Auditor interface {
	Record(ctx context.Context, rec audit.Record)
}

const (
	CallbackConfirmReboot = "confirm_reboot"
	CallbackCancel        = "cancel_action"

	cancelKeyword = "cancel"
)

type Options struct {
	MaxMessageLength int
	UploadDir        string
	RebootCommand    string
	Version          string
	StartedAt        time.Time
	Audit            Auditor
	Logger           *zap.Logger
}

type Handler struct {
	gate     *auth.Gate
	registry *registry.Registry
	runner   *executor.Runner
	files    *transfer.Manager
	sessions *session.Store
	out      Outbound
	audit    Auditor
	logger   *zap.Logger
	opts     Options
	now      func() time.Time
}

func New(gate *auth.Gate, reg *registry.Registry, runner *executor.Runner, files *transfer.Manager, sessions *session.Store, out Outbound, opts Options) *Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.StartedAt.IsZero() {
		opts.StartedAt = time.Now()
	}
	return &Handler{
		gate:     gate,
		registry: reg,
		runner:   runner,
		files:    files,
		sessions: sessions,
		out:      out,
		audit:    opts.Audit,
		logger:   opts.Logger,
		opts:     opts,
		now:      time.Now,
	}
}

// Handle processes one event. It never panics on bad input and never sends
// anything to a principal outside the gate.
func (h *Handler) Handle(ctx context.Context, ev models.Event) {
	if !h.gate.Allowed(ev.Principal) {
		h.logger.Warn("dropping event from unauthorized principal",
			zap.String("event_id", ev.ID),
			zap.Stringer("principal", ev.Principal),
			zap.String("kind", string(ev.Kind)),
			zap.String("command", ev.Command),
		)
		h.record(ctx, ev, audit.ActionUnauthorized, describe(ev), audit.OutcomeDenied)
		return
	}

	switch ev.Kind {
	case models.EventCommand:
		h.handleCommand(ctx, ev)
	case models.EventCallback:
		h.handleCallback(ctx, ev)
	case models.EventText, models.EventAttachment:
		h.continueSession(ctx, ev)
	default:
		h.logger.Debug("ignoring event", zap.String("event_id", ev.ID), zap.String("kind", string(ev.Kind)))
	}
}

func (h *Handler) handleCommand(ctx context.Context, ev models.Event) {
	entry, ok := h.registry.Lookup(ev.Command)
	if !ok && h.sessions.Get(ev.Principal).State != session.Idle {
		// "/tmp" is a path, not a command, while a flow waits for one
		ev.Kind = models.EventText
		h.continueSession(ctx, ev)
		return
	}
	if !ok {
		h.logger.Info("unknown command", zap.String("event_id", ev.ID), zap.Stringer("principal", ev.Principal), zap.String("command", ev.Command))
		h.record(ctx, ev, audit.ActionUnknownCommand, ev.Command, audit.OutcomeIgnored)
		return
	}
	if entry.Kind == registry.KindComposite {
		h.runComposite(ctx, ev, entry.Composite)
		return
	}

	switch entry.Builtin {
	case registry.CmdStart, registry.CmdHelp, registry.CmdData:
		h.cmdStart(ctx, ev)
	case registry.CmdStatus:
		h.cmdStatus(ctx, ev)
	case registry.CmdExecute:
		h.cmdExecute(ctx, ev)
	case registry.CmdReboot:
		h.cmdReboot(ctx, ev)
	case registry.CmdUpload:
		h.cmdUpload(ctx, ev)
	case registry.CmdDownload:
		h.cmdDownload(ctx, ev)
	case registry.CmdCancel:
		h.cmdCancel(ctx, ev)
	}
}

func (h *Handler) handleCallback(ctx context.Context, ev models.Event) {
	cb := ev.Callback
	if cb == nil {
		return
	}
	switch cb.Data {
	case CallbackConfirmReboot:
		h.confirmReboot(ctx, ev)
	case CallbackCancel:
		prev := h.sessions.Clear(ev.Principal)
		h.resolve(ctx, ev, "❌ Action cancelled")
		h.record(ctx, ev, audit.ActionCancel, prev.String(), audit.OutcomeOK)
	default:
		h.logger.Info("unknown callback", zap.String("event_id", ev.ID), zap.String("data", cb.Data))
		h.resolve(ctx, ev, "")
	}
}

// continueSession routes free text and attachments to the active flow.
func (h *Handler) continueSession(ctx context.Context, ev models.Event) {
	p := ev.Principal
	se := h.sessions.Get(p)
	switch se.State {
	case session.AwaitingFile:
		h.receiveFile(ctx, ev)
	case session.AwaitingSavePath:
		if ev.Kind == models.EventAttachment {
			h.send(ctx, p, "ℹ️ A file is already waiting. Send the directory to save it to, or /cancel.")
			return
		}
		h.sessions.Clear(p)
		h.finishUpload(ctx, ev, se)
	case session.AwaitingDownloadPath:
		if ev.Kind == models.EventAttachment {
			h.send(ctx, p, "ℹ️ Send the path of the file to download, or /cancel.")
			return
		}
		h.sessions.Clear(p)
		h.download(ctx, ev, ev.Text)
	default:
		h.logger.Debug("no active session", zap.String("event_id", ev.ID), zap.Stringer("principal", p))
	}
}

func (h *Handler) cmdCancel(ctx context.Context, ev models.Event) {
	prev := h.sessions.Clear(ev.Principal)
	if prev == session.Idle {
		h.send(ctx, ev.Principal, "ℹ️ Nothing to cancel.")
		return
	}
	h.send(ctx, ev.Principal, "❌ Action cancelled")
	h.record(ctx, ev, audit.ActionCancel, prev.String(), audit.OutcomeOK)
}

// send delivers one message; failures are logged and reported to the caller.
func (h *Handler) send(ctx context.Context, p models.Principal, text string) error {
	if err := h.out.SendText(ctx, p, text); err != nil {
		h.logger.Warn("send message failed", zap.Stringer("principal", p), zap.Error(err))
		return err
	}
	return nil
}

// sendChunks sends chunks in order and stops at the first failure.
func (h *Handler) sendChunks(ctx context.Context, p models.Principal, chunks []string) {
	for _, c := range chunks {
		if err := h.send(ctx, p, c); err != nil {
			return
		}
	}
}

func (h *Handler) present(ctx context.Context, p models.Principal, prompt string, choices ...models.Choice) {
	if err := h.out.PresentChoice(ctx, p, prompt, choices); err != nil {
		h.logger.Warn("present choice failed", zap.Stringer("principal", p), zap.Error(err))
	}
}

func (h *Handler) resolve(ctx context.Context, ev models.Event, text string) {
	if err := h.out.ResolveChoice(ctx, ev.Principal, ev.Callback, text); err != nil {
		h.logger.Warn("resolve choice failed", zap.String("event_id", ev.ID), zap.Error(err))
	}
}

func (h *Handler) record(ctx context.Context, ev models.Event, action, detail, outcome string) {
	if h.audit == nil {
		return
	}
	h.audit.Record(ctx, audit.Record{
		EventID:   ev.ID,
		Principal: int64(ev.Principal),
		Action:    action,
		Detail:    detail,
		Outcome:   outcome,
	})
}

func describe(ev models.Event) string {
	switch ev.Kind {
	case models.EventCommand:
		return "/" + ev.Command
	case models.EventCallback:
		if ev.Callback != nil {
			return "callback:" + ev.Callback.Data
		}
	case models.EventAttachment:
		if ev.Attachment != nil {
			return "attachment:" + ev.Attachment.FileName
		}
	}
	return string(ev.Kind)
}

var cancelChoice = models.Choice{Label: "❌ Cancel", Data: CallbackCancel}
