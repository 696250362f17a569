package agent

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"go.uber.org/zap"

	"adminbot/internal/audit"
	"adminbot/internal/models"
	"adminbot/internal/session"
	"adminbot/internal/transfer"
)

func (h *Handler) cmdUpload(ctx context.Context, ev models.Event) {
	h.sessions.BeginUpload(ev.Principal)
	h.present(ctx, ev.Principal, "📤 Send the file to upload to the server\nor press ❌ Cancel to abort", cancelChoice)
}

func (h *Handler) receiveFile(ctx context.Context, ev models.Event) {
	p := ev.Principal
	if ev.Kind != models.EventAttachment || !ev.Attachment.Valid() {
		h.send(ctx, p, "ℹ️ Please send a file")
		return
	}
	if err := h.sessions.AttachFile(p, *ev.Attachment); err != nil {
		h.logger.Error("attach file", zap.String("event_id", ev.ID), zap.Error(err))
		h.sessions.Clear(p)
		h.send(ctx, p, "❌ Internal error: could not record the file. Start again with /upload")
		return
	}
	prompt := fmt.Sprintf("📁 Send the directory to save the file to (e.g. /home/user/uploads/)\n"+
		"Default: <code>%s</code>\n\nor press ❌ Cancel to abort", html.EscapeString(h.opts.UploadDir))
	h.present(ctx, p, prompt, cancelChoice)
}

// finishUpload stores the pending file. The session is already cleared.
func (h *Handler) finishUpload(ctx context.Context, ev models.Event, se session.Session) {
	p := ev.Principal
	if !se.Pending.Valid() {
		h.logger.Error("upload session without pending file", zap.String("event_id", ev.ID), zap.Stringer("principal", p))
		h.send(ctx, p, "❌ Internal error: the file data was lost. Start again with /upload")
		h.record(ctx, ev, audit.ActionUpload, "missing pending file", audit.OutcomeFailed)
		return
	}

	dir := strings.TrimSpace(ev.Text)
	if dir == "" || strings.EqualFold(dir, cancelKeyword) {
		dir = h.opts.UploadDir
	}

	stored, err := h.files.Upload(ctx, *se.Pending, dir)
	if err != nil {
		h.logger.Warn("upload failed", zap.String("event_id", ev.ID), zap.String("path", dir), zap.Error(err))
		h.send(ctx, p, h.uploadError(err))
		h.record(ctx, ev, audit.ActionUpload, dir+"/"+se.Pending.FileName, audit.OutcomeFailed)
		return
	}
	h.send(ctx, p, fmt.Sprintf("✅ File saved:\n📄 Name: <code>%s</code>\n📂 Path: <code>%s</code>\n📏 Size: %s",
		html.EscapeString(stored.Name), html.EscapeString(stored.Path), transfer.HumanSize(stored.Size)))
	h.record(ctx, ev, audit.ActionUpload, stored.Path, audit.OutcomeOK)
}

func (h *Handler) uploadError(err error) string {
	switch {
	case errors.Is(err, transfer.ErrCreateDir):
		return "❌ Could not create the directory:\n<pre>" + html.EscapeString(err.Error()) + "</pre>"
	case errors.Is(err, transfer.ErrTooLarge):
		return fmt.Sprintf("❌ File is too large (max %s)", transfer.HumanSize(h.files.MaxUploadBytes()))
	case errors.Is(err, transfer.ErrInvalidName):
		return "❌ The file name cannot be used on this host"
	default:
		return "❌ Upload failed:\n<pre>" + html.EscapeString(err.Error()) + "</pre>"
	}
}

func (h *Handler) cmdDownload(ctx context.Context, ev models.Event) {
	if strings.TrimSpace(ev.Args) != "" {
		h.download(ctx, ev, ev.Args)
		return
	}
	h.sessions.BeginDownload(ev.Principal)
	h.present(ctx, ev.Principal, "📥 Send the path of the file to download (e.g. /var/log/syslog)\nor press ❌ Cancel to abort", cancelChoice)
}

// download sends the file at path as a document. Empty text or the cancel
// keyword cancels.
func (h *Handler) download(ctx context.Context, ev models.Event, path string) {
	p := ev.Principal
	path = strings.TrimSpace(path)
	if path == "" || strings.EqualFold(path, cancelKeyword) {
		h.send(ctx, p, "❌ Download cancelled")
		h.record(ctx, ev, audit.ActionCancel, "download", audit.OutcomeOK)
		return
	}

	f, err := h.files.Download(path)
	if err != nil {
		h.logger.Info("download refused", zap.String("event_id", ev.ID), zap.String("path", path), zap.Error(err))
		h.send(ctx, p, h.downloadError(err))
		h.record(ctx, ev, audit.ActionDownload, path, audit.OutcomeFailed)
		return
	}
	caption := "📥 File: <code>" + html.EscapeString(path) + "</code>"
	if err := h.out.SendDocument(ctx, p, f.Data, f.Name, caption); err != nil {
		h.logger.Warn("send document failed", zap.String("event_id", ev.ID), zap.String("path", path), zap.Error(err))
		h.send(ctx, p, "❌ Could not send the file:\n<pre>"+html.EscapeString(err.Error())+"</pre>")
		h.record(ctx, ev, audit.ActionDownload, path, audit.OutcomeFailed)
		return
	}
	h.record(ctx, ev, audit.ActionDownload, path, audit.OutcomeOK)
}

func (h *Handler) downloadError(err error) string {
	switch {
	case errors.Is(err, transfer.ErrNotFound):
		return "❌ File not found"
	case errors.Is(err, transfer.ErrIsDirectory):
		return "❌ The path is a directory"
	case errors.Is(err, transfer.ErrTooLarge):
		return fmt.Sprintf("❌ File is too large (max %s)", transfer.HumanSize(h.files.MaxDownloadBytes()))
	default:
		return "❌ Could not read the file:\n<pre>" + html.EscapeString(err.Error()) + "</pre>"
	}
}
