// Package audit records what principals asked the bot to do. Records go to
// the log and to any configured sinks; sink failures never reach the caller.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

const (
	ActionUnauthorized   = "unauthorized"
	ActionUnknownCommand = "unknown_command"
	ActionCommand        = "command"
	ActionExecute        = "execute"
	ActionReboot         = "reboot"
	ActionUpload         = "upload"
	ActionDownload       = "download"
	ActionCancel         = "cancel"
)

const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeDenied  = "denied"
	OutcomeIgnored = "ignored"
)

type Record struct {
	EventID   string    `json:"event_id"`
	Principal int64     `json:"principal"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail"`
	Outcome   string    `json:"outcome"`
	CreatedAt time.Time `json:"created_at"`
}

// Sink persists or forwards a record.
type Sink interface {
	Write(ctx context.Context, rec Record) error
}

type Recorder struct {
	sinks  []Sink
	logger *zap.Logger
	now    func() time.Time
}

func NewRecorder(logger *zap.Logger, sinks ...Sink) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{sinks: sinks, logger: logger, now: time.Now}
}

// Record logs rec and hands it to every sink. A nil Recorder does nothing.
func (r *Recorder) Record(ctx context.Context, rec Record) {
	if r == nil {
		return
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.now().UTC()
	}
	fields := []zap.Field{
		zap.String("event_id", rec.EventID),
		zap.Int64("principal", rec.Principal),
		zap.String("action", rec.Action),
		zap.String("outcome", rec.Outcome),
		zap.String("detail", rec.Detail),
	}
	if rec.Outcome == OutcomeDenied {
		r.logger.Warn("audit", fields...)
	} else {
		r.logger.Info("audit", fields...)
	}
	for _, s := range r.sinks {
		if err := s.Write(ctx, rec); err != nil {
			r.logger.Warn("audit sink write failed", zap.String("event_id", rec.EventID), zap.Error(err))
		}
	}
}
