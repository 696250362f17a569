package telegram

import (
	"regexp"
	"strings"
	"unicode"

	tgmodels "github.com/go-telegram/bot/models"

	"adminbot/internal/models"
)

var commandToken = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// parseCommand splits "/name@bot args" into name and args. Text whose first
// word is not a plain command token, such as "/var/log/syslog", is not a
// command.
func parseCommand(text string) (name, args string, ok bool) {
	text = strings.TrimLeftFunc(text, unicode.IsSpace)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	head, rest := text[1:], ""
	if i := strings.IndexFunc(head, unicode.IsSpace); i >= 0 {
		head, rest = head[:i], head[i:]
	}
	if at := strings.IndexByte(head, '@'); at >= 0 {
		head = head[:at]
	}
	if !commandToken.MatchString(head) {
		return "", "", false
	}
	return head, strings.TrimSpace(rest), true
}

// toEvent converts an update into an event and the chat it came from.
// Updates without a sender are skipped.
func toEvent(u *tgmodels.Update) (models.Event, int64, bool) {
	if u == nil {
		return models.Event{}, 0, false
	}

	if cq := u.CallbackQuery; cq != nil {
		cb := &models.Callback{ID: cq.ID, Data: cq.Data}
		switch {
		case cq.Message.Message != nil:
			cb.ChatID = cq.Message.Message.Chat.ID
			cb.MessageID = cq.Message.Message.ID
		case cq.Message.InaccessibleMessage != nil:
			cb.ChatID = cq.Message.InaccessibleMessage.Chat.ID
			cb.MessageID = cq.Message.InaccessibleMessage.MessageID
		}
		ev := models.Event{
			Principal: models.Principal(cq.From.ID),
			Kind:      models.EventCallback,
			Callback:  cb,
		}
		return ev, cb.ChatID, true
	}

	m := u.Message
	if m == nil || m.From == nil {
		return models.Event{}, 0, false
	}
	ev := models.Event{
		Principal: models.Principal(m.From.ID),
		Text:      m.Text,
	}
	switch {
	case m.Document != nil:
		ev.Kind = models.EventAttachment
		ev.Text = m.Caption
		ev.Attachment = &models.Attachment{
			FileID:   m.Document.FileID,
			FileName: m.Document.FileName,
			Size:     m.Document.FileSize,
		}
	default:
		if name, args, ok := parseCommand(m.Text); ok {
			ev.Kind = models.EventCommand
			ev.Command = name
			ev.Args = args
		} else {
			ev.Kind = models.EventText
		}
	}
	return ev, m.Chat.ID, true
}
