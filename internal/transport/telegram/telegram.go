// Package telegram connects the agent to the Telegram Bot API through
// github.com/go-telegram/bot.
package telegram

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"adminbot/internal/models"
	"adminbot/internal/registry"
)

// Submitter accepts decoded events, normally the worker dispatcher.
type Submitter interface {
	Submit(ev models.Event) error
}

type Adapter struct {
	bot    *bot.Bot
	logger *zap.Logger
	client *http.Client

	submitMu  sync.RWMutex
	submitter Submitter

	chatsMu sync.RWMutex
	chats   map[models.Principal]int64 // last chat each principal wrote from
}

// New creates the bot client. Extra options are passed to bot.New.
func New(token string, logger *zap.Logger, opts ...bot.Option) (*Adapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &Adapter{
		logger: logger,
		client: &http.Client{Timeout: 2 * time.Minute},
		chats:  make(map[models.Principal]int64),
	}
	options := append([]bot.Option{bot.WithDefaultHandler(a.onUpdate)}, opts...)
	b, err := bot.New(token, options...)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	a.bot = b
	return a, nil
}

// Route sets where inbound events go. Updates arriving before Route are dropped.
func (a *Adapter) Route(s Submitter) {
	a.submitMu.Lock()
	a.submitter = s
	a.submitMu.Unlock()
}

func (a *Adapter) onUpdate(ctx context.Context, _ *bot.Bot, update *tgmodels.Update) {
	ev, chatID, ok := toEvent(update)
	if !ok {
		return
	}
	ev.ID = uuid.NewString()
	if chatID != 0 {
		a.chatsMu.Lock()
		a.chats[ev.Principal] = chatID
		a.chatsMu.Unlock()
	}

	a.submitMu.RLock()
	s := a.submitter
	a.submitMu.RUnlock()
	if s == nil {
		a.logger.Warn("update received before routing was set up", zap.String("event_id", ev.ID))
		return
	}
	if err := s.Submit(ev); err != nil {
		a.logger.Warn("event dropped",
			zap.String("event_id", ev.ID),
			zap.Stringer("principal", ev.Principal),
			zap.Error(err),
		)
	}
}

// chatFor returns the chat to answer a principal in. Admins that have not
// written yet are reached in their private chat, whose id is the user id.
func (a *Adapter) chatFor(p models.Principal) int64 {
	a.chatsMu.RLock()
	defer a.chatsMu.RUnlock()
	if id, ok := a.chats[p]; ok {
		return id
	}
	return int64(p)
}

// Start long-polls for updates until ctx is done.
func (a *Adapter) Start(ctx context.Context) {
	a.bot.Start(ctx)
}

// StartWebhook processes updates posted to WebhookHandler until ctx is done.
func (a *Adapter) StartWebhook(ctx context.Context) {
	a.bot.StartWebhook(ctx)
}

func (a *Adapter) WebhookHandler() http.HandlerFunc {
	return a.bot.WebhookHandler()
}

// SetWebhook registers the public webhook URL with Telegram.
func (a *Adapter) SetWebhook(ctx context.Context, webhookURL, secret string) error {
	if _, err := a.bot.SetWebhook(ctx, &bot.SetWebhookParams{URL: webhookURL, SecretToken: secret}); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	return nil
}

// DeleteWebhook switches the bot back to long polling.
func (a *Adapter) DeleteWebhook(ctx context.Context) error {
	if _, err := a.bot.DeleteWebhook(ctx, &bot.DeleteWebhookParams{}); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}

// SetCommands publishes the command menu.
func (a *Adapter) SetCommands(ctx context.Context, infos []registry.Info) error {
	cmds := make([]tgmodels.BotCommand, 0, len(infos))
	for _, info := range infos {
		cmds = append(cmds, tgmodels.BotCommand{Command: info.Name, Description: menuDescription(info)})
	}
	if _, err := a.bot.SetMyCommands(ctx, &bot.SetMyCommandsParams{Commands: cmds}); err != nil {
		return fmt.Errorf("set commands: %w", err)
	}
	return nil
}

func menuDescription(info registry.Info) string {
	d := strings.TrimSpace(info.Description)
	if d == "" {
		d = info.Name
	}
	if r := []rune(d); len(r) > 256 {
		d = string(r[:256])
	}
	return d
}

func (a *Adapter) SendText(ctx context.Context, p models.Principal, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return a.sendMessage(ctx, &bot.SendMessageParams{
		ChatID:    a.chatFor(p),
		Text:      text,
		ParseMode: tgmodels.ParseModeHTML,
	})
}

func (a *Adapter) PresentChoice(ctx context.Context, p models.Principal, prompt string, choices []models.Choice) error {
	row := make([]tgmodels.InlineKeyboardButton, 0, len(choices))
	for _, c := range choices {
		row = append(row, tgmodels.InlineKeyboardButton{Text: c.Label, CallbackData: c.Data})
	}
	return a.sendMessage(ctx, &bot.SendMessageParams{
		ChatID:      a.chatFor(p),
		Text:        prompt,
		ParseMode:   tgmodels.ParseModeHTML,
		ReplyMarkup: &tgmodels.InlineKeyboardMarkup{InlineKeyboard: [][]tgmodels.InlineKeyboardButton{row}},
	})
}

// sendMessage sends params and, when Telegram rejects the markup, sends the
// same text again without formatting.
func (a *Adapter) sendMessage(ctx context.Context, params *bot.SendMessageParams) error {
	_, err := a.bot.SendMessage(ctx, params)
	if err == nil || params.ParseMode == "" || !markupRejected(err) {
		return err
	}
	a.logger.Warn("telegram rejected markup, resending as plain text", zap.Error(err))
	plain := *params
	plain.ParseMode = ""
	plain.Text = registry.PlainText(params.Text)
	_, err = a.bot.SendMessage(ctx, &plain)
	return err
}

func (a *Adapter) SendDocument(ctx context.Context, p models.Principal, data []byte, filename, caption string) error {
	params := &bot.SendDocumentParams{
		ChatID:    a.chatFor(p),
		Document:  &tgmodels.InputFileUpload{Filename: filename, Data: bytes.NewReader(data)},
		Caption:   caption,
		ParseMode: tgmodels.ParseModeHTML,
	}
	_, err := a.bot.SendDocument(ctx, params)
	if err != nil && markupRejected(err) {
		params.Document = &tgmodels.InputFileUpload{Filename: filename, Data: bytes.NewReader(data)}
		params.Caption = registry.PlainText(caption)
		params.ParseMode = ""
		_, err = a.bot.SendDocument(ctx, params)
	}
	return err
}

// ResolveChoice answers the callback and edits the prompt in place. If the
// prompt can no longer be edited the text is sent as a new message.
func (a *Adapter) ResolveChoice(ctx context.Context, p models.Principal, cb *models.Callback, text string) error {
	if cb == nil {
		return errors.New("no callback to resolve")
	}
	if _, err := a.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: cb.ID}); err != nil {
		a.logger.Debug("answer callback failed", zap.String("callback_id", cb.ID), zap.Error(err))
	}
	if text == "" {
		return nil
	}
	if cb.MessageID != 0 {
		_, err := a.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:    cb.ChatID,
			MessageID: cb.MessageID,
			Text:      text,
			ParseMode: tgmodels.ParseModeHTML,
		})
		if err == nil {
			return nil
		}
		a.logger.Debug("edit prompt failed, sending instead", zap.Error(err))
	}
	return a.SendText(ctx, p, text)
}

// Open streams an attachment from Telegram's file storage.
func (a *Adapter) Open(ctx context.Context, att models.Attachment) (io.ReadCloser, error) {
	f, err := a.bot.GetFile(ctx, &bot.GetFileParams{FileID: att.FileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.bot.FileDownloadLink(f), nil)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", redactURL(err))
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download file: %w", redactURL(err))
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("download file: unexpected status %s", resp.Status)
	}
	return resp.Body, nil
}

// redactURL drops the request URL from transport errors; file links embed
// the bot token.
func redactURL(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) {
		return uerr.Err
	}
	return err
}

func markupRejected(err error) bool {
	return errors.Is(err, bot.ErrorBadRequest) && strings.Contains(err.Error(), "can't parse entities")
}
