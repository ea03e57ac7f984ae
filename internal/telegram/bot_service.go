// Package telegram relays match alerts to helpers over the Telegram Bot API.
// A helper links a chat with /start <link token>, using a token issued by the
// API for their account; from then on every new match is posted there with
// Join and Dismiss buttons.
package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"sapex/backend/internal/localization"
	"sapex/backend/internal/models"
	"sapex/backend/internal/storage"
	"sapex/backend/internal/supporthub"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Callback data prefixes for alert buttons.
const (
	callbackJoin    = "join:"
	callbackDismiss = "dismiss:"
)

// Sender is the part of the Bot API the relay uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// LinkVerifier resolves a link token to the helper id it was issued for.
type LinkVerifier interface {
	VerifyLink(token string) (string, error)
}

// BotService receives Telegram updates and owns one relay per linked chat.
type BotService struct {
	Bot       Sender
	Storage   storage.Storage
	Localizer *localization.Localizer
	Links     LinkVerifier

	api *tgbotapi.BotAPI

	mu     sync.Mutex
	relays map[int64]*relay
}

// relay forwards one helper's alerts to one chat.
type relay struct {
	helperID string
	lang     string
	notifier *supporthub.MatchNotifier
	done     chan struct{}
}

// NewBotService authorizes against the Bot API with token.
func NewBotService(token string, s storage.Storage, loc *localization.Localizer, links LinkVerifier) (*BotService, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	bot.Debug = false
	slog.Info("telegram bot authorized", "account", bot.Self.UserName)

	svc := NewBotServiceWithSender(bot, s, loc, links)
	svc.api = bot
	return svc, nil
}

// NewBotServiceWithSender builds a service that sends through bot and is
// fed updates by HandleUpdate.
func NewBotServiceWithSender(bot Sender, s storage.Storage, loc *localization.Localizer, links LinkVerifier) *BotService {
	return &BotService{
		Bot:       bot,
		Storage:   s,
		Localizer: loc,
		Links:     links,
		relays:    make(map[int64]*relay),
	}
}

// Run restores linked helpers and processes updates until ctx is done.
func (s *BotService) Run(ctx context.Context) error {
	if s.api == nil {
		return errors.New("telegram: Run needs a service built with NewBotService")
	}
	defer s.Close()

	s.RestoreLinkedHelpers(ctx)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := s.api.GetUpdatesChan(u)
	defer s.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			s.HandleUpdate(ctx, update)
		}
	}
}

// HandleUpdate routes one update.
func (s *BotService) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		s.handleCallbackQuery(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		msg := update.Message
		lang := s.lang(msg.From)
		switch msg.Command() {
		case "start":
			s.handleStart(ctx, msg.Chat.ID, strings.TrimSpace(msg.CommandArguments()), lang)
		case "stop":
			s.handleStop(ctx, msg.Chat.ID, lang)
		default:
			s.reply(msg.Chat.ID, s.Localizer.GetString(lang, "help"))
		}
	case update.Message != nil:
		s.reply(update.Message.Chat.ID, s.Localizer.GetString(s.lang(update.Message.From), "help"))
	}
}

func (s *BotService) lang(u *tgbotapi.User) string {
	if u == nil {
		return localization.DefaultLanguage
	}
	return s.Localizer.Lang(u.LanguageCode)
}

func (s *BotService) handleStart(ctx context.Context, chatID int64, token, lang string) {
	if token == "" {
		s.reply(chatID, s.Localizer.GetString(lang, "start_usage"))
		return
	}
	if s.Links == nil {
		s.reply(chatID, s.Localizer.GetString(lang, "link_invalid"))
		return
	}
	helperID, err := s.Links.VerifyLink(token)
	if err != nil {
		slog.Warn("telegram: rejected link token", "chat_id", chatID, "error", err)
		s.reply(chatID, s.Localizer.GetString(lang, "link_invalid"))
		return
	}

	helper, err := s.Storage.GetHelper(ctx, helperID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		helper = &models.Helper{ID: helperID}
	case err != nil:
		slog.Error("telegram: load helper failed", "helper_id", helperID, "error", err)
		s.reply(chatID, s.Localizer.GetString(lang, "link_failed"))
		return
	}
	helper.TelegramChatID = &chatID
	if err := s.Storage.SaveHelper(ctx, helper); err != nil {
		slog.Error("telegram: link helper failed", "helper_id", helperID, "error", err)
		s.reply(chatID, s.Localizer.GetString(lang, "link_failed"))
		return
	}

	if err := s.watch(ctx, chatID, helperID, lang); err != nil {
		slog.Error("telegram: open notifier failed", "helper_id", helperID, "error", err)
		s.reply(chatID, s.Localizer.GetString(lang, "link_failed"))
		return
	}
	s.reply(chatID, s.Localizer.GetString(lang, "linked", helperID))
}

func (s *BotService) handleStop(ctx context.Context, chatID int64, lang string) {
	r := s.detach(chatID)
	if r == nil {
		s.reply(chatID, s.Localizer.GetString(lang, "not_linked"))
		return
	}
	r.stop()

	if helper, err := s.Storage.GetHelper(ctx, r.helperID); err == nil {
		helper.TelegramChatID = nil
		if err := s.Storage.SaveHelper(ctx, helper); err != nil {
			slog.Warn("telegram: unlink helper failed", "helper_id", r.helperID, "error", err)
		}
	}
	s.reply(chatID, s.Localizer.GetString(lang, "unlinked"))
}

func (s *BotService) handleCallbackQuery(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if q.Message == nil {
		return
	}
	chatID := q.Message.Chat.ID
	lang := s.lang(q.From)

	s.mu.Lock()
	r := s.relays[chatID]
	s.mu.Unlock()

	answer := ""
	switch {
	case r == nil:
		answer = s.Localizer.GetString(lang, "not_linked")
	case strings.HasPrefix(q.Data, callbackJoin):
		id := strings.TrimPrefix(q.Data, callbackJoin)
		if err := supporthub.AcknowledgeMatch(ctx, s.Storage, id, r.helperID); err != nil {
			slog.Warn("telegram: join failed", "session_id", id, "error", err)
			answer = s.Localizer.GetString(lang, "action_failed")
			break
		}
		path, err := r.notifier.Join(ctx, id)
		if err != nil {
			answer = s.Localizer.GetString(lang, "action_failed")
			break
		}
		s.reply(chatID, s.Localizer.GetString(lang, "joined", path))
	case strings.HasPrefix(q.Data, callbackDismiss):
		id := strings.TrimPrefix(q.Data, callbackDismiss)
		if err := supporthub.AcknowledgeMatch(ctx, s.Storage, id, r.helperID); err != nil {
			slog.Warn("telegram: dismiss failed", "session_id", id, "error", err)
			answer = s.Localizer.GetString(lang, "action_failed")
			break
		}
		if err := r.notifier.Dismiss(ctx, id); err != nil {
			answer = s.Localizer.GetString(lang, "action_failed")
			break
		}
		answer = s.Localizer.GetString(lang, "dismissed")
	}

	if _, err := s.Bot.Request(tgbotapi.NewCallback(q.ID, answer)); err != nil {
		slog.Warn("telegram: callback answer failed", "error", err)
	}
}

// RestoreLinkedHelpers reopens a relay for every helper with a linked chat.
func (s *BotService) RestoreLinkedHelpers(ctx context.Context) {
	helpers, err := s.Storage.ListLinkedHelpers(ctx)
	if err != nil {
		slog.Error("telegram: list linked helpers failed", "error", err)
		return
	}
	for _, h := range helpers {
		if h.TelegramChatID == nil {
			continue
		}
		if err := s.watch(ctx, *h.TelegramChatID, h.ID, localization.DefaultLanguage); err != nil {
			slog.Error("telegram: restore relay failed", "helper_id", h.ID, "error", err)
		}
	}
	slog.Info("telegram relays restored", "count", len(helpers))
}

// Linked reports the helper linked to chatID.
func (s *BotService) Linked(chatID int64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.relays[chatID]
	if !ok {
		return "", false
	}
	return r.helperID, true
}

// Close stops every relay.
func (s *BotService) Close() {
	s.mu.Lock()
	relays := s.relays
	s.relays = make(map[int64]*relay)
	s.mu.Unlock()

	for _, r := range relays {
		r.stop()
	}
}

func (s *BotService) reply(chatID int64, text string) {
	if _, err := s.Bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		slog.Warn("telegram: send failed", "chat_id", chatID, "error", err)
	}
}

func alertMarkup(loc *localization.Localizer, lang, sessionID string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(loc.GetString(lang, "btn_join"), callbackJoin+sessionID),
			tgbotapi.NewInlineKeyboardButtonData(loc.GetString(lang, "btn_dismiss"), callbackDismiss+sessionID),
		),
	)
}

func (s *BotService) sendAlert(chatID int64, lang string, alert models.MatchAlert) {
	msg := tgbotapi.NewMessage(chatID, s.Localizer.GetString(lang, "match_alert", alert.Topic))
	msg.ReplyMarkup = alertMarkup(s.Localizer, lang, alert.SessionID)
	if _, err := s.Bot.Send(msg); err != nil {
		slog.Warn("telegram: alert not delivered", "chat_id", chatID, "session_id", alert.SessionID, "error", err)
	}
}
