// Package telegram is a second transport for the coordinator: each private chat with
// the bot is one connection, proposals arrive as messages with Accept/Skip buttons
// and commands drive the rest.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"pairup/backend/internal/chathub"
	"pairup/backend/internal/config"
	"pairup/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const helpText = "/start [lang=en] [region=eu] [interests=music,chess] to look for a partner\n" +
	"/leave to leave the current room\n" +
	"/online to see who is around\n" +
	"/stop to go offline"

// UserResolver links a Telegram user to an account.
type UserResolver interface {
	EnsureTelegramUser(telegramID int64) (*models.User, error)
}

// BotService receives Telegram updates and routes them to the coordinator.
type BotService struct {
	Bot   Sender
	Hub   *chathub.Coordinator
	Users UserResolver

	logger  *slog.Logger
	mu      sync.Mutex
	clients map[int64]*Client
}

// NewBotAPI authorizes the bot token.
func NewBotAPI(token string) (*tgbotapi.BotAPI, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	bot.Debug = false
	return bot, nil
}

// Updates starts long polling.
func Updates(bot *tgbotapi.BotAPI) tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	return bot.GetUpdatesChan(u)
}

// NewBotService creates the service. users may be nil, in which case every chat is
// anonymous.
func NewBotService(bot Sender, hub *chathub.Coordinator, users UserResolver, logger *slog.Logger) *BotService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BotService{
		Bot:     bot,
		Hub:     hub,
		Users:   users,
		logger:  logger.With("component", "telegram"),
		clients: make(map[int64]*Client),
	}
}

// Run handles updates until ctx is done or the channel is closed.
func (s *BotService) Run(ctx context.Context, updates tgbotapi.UpdatesChannel) error {
	s.logger.Info("telegram transport started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			s.HandleUpdate(update)
		}
	}
}

// HandleUpdate processes one update.
func (s *BotService) HandleUpdate(update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		s.handleCallback(update.CallbackQuery)
	case update.Message != nil && update.Message.IsCommand():
		s.handleCommand(update.Message)
	case update.Message != nil:
		s.reply(update.Message.Chat.ID, helpText)
	}
}

func (s *BotService) handleCommand(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	switch msg.Command() {
	case "start":
		s.start(chatID, parsePreferences(msg.CommandArguments()))
	case "stop":
		s.stop(chatID)
	case "leave":
		s.forward(chatID, models.ClientMessage{Type: models.MessageLeave})
	case "online":
		s.forward(chatID, models.ClientMessage{Type: models.MessagePresence})
	default:
		s.reply(chatID, helpText)
	}
}

// handleCallback answers an inline button press. Buttons are only sent to private
// chats, where the chat id equals the user id.
func (s *BotService) handleCallback(cq *tgbotapi.CallbackQuery) {
	if _, err := s.Bot.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
		s.logger.Warn("failed to answer callback", "error", err)
	}
	if cq.From == nil {
		return
	}

	msg, err := parseCallback(cq.Data)
	if err != nil {
		s.logger.Warn("ignoring callback", "error", err)
		return
	}
	s.forward(cq.From.ID, msg)
}

func (s *BotService) start(chatID int64, prefs models.Preferences) {
	s.mu.Lock()
	if c, ok := s.clients[chatID]; ok && !c.Closed() {
		s.mu.Unlock()
		s.reply(chatID, "You are already online. /stop to go offline.")
		return
	}
	s.mu.Unlock()

	var userID string
	if s.Users != nil {
		user, err := s.Users.EnsureTelegramUser(chatID)
		if err != nil {
			s.logger.Error("failed to link telegram user", "chat_id", chatID, "error", err)
		} else {
			userID = user.ID
		}
	}

	client := NewClient(s.Bot, chatID, userID, prefs, config.ClientSendBufferSize, s.logger)
	client.Run()

	select {
	case s.Hub.RegisterCh <- client:
	case <-s.Hub.Done():
		client.Close()
		return
	}

	s.mu.Lock()
	s.clients[chatID] = client
	s.mu.Unlock()
	s.reply(chatID, "Looking for a partner...")
}

func (s *BotService) stop(chatID int64) {
	s.mu.Lock()
	client, ok := s.clients[chatID]
	delete(s.clients, chatID)
	s.mu.Unlock()

	if ok && !client.Closed() {
		select {
		case s.Hub.UnregisterCh <- client:
		case <-s.Hub.Done():
		}
	}
	s.reply(chatID, "You are offline. /start to search again.")
}

// forward hands a message to the coordinator on behalf of chatID.
func (s *BotService) forward(chatID int64, msg models.ClientMessage) {
	s.mu.Lock()
	client, ok := s.clients[chatID]
	s.mu.Unlock()
	if !ok || client.Closed() {
		s.reply(chatID, "You are offline. /start first.")
		return
	}

	select {
	case s.Hub.IncomingCh <- chathub.Inbound{ConnectionID: client.GetConnectionID(), Message: msg}:
	case <-s.Hub.Done():
	}
}

func (s *BotService) reply(chatID int64, text string) {
	if _, err := s.Bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		s.logger.Warn("failed to reply", "chat_id", chatID, "error", err)
	}
}

// parsePreferences reads "lang=en region=eu interests=a,b" style /start arguments.
func parsePreferences(args string) models.Preferences {
	var p models.Preferences
	for _, field := range strings.Fields(args) {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		switch strings.ToLower(key) {
		case "lang", "language":
			p.Language = value
		case "region":
			p.Region = value
		case "interests":
			for _, i := range strings.Split(value, ",") {
				if i = strings.TrimSpace(i); i != "" {
					p.Interests = append(p.Interests, i)
				}
			}
		}
	}
	return p
}
