package telegram

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"pairup/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Sender is the part of *tgbotapi.BotAPI the transport uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Client implements chathub.Client for one private Telegram chat.
type Client struct {
	ChatID  int64
	Request models.ConnectRequest
	Send    chan models.Event
	Bot     Sender
	Logger  *slog.Logger

	closeOnce sync.Once
	closed    atomic.Bool
}

// ConnectionID is the connection id of a Telegram chat.
func ConnectionID(chatID int64) string {
	return "tg-" + strconv.FormatInt(chatID, 10)
}

func NewClient(bot Sender, chatID int64, userID string, prefs models.Preferences, bufferSize int, logger *slog.Logger) *Client {
	req := models.ConnectRequest{
		ConnectionID: ConnectionID(chatID),
		UserID:       userID,
		Preferences:  prefs,
	}
	return &Client{
		ChatID:  chatID,
		Request: req,
		Send:    make(chan models.Event, bufferSize),
		Bot:     bot,
		Logger:  logger.With("component", "tg_client", "connection_id", req.ConnectionID),
	}
}

func (c *Client) GetConnectionID() string               { return c.Request.ConnectionID }
func (c *Client) ConnectRequest() models.ConnectRequest { return c.Request }
func (c *Client) GetSendChannel() chan<- models.Event   { return c.Send }

// Run starts the write pump. Inbound updates are read centrally by BotService.
func (c *Client) Run() {
	go c.writePump()
}

func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.Send)
	})
}

// Closed reports whether the coordinator has let go of this client.
func (c *Client) Closed() bool { return c.closed.Load() }

func (c *Client) writePump() {
	for ev := range c.Send {
		text, keyboard, ok := render(ev)
		if !ok {
			continue
		}
		msg := tgbotapi.NewMessage(c.ChatID, text)
		if keyboard != nil {
			msg.ReplyMarkup = *keyboard
		}
		if _, err := c.Bot.Send(msg); err != nil {
			c.Logger.Warn("failed to send telegram message", "event", ev.Type, "error", err)
		}
	}
	c.Logger.Debug("write pump stopped")
}

// Callback data prefixes. Data is limited to 64 bytes by Telegram; a uuid fits.
const (
	callbackVote  = "vote"
	callbackLeave = "leave"
)

func voteData(choice models.Choice, proposalID string) string {
	return callbackVote + ":" + string(choice) + ":" + proposalID
}

func leaveData(roomID string) string {
	return callbackLeave + ":" + roomID
}

// parseCallback turns inline button data back into a client message.
func parseCallback(data string) (models.ClientMessage, error) {
	parts := strings.SplitN(data, ":", 3)
	switch {
	case len(parts) == 3 && parts[0] == callbackVote && parts[2] != "":
		return models.ClientMessage{
			Type:       models.MessageVote,
			Choice:     models.Choice(parts[1]),
			ProposalID: parts[2],
		}, nil
	case len(parts) == 2 && parts[0] == callbackLeave:
		return models.ClientMessage{Type: models.MessageLeave, RoomID: parts[1]}, nil
	}
	return models.ClientMessage{}, fmt.Errorf("unknown callback data %q", data)
}

// render maps an outbound event to message text and an optional inline keyboard.
func render(ev models.Event) (string, *tgbotapi.InlineKeyboardMarkup, bool) {
	switch ev.Type {
	case models.EventProposalOffered:
		text := "Someone is available: " + describePeer(ev.Peer)
		if ev.ExpiresAt != nil {
			text += "\nAnswer before " + ev.ExpiresAt.UTC().Format("15:04:05") + " UTC."
		}
		kb := tgbotapi.NewInlineKeyboardMarkup(
			tgbotapi.NewInlineKeyboardRow(
				tgbotapi.NewInlineKeyboardButtonData("✅ Accept", voteData(models.ChoiceAccept, ev.ProposalID)),
				tgbotapi.NewInlineKeyboardButtonData("⏭ Skip", voteData(models.ChoiceSkip, ev.ProposalID)),
			),
		)
		return text, &kb, true

	case models.EventProposalResolved:
		if ev.Outcome == models.OutcomeAccepted {
			kb := tgbotapi.NewInlineKeyboardMarkup(
				tgbotapi.NewInlineKeyboardRow(
					tgbotapi.NewInlineKeyboardButtonData("🚪 Leave", leaveData(ev.RoomID)),
				),
			)
			return "You are connected. Room: " + ev.RoomID, &kb, true
		}
		return "No match this time. Still searching...", nil, true

	case models.EventRoomPeerLeft:
		return "Your partner left the room. Searching again...", nil, true

	case models.EventPresenceSnapshot:
		return fmt.Sprintf("%d online right now.", len(ev.Online)), nil, true

	case models.EventError:
		return "⚠️ " + ev.Code, nil, true
	}
	return "", nil, false
}

func describePeer(p *models.ProfileSummary) string {
	if p == nil || p.Anonymous {
		return "an anonymous user"
	}
	var parts []string
	if p.DisplayName != "" {
		parts = append(parts, p.DisplayName)
	}
	if p.Language != "" {
		parts = append(parts, "speaks "+p.Language)
	}
	if p.Region != "" {
		parts = append(parts, "from "+p.Region)
	}
	if len(p.Interests) > 0 {
		parts = append(parts, "likes "+strings.Join(p.Interests, ", "))
	}
	if len(parts) == 0 {
		return "a user"
	}
	return strings.Join(parts, "; ")
}
