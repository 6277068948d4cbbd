package telegram

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"pairup/backend/internal/chathub"
	"pairup/backend/internal/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	mu       sync.Mutex
	sent     []tgbotapi.MessageConfig
	requests int
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, m)
	}
	return tgbotapi.Message{}, nil
}

func (f *fakeSender) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	return &tgbotapi.APIResponse{}, nil
}

func (f *fakeSender) countContaining(substr string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, m := range f.sent {
		if strings.Contains(m.Text, substr) {
			n++
		}
	}
	return n
}

type MockUsers struct {
	mock.Mock
}

func (m *MockUsers) EnsureTelegramUser(telegramID int64) (*models.User, error) {
	args := m.Called(telegramID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func commandUpdate(chatID int64, text string) tgbotapi.Update {
	cmd := strings.Fields(text)[0]
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			Text: text,
			Entities: []tgbotapi.MessageEntity{
				{Type: "bot_command", Offset: 0, Length: len(cmd)},
			},
			From: &tgbotapi.User{ID: chatID},
			Chat: tgbotapi.Chat{ID: chatID},
		},
	}
}

func callbackUpdate(chatID int64, data string) tgbotapi.Update {
	return tgbotapi.Update{
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:   "cb",
			From: &tgbotapi.User{ID: chatID},
			Data: data,
		},
	}
}

func newTestService(t *testing.T, users UserResolver) (*BotService, *fakeSender) {
	t.Helper()

	hub := chathub.NewCoordinator(nil, chathub.Options{})
	t.Cleanup(hub.Proposals().Stop)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	sender := &fakeSender{}
	return NewBotService(sender, hub, users, nil), sender
}

func TestBotService_ProposalVoteAndLeave(t *testing.T) {
	// Arrange
	users := new(MockUsers)
	users.On("EnsureTelegramUser", int64(101)).Return(&models.User{ID: "u101"}, nil)
	users.On("EnsureTelegramUser", int64(202)).Return(&models.User{ID: "u202"}, nil)
	svc, sender := newTestService(t, users)
	hub := svc.Hub
	a, b := ConnectionID(101), ConnectionID(202)

	svc.HandleUpdate(commandUpdate(101, "/start lang=en"))
	svc.HandleUpdate(commandUpdate(202, "/start lang=en interests=chess"))
	require.Eventually(t, func() bool { return hub.Stats().Connections == 2 }, 2*time.Second, 10*time.Millisecond)

	matcher := chathub.NewMatcherService(hub, nil, time.Hour)
	require.Equal(t, 1, matcher.Tick())
	pid, ok := hub.Proposals().ProposalFor(a)
	require.True(t, ok)
	assert.Eventually(t, func() bool { return sender.countContaining("Someone is available") == 2 }, time.Second, 10*time.Millisecond)

	// Act
	svc.HandleUpdate(callbackUpdate(101, voteData(models.ChoiceAccept, pid)))
	svc.HandleUpdate(callbackUpdate(202, voteData(models.ChoiceAccept, pid)))

	// Assert
	require.Eventually(t, func() bool { return hub.Rooms().Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, models.ClientConnected, hub.ClientState(a))
	assert.Equal(t, models.ClientConnected, hub.ClientState(b))
	assert.Eventually(t, func() bool { return sender.countContaining("You are connected") == 2 }, time.Second, 10*time.Millisecond)

	svc.HandleUpdate(commandUpdate(101, "/leave"))
	require.Eventually(t, func() bool { return hub.Rooms().Len() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, models.ClientSearching, hub.ClientState(a))
	assert.Eventually(t, func() bool { return sender.countContaining("Your partner left") == 1 }, time.Second, 10*time.Millisecond)

	svc.HandleUpdate(commandUpdate(202, "/stop"))
	assert.Eventually(t, func() bool { return hub.ClientState(b) == models.ClientIdle }, 2*time.Second, 10*time.Millisecond)

	sender.mu.Lock()
	assert.Equal(t, 2, sender.requests, "every button press is answered")
	sender.mu.Unlock()
	users.AssertExpectations(t)
}

func TestBotService_StartTwiceAndOffline(t *testing.T) {
	svc, sender := newTestService(t, nil)

	svc.HandleUpdate(commandUpdate(7, "/start"))
	require.Eventually(t, func() bool { return svc.Hub.Stats().Connections == 1 }, 2*time.Second, 10*time.Millisecond)

	svc.HandleUpdate(commandUpdate(7, "/start"))
	assert.Equal(t, 1, sender.countContaining("already online"))

	svc.HandleUpdate(commandUpdate(8, "/leave"))
	svc.HandleUpdate(callbackUpdate(8, voteData(models.ChoiceSkip, "p1")))
	assert.Equal(t, 2, sender.countContaining("/start first"))
	assert.Equal(t, models.ClientIdle, svc.Hub.ClientState(ConnectionID(8)))
}

func TestBotService_PlainTextGetsHelp(t *testing.T) {
	svc, sender := newTestService(t, nil)

	svc.HandleUpdate(tgbotapi.Update{Message: &tgbotapi.Message{Text: "hi", Chat: tgbotapi.Chat{ID: 5}}})

	assert.Equal(t, 1, sender.countContaining("/start"))
}

func TestParsePreferences(t *testing.T) {
	p := parsePreferences("lang=uk region=eu interests=music, chess junk")
	assert.Equal(t, "uk", p.Language)
	assert.Equal(t, "eu", p.Region)
	assert.Equal(t, []string{"music"}, p.Interests, "fields are space separated")

	p = parsePreferences("interests=music,,chess")
	assert.Equal(t, []string{"music", "chess"}, p.Interests)
	assert.Empty(t, parsePreferences(""))
}
