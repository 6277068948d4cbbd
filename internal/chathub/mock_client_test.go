package chathub_test

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pairup/backend/internal/chathub"
	"pairup/backend/internal/models"

	"github.com/stretchr/testify/require"
)

type MockClient struct {
	req         models.ConnectRequest
	RecvChannel chan models.Event
	closed      atomic.Int32
}

func newMockClient(connID string) *MockClient {
	return &MockClient{
		req:         models.ConnectRequest{ConnectionID: connID},
		RecvChannel: make(chan models.Event, 32),
	}
}

func (c *MockClient) withUser(userID string, blocked ...string) *MockClient {
	c.req.UserID = userID
	c.req.BlockedIDs = blocked
	return c
}

func (c *MockClient) withPreferences(p models.Preferences) *MockClient {
	c.req.Preferences = p
	return c
}

func (c *MockClient) GetConnectionID() string               { return c.req.ConnectionID }
func (c *MockClient) ConnectRequest() models.ConnectRequest { return c.req }
func (c *MockClient) GetSendChannel() chan<- models.Event   { return c.RecvChannel }
func (c *MockClient) Run()                                  {}
func (c *MockClient) Close()                                { c.closed.Add(1) }
func (c *MockClient) Closed() int                           { return int(c.closed.Load()) }

// drain returns every event delivered so far.
func (c *MockClient) drain() []models.Event {
	var out []models.Event
	for {
		select {
		case ev := <-c.RecvChannel:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// expect drains the client and returns the single event of type typ.
func (c *MockClient) expect(t *testing.T, typ string) models.Event {
	t.Helper()
	var found []models.Event
	for _, ev := range c.drain() {
		if ev.Type == typ {
			found = append(found, ev)
		}
	}
	require.Len(t, found, 1, "client %s: want exactly one %s event", c.GetConnectionID(), typ)
	return found[0]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// createTestHub builds a coordinator on a fake clock with a 120s negotiation window.
func createTestHub(t *testing.T, s *MockStorage) (*chathub.Coordinator, *fakeClock) {
	t.Helper()

	clock := &fakeClock{now: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	opts := chathub.Options{
		ProposalTTL:       120 * time.Second,
		ProposalRetention: time.Minute,
		StaleAfter:        24 * time.Hour,
	}

	var hub *chathub.Coordinator
	if s == nil {
		hub = chathub.NewCoordinator(nil, opts)
	} else {
		hub = chathub.NewCoordinator(s, opts)
	}
	hub.SetClock(clock.Now)
	t.Cleanup(hub.Proposals().Stop)
	return hub, clock
}

func connect(t *testing.T, hub *chathub.Coordinator, clients ...*MockClient) {
	t.Helper()
	for _, c := range clients {
		require.NoError(t, hub.Connect(c))
	}
}
