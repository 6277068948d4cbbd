package telegram

import (
	"log/slog"
	"testing"
	"time"

	"pairup/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCallback(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    models.ClientMessage
		wantErr bool
	}{
		{"accept", voteData(models.ChoiceAccept, "p1"), models.ClientMessage{Type: models.MessageVote, Choice: models.ChoiceAccept, ProposalID: "p1"}, false},
		{"skip", voteData(models.ChoiceSkip, "p1"), models.ClientMessage{Type: models.MessageVote, Choice: models.ChoiceSkip, ProposalID: "p1"}, false},
		{"leave", leaveData("r1"), models.ClientMessage{Type: models.MessageLeave, RoomID: "r1"}, false},
		{"vote without proposal", "vote:accept:", models.ClientMessage{}, true},
		{"unknown", "report_Critical", models.ClientMessage{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCallback(tt.data)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCallbackDataFitsTelegramLimit(t *testing.T) {
	id := "123e4567-e89b-12d3-a456-426614174000"
	assert.LessOrEqual(t, len(voteData(models.ChoiceAccept, id)), 64)
	assert.LessOrEqual(t, len(leaveData(id)), 64)
}

func TestRender_ProposalOfferedHasVoteButtons(t *testing.T) {
	expires := time.Date(2026, 5, 1, 12, 2, 0, 0, time.UTC)
	text, kb, ok := render(models.Event{
		Type:       models.EventProposalOffered,
		ProposalID: "p1",
		Peer:       &models.ProfileSummary{DisplayName: "Ola", Language: "pl", Interests: []string{"jazz"}},
		ExpiresAt:  &expires,
	})

	require.True(t, ok)
	assert.Contains(t, text, "Ola; speaks pl; likes jazz")
	assert.Contains(t, text, "12:02:00")
	require.NotNil(t, kb)
	require.Len(t, kb.InlineKeyboard, 1)
	row := kb.InlineKeyboard[0]
	require.Len(t, row, 2)
	require.NotNil(t, row[0].CallbackData)
	require.NotNil(t, row[1].CallbackData)
	assert.Equal(t, voteData(models.ChoiceAccept, "p1"), *row[0].CallbackData)
	assert.Equal(t, voteData(models.ChoiceSkip, "p1"), *row[1].CallbackData)
}

func TestRender_ResolvedAndOthers(t *testing.T) {
	text, kb, ok := render(models.Event{Type: models.EventProposalResolved, Outcome: models.OutcomeAccepted, RoomID: "r1"})
	require.True(t, ok)
	assert.Contains(t, text, "r1")
	require.NotNil(t, kb)
	assert.Equal(t, leaveData("r1"), *kb.InlineKeyboard[0][0].CallbackData)

	text, kb, ok = render(models.Event{Type: models.EventProposalResolved, Outcome: models.OutcomeFailed})
	require.True(t, ok)
	assert.Nil(t, kb)
	assert.Contains(t, text, "searching")

	text, _, ok = render(models.Event{Type: models.EventPresenceSnapshot, Online: make([]models.ProfileSummary, 3)})
	require.True(t, ok)
	assert.Equal(t, "3 online right now.", text)

	text, _, ok = render(models.Event{Type: models.EventError, Code: "unknown_proposal"})
	require.True(t, ok)
	assert.Contains(t, text, "unknown_proposal")

	_, _, ok = render(models.Event{Type: "something.else"})
	assert.False(t, ok)
}

func TestDescribePeer(t *testing.T) {
	assert.Equal(t, "an anonymous user", describePeer(nil))
	assert.Equal(t, "an anonymous user", describePeer(&models.ProfileSummary{Anonymous: true}))
	assert.Equal(t, "a user", describePeer(&models.ProfileSummary{UserID: "u1"}))
	assert.Equal(t, "from eu", describePeer(&models.ProfileSummary{Region: "eu"}))
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	c := NewClient(&fakeSender{}, 42, "", models.Preferences{Language: "en"}, 1, slog.Default())

	assert.Equal(t, "tg-42", c.GetConnectionID())
	assert.Equal(t, "en", c.ConnectRequest().Preferences.Language)
	assert.False(t, c.Closed())

	c.Close()
	c.Close()
	assert.True(t, c.Closed())
}
