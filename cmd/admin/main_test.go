package main

import (
	"bytes"
	"testing"
	"time"

	"pairup/backend/internal/api/handler"
	"pairup/backend/internal/config"
	"pairup/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetActiveRoomHistories() ([]models.RoomHistory, error) {
	args := m.Called()
	return args.Get(0).([]models.RoomHistory), args.Error(1)
}

func (m *mockStore) CloseRoomHistory(roomID string) error {
	return m.Called(roomID).Error(0)
}

func (m *mockStore) BlockUser(userID, blockedID string) error {
	return m.Called(userID, blockedID).Error(0)
}

func (m *mockStore) UnblockUser(userID, blockedID string) error {
	return m.Called(userID, blockedID).Error(0)
}

func (m *mockStore) GetUserByID(userID string) (*models.User, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

var testConfig = &config.Config{JWTSecret: "secret", JWTExpiry: time.Hour}

func TestRunCommand_Block(t *testing.T) {
	s := new(mockStore)
	s.On("BlockUser", "u1", "u2").Return(nil).Once()
	s.On("UnblockUser", "u1", "u2").Return(nil).Once()

	require.NoError(t, runCommand(s, testConfig, []string{"block", "u1", "u2"}))
	require.NoError(t, runCommand(s, testConfig, []string{"unblock", "u1", "u2"}))
	s.AssertExpectations(t)
}

func TestRunCommand_Token(t *testing.T) {
	s := new(mockStore)
	s.On("GetUserByID", "u1").Return(&models.User{ID: "u1"}, nil)
	s.On("GetUserByID", "ghost").Return(nil, models.ErrNotFound)

	require.NoError(t, runCommand(s, testConfig, []string{"token", "u1"}))
	assert.ErrorIs(t, runCommand(s, testConfig, []string{"token", "ghost"}), models.ErrNotFound)

	token, err := handler.GenerateToken([]byte(testConfig.JWTSecret), "anon", "u1", time.Hour)
	require.NoError(t, err)
	id, err := handler.ParseToken([]byte(testConfig.JWTSecret), token)
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
}

func TestRunCommand_Usage(t *testing.T) {
	s := new(mockStore)
	assert.Error(t, runCommand(s, testConfig, []string{"close-room"}))
	assert.Error(t, runCommand(s, testConfig, []string{"block", "u1"}))
	assert.Error(t, runCommand(s, testConfig, []string{"dance"}))
	s.AssertNotCalled(t, "CloseRoomHistory", mock.Anything)
}

func TestListActiveRooms(t *testing.T) {
	s := new(mockStore)
	s.On("GetActiveRoomHistories").Return([]models.RoomHistory{{
		RoomID:      "room-1",
		User1ID:     "u1",
		User2ConnID: "conn-2",
		StartedAt:   time.Now().Add(-time.Minute),
	}}, nil)

	var out bytes.Buffer
	require.NoError(t, listActiveRooms(s, &out))

	assert.Contains(t, out.String(), "room-1")
	assert.Contains(t, out.String(), "u1")
	assert.Contains(t, out.String(), "anon:conn-2")
}
