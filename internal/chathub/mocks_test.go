package chathub_test

import (
	"pairup/backend/internal/models"

	"github.com/stretchr/testify/mock"
)

// MockStorage is a testify/mock implementation of storage.Storage.
type MockStorage struct {
	mock.Mock
}

// Profiles
func (m *MockStorage) GetProfile(userID string) (*models.ProfileSummary, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ProfileSummary), args.Error(1)
}

func (m *MockStorage) GetBlockedIDs(userID string) ([]string, error) {
	args := m.Called(userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

// Room history
func (m *MockStorage) SaveRoomHistory(history *models.RoomHistory) error {
	args := m.Called(history)
	return args.Error(0)
}

func (m *MockStorage) CloseRoomHistory(roomID string) error {
	args := m.Called(roomID)
	return args.Error(0)
}

func (m *MockStorage) CloseActiveRoomHistories() (int64, error) {
	args := m.Called()
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) GetActiveRoomHistories() ([]models.RoomHistory, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RoomHistory), args.Error(1)
}

// Snapshots
func (m *MockStorage) SavePresence(rec models.PresenceRecord) error {
	args := m.Called(rec)
	return args.Error(0)
}

func (m *MockStorage) TouchPresence(connID string) error {
	args := m.Called(connID)
	return args.Error(0)
}

func (m *MockStorage) DeletePresence(connID string) error {
	args := m.Called(connID)
	return args.Error(0)
}

func (m *MockStorage) SaveProposal(p *models.MatchProposal) error {
	args := m.Called(p)
	return args.Error(0)
}

func (m *MockStorage) DeleteProposal(proposalID string) error {
	args := m.Called(proposalID)
	return args.Error(0)
}

func (m *MockStorage) SaveRoom(room *models.Room) error {
	args := m.Called(room)
	return args.Error(0)
}

func (m *MockStorage) DeleteRoom(roomID string) error {
	args := m.Called(roomID)
	return args.Error(0)
}

func (m *MockStorage) ClearSnapshots() (int, error) {
	args := m.Called()
	return args.Int(0), args.Error(1)
}

// Events
func (m *MockStorage) PublishEvent(event models.Event) error {
	args := m.Called(event)
	return args.Error(0)
}

// allowSnapshots accepts every snapshot and publish call.
func (m *MockStorage) allowSnapshots() {
	for _, method := range []string{"SavePresence", "TouchPresence", "DeletePresence", "SaveProposal", "DeleteProposal", "SaveRoom", "DeleteRoom", "PublishEvent"} {
		m.On(method, mock.Anything).Return(nil).Maybe()
	}
}
