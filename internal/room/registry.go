// Package room owns the set of active rooms and their membership.
package room

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"pairup/backend/internal/models"

	"github.com/google/uuid"
)

// Registry holds active rooms. A connection belongs to at most one room and a room
// is deleted in the same operation that removes its last participant.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*models.Room
	byConn map[string]string // connection id -> room id
	now    func() time.Time
}

// NewRegistry creates an empty room registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:  make(map[string]*models.Room),
		byConn: make(map[string]string),
		now:    time.Now,
	}
}

func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Create materialises a room for the participants of an accepted proposal.
func (r *Registry) Create(proposalID string, participants []string) (*models.Room, error) {
	if len(participants) == 0 {
		return nil, fmt.Errorf("create room: no participants")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]struct{}, len(participants))
	for _, c := range participants {
		if _, dup := seen[c]; dup {
			return nil, fmt.Errorf("create room: duplicate participant %s", c)
		}
		seen[c] = struct{}{}
		if owner, busy := r.byConn[c]; busy {
			return nil, fmt.Errorf("create room: %s in %s: %w", c, owner, models.ErrParticipantAlreadyInRoom)
		}
	}

	room := &models.Room{
		ID:           uuid.New().String(),
		ProposalID:   proposalID,
		Participants: append([]string(nil), participants...),
		CreatedAt:    r.now(),
	}
	r.rooms[room.ID] = room
	for _, c := range participants {
		r.byConn[c] = room.ID
	}
	return room.Clone(), nil
}

// Leave removes connID from the room and returns the remaining participants. When the
// room becomes empty it is deleted and deleted is true.
func (r *Registry) Leave(roomID, connID string) (remaining []string, deleted bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, false, fmt.Errorf("leave %s: %w", roomID, models.ErrNotFound)
	}
	idx := -1
	for i, c := range room.Participants {
		if c == connID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false, fmt.Errorf("leave %s: %s not a member: %w", roomID, connID, models.ErrNotFound)
	}

	room.Participants = append(room.Participants[:idx], room.Participants[idx+1:]...)
	delete(r.byConn, connID)

	if len(room.Participants) == 0 {
		delete(r.rooms, roomID)
		return nil, true, nil
	}
	return append([]string(nil), room.Participants...), false, nil
}

// Get returns a copy of the room.
func (r *Registry) Get(roomID string) (*models.Room, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("get room %s: %w", roomID, models.ErrNotFound)
	}
	return room.Clone(), nil
}

// ParticipantsOf returns the id of the room connID belongs to.
func (r *Registry) ParticipantsOf(connID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byConn[connID]
	if !ok {
		return "", fmt.Errorf("room of %s: %w", connID, models.ErrNotFound)
	}
	return id, nil
}

// List returns copies of all active rooms, oldest first.
func (r *Registry) List() []*models.Room {
	r.mu.RLock()
	out := make([]*models.Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, room.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of active rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
