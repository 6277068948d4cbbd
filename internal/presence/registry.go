// Package presence tracks live connections, their matching state and liveness.
package presence

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"pairup/backend/internal/models"
)

// Registry owns the presence record of every live connection.
// Thread-safe: all methods may be called concurrently.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*models.PresenceRecord
	now     func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		records: make(map[string]*models.PresenceRecord),
		now:     time.Now,
	}
}

// SetClock replaces the time source. Used by tests.
func (r *Registry) SetClock(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// Register adds a connection in the ONLINE state.
func (r *Registry) Register(connID, userID string) (models.PresenceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[connID]; exists {
		return models.PresenceRecord{}, fmt.Errorf("register %s: %w", connID, models.ErrAlreadyRegistered)
	}

	now := r.now()
	rec := &models.PresenceRecord{
		ConnectionID:  connID,
		UserID:        userID,
		State:         models.StateOnline,
		ConnectedAt:   now,
		LastHeartbeat: now,
	}
	r.records[connID] = rec
	return *rec, nil
}

// Heartbeat refreshes the liveness timestamp of a connection.
func (r *Registry) Heartbeat(connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[connID]
	if !ok {
		return fmt.Errorf("heartbeat %s: %w", connID, models.ErrNotFound)
	}
	rec.LastHeartbeat = r.now()
	return nil
}

// SetState moves a connection along one of the allowed edges. PROPOSED and IN_ROOM
// require a non-empty ref; moving to ONLINE clears it.
func (r *Registry) SetState(connID string, state models.PresenceState, ref string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[connID]
	if !ok {
		return fmt.Errorf("set state %s: %w", connID, models.ErrNotFound)
	}
	if !models.CanTransition(rec.State, state) {
		return fmt.Errorf("set state %s %s->%s: %w", connID, rec.State, state, models.ErrInvalidTransition)
	}
	if state != models.StateOnline && ref == "" {
		return fmt.Errorf("set state %s to %s without ref: %w", connID, state, models.ErrInvalidTransition)
	}
	if state == models.StateOnline {
		ref = ""
	}

	rec.State = state
	rec.Ref = ref
	return nil
}

// ReservePair moves both a and b from ONLINE to PROPOSED referencing proposalID, or
// neither of them. Of two concurrent reservations touching the same connection
// exactly one succeeds; the other gets ErrCandidateUnavailable.
func (r *Registry) ReservePair(a, b, proposalID string) error {
	if a == b {
		return fmt.Errorf("reserve %s with itself: %w", a, models.ErrCandidateUnavailable)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, id := range []string{a, b} {
		rec, ok := r.records[id]
		if !ok || rec.State != models.StateOnline {
			return fmt.Errorf("reserve %s: %w", id, models.ErrCandidateUnavailable)
		}
	}

	for _, id := range []string{a, b} {
		rec := r.records[id]
		rec.State = models.StateProposed
		rec.Ref = proposalID
	}
	return nil
}

// Get returns a copy of the record for connID.
func (r *Registry) Get(connID string) (models.PresenceRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[connID]
	if !ok {
		return models.PresenceRecord{}, fmt.Errorf("get %s: %w", connID, models.ErrNotFound)
	}
	return *rec, nil
}

// ListEligible returns a snapshot of ONLINE connections whose user id is not in
// excluding. The result is a copy ordered by connect time, longest waiting first, so
// it stays stable for one matching attempt regardless of later mutations.
func (r *Registry) ListEligible(excluding map[string]struct{}) []models.PresenceRecord {
	r.mu.RLock()
	out := make([]models.PresenceRecord, 0, len(r.records))
	for _, rec := range r.records {
		if rec.State != models.StateOnline {
			continue
		}
		if rec.UserID != "" {
			if _, skip := excluding[rec.UserID]; skip {
				continue
			}
		}
		out = append(out, *rec)
	}
	r.mu.RUnlock()

	sortByConnectedAt(out)
	return out
}

// List returns a copy of every record, longest connected first.
func (r *Registry) List() []models.PresenceRecord {
	r.mu.RLock()
	out := make([]models.PresenceRecord, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, *rec)
	}
	r.mu.RUnlock()

	sortByConnectedAt(out)
	return out
}

// Unregister removes the record and returns it so the caller can cascade any
// proposal or room cleanup. The registry itself does not touch other components.
func (r *Registry) Unregister(connID string) (models.PresenceRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[connID]
	if !ok {
		return models.PresenceRecord{}, fmt.Errorf("unregister %s: %w", connID, models.ErrNotFound)
	}
	delete(r.records, connID)
	return *rec, nil
}

// Stale returns the ids of connections whose last heartbeat is older than staleAfter.
func (r *Registry) Stale(staleAfter time.Duration) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cutoff := r.now().Add(-staleAfter)
	var ids []string
	for id, rec := range r.records {
		if rec.LastHeartbeat.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

func sortByConnectedAt(recs []models.PresenceRecord) {
	sort.Slice(recs, func(i, j int) bool {
		if recs[i].ConnectedAt.Equal(recs[j].ConnectedAt) {
			return recs[i].ConnectionID < recs[j].ConnectionID
		}
		return recs[i].ConnectedAt.Before(recs[j].ConnectedAt)
	})
}
