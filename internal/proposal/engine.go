// Package proposal runs the consent protocol between two reserved connections.
//
// A proposal is created by reserving both candidates in one atomic step, collects at
// most one vote per participant, and resolves exactly once: ACCEPTED when both
// accept, FAILED on the first skip, on a participant leaving, or when its deadline
// passes. The engine owns its own deadline timers and never relies on storage expiry.
package proposal

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"pairup/backend/internal/models"

	"github.com/google/uuid"
)

// ErrInvalidChoice is returned for a vote that is neither accept nor skip.
var ErrInvalidChoice = errors.New("invalid vote choice")

// Reserver atomically moves two ONLINE connections to PROPOSED. It must fail with
// models.ErrCandidateUnavailable when either connection is not ONLINE.
type Reserver interface {
	ReservePair(a, b, proposalID string) error
}

type entry struct {
	proposal *models.MatchProposal
	timer    *time.Timer
}

// Engine owns every non-terminal proposal and is the only writer of votes.
type Engine struct {
	mu        sync.Mutex
	reserver  Reserver
	ttl       time.Duration
	retention time.Duration
	pending   map[string]*entry
	byConn    map[string]string // connection id -> pending proposal id
	resolved  map[string]models.Resolution
	onExpire  func(proposalID string)
	now       func() time.Time
	stopped   bool
}

// NewEngine creates an engine whose proposals live for ttl. Resolved proposals are
// kept for retention so late duplicates can be recognised, then discarded.
func NewEngine(reserver Reserver, ttl, retention time.Duration) *Engine {
	e := &Engine{
		reserver:  reserver,
		ttl:       ttl,
		retention: retention,
		pending:   make(map[string]*entry),
		byConn:    make(map[string]string),
		resolved:  make(map[string]models.Resolution),
		now:       time.Now,
	}
	e.onExpire = func(id string) { e.Expire(id) }
	return e
}

// SetExpiryHandler sets the function run when a proposal's deadline timer fires.
// The handler is expected to call Expire and apply the returned resolution.
func (e *Engine) SetExpiryHandler(h func(proposalID string)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onExpire = h
}

// SetClock replaces the time source used to evaluate deadlines. Used by tests.
func (e *Engine) SetClock(now func() time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = now
}

// TTL returns the negotiation window.
func (e *Engine) TTL() time.Duration { return e.ttl }

// Create reserves a and b and opens a proposal between them.
func (e *Engine) Create(a, b string) (*models.MatchProposal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range []string{a, b} {
		if pid, busy := e.byConn[id]; busy {
			return nil, fmt.Errorf("create proposal: %s already in %s: %w", id, pid, models.ErrCandidateUnavailable)
		}
	}

	id := uuid.New().String()
	if err := e.reserver.ReservePair(a, b, id); err != nil {
		return nil, fmt.Errorf("create proposal: %w", err)
	}

	now := e.now()
	p := &models.MatchProposal{
		ID:           id,
		Participants: [2]string{a, b},
		Votes:        make(map[string]models.Choice, 2),
		CreatedAt:    now,
		ExpiresAt:    now.Add(e.ttl),
	}
	ent := &entry{proposal: p}
	if !e.stopped {
		ent.timer = time.AfterFunc(e.ttl, e.expiryFunc(id))
	}
	e.pending[id] = ent
	e.byConn[a] = id
	e.byConn[b] = id

	return p.Clone(), nil
}

func (e *Engine) expiryFunc(id string) func() {
	return func() {
		e.mu.Lock()
		h := e.onExpire
		e.mu.Unlock()
		if h != nil {
			h(id)
		}
	}
}

// Vote records connID's choice. It returns a non-nil resolution when this vote, or a
// deadline that already passed, terminated the proposal. A vote that arrives after
// the deadline is not recorded: the proposal resolves FAILED and the vote gets
// ErrUnknownProposal alongside the resolution.
func (e *Engine) Vote(proposalID, connID string, choice models.Choice) (*models.Resolution, error) {
	if !choice.Valid() {
		return nil, fmt.Errorf("vote %q: %w", choice, ErrInvalidChoice)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.pending[proposalID]
	if !ok {
		return nil, fmt.Errorf("vote on %s: %w", proposalID, models.ErrUnknownProposal)
	}
	p := ent.proposal
	if !p.HasParticipant(connID) {
		return nil, fmt.Errorf("vote on %s by %s: %w", proposalID, connID, models.ErrNotParticipant)
	}
	if _, voted := p.Votes[connID]; voted {
		return nil, fmt.Errorf("vote on %s by %s: %w", proposalID, connID, models.ErrDuplicateVote)
	}

	now := e.now()
	if !now.Before(p.ExpiresAt) {
		res := e.resolveLocked(ent, models.OutcomeFailed, models.ReasonTimeout, "", now)
		return &res, fmt.Errorf("vote on %s after deadline: %w", proposalID, models.ErrUnknownProposal)
	}

	p.Votes[connID] = choice
	switch p.OutcomeAt(now) {
	case models.OutcomeAccepted:
		res := e.resolveLocked(ent, models.OutcomeAccepted, "", "", now)
		return &res, nil
	case models.OutcomeFailed:
		res := e.resolveLocked(ent, models.OutcomeFailed, models.ReasonSkip, connID, now)
		return &res, nil
	}
	return nil, nil
}

// Cancel fails the proposal because connID left. It is the implicit skip of a
// disconnecting participant.
func (e *Engine) Cancel(proposalID, connID string) (*models.Resolution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.pending[proposalID]
	if !ok {
		return nil, fmt.Errorf("cancel %s: %w", proposalID, models.ErrUnknownProposal)
	}
	if !ent.proposal.HasParticipant(connID) {
		return nil, fmt.Errorf("cancel %s by %s: %w", proposalID, connID, models.ErrNotParticipant)
	}
	res := e.resolveLocked(ent, models.OutcomeFailed, models.ReasonDisconnect, connID, e.now())
	return &res, nil
}

// Expire resolves the proposal as FAILED if its deadline has passed. Calling it for
// an unknown or already resolved proposal is a no-op returning nil, so repeated timer
// firings are harmless. If the deadline has not been reached yet the timer is re-armed
// for the remainder.
func (e *Engine) Expire(proposalID string) *models.Resolution {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.pending[proposalID]
	if !ok {
		return nil
	}
	now := e.now()
	if remaining := ent.proposal.ExpiresAt.Sub(now); remaining > 0 {
		if !e.stopped {
			if ent.timer != nil {
				ent.timer.Stop()
			}
			ent.timer = time.AfterFunc(remaining, e.expiryFunc(proposalID))
		}
		return nil
	}
	res := e.resolveLocked(ent, models.OutcomeFailed, models.ReasonTimeout, "", now)
	return &res
}

func (e *Engine) resolveLocked(ent *entry, outcome models.Outcome, reason models.FailReason, initiator string, now time.Time) models.Resolution {
	p := ent.proposal
	if ent.timer != nil {
		ent.timer.Stop()
	}
	delete(e.pending, p.ID)
	for _, c := range p.Participants {
		if e.byConn[c] == p.ID {
			delete(e.byConn, c)
		}
	}

	res := models.Resolution{
		ProposalID:   p.ID,
		Participants: p.Participants,
		Outcome:      outcome,
		Reason:       reason,
		Initiator:    initiator,
		ResolvedAt:   now,
	}
	e.resolved[p.ID] = res
	if e.retention > 0 && !e.stopped {
		id := p.ID
		time.AfterFunc(e.retention, func() {
			e.mu.Lock()
			delete(e.resolved, id)
			e.mu.Unlock()
		})
	}
	return res
}

// Get returns a copy of a pending proposal.
func (e *Engine) Get(proposalID string) (*models.MatchProposal, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ent, ok := e.pending[proposalID]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", proposalID, models.ErrUnknownProposal)
	}
	return ent.proposal.Clone(), nil
}

// ProposalFor returns the pending proposal id connID participates in.
func (e *Engine) ProposalFor(connID string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	id, ok := e.byConn[connID]
	return id, ok
}

// Resolved returns the retained resolution of a recently terminated proposal.
func (e *Engine) Resolved(proposalID string) (models.Resolution, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	res, ok := e.resolved[proposalID]
	return res, ok
}

// Pending returns the number of non-terminal proposals.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// Stop disarms every deadline timer. Pending proposals stay in memory.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopped = true
	for _, ent := range e.pending {
		if ent.timer != nil {
			ent.timer.Stop()
		}
	}
}
