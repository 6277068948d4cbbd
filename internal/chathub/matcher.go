package chathub

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"pairup/backend/internal/analysis"
	"pairup/backend/internal/config"
	"pairup/backend/internal/models"
	"pairup/backend/internal/storage"
)

// MatcherService runs the matching tick: it repeatedly selects two SEARCHING
// connections and opens a proposal between them.
type MatcherService struct {
	Hub      *Coordinator
	Scorer   analysis.Scorer
	Interval time.Duration
	logger   *slog.Logger
}

// NewMatcherService creates a matcher. A nil scorer uses analysis.NewAffinity.
func NewMatcherService(hub *Coordinator, scorer analysis.Scorer, interval time.Duration) *MatcherService {
	if scorer == nil {
		scorer = analysis.NewAffinity()
	}
	if interval <= 0 {
		interval = config.DefaultMatchInterval
	}
	return &MatcherService{
		Hub:      hub,
		Scorer:   scorer,
		Interval: interval,
		logger:   hub.opts.Logger.With("component", "matcher"),
	}
}

// Run ticks periodically and whenever the coordinator signals a grown pool.
func (m *MatcherService) Run(ctx context.Context) error {
	m.logger.Info("matcher started", "interval", m.Interval)

	ticker := time.NewTicker(m.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			m.Tick()
		case <-m.Hub.MatchTrigger():
			m.Tick()
		}
	}
}

// Tick runs one matching pass and returns the number of proposals created.
func (m *MatcherService) Tick() int {
	m.Hub.beginTick()
	defer m.Hub.endTick()

	unmatched := make(map[string]struct{})
	created, retries := 0, 0
	for {
		a, b, ok := m.Hub.selectPair(m.Scorer, unmatched)
		if !ok {
			return created
		}

		_, err := m.Hub.Propose(a, b)
		switch {
		case err == nil:
			created++
		case errors.Is(err, models.ErrCandidateUnavailable):
			retries++
			m.logger.Debug("candidate taken before reservation, retrying", "a", a, "b", b, "error", err)
			if retries > config.MaxReserveRetries {
				return created
			}
		default:
			m.logger.Error("create proposal failed", "a", a, "b", b, "error", err)
			return created
		}
	}
}

// beginTick advances the matching cycle and forgets expired skip cooldowns.
func (c *Coordinator) beginTick() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tick++
	c.matching = true
	for k, until := range c.cooldown {
		if until < c.tick {
			delete(c.cooldown, k)
		}
	}
}

func (c *Coordinator) endTick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.matching = false
}

// coolDownLocked keeps a and b apart for one matching pass: the rest of the pass in
// progress, or the next pass when none is running.
func (c *Coordinator) coolDownLocked(a, b string) {
	until := c.tick + config.SkipCooldownTicks
	if c.matching {
		until--
	}
	c.cooldown[newPairKey(a, b)] = until
}

func (c *Coordinator) coolingDownLocked(a, b string) bool {
	until, ok := c.cooldown[newPairKey(a, b)]
	return ok && until >= c.tick
}

// selectPair picks the longest waiting connection that has a compatible partner and
// the best partner for it under scorer. Connections in unmatched are skipped; an
// anchor found to have no partner is added to it.
func (c *Coordinator) selectPair(scorer analysis.Scorer, unmatched map[string]struct{}) (string, string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, anchor := range c.presence.ListEligible(nil) {
		if _, skip := unmatched[anchor.ConnectionID]; skip {
			continue
		}
		as, ok := c.sessions[anchor.ConnectionID]
		if !ok {
			unmatched[anchor.ConnectionID] = struct{}{}
			continue
		}

		var pool []analysis.Candidate
		for _, rec := range c.presence.ListEligible(as.blocked) {
			if rec.ConnectionID == anchor.ConnectionID {
				continue
			}
			if _, skip := unmatched[rec.ConnectionID]; skip {
				continue
			}
			bs, ok := c.sessions[rec.ConnectionID]
			if !ok || !compatible(as, bs) || c.coolingDownLocked(anchor.ConnectionID, rec.ConnectionID) {
				continue
			}
			pool = append(pool, bs.candidate())
		}

		if i := analysis.Pick(scorer, as.candidate(), pool); i >= 0 {
			return anchor.ConnectionID, pool[i].ConnectionID, true
		}
		unmatched[anchor.ConnectionID] = struct{}{}
	}
	return "", "", false
}

// Propose reserves a and b and offers each the other's profile. It fails with
// models.ErrCandidateUnavailable when either is no longer SEARCHING.
func (c *Coordinator) Propose(a, b string) (*models.MatchProposal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.proposals.Create(a, b)
	if err != nil {
		return nil, err
	}

	expiresAt := p.ExpiresAt
	for _, id := range p.Participants {
		var peer *models.ProfileSummary
		if sess, ok := c.sessions[p.Peer(id)]; ok {
			summary := sess.summary
			peer = &summary
		}
		c.persistPresenceLocked(id)
		c.sendLocked(id, models.Event{
			Type:       models.EventProposalOffered,
			ProposalID: p.ID,
			Peer:       peer,
			ExpiresAt:  &expiresAt,
		})
	}

	snapshot := p.Clone()
	c.persister.Enqueue("save proposal", func(s storage.Storage) error { return s.SaveProposal(snapshot) })
	c.logger.Info("proposal offered", "proposal_id", p.ID, "a", a, "b", b, "expires_at", expiresAt)
	return p, nil
}
