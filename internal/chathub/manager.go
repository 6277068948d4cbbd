// Package chathub is the coordinator: the single authority that drives every
// connection through IDLE, SEARCHING, NEGOTIATING and CONNECTED.
//
// It connects the presence registry, the proposal engine and the room registry.
// None of those components call each other except through the coordinator, and every
// mutation of connection state happens while holding the coordinator lock. Lock order
// is coordinator, then proposal engine, then presence registry.
package chathub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pairup/backend/internal/analysis"
	"pairup/backend/internal/config"
	"pairup/backend/internal/models"
	"pairup/backend/internal/presence"
	"pairup/backend/internal/proposal"
	"pairup/backend/internal/room"
	"pairup/backend/internal/storage"
)

// ErrUnknownMessage is reported for an inbound frame with an unrecognised type.
var ErrUnknownMessage = errors.New("unknown message type")

type Options struct {
	ProposalTTL       time.Duration
	ProposalRetention time.Duration
	StaleAfter        time.Duration
	SweepInterval     time.Duration
	Logger            *slog.Logger
}

func (o *Options) setDefaults() {
	if o.ProposalTTL <= 0 {
		o.ProposalTTL = config.DefaultProposalTTL
	}
	if o.ProposalRetention <= 0 {
		o.ProposalRetention = config.DefaultProposalRetention
	}
	if o.StaleAfter <= 0 {
		o.StaleAfter = config.DefaultPresenceStaleAfter
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = config.DefaultSweepInterval
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// session is what the coordinator knows about a registered connection beyond its
// presence record.
type session struct {
	client  Client
	userID  string
	summary models.ProfileSummary
	blocked map[string]struct{} // user ids
}

func (s *session) candidate() analysis.Candidate {
	return analysis.Candidate{
		ConnectionID: s.summary.ConnectionID,
		Language:     s.summary.Language,
		Region:       s.summary.Region,
		Interests:    s.summary.Interests,
	}
}

// compatible reports whether two sessions may ever be paired.
func compatible(a, b *session) bool {
	if a.userID != "" && a.userID == b.userID {
		return false
	}
	if _, blocked := a.blocked[b.userID]; blocked && b.userID != "" {
		return false
	}
	if _, blocked := b.blocked[a.userID]; blocked && a.userID != "" {
		return false
	}
	return true
}

type pairKey [2]string

func newPairKey(a, b string) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a, b}
}

// Coordinator owns all live matchmaking state of the process.
type Coordinator struct {
	RegisterCh   chan Client
	UnregisterCh chan Client
	IncomingCh   chan Inbound

	mu        sync.Mutex
	presence  *presence.Registry
	proposals *proposal.Engine
	rooms     *room.Registry
	storage   storage.Storage
	persister *Persister
	sessions  map[string]*session
	// cooldown maps a pair to the last matching tick it is excluded from.
	cooldown map[pairKey]uint64
	tick     uint64
	matching bool

	readyCh  chan *session
	matchCh  chan struct{}
	done     chan struct{}
	doneOnce sync.Once

	opts   Options
	logger *slog.Logger
}

// NewCoordinator creates a coordinator. s may be nil, in which case profiles are
// anonymous and nothing is persisted.
func NewCoordinator(s storage.Storage, opts Options) *Coordinator {
	opts.setDefaults()
	logger := opts.Logger.With("component", "coordinator")

	c := &Coordinator{
		RegisterCh:   make(chan Client),
		UnregisterCh: make(chan Client),
		IncomingCh:   make(chan Inbound, 64),
		presence:     presence.NewRegistry(),
		rooms:        room.NewRegistry(),
		storage:      s,
		persister:    NewPersister(s, config.PersistQueueSize, logger),
		sessions:     make(map[string]*session),
		cooldown:     make(map[pairKey]uint64),
		readyCh:      make(chan *session),
		matchCh:      make(chan struct{}, 1),
		done:         make(chan struct{}),
		opts:         opts,
		logger:       logger,
	}
	c.proposals = proposal.NewEngine(c.presence, opts.ProposalTTL, opts.ProposalRetention)
	c.proposals.SetExpiryHandler(func(id string) { c.ExpireProposal(id) })
	return c
}

// SetClock replaces the time source of every registry. Used by tests.
func (c *Coordinator) SetClock(now func() time.Time) {
	c.presence.SetClock(now)
	c.proposals.SetClock(now)
	c.rooms.SetClock(now)
}

func (c *Coordinator) Presence() *presence.Registry { return c.presence }
func (c *Coordinator) Proposals() *proposal.Engine  { return c.proposals }
func (c *Coordinator) Rooms() *room.Registry        { return c.rooms }
func (c *Coordinator) Persister() *Persister        { return c.persister }

// Done is closed once Run has returned.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// MatchTrigger fires when the eligible pool grew and a matching pass is worthwhile.
func (c *Coordinator) MatchTrigger() <-chan struct{} { return c.matchCh }

// Stats is a point-in-time count of live state.
type Stats struct {
	Connections int `json:"connections"`
	Proposals   int `json:"proposals"`
	Rooms       int `json:"rooms"`
}

func (c *Coordinator) Stats() Stats {
	return Stats{
		Connections: c.presence.Len(),
		Proposals:   c.proposals.Pending(),
		Rooms:       c.rooms.Len(),
	}
}

// Run serves the transport channels and the stale-presence sweep until ctx is done.
// Profile lookups for new clients run off the loop; a client that unregisters before
// its lookup finishes is never attached.
func (c *Coordinator) Run(ctx context.Context) error {
	c.logger.Info("coordinator started")
	defer c.shutdown()

	sweep := time.NewTicker(c.opts.SweepInterval)
	defer sweep.Stop()

	// client -> still wanted once its session is resolved
	pending := make(map[Client]bool)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("coordinator stopping")
			return nil

		case client := <-c.RegisterCh:
			if client.GetConnectionID() == "" {
				c.logger.Error("connect failed", "error", "empty connection id")
				client.Close()
				continue
			}
			pending[client] = true
			go c.resolveSession(client)

		case sess := <-c.readyCh:
			wanted := pending[sess.client]
			delete(pending, sess.client)
			if !wanted {
				c.logger.Info("client left before registration finished", "connection_id", sess.client.GetConnectionID())
				sess.client.Close()
				continue
			}
			if err := c.attach(sess); err != nil {
				c.logger.Error("connect failed", "connection_id", sess.client.GetConnectionID(), "error", err)
				sess.client.Close()
			}

		case client := <-c.UnregisterCh:
			if _, ok := pending[client]; ok {
				pending[client] = false
				continue
			}
			c.DisconnectClient(client)

		case in := <-c.IncomingCh:
			c.HandleMessage(in.ConnectionID, in.Message)

		case <-sweep.C:
			if n := c.Sweep(); n > 0 {
				c.logger.Info("swept stale connections", "count", n)
			}
		}
	}
}

func (c *Coordinator) shutdown() {
	c.doneOnce.Do(func() { close(c.done) })
	c.proposals.Stop()

	c.mu.Lock()
	defer c.mu.Unlock()
	for id, sess := range c.sessions {
		sess.client.Close()
		delete(c.sessions, id)
	}
}

// Recover reconciles storage after a restart: no room or proposal survived it, so
// every room still marked active is closed and the snapshot keys are cleared.
func (c *Coordinator) Recover() error {
	if c.storage == nil {
		return nil
	}
	c.logger.Info("starting recovery")

	closed, err := c.storage.CloseActiveRoomHistories()
	if err != nil {
		return fmt.Errorf("close stale rooms: %w", err)
	}
	cleared, err := c.storage.ClearSnapshots()
	if err != nil {
		return fmt.Errorf("clear snapshots: %w", err)
	}

	c.logger.Info("recovery complete", "closed_rooms", closed, "cleared_snapshots", cleared)
	return nil
}

// Connect registers the client's connection and puts it in SEARCHING. A connection id
// that is already registered is treated as a reconnect: the previous session is torn
// down exactly like a disconnect and then replaced. The profile lookup runs on the
// caller's goroutine.
func (c *Coordinator) Connect(client Client) error {
	if client.GetConnectionID() == "" {
		return errors.New("connect: empty connection id")
	}
	return c.attach(c.newSession(client))
}

func (c *Coordinator) resolveSession(client Client) {
	sess := c.newSession(client)
	select {
	case c.readyCh <- sess:
	case <-c.done:
		client.Close()
	}
}

// attach registers a resolved session.
func (c *Coordinator) attach(sess *session) error {
	id := sess.client.GetConnectionID()

	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.presence.Register(id, sess.userID)
	if errors.Is(err, models.ErrAlreadyRegistered) {
		c.logger.Info("connection re-registered, replacing previous session", "connection_id", id)
		if err := c.removeLocked(id); err != nil {
			return fmt.Errorf("connect %s: replace: %w", id, err)
		}
		rec, err = c.presence.Register(id, sess.userID)
	}
	if err != nil {
		return fmt.Errorf("connect %s: %w", id, err)
	}

	c.sessions[id] = sess
	c.persister.Enqueue("save presence", func(s storage.Storage) error { return s.SavePresence(rec) })
	c.logger.Info("connection registered", "connection_id", id, "user_id", sess.userID)
	c.kickMatcher()
	return nil
}

// newSession resolves the profile and block list. It runs outside the lock because
// it may hit storage.
func (c *Coordinator) newSession(client Client) *session {
	req := client.ConnectRequest()
	sess := &session{
		client:  client,
		userID:  req.UserID,
		blocked: make(map[string]struct{}, len(req.BlockedIDs)),
	}

	summary := models.ProfileSummary{UserID: req.UserID, Anonymous: req.UserID == ""}
	if req.UserID != "" && c.storage != nil {
		if profile, err := c.storage.GetProfile(req.UserID); err == nil {
			summary = *profile
		} else {
			c.logger.Warn("profile lookup failed", "user_id", req.UserID, "error", err)
		}
		if ids, err := c.storage.GetBlockedIDs(req.UserID); err == nil {
			for _, b := range ids {
				sess.blocked[b] = struct{}{}
			}
		} else {
			c.logger.Warn("block list lookup failed", "user_id", req.UserID, "error", err)
		}
	}
	for _, b := range req.BlockedIDs {
		sess.blocked[b] = struct{}{}
	}

	summary.ConnectionID = client.GetConnectionID()
	prefs := req.Preferences
	if prefs.Language != "" {
		summary.Language = prefs.Language
	}
	if prefs.Region != "" {
		summary.Region = prefs.Region
	}
	if len(prefs.Interests) > 0 {
		summary.Interests = append([]string(nil), prefs.Interests...)
	}
	sess.summary = summary
	return sess
}

// Disconnect removes a connection and cascades whatever it held: a pending proposal
// fails as if the connection skipped, a room is vacated and the peer returns to
// SEARCHING.
func (c *Coordinator) Disconnect(connID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removeLocked(connID)
}

// DisconnectClient disconnects client unless its connection id has since been taken
// over by a newer client.
func (c *Coordinator) DisconnectClient(client Client) {
	id := client.GetConnectionID()

	c.mu.Lock()
	defer c.mu.Unlock()

	sess, ok := c.sessions[id]
	if !ok || sess.client != client {
		return
	}
	if err := c.removeLocked(id); err != nil {
		c.logger.Debug("disconnect of unknown connection", "connection_id", id, "error", err)
	}
}

func (c *Coordinator) removeLocked(connID string) error {
	rec, err := c.presence.Unregister(connID)
	if err != nil {
		return err
	}
	sess := c.sessions[connID]
	delete(c.sessions, connID)

	switch rec.State {
	case models.StateProposed:
		res, err := c.proposals.Cancel(rec.Ref, connID)
		if err != nil {
			c.logger.Debug("cancel on disconnect", "proposal_id", rec.Ref, "error", err)
		} else {
			c.applyResolutionLocked(*res)
		}
	case models.StateInRoom:
		if err := c.vacateRoomLocked(rec.Ref, connID); err != nil {
			c.logger.Error("vacate room on disconnect", "room_id", rec.Ref, "connection_id", connID, "error", err)
		}
	}

	c.persister.Enqueue("delete presence", func(s storage.Storage) error { return s.DeletePresence(connID) })
	if sess != nil {
		sess.client.Close()
	}
	c.logger.Info("connection removed", "connection_id", connID, "state", rec.State)
	return nil
}

// Heartbeat refreshes the liveness of a connection.
func (c *Coordinator) Heartbeat(connID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.presence.Heartbeat(connID); err != nil {
		return err
	}
	c.persister.Enqueue("touch presence", func(s storage.Storage) error { return s.TouchPresence(connID) })
	return nil
}

// Sweep removes connections whose heartbeat is older than the staleness bound, as
// implicit disconnects. It returns how many were removed.
func (c *Coordinator) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	stale := c.presence.Stale(c.opts.StaleAfter)
	for _, id := range stale {
		if err := c.removeLocked(id); err != nil {
			c.logger.Debug("sweep", "connection_id", id, "error", err)
		}
	}
	return len(stale)
}

// HandleMessage dispatches one inbound frame. Failures are reported to the sender only.
func (c *Coordinator) HandleMessage(connID string, msg models.ClientMessage) {
	var err error
	switch msg.Type {
	case models.MessageHeartbeat:
		err = c.Heartbeat(connID)
	case models.MessageVote:
		err = c.Vote(connID, msg.ProposalID, msg.Choice)
	case models.MessageLeave:
		err = c.LeaveRoom(connID, msg.RoomID)
	case models.MessagePresence:
		c.mu.Lock()
		c.sendLocked(connID, models.Event{Type: models.EventPresenceSnapshot, Online: c.presenceSnapshotLocked()})
		c.mu.Unlock()
	default:
		err = fmt.Errorf("%w %q", ErrUnknownMessage, msg.Type)
	}
	if err != nil {
		c.reportError(connID, err)
	}
}

func (c *Coordinator) reportError(connID string, err error) {
	code := models.ErrorCode(err)
	switch {
	case errors.Is(err, proposal.ErrInvalidChoice):
		code = "invalid_choice"
	case errors.Is(err, ErrUnknownMessage):
		code = "bad_request"
	}

	switch {
	case errors.Is(err, models.ErrCandidateUnavailable), errors.Is(err, models.ErrInvalidTransition):
		c.logger.Debug("lost race", "connection_id", connID, "error", err)
	case code == "internal":
		c.logger.Error("operation failed", "connection_id", connID, "error", err)
	default:
		c.logger.Warn("rejected client message", "connection_id", connID, "code", code, "error", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendLocked(connID, models.Event{Type: models.EventError, Code: code, Message: err.Error()})
}

// Vote records a participant's choice and applies the resolution if it ended the
// proposal.
func (c *Coordinator) Vote(connID, proposalID string, choice models.Choice) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.proposals.Vote(proposalID, connID, choice)
	if res != nil {
		c.applyResolutionLocked(*res)
	}
	if err != nil {
		return err
	}
	c.logger.Debug("vote recorded", "proposal_id", proposalID, "connection_id", connID, "choice", choice)
	return nil
}

// ExpireProposal is the deadline handler. Repeated calls are no-ops.
func (c *Coordinator) ExpireProposal(proposalID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if res := c.proposals.Expire(proposalID); res != nil {
		c.applyResolutionLocked(*res)
	}
}

// LeaveRoom takes connID out of its room without deregistering it. The room is
// destroyed and both sides return to SEARCHING. An empty roomID means the current room.
func (c *Coordinator) LeaveRoom(connID, roomID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, err := c.rooms.ParticipantsOf(connID)
	if err != nil || (roomID != "" && current != roomID) {
		return fmt.Errorf("leave room %q by %s: %w", roomID, connID, models.ErrNotFound)
	}
	if err := c.vacateRoomLocked(current, connID); err != nil {
		return err
	}
	if err := c.presence.SetState(connID, models.StateOnline, ""); err != nil {
		return err
	}
	c.persistPresenceLocked(connID)
	c.logger.Info("left room", "room_id", current, "connection_id", connID)
	return nil
}

// PresenceSnapshot returns the public summaries of every registered connection.
func (c *Coordinator) PresenceSnapshot() []models.ProfileSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.presenceSnapshotLocked()
}

func (c *Coordinator) presenceSnapshotLocked() []models.ProfileSummary {
	recs := c.presence.List()
	out := make([]models.ProfileSummary, 0, len(recs))
	for _, rec := range recs {
		if sess, ok := c.sessions[rec.ConnectionID]; ok {
			out = append(out, sess.summary)
		}
	}
	return out
}

// ClientState returns the composite state of a connection.
func (c *Coordinator) ClientState(connID string) models.ClientState {
	rec, err := c.presence.Get(connID)
	if err != nil {
		return models.ClientIdle
	}
	return models.ClientStateOf(&rec)
}

func (c *Coordinator) applyResolutionLocked(res models.Resolution) {
	c.persister.Enqueue("delete proposal", func(s storage.Storage) error { return s.DeleteProposal(res.ProposalID) })

	if res.Outcome == models.OutcomeAccepted {
		rm, err := c.openRoomLocked(res)
		if err == nil {
			for _, p := range res.Participants {
				c.sendLocked(p, models.Event{
					Type:       models.EventProposalResolved,
					ProposalID: res.ProposalID,
					Outcome:    models.OutcomeAccepted,
					RoomID:     rm.ID,
				})
			}
			c.logger.Info("proposal accepted", "proposal_id", res.ProposalID, "room_id", rm.ID)
			return
		}
		c.logger.Error("room creation failed, releasing participants", "proposal_id", res.ProposalID, "error", err)
	}

	for _, p := range res.Participants {
		if err := c.presence.SetState(p, models.StateOnline, ""); errors.Is(err, models.ErrNotFound) {
			continue
		} else if err != nil {
			c.logger.Debug("release participant", "connection_id", p, "error", err)
		}
		c.persistPresenceLocked(p)
		c.sendLocked(p, models.Event{
			Type:       models.EventProposalResolved,
			ProposalID: res.ProposalID,
			Outcome:    models.OutcomeFailed,
		})
	}
	if res.Reason == models.ReasonSkip {
		c.coolDownLocked(res.Participants[0], res.Participants[1])
	}
	c.logger.Info("proposal failed", "proposal_id", res.ProposalID, "reason", res.Reason, "initiator", res.Initiator)
	c.kickMatcher()
}

func (c *Coordinator) openRoomLocked(res models.Resolution) (*models.Room, error) {
	rm, err := c.rooms.Create(res.ProposalID, res.Participants[:])
	if err != nil {
		return nil, err
	}
	for i, p := range rm.Participants {
		if err := c.presence.SetState(p, models.StateInRoom, rm.ID); err != nil {
			for _, q := range rm.Participants[:i] {
				_ = c.presence.SetState(q, models.StateOnline, "")
			}
			for _, q := range rm.Participants {
				_, _, _ = c.rooms.Leave(rm.ID, q)
			}
			return nil, err
		}
		c.persistPresenceLocked(p)
	}

	history := &models.RoomHistory{
		RoomID:      rm.ID,
		ProposalID:  rm.ProposalID,
		User1ConnID: rm.Participants[0],
		User2ConnID: rm.Participants[1],
		User1ID:     c.userIDLocked(rm.Participants[0]),
		User2ID:     c.userIDLocked(rm.Participants[1]),
		IsActive:    true,
		StartedAt:   rm.CreatedAt,
	}
	snapshot := rm.Clone()
	c.persister.Enqueue("save room", func(s storage.Storage) error { return s.SaveRoom(snapshot) })
	c.persister.Enqueue("save room history", func(s storage.Storage) error { return s.SaveRoomHistory(history) })
	return rm, nil
}

// vacateRoomLocked removes leaver from the room and releases every remaining
// participant back to SEARCHING, so the room is always destroyed.
func (c *Coordinator) vacateRoomLocked(roomID, leaver string) error {
	remaining, _, err := c.rooms.Leave(roomID, leaver)
	if err != nil {
		return err
	}
	for _, peer := range remaining {
		if _, _, err := c.rooms.Leave(roomID, peer); err != nil {
			c.logger.Error("release room peer", "room_id", roomID, "connection_id", peer, "error", err)
		}
		if err := c.presence.SetState(peer, models.StateOnline, ""); err != nil {
			c.logger.Debug("release room peer", "connection_id", peer, "error", err)
			continue
		}
		c.persistPresenceLocked(peer)
		c.sendLocked(peer, models.Event{Type: models.EventRoomPeerLeft, RoomID: roomID})
		c.coolDownLocked(leaver, peer)
	}

	c.persister.Enqueue("delete room", func(s storage.Storage) error { return s.DeleteRoom(roomID) })
	c.persister.Enqueue("close room history", func(s storage.Storage) error { return s.CloseRoomHistory(roomID) })
	c.logger.Info("room closed", "room_id", roomID, "left_by", leaver)
	c.kickMatcher()
	return nil
}

func (c *Coordinator) userIDLocked(connID string) string {
	if sess, ok := c.sessions[connID]; ok {
		return sess.userID
	}
	return ""
}

func (c *Coordinator) persistPresenceLocked(connID string) {
	rec, err := c.presence.Get(connID)
	if err != nil {
		return
	}
	c.persister.Enqueue("save presence", func(s storage.Storage) error { return s.SavePresence(rec) })
}

// sendLocked delivers ev without blocking. A client whose buffer is full is dropped.
func (c *Coordinator) sendLocked(connID string, ev models.Event) {
	sess, ok := c.sessions[connID]
	if !ok {
		return
	}
	ev.ConnectionID = connID

	select {
	case sess.client.GetSendChannel() <- ev:
	default:
		c.logger.Warn("client send buffer full, dropping connection", "connection_id", connID, "event", ev.Type)
		go c.requestUnregister(sess.client)
		return
	}

	if ev.Type != models.EventError {
		c.persister.Enqueue("publish event", func(s storage.Storage) error { return s.PublishEvent(ev) })
	}
}

func (c *Coordinator) requestUnregister(client Client) {
	select {
	case c.UnregisterCh <- client:
	case <-c.done:
	}
}

func (c *Coordinator) kickMatcher() {
	select {
	case c.matchCh <- struct{}{}:
	default:
	}
}
