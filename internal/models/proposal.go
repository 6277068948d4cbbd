package models

import "time"

// Choice is a participant's vote on a proposal.
type Choice string

const (
	ChoiceAccept Choice = "accept"
	ChoiceSkip   Choice = "skip"
)

// Valid reports whether c is a known vote.
func (c Choice) Valid() bool {
	return c == ChoiceAccept || c == ChoiceSkip
}

// Outcome is the derived state of a proposal.
type Outcome string

const (
	OutcomePending  Outcome = "PENDING"
	OutcomeAccepted Outcome = "ACCEPTED"
	OutcomeFailed   Outcome = "FAILED"
)

// FailReason says why a proposal failed.
type FailReason string

const (
	ReasonSkip       FailReason = "skip"
	ReasonTimeout    FailReason = "timeout"
	ReasonDisconnect FailReason = "disconnect"
)

// MatchProposal is one time-boxed pairing attempt between two connections.
type MatchProposal struct {
	ID           string            `json:"id"`
	Participants [2]string         `json:"participants"`
	Votes        map[string]Choice `json:"votes"`
	CreatedAt    time.Time         `json:"created_at"`
	ExpiresAt    time.Time         `json:"expires_at"`
}

// HasParticipant reports whether connID is one of the two participants.
func (p *MatchProposal) HasParticipant(connID string) bool {
	return p.Participants[0] == connID || p.Participants[1] == connID
}

// Peer returns the other participant, or "" if connID is not a participant.
func (p *MatchProposal) Peer(connID string) string {
	switch connID {
	case p.Participants[0]:
		return p.Participants[1]
	case p.Participants[1]:
		return p.Participants[0]
	}
	return ""
}

// OutcomeAt applies the resolution rule at instant now: any skip fails, two accepts
// succeed, and passing ExpiresAt without two accepts fails.
func (p *MatchProposal) OutcomeAt(now time.Time) Outcome {
	accepts := 0
	for _, c := range p.Votes {
		if c == ChoiceSkip {
			return OutcomeFailed
		}
		if c == ChoiceAccept {
			accepts++
		}
	}
	if accepts == len(p.Participants) {
		return OutcomeAccepted
	}
	if !now.Before(p.ExpiresAt) {
		return OutcomeFailed
	}
	return OutcomePending
}

// Clone returns a copy that shares no maps with p.
func (p *MatchProposal) Clone() *MatchProposal {
	cp := *p
	cp.Votes = make(map[string]Choice, len(p.Votes))
	for k, v := range p.Votes {
		cp.Votes[k] = v
	}
	return &cp
}

// Resolution is the single terminal event of a proposal.
type Resolution struct {
	ProposalID   string     `json:"proposal_id"`
	Participants [2]string  `json:"participants"`
	Outcome      Outcome    `json:"outcome"`
	Reason       FailReason `json:"reason,omitempty"`
	// Initiator is the participant that skipped or disconnected, if any.
	Initiator  string    `json:"initiator,omitempty"`
	ResolvedAt time.Time `json:"resolved_at"`
}
