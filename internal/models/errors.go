package models

import "errors"

// Error taxonomy shared by the presence, proposal and room registries.
// Components wrap these with context; callers match with errors.Is.
var (
	// ErrNotFound is returned for an unknown connection, proposal or room.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyRegistered is returned when a connection id is registered twice.
	ErrAlreadyRegistered = errors.New("connection already registered")
	// ErrInvalidTransition is returned when a presence state edge is not allowed.
	ErrInvalidTransition = errors.New("invalid presence transition")
	// ErrCandidateUnavailable is returned when a candidate stopped being ONLINE
	// between selection and reservation.
	ErrCandidateUnavailable = errors.New("candidate unavailable")
	// ErrUnknownProposal is returned for votes on expired, resolved or unknown proposals.
	ErrUnknownProposal = errors.New("unknown proposal")
	ErrNotParticipant  = errors.New("not a participant of the proposal")
	ErrDuplicateVote   = errors.New("participant already voted")
	// ErrParticipantAlreadyInRoom is returned by room creation when a participant
	// already owns a room.
	ErrParticipantAlreadyInRoom = errors.New("participant already in a room")
)

// ErrorCode maps an error to the stable code sent to clients in an error event.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyRegistered):
		return "already_registered"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrCandidateUnavailable):
		return "candidate_unavailable"
	case errors.Is(err, ErrUnknownProposal):
		return "unknown_proposal"
	case errors.Is(err, ErrNotParticipant):
		return "not_participant"
	case errors.Is(err, ErrDuplicateVote):
		return "duplicate_vote"
	case errors.Is(err, ErrParticipantAlreadyInRoom):
		return "already_in_room"
	default:
		return "internal"
	}
}
