package config

import "time"

const (
	// Negotiation
	DefaultProposalTTL       = 120 * time.Second
	DefaultProposalRetention = 30 * time.Second

	// Presence
	DefaultPresenceStaleAfter = 24 * time.Hour
	DefaultSweepInterval      = time.Minute

	// Matching
	DefaultMatchInterval  = 500 * time.Millisecond
	MaxReserveRetries     = 3
	SkipCooldownTicks     = 1
	PersistQueueSize      = 1024
	ClientSendBufferSize  = 256
	StorageRequestTimeout = 5 * time.Second

	// Redis snapshots
	PresenceSnapshotTTL = 10 * time.Minute
	EventsChannel       = "pairup:events"
)

// Affinity weights used by the default pairing policy.
var AffinityWeights = map[string]int{
	"language": 50,
	"region":   20,
	"interest": 5,
}
