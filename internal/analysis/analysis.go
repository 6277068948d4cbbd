// Package analysis holds the pairing policy used by the matching tick.
// It scores how well two searching connections fit each other; the consent
// protocol does not depend on which policy is plugged in.
package analysis

import (
	"strings"

	"pairup/backend/internal/config"
)

// Candidate is the matching-relevant view of one searching connection.
type Candidate struct {
	ConnectionID string
	Language     string
	Region       string
	Interests    []string
}

// Scorer rates a pairing. Higher is better; the value is only compared, never stored.
type Scorer interface {
	Score(a, b Candidate) int
}

// ScorerFunc adapts a plain function to Scorer.
type ScorerFunc func(a, b Candidate) int

func (f ScorerFunc) Score(a, b Candidate) int { return f(a, b) }

// Affinity favours a shared language, then a shared region, then each shared interest.
type Affinity struct {
	Weights map[string]int
}

// NewAffinity returns an Affinity using the configured weights.
func NewAffinity() Affinity {
	return Affinity{Weights: config.AffinityWeights}
}

// GetWeight returns the weight for a factor, 0 if it is not recognised.
func (a Affinity) GetWeight(factor string) int {
	return a.Weights[factor]
}

func (a Affinity) Score(x, y Candidate) int {
	score := 0
	if x.Language != "" && strings.EqualFold(x.Language, y.Language) {
		score += a.GetWeight("language")
	}
	if x.Region != "" && strings.EqualFold(x.Region, y.Region) {
		score += a.GetWeight("region")
	}
	score += SharedInterests(x.Interests, y.Interests) * a.GetWeight("interest")
	return score
}

// SharedInterests counts case-insensitive interests present in both lists.
func SharedInterests(a, b []string) int {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(a))
	for _, i := range a {
		seen[strings.ToLower(strings.TrimSpace(i))] = struct{}{}
	}
	n := 0
	for _, i := range b {
		key := strings.ToLower(strings.TrimSpace(i))
		if _, ok := seen[key]; ok {
			n++
			delete(seen, key)
		}
	}
	return n
}

// Pick returns the index in pool of the best partner for anchor, or -1 when pool is
// empty. Ties keep the earlier entry, so pool order (longest waiting first) breaks them.
func Pick(s Scorer, anchor Candidate, pool []Candidate) int {
	best, bestScore := -1, 0
	for i, c := range pool {
		score := s.Score(anchor, c)
		if best == -1 || score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}
