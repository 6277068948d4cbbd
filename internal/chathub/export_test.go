package chathub

import "pairup/backend/internal/analysis"

// BeginTick, EndTick and SelectPair expose the steps of MatcherService.Tick so tests
// can act between them.
func (c *Coordinator) BeginTick() { c.beginTick() }
func (c *Coordinator) EndTick()   { c.endTick() }

func (c *Coordinator) SelectPair(s analysis.Scorer) (string, string, bool) {
	return c.selectPair(s, make(map[string]struct{}))
}
