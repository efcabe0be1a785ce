// Package scoring turns completed repetitions into points and keeps the
// per-session running totals.
package scoring

import (
	"errors"

	"github.com/claude/repcoach/internal/models"
)

// Rule is the points formula: Base points per rep minus Penalty per fault.
type Rule struct {
	Base    int `yaml:"base" json:"base"`
	Penalty int `yaml:"penalty" json:"penalty"`
}

// DefaultRule awards 10 points per rep and deducts 2 per bad move.
func DefaultRule() Rule {
	return Rule{Base: 10, Penalty: 2}
}

// Validate rejects rules that would reward faults.
func (r Rule) Validate() error {
	if r.Base < 0 {
		return errors.New("scoring.base must not be negative")
	}
	if r.Penalty < 0 {
		return errors.New("scoring.penalty must not be negative")
	}
	return nil
}

// Points returns max(0, Base - Penalty*badMoves). A rep never scores negative.
func (r Rule) Points(badMoves int) int {
	if badMoves < 0 {
		badMoves = 0
	}
	p := r.Base - r.Penalty*badMoves
	if p < 0 {
		return 0
	}
	return p
}

// Aggregator accumulates session totals. It belongs to exactly one session.
type Aggregator struct {
	totals models.Totals
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Add folds ev into the totals and returns the updated snapshot.
func (a *Aggregator) Add(ev models.RepEvent) models.Totals {
	a.totals.Reps++
	a.totals.Points += ev.Points
	a.totals.BadMoves += ev.BadMoves
	if ev.HasDanger {
		a.totals.Dangers++
	}
	return a.totals
}

// Snapshot returns a copy of the current totals.
func (a *Aggregator) Snapshot() models.Totals {
	return a.totals
}
