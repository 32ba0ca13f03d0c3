package engine

import (
	"math"
	"time"

	"github.com/tartampluch/go-ketchup/internal/config"
)

// Weights are the coefficients of the urgency score.
type Weights struct {
	Overdue  float64
	Signal   float64
	Affinity float64
}

// Scorer resolves cadences and computes urgency scores. The zero value is
// not useful; start from DefaultScorer and override fields as needed.
// A Scorer is immutable after construction and safe for concurrent use.
type Scorer struct {
	// Cadences maps named frequencies to days between contacts.
	Cadences map[Frequency]int
	// DefaultCadence applies to unknown frequencies and to custom
	// frequencies without a positive interval.
	DefaultCadence int
	// NeverContactedDays replaces days-since-contact for contacts with no
	// recorded last contact.
	NeverContactedDays int
	// SignalBoost is the flat boost per attached signal.
	SignalBoost float64
	Weights     Weights
}

// DefaultScorer returns the scorer used by the package-level functions.
func DefaultScorer() Scorer {
	return Scorer{
		Cadences: map[Frequency]int{
			FrequencyWeekly:     7,
			FrequencyBiweekly:   14,
			FrequencyMonthly:    30,
			FrequencyQuarterly:  90,
			FrequencySemiannual: 182,
			FrequencyYearly:     365,
		},
		DefaultCadence:     config.DefaultCadenceDays,
		NeverContactedDays: config.NeverContactedDays,
		SignalBoost:        config.DefaultSignalBoost,
		Weights: Weights{
			Overdue:  config.DefaultWeightOverdue,
			Signal:   config.DefaultWeightSignal,
			Affinity: config.DefaultWeightAffinity,
		},
	}
}

// NewScorer returns DefaultScorer with the overrides from s applied.
func NewScorer(s config.ScoringSettings) Scorer {
	sc := DefaultScorer()
	sc.Weights = Weights{
		Overdue:  s.OverdueWeight,
		Signal:   s.SignalWeight,
		Affinity: s.AffinityWeight,
	}
	sc.SignalBoost = s.SignalBoost
	if s.DefaultCadence > 0 {
		sc.DefaultCadence = s.DefaultCadence
	}
	return sc
}

var defaultScorer = DefaultScorer()

// DaysSince returns the whole days elapsed between c's last contact and now,
// rounded down, or NeverContactedDays when there is no last contact.
func (s Scorer) DaysSince(c Contact, now time.Time) int {
	if c.LastContacted == nil {
		return s.NeverContactedDays
	}
	elapsed := now.Sub(*c.LastContacted)
	return int(math.Floor(elapsed.Hours() / config.HoursPerDay))
}

// OverdueDays returns how many days past its cadence c is, never negative.
func (s Scorer) OverdueDays(c Contact, now time.Time) int {
	return max(0, s.DaysSince(c, now)-s.CadenceDays(c))
}

// NextDueDays returns the days left until c is due, zero once due or overdue.
func (s Scorer) NextDueDays(c Contact, now time.Time) int {
	return max(0, s.CadenceDays(c)-s.DaysSince(c, now))
}

// DueDate returns the calendar day c becomes due: last contact plus cadence,
// or the day of now when c was never contacted or is already overdue.
func (s Scorer) DueDate(c Contact, now time.Time) time.Time {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	if c.LastContacted == nil {
		return today
	}
	last := c.LastContacted.In(now.Location())
	due := time.Date(last.Year(), last.Month(), last.Day()+s.CadenceDays(c), 0, 0, 0, 0, now.Location())
	if due.Before(today) {
		return today
	}
	return due
}

// Score returns the urgency of c at now; higher is more urgent.
//
//	overdue*W.Overdue + len(signals)*SignalBoost*W.Signal + affinity*W.Affinity
//
// Signals count regardless of their type or age. Affinity is used as given,
// including out-of-range values, except NaN which counts as 0 so that
// scores stay totally ordered.
func (s Scorer) Score(c Contact, now time.Time) float64 {
	overdue := float64(s.OverdueDays(c, now))
	signalBoost := float64(len(c.Signals)) * s.SignalBoost
	affinity := c.Affinity
	if math.IsNaN(affinity) {
		affinity = 0
	}
	return overdue*s.Weights.Overdue + signalBoost*s.Weights.Signal + affinity*s.Weights.Affinity
}

// ScoreContact scores c at now with the default constants.
func ScoreContact(c Contact, now time.Time) float64 {
	return defaultScorer.Score(c, now)
}

// NextDueDays returns the days left until c is due with the default constants.
func NextDueDays(c Contact, now time.Time) int {
	return defaultScorer.NextDueDays(c, now)
}
