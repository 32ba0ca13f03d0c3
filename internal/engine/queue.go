package engine

import (
	"math"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
)

// Filter decides whether a contact takes part in a queue, on top of the
// Included flag which is always honored.
type Filter func(Contact) bool

// NameFilter matches contacts whose name contains query, ignoring case.
// An empty query matches every contact.
func NameFilter(query string) Filter {
	if query == "" {
		return nil
	}
	needle := cases.Fold().String(query)
	return func(c Contact) bool {
		// Casers are stateful, so each call folds with its own.
		return strings.Contains(cases.Fold().String(c.Name), needle)
	}
}

// Ranked is a contact with the values its position was derived from.
type Ranked struct {
	Contact     Contact `json:"contact"`
	Score       float64 `json:"score"`
	DaysSince   int     `json:"daysSince"`
	CadenceDays int     `json:"cadenceDays"`
	DueInDays   int     `json:"dueInDays"`
}

// RoundedScore returns the score rounded to the nearest integer for display.
func (r Ranked) RoundedScore() int {
	return int(math.Round(r.Score))
}

// Rank filters contacts and orders them by descending score. Contacts with
// equal scores keep their input order. The result holds deep copies.
func (s Scorer) Rank(contacts []Contact, filter Filter, now time.Time) []Ranked {
	ranked := make([]Ranked, 0, len(contacts))
	for _, c := range contacts {
		if !c.IsIncluded() {
			continue
		}
		if filter != nil && !filter(c) {
			continue
		}
		ranked = append(ranked, Ranked{
			Contact:     c.Clone(),
			Score:       s.Score(c, now),
			DaysSince:   s.DaysSince(c, now),
			CadenceDays: s.CadenceDays(c),
			DueInDays:   s.NextDueDays(c, now),
		})
	}

	slices.SortStableFunc(ranked, func(a, b Ranked) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	return ranked
}

// BuildQueue returns the session queue for contacts at now: included
// contacts passing filter, most urgent first, ties in input order.
// The queue is detached from contacts; an empty result is not an error.
func (s Scorer) BuildQueue(contacts []Contact, filter Filter, now time.Time) []Contact {
	ranked := s.Rank(contacts, filter, now)
	queue := make([]Contact, len(ranked))
	for i, r := range ranked {
		queue[i] = r.Contact
	}
	return queue
}

// Rank ranks contacts with the default constants.
func Rank(contacts []Contact, filter Filter, now time.Time) []Ranked {
	return defaultScorer.Rank(contacts, filter, now)
}

// BuildQueue builds a session queue with the default constants.
func BuildQueue(contacts []Contact, filter Filter, now time.Time) []Contact {
	return defaultScorer.BuildQueue(contacts, filter, now)
}
