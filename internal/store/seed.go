package store

import (
	"time"

	"github.com/tartampluch/go-ketchup/internal/engine"
)

type seed struct {
	id, name, relationship, phone string
	frequency                     engine.Frequency
	lastDays                      int
	affinity                      float64
	signal                        engine.SignalType
	signalDays                    int // relative to now, negative is in the past
	note                          string
	source                        string
}

var seeds = []seed{
	{"1", "Mom", "Family", "+14155550111", engine.FrequencyWeekly, 9, 10, engine.SignalAnniversary, 0, "Parents' anniversary this week", "contacts"},
	{"2", "Aiden Chen", "Friend", "+14155550123", engine.FrequencyBiweekly, 21, 7, engine.SignalPromotion, -5, "Promoted to Staff", "linkedin"},
	{"3", "Priya Patel", "Cousin", "+14155550678", engine.FrequencySemiannual, 200, 6, engine.SignalMoved, -15, "Moved to Austin", "instagram"},
	{"4", "Samir Gupta", "Brother", "+14155550999", engine.FrequencyBiweekly, 3, 9, "", 0, "", "contacts"},
	{"5", "Taylor Jones", "Friend", "+14155550888", engine.FrequencyMonthly, 50, 5, engine.SignalBirthday, 10, "Birthday in 10 days", "calendar"},
	{"6", "Jordan Lee", "Coworker", "+14155550444", engine.FrequencyQuarterly, 120, 4, engine.SignalPromotion, -40, "New role announcement", "linkedin"},
	{"7", "Riya Singh", "Friend", "+14155550555", engine.FrequencyYearly, 400, 6, engine.SignalMoved, -25, "Moved to Chicago", "instagram"},
}

// SeedContacts returns the demo address book with dates relative to now.
func SeedContacts(now time.Time) []engine.Contact {
	day := 24 * time.Hour
	out := make([]engine.Contact, 0, len(seeds))
	for _, s := range seeds {
		last := now.Add(-time.Duration(s.lastDays) * day)
		included := true
		c := engine.Contact{
			ID:            s.id,
			Name:          s.name,
			Relationship:  s.relationship,
			Phone:         s.phone,
			Frequency:     s.frequency,
			LastContacted: &last,
			Affinity:      s.affinity,
			Included:      &included,
			Sources:       []string{s.source},
		}
		if s.signal != "" {
			c.Signals = []engine.Signal{{
				Type: s.signal,
				When: now.Add(time.Duration(s.signalDays) * day),
				Note: s.note,
			}}
		}
		out = append(out, c)
	}
	return out
}
