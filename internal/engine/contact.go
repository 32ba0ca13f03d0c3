package engine

import (
	"slices"
	"time"

	"github.com/tartampluch/go-ketchup/internal/config"
)

// Frequency is the named cadence a contact should be reached at.
type Frequency string

// Known frequencies. Any other value is treated as unknown and resolves to
// the default cadence.
const (
	FrequencyWeekly     Frequency = "weekly"
	FrequencyBiweekly   Frequency = "biweekly"
	FrequencyMonthly    Frequency = "monthly"
	FrequencyQuarterly  Frequency = "quarterly"
	FrequencySemiannual Frequency = "semiannual"
	FrequencyYearly     Frequency = "yearly"
	FrequencyCustom     Frequency = "custom"
)

// Frequencies lists the named frequencies in display order, custom last.
var Frequencies = []Frequency{
	FrequencyWeekly,
	FrequencyBiweekly,
	FrequencyMonthly,
	FrequencyQuarterly,
	FrequencySemiannual,
	FrequencyYearly,
	FrequencyCustom,
}

// SignalType names a life event.
type SignalType string

const (
	SignalBirthday    SignalType = "birthday"
	SignalPromotion   SignalType = "promotion"
	SignalMoved       SignalType = "moved"
	SignalNewChild    SignalType = "new_child"
	SignalAnniversary SignalType = "anniversary"
)

// Signal is a life event attached to a contact.
type Signal struct {
	Type SignalType `json:"type" yaml:"type"`
	When time.Time  `json:"when" yaml:"when"`
	Note string     `json:"note,omitempty" yaml:"note,omitempty"`
}

// Contact is a person tracked for periodic outreach.
//
// Optional fields use their zero value for "absent": an empty Phone, a nil
// LastContacted (never contacted), a non-positive CustomIntervalDays, a zero
// Affinity and a nil Included (included).
type Contact struct {
	ID                 string     `json:"id" yaml:"id"`
	Name               string     `json:"name" yaml:"name"`
	Relationship       string     `json:"relationship,omitempty" yaml:"relationship,omitempty"`
	Phone              string     `json:"phone,omitempty" yaml:"phone,omitempty"`
	LastContacted      *time.Time `json:"lastContacted,omitempty" yaml:"lastContacted,omitempty"`
	Frequency          Frequency  `json:"frequency" yaml:"frequency"`
	CustomIntervalDays int        `json:"customIntervalDays,omitempty" yaml:"customIntervalDays,omitempty"`
	Affinity           float64    `json:"affinity,omitempty" yaml:"affinity,omitempty"`
	Signals            []Signal   `json:"signals,omitempty" yaml:"signals,omitempty"`
	Included           *bool      `json:"included,omitempty" yaml:"included,omitempty"`
	Sources            []string   `json:"sources,omitempty" yaml:"sources,omitempty"`
}

// IsIncluded reports whether the contact takes part in session queues.
func (c Contact) IsIncluded() bool {
	return c.Included == nil || *c.Included
}

// Clone returns a deep copy so that callers can mutate the result freely.
func (c Contact) Clone() Contact {
	out := c
	if c.LastContacted != nil {
		t := *c.LastContacted
		out.LastContacted = &t
	}
	if c.Included != nil {
		b := *c.Included
		out.Included = &b
	}
	out.Signals = slices.Clone(c.Signals)
	out.Sources = slices.Clone(c.Sources)
	return out
}

// WithIncluded returns a copy with the include flag set.
func WithIncluded(c Contact, included bool) Contact {
	out := c.Clone()
	out.Included = &included
	return out
}

// WithFrequency returns a copy using frequency f. Switching to custom keeps
// an existing positive interval, else uses days, else the default cadence.
// Switching away from custom clears the interval.
func WithFrequency(c Contact, f Frequency, days int) Contact {
	out := c.Clone()
	out.Frequency = f
	if f != FrequencyCustom {
		out.CustomIntervalDays = 0
		return out
	}
	switch {
	case days > 0:
		out.CustomIntervalDays = days
	case out.CustomIntervalDays > 0:
	default:
		out.CustomIntervalDays = config.DefaultCadenceDays
	}
	return out
}

// WithLastContacted returns a copy whose last contact is at.
func WithLastContacted(c Contact, at time.Time) Contact {
	out := c.Clone()
	out.LastContacted = &at
	return out
}
