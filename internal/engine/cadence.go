package engine

// CadenceDays returns the number of days desired between contacts with c.
// It never fails: unknown frequencies and missing custom intervals fall back
// to DefaultCadence.
func (s Scorer) CadenceDays(c Contact) int {
	if c.Frequency == FrequencyCustom {
		if c.CustomIntervalDays > 0 {
			return c.CustomIntervalDays
		}
		return s.DefaultCadence
	}
	if days, ok := s.Cadences[c.Frequency]; ok {
		return days
	}
	return s.DefaultCadence
}

// ResolveCadenceDays maps c's frequency to days using the default table.
func ResolveCadenceDays(c Contact) int {
	return defaultScorer.CadenceDays(c)
}
