package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-vcard"
	"github.com/google/uuid"
	"github.com/tartampluch/go-ketchup/internal/config"
	"github.com/tartampluch/go-ketchup/internal/engine"
)

// Source names where an address book comes from: a local .vcf file or a
// remote URL. Path wins when both are set.
type Source struct {
	Path     string
	URL      string
	User     string
	Password string
}

// Label returns the provenance recorded on imported contacts.
func (s Source) Label() string {
	if s.Path != "" {
		return config.SourceVCard
	}
	return config.SourceCardDAV
}

// Stats summarizes one import run.
type Stats struct {
	Cards    int
	Imported int
	Skipped  int
}

// Importer turns vCard address books into contacts.
type Importer struct {
	Clock   engine.Clock
	Fetcher Fetcher
}

var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte(config.UIDNamespace))

// Import reads src and returns its contacts in address book order.
// Malformed cards are logged and skipped.
func (im *Importer) Import(ctx context.Context, src Source) ([]engine.Contact, Stats, error) {
	start := time.Now()
	log := slog.With(config.LogKeyComponent, config.CompImporter, config.LogKeySource, src.Label())
	log.InfoContext(ctx, config.MsgImportStarted)

	reader, err := im.open(ctx, src)
	if err != nil {
		if ctx.Err() != nil {
			return nil, Stats{}, ctx.Err()
		}
		return nil, Stats{}, fmt.Errorf("%s: %w", config.ErrVCardParse, err)
	}
	defer func() { _ = reader.Close() }()

	if err := ctx.Err(); err != nil {
		return nil, Stats{}, err
	}

	contacts, stats, err := im.decode(ctx, reader, src.Label())
	if err != nil {
		return nil, Stats{}, err
	}

	log.Info(config.MsgImportDone,
		slog.Group(config.LogKeyStats,
			slog.Int(config.LogKeyTotal, stats.Cards),
			slog.Int(config.LogKeyImported, stats.Imported),
		),
		config.LogKeyDuration, time.Since(start).Milliseconds(),
	)
	return contacts, stats, nil
}

func (im *Importer) open(ctx context.Context, src Source) (io.ReadCloser, error) {
	switch {
	case src.Path != "":
		return os.Open(src.Path)
	case src.URL != "":
		if im.Fetcher == nil {
			return nil, errors.New(config.ErrFetcherMissing)
		}
		return im.Fetcher.Fetch(ctx, src)
	default:
		return nil, errors.New(config.ErrLocalPathEmpty)
	}
}

func (im *Importer) decode(ctx context.Context, r io.Reader, label string) ([]engine.Contact, Stats, error) {
	now := im.Clock.Now()
	decoder := vcard.NewDecoder(r)

	var stats Stats
	failures := 0
	contacts := make([]engine.Contact, 0)
	for {
		if ctx.Err() != nil {
			return nil, Stats{}, ctx.Err()
		}

		card, err := decoder.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A failing reader keeps returning the same error without
			// advancing, so a run of failures ends the import.
			failures++
			if failures >= config.MaxCardFailures {
				return nil, Stats{}, fmt.Errorf("%s: %w", config.ErrVCardRead, err)
			}
			// A broken card does not stop the rest of the book.
			slog.Warn(config.MsgSkippedCard,
				config.LogKeyComponent, config.CompImporter,
				config.LogKeyError, err)
			stats.Skipped++
			continue
		}
		failures = 0
		stats.Cards++

		c, ok := cardToContact(card, now)
		if !ok {
			stats.Skipped++
			continue
		}
		c.Sources = []string{label}
		contacts = append(contacts, c)
		stats.Imported++
	}
	return contacts, stats, nil
}

// cardToContact maps one vCard. Cards without any usable name are rejected.
func cardToContact(card vcard.Card, now time.Time) (engine.Contact, bool) {
	name := cardName(card)
	if name == "" {
		slog.Debug(config.MsgSkippedCard,
			config.LogKeyComponent, config.CompImporter,
			config.LogKeyValue, card.Value(vcard.FieldUID))
		return engine.Contact{}, false
	}

	c := engine.Contact{
		Name:      name,
		Phone:     card.PreferredValue(vcard.FieldTelephone),
		Frequency: engine.Frequency(config.DefaultFrequency),
	}

	c.ID = card.Value(vcard.FieldUID)
	if c.ID == "" {
		c.ID = uuid.NewSHA1(namespace, []byte(name+config.UIDSeparator+c.Phone)).String()
	}

	if cats := card.Value(vcard.FieldCategories); cats != "" {
		first, _, _ := strings.Cut(cats, ",")
		c.Relationship = strings.TrimSpace(first)
	}

	applyExtensions(&c, card)

	for _, ev := range []struct {
		field string
		kind  engine.SignalType
	}{
		{vcard.FieldBirthday, engine.SignalBirthday},
		{vcard.FieldAnniversary, engine.SignalAnniversary},
	} {
		if sig, ok := dateSignal(card.Value(ev.field), ev.kind, now); ok {
			c.Signals = append(c.Signals, sig)
		}
	}
	return c, true
}

// cardName prefers FN, then the structured N, as most address books fill FN.
func cardName(card vcard.Card) string {
	if fn := strings.TrimSpace(card.PreferredValue(vcard.FieldFormattedName)); fn != "" {
		return fn
	}
	if n := card.Name(); n != nil {
		parts := []string{n.HonorificPrefix, n.GivenName, n.AdditionalName, n.FamilyName, n.HonorificSuffix}
		return strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
	}
	return ""
}

// applyExtensions reads the X-KETCHUP-* properties written by other Ketchup
// installs. Invalid values are ignored.
func applyExtensions(c *engine.Contact, card vcard.Card) {
	skip := func(field, value string) {
		slog.Debug(config.MsgSkippedValue,
			config.LogKeyComponent, config.CompImporter,
			config.LogKeyKey, field,
			config.LogKeyValue, value)
	}

	if v := card.Value(config.VCardXFrequency); v != "" {
		f := engine.Frequency(strings.ToLower(strings.TrimSpace(v)))
		if isKnownFrequency(f) {
			c.Frequency = f
		} else {
			skip(config.VCardXFrequency, v)
		}
	}

	if v := card.Value(config.VCardXInterval); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			c.CustomIntervalDays = n
		} else {
			skip(config.VCardXInterval, v)
		}
	}

	if v := card.Value(config.VCardXAffinity); v != "" {
		if a, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && !math.IsNaN(a) {
			c.Affinity = min(max(a, config.MinAffinity), config.MaxAffinity)
		} else {
			skip(config.VCardXAffinity, v)
		}
	}

	if v := card.Value(config.VCardXLastContacted); v != "" {
		if t, _, err := parseDate(strings.TrimSpace(v)); err == nil {
			c.LastContacted = &t
		} else {
			skip(config.VCardXLastContacted, v)
		}
	}

	if v := card.Value(config.VCardXIncluded); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			c.Included = &b
		} else {
			skip(config.VCardXIncluded, v)
		}
	}

	if c.Frequency != engine.FrequencyCustom {
		c.CustomIntervalDays = 0
	}
}

func isKnownFrequency(f engine.Frequency) bool {
	for _, known := range engine.Frequencies {
		if f == known {
			return true
		}
	}
	return false
}

// dateSignal turns a yearly date (birthday, anniversary) into a signal when
// its next occurrence falls within SignalWindowDays of now.
func dateSignal(value string, kind engine.SignalType, now time.Time) (engine.Signal, bool) {
	if value == "" {
		return engine.Signal{}, false
	}
	date, yearKnown, err := parseDate(value)
	if err != nil {
		slog.Debug(config.MsgSkippedDate,
			config.LogKeyComponent, config.CompImporter,
			config.LogKeyValue, value)
		return engine.Signal{}, false
	}

	next, years := nextOccurrence(now, date, yearKnown)
	horizon := time.Date(now.Year(), now.Month(), now.Day()+config.SignalWindowDays, 0, 0, 0, 0, now.Location())
	if next.After(horizon) {
		return engine.Signal{}, false
	}

	sig := engine.Signal{Type: kind, When: next}
	if yearKnown && years > 0 {
		sig.Note = strconv.Itoa(years)
	}
	return sig, true
}

// nextOccurrence returns the next yearly occurrence of date on or after the
// day of now, and how many years it will have been when yearKnown.
func nextOccurrence(now time.Time, date time.Time, yearKnown bool) (time.Time, int) {
	loc := now.Location()

	// time.Date normalizes Feb 29 to March 1 outside leap years.
	candidate := time.Date(now.Year(), date.Month(), date.Day(), 0, 0, 0, 0, loc)
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	if candidate.Before(todayStart) {
		candidate = time.Date(now.Year()+1, date.Month(), date.Day(), 0, 0, 0, 0, loc)
	}

	years := 0
	if yearKnown {
		years = candidate.Year() - date.Year()
	}
	return candidate, years
}

// parseDate handles the vCard date forms seen in the wild, including the
// truncated --MM-DD form where the year is unknown.
func parseDate(value string) (time.Time, bool, error) {
	formatsWithYear := []string{
		config.DateFormatFullDash,
		config.DateFormatFullBasic,
		config.DateFormatRFC3339,
		config.DateFormatFullT,
	}
	for _, f := range formatsWithYear {
		if t, err := time.Parse(f, value); err == nil {
			return t, true, nil
		}
	}

	formatsWithoutYear := []string{config.DateFormatNoYearD, config.DateFormatNoYearB}
	for _, f := range formatsWithoutYear {
		if t, err := time.Parse(f, value); err == nil {
			return time.Date(config.DefaultLeapYear, t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), false, nil
		}
	}

	return time.Time{}, false, errors.New(config.ErrDateParse)
}
