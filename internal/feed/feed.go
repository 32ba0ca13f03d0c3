package feed

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/emersion/go-ical"
	"github.com/tartampluch/go-ketchup/internal/config"
	"github.com/tartampluch/go-ketchup/internal/engine"
)

// Generator renders the due dates of contacts as an iCalendar feed.
type Generator struct {
	Clock  engine.Clock
	Scorer engine.Scorer

	// ReminderTrigger is an ISO8601 duration relative to the due date, e.g. "PT9H".
	// Empty disables alarms.
	ReminderTrigger string

	// FormatSummary and FormatDescription let callers inject localized strings.
	FormatSummary     func(name string, never bool) string
	FormatDescription func(cadenceDays int) string
}

// Render builds one all-day event per included contact, dated on the day the
// contact becomes due (today for overdue contacts). It returns the encoded
// calendar and the number of events.
func (g *Generator) Render(ctx context.Context, contacts []engine.Contact) ([]byte, int, error) {
	cal := ical.NewCalendar()
	cal.Props.SetText(config.PropVersion, config.ICalVersion)
	cal.Props.SetText(config.PropProdid, config.ICalProdid)
	cal.Props.SetText(config.PropXWRCalName, config.ICalCalName)
	cal.Props.SetText(config.PropCalScale, config.ICalScale)
	cal.Props.SetText(config.PropMethod, config.ICalMethod)

	refreshProp := ical.NewProp(config.PropRefresh)
	refreshProp.SetDuration(config.DefaultICalRefresh)
	cal.Props.Set(refreshProp)

	now := g.Clock.Now()
	dtStampProp := ical.NewProp(config.PropDTStamp)
	dtStampProp.SetDateTime(now.UTC())

	for _, c := range contacts {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		if !c.IsIncluded() {
			continue
		}
		event := g.event(c, now)
		event.Props.Set(dtStampProp)
		cal.Children = append(cal.Children, event.Component)
	}

	count := len(cal.Children)
	if count == 0 {
		g.logSuccess(0)
		return []byte(config.StubVCalendar), 0, nil
	}

	var buf bytes.Buffer
	if err := ical.NewEncoder(&buf).Encode(cal); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", config.ErrICalEncode, err)
	}

	g.logSuccess(count)
	return buf.Bytes(), count, nil
}

func (g *Generator) event(c engine.Contact, now time.Time) *ical.Event {
	due := g.Scorer.DueDate(c, now)
	never := c.LastContacted == nil

	event := ical.NewEvent()
	// The UID carries the due date so clients treat a rescheduled catch-up
	// as a new occurrence.
	event.Props.SetText(config.PropUID, fmt.Sprintf(config.FormatUID, c.ID, due.Format(config.DateFormatFullBasic), config.ICalDomain))

	summary := fallbackSummary(c.Name, never)
	if g.FormatSummary != nil {
		summary = g.FormatSummary(c.Name, never)
	}
	event.Props.SetText(config.PropSummary, summary)

	cadence := g.Scorer.CadenceDays(c)
	description := fmt.Sprintf(config.FallbackDescription, cadence)
	if g.FormatDescription != nil {
		description = g.FormatDescription(cadence)
	}
	event.Props.SetText(config.PropDescription, description)

	if c.Relationship != "" {
		event.Props.SetText(config.PropCategories, c.Relationship)
	}

	dtStartProp := ical.NewProp(config.PropDTStart)
	dtStartProp.SetDate(due)
	event.Props.Set(dtStartProp)

	if g.ReminderTrigger != "" {
		addAlarm(event, g.ReminderTrigger, summary)
	}
	return event
}

func fallbackSummary(name string, never bool) string {
	if never {
		return fmt.Sprintf(config.FallbackSummaryNever, name)
	}
	return fmt.Sprintf(config.FallbackSummary, name)
}

func (g *Generator) logSuccess(events int) {
	slog.Info(config.MsgFeedSuccess,
		config.LogKeyComponent, config.CompFeed,
		config.LogKeyEvents, events,
	)
}

// addAlarm appends a DISPLAY alarm to the event.
func addAlarm(event *ical.Event, trigger, description string) {
	alarm := ical.NewComponent(config.ICalComponent)
	alarm.Props.SetText(config.PropAction, config.ICalAction)
	alarm.Props.SetText(config.PropDescription, description)

	// Set the raw value, SetText would add VALUE=TEXT.
	triggerProp := ical.NewProp(config.PropTrigger)
	triggerProp.Value = trigger
	alarm.Props.Set(triggerProp)

	event.Children = append(event.Children, alarm)
}
