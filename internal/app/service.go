// Package app wires the engine to storage, importers and the feed. It is
// the single entry point used by the CLI and the HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tartampluch/go-ketchup/internal/config"
	"github.com/tartampluch/go-ketchup/internal/engine"
	"github.com/tartampluch/go-ketchup/internal/feed"
	"github.com/tartampluch/go-ketchup/internal/importer"
	"github.com/tartampluch/go-ketchup/internal/locale"
	"github.com/tartampluch/go-ketchup/internal/outreach"
	"github.com/tartampluch/go-ketchup/internal/store"
)

// ErrUnknownAction is returned by Resolve for an action it does not know.
var ErrUnknownAction = errors.New(config.ErrUnknownAction)

// Options configures a Service. Repo is required, the rest have defaults.
type Options struct {
	Repo       store.Repository
	Scorer     engine.Scorer
	Clock      engine.Clock
	Importer   *importer.Importer
	Translator *locale.Translator
	// ReminderTrigger is passed to the feed generator, empty disables alarms.
	ReminderTrigger string
}

// Service owns the contact list and the current catch-up session.
// It is safe for concurrent use.
type Service struct {
	repo       store.Repository
	scorer     engine.Scorer
	clock      engine.Clock
	importer   *importer.Importer
	translator *locale.Translator
	feed       *feed.Generator

	mu      sync.Mutex
	session *engine.Session
	query   string

	// storeMu guards read-modify-write sequences on repo so that a
	// background import cannot write back a stale copy of a contact that
	// was just touched or edited. When both locks are held, mu comes first.
	storeMu sync.Mutex
}

// New returns a Service for opts.
func New(opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = engine.RealClock{}
	}
	if opts.Scorer.Cadences == nil {
		opts.Scorer = engine.DefaultScorer()
	}
	if opts.Translator == nil {
		opts.Translator = locale.New(config.DefaultLanguage)
	}
	if opts.Importer == nil {
		opts.Importer = &importer.Importer{Fetcher: importer.NewHTTPFetcher()}
	}
	if opts.Importer.Clock == nil {
		opts.Importer.Clock = opts.Clock
	}

	s := &Service{
		repo:       opts.Repo,
		scorer:     opts.Scorer,
		clock:      opts.Clock,
		importer:   opts.Importer,
		translator: opts.Translator,
		feed: &feed.Generator{
			Clock:             opts.Clock,
			Scorer:            opts.Scorer,
			ReminderTrigger:   opts.ReminderTrigger,
			FormatSummary:     opts.Translator.Summary,
			FormatDescription: opts.Translator.Description,
		},
	}
	s.session = s.newSession()
	return s
}

func (s *Service) newSession() *engine.Session {
	sess := engine.NewSession(s.scorer)
	sess.OnPick = func(c engine.Contact) {
		slog.Debug(config.MsgSessionEvent,
			config.LogKeyComponent, config.CompService,
			config.LogKeyState, engine.StateAwaitingAction,
			config.LogKeyContactID, c.ID,
		)
	}
	return sess
}

// Translator returns the translator used for user-facing text.
func (s *Service) Translator() *locale.Translator { return s.translator }

// Clock is the time source every ranking and touch uses.
func (s *Service) Clock() engine.Clock { return s.clock }

// Contacts returns every stored contact in store order.
func (s *Service) Contacts(ctx context.Context) ([]engine.Contact, error) {
	return s.repo.List(ctx)
}

// Contact returns one contact.
func (s *Service) Contact(ctx context.Context, id string) (engine.Contact, error) {
	return s.repo.Get(ctx, id)
}

// Queue ranks the included contacts whose name matches query.
func (s *Service) Queue(ctx context.Context, query string) ([]engine.Ranked, error) {
	contacts, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return s.scorer.Rank(contacts, engine.NameFilter(query), s.clock.Now()), nil
}

// ContactPatch lists the user-editable fields of a contact. Nil fields are
// left untouched.
type ContactPatch struct {
	Frequency          *engine.Frequency `json:"frequency,omitempty"`
	CustomIntervalDays *int              `json:"customIntervalDays,omitempty"`
	Affinity           *float64          `json:"affinity,omitempty"`
	Included           *bool             `json:"included,omitempty"`
}

// UpdateContact applies p to the contact id and stores it.
func (s *Service) UpdateContact(ctx context.Context, id string, p ContactPatch) (engine.Contact, error) {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return engine.Contact{}, err
	}

	if p.Frequency != nil || p.CustomIntervalDays != nil {
		f := c.Frequency
		if p.Frequency != nil {
			f = *p.Frequency
		}
		days := 0
		if p.CustomIntervalDays != nil {
			days = *p.CustomIntervalDays
		}
		c = engine.WithFrequency(c, f, days)
	}
	if p.Affinity != nil {
		c.Affinity = min(max(*p.Affinity, config.MinAffinity), config.MaxAffinity)
	}
	if p.Included != nil {
		c = engine.WithIncluded(c, *p.Included)
	}

	if err := s.repo.Update(ctx, c); err != nil {
		return engine.Contact{}, err
	}
	return c, nil
}

// Touches returns the outreach log of one contact, or of everyone when id is empty.
func (s *Service) Touches(ctx context.Context, id string) ([]store.Touch, error) {
	return s.repo.Touches(ctx, id)
}

// Seed replaces the stored contacts with the demo address book.
func (s *Service) Seed(ctx context.Context) error {
	seeded := store.SeedContacts(s.clock.Now())

	s.storeMu.Lock()
	defer s.storeMu.Unlock()
	if err := s.repo.SaveAll(ctx, seeded); err != nil {
		return err
	}
	slog.Info(config.MsgSeeded,
		config.LogKeyComponent, config.CompService,
		config.LogKeyCount, len(seeded),
	)
	return nil
}

// Import reads src and merges it into the store. Contacts are matched by ID:
// the address book refreshes name, phone, relationship, signals and sources,
// while the locally tracked last contact, cadence, affinity and include flag
// are kept. Contacts missing from src are left alone.
func (s *Service) Import(ctx context.Context, src importer.Source) (importer.Stats, error) {
	imported, stats, err := s.importer.Import(ctx, src)
	if err != nil {
		return stats, err
	}

	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	existing, err := s.repo.List(ctx)
	if err != nil {
		return stats, err
	}

	if err := s.repo.SaveAll(ctx, merge(existing, imported)); err != nil {
		return stats, err
	}
	return stats, nil
}

func merge(existing, imported []engine.Contact) []engine.Contact {
	index := make(map[string]int, len(existing))
	out := make([]engine.Contact, 0, len(existing)+len(imported))
	for _, c := range existing {
		index[c.ID] = len(out)
		out = append(out, c)
	}

	for _, in := range imported {
		i, ok := index[in.ID]
		if !ok {
			index[in.ID] = len(out)
			out = append(out, in)
			continue
		}
		cur := out[i]
		cur.Name = in.Name
		cur.Phone = in.Phone
		if in.Relationship != "" {
			cur.Relationship = in.Relationship
		}
		cur.Signals = in.Signals
		cur.Sources = in.Sources
		if cur.LastContacted == nil {
			cur.LastContacted = in.LastContacted
		}
		out[i] = cur
	}
	return out
}

// RenderFeed renders the due-date calendar of every stored contact.
func (s *Service) RenderFeed(ctx context.Context) ([]byte, int, error) {
	contacts, err := s.repo.List(ctx)
	if err != nil {
		return nil, 0, err
	}
	return s.feed.Render(ctx, contacts)
}

// SessionView is a snapshot of the session for display.
type SessionView struct {
	State     engine.State     `json:"state"`
	Query     string           `json:"query,omitempty"`
	Head      *engine.Contact  `json:"head,omitempty"`
	Picked    *engine.Contact  `json:"picked,omitempty"`
	Remaining int              `json:"remaining"`
	UpNext    []engine.Contact `json:"upNext"`
	Links     *Links           `json:"links,omitempty"`
}

// Links are the outreach links of the picked contact.
type Links struct {
	Tel string `json:"tel,omitempty"`
	SMS string `json:"sms,omitempty"`
}

// StartSession snapshots a fresh queue, filtered by query, and replaces any
// running session.
func (s *Service) StartSession(ctx context.Context, query string) (SessionView, error) {
	contacts, err := s.repo.List(ctx)
	if err != nil {
		return SessionView{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.session.Start(contacts, engine.NameFilter(query), s.clock.Now())
	s.query = query
	slog.Info(config.MsgSessionStarted,
		config.LogKeyComponent, config.CompService,
		config.LogKeyState, state,
		config.LogKeyQuery, query,
		config.LogKeyCount, s.session.Len(),
	)
	return s.view(), nil
}

// Defer moves the head of the queue out of this session.
func (s *Service) Defer(ctx context.Context) (SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.session.Defer(); err != nil {
		return s.view(), err
	}
	s.logTransition()
	return s.view(), nil
}

// Pick selects the head of the queue for outreach.
func (s *Service) Pick(ctx context.Context) (SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.session.Pick(); err != nil {
		return s.view(), err
	}
	return s.view(), nil
}

// CancelPick puts the picked contact back at the head of the queue.
func (s *Service) CancelPick(ctx context.Context) (SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.session.CancelPick(); err != nil {
		return s.view(), err
	}
	s.logTransition()
	return s.view(), nil
}

// Resolve closes the pending pick. Call and text record a touch, which also
// marks the contact as contacted now. None only dismisses it. The pick stays
// pending when the touch cannot be saved.
func (s *Service) Resolve(ctx context.Context, action string) (SessionView, error) {
	switch action {
	case config.ActionCall, config.ActionText, config.ActionNone:
	default:
		return s.Snapshot(), fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	picked, ok := s.session.CurrentPicked()
	if ok && action != config.ActionNone {
		if err := s.recordTouch(ctx, picked.ID, action); err != nil {
			return s.view(), err
		}
	}

	if _, err := s.session.ResolveAction(); err != nil {
		return s.view(), err
	}
	s.logTransition()
	return s.view(), nil
}

func (s *Service) recordTouch(ctx context.Context, id, action string) error {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	touch := store.Touch{ContactID: id, Action: action, At: s.clock.Now()}
	if err := s.repo.RecordTouch(ctx, touch); err != nil {
		return err
	}

	slog.Info(config.MsgTouchRecorded,
		config.LogKeyComponent, config.CompService,
		config.LogKeyContactID, id,
		config.LogKeyAction, action,
	)
	return nil
}

// Snapshot returns the current session view.
func (s *Service) Snapshot() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view()
}

func (s *Service) logTransition() {
	slog.Debug(config.MsgSessionEvent,
		config.LogKeyComponent, config.CompService,
		config.LogKeyState, s.session.State(),
		config.LogKeyCount, s.session.Len(),
	)
}

// view must be called with mu held.
func (s *Service) view() SessionView {
	v := SessionView{
		State:     s.session.State(),
		Query:     s.query,
		Remaining: s.session.Len(),
	}

	if head, ok := s.session.CurrentHead(); ok {
		v.Head = &head
	}
	if picked, ok := s.session.CurrentPicked(); ok {
		v.Picked = &picked
		v.Links = &Links{
			Tel: outreach.TelHref(picked.Phone),
			SMS: outreach.SMSHref(picked.Phone, s.translator.Msg(config.TKeySMSBody, nil)),
		}
	}

	remaining := s.session.Remaining()
	if v.Head != nil && len(remaining) > 0 {
		remaining = remaining[1:]
	}
	v.UpNext = remaining[:min(len(remaining), config.DefaultUpNext)]
	return v
}
