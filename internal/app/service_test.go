package app_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tartampluch/go-ketchup/internal/app"
	"github.com/tartampluch/go-ketchup/internal/config"
	"github.com/tartampluch/go-ketchup/internal/engine"
	"github.com/tartampluch/go-ketchup/internal/importer"
	"github.com/tartampluch/go-ketchup/internal/store"
)

var appNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*app.Service, store.Repository) {
	t.Helper()
	repo, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	svc := app.New(app.Options{Repo: repo, Clock: engine.FixedClock(appNow)})
	require.NoError(t, svc.Seed(context.Background()))
	return svc, repo
}

func TestService_Queue(t *testing.T) {
	svc, _ := newService(t)

	ranked, err := svc.Queue(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, ranked, 7)
	assert.Equal(t, "Riya Singh", ranked[0].Contact.Name)
	assert.Equal(t, "Samir Gupta", ranked[6].Contact.Name)

	ranked, err = svc.Queue(context.Background(), "YA")
	require.NoError(t, err)
	var got []string
	for _, r := range ranked {
		got = append(got, r.Contact.Name)
	}
	assert.Equal(t, []string{"Riya Singh", "Priya Patel"}, got)
}

func TestService_SessionFlow(t *testing.T) {
	ctx := context.Background()
	svc, repo := newService(t)

	assert.Equal(t, engine.StateIdle, svc.Snapshot().State)

	view, err := svc.StartSession(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, engine.StateActive, view.State)
	require.NotNil(t, view.Head)
	assert.Equal(t, "Riya Singh", view.Head.Name)
	assert.Equal(t, 7, view.Remaining)
	assert.Len(t, view.UpNext, config.DefaultUpNext)
	assert.Equal(t, "Jordan Lee", view.UpNext[0].Name)

	view, err = svc.Pick(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.StateAwaitingAction, view.State)
	assert.Nil(t, view.Head)
	require.NotNil(t, view.Picked)
	assert.Equal(t, "7", view.Picked.ID)
	require.NotNil(t, view.Links)
	assert.Equal(t, "tel:+14155550555", view.Links.Tel)
	assert.True(t, strings.HasPrefix(view.Links.SMS, "sms:+14155550555?&body=Hey!%20"))

	view, err = svc.Resolve(ctx, config.ActionCall)
	require.NoError(t, err)
	assert.Equal(t, engine.StateActive, view.State)
	assert.Equal(t, "Jordan Lee", view.Head.Name)
	assert.Nil(t, view.Picked)

	riya, err := repo.Get(ctx, "7")
	require.NoError(t, err)
	require.NotNil(t, riya.LastContacted)
	assert.Equal(t, appNow, *riya.LastContacted)

	touches, err := svc.Touches(ctx, "7")
	require.NoError(t, err)
	require.Len(t, touches, 1)
	assert.Equal(t, config.ActionCall, touches[0].Action)

	// The running session is a snapshot, a new one reflects the touch.
	ranked, err := svc.Queue(ctx, "")
	require.NoError(t, err)
	assert.NotEqual(t, "Riya Singh", ranked[0].Contact.Name)
}

func TestService_DeferAndCancel(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.Defer(ctx)
	assert.ErrorIs(t, err, engine.ErrInvalidTransition)

	_, err = svc.StartSession(ctx, "")
	require.NoError(t, err)

	view, err := svc.Defer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Jordan Lee", view.Head.Name)
	assert.Equal(t, 6, view.Remaining)

	_, err = svc.Pick(ctx)
	require.NoError(t, err)
	view, err = svc.CancelPick(ctx)
	require.NoError(t, err)
	assert.Equal(t, engine.StateActive, view.State)
	assert.Equal(t, "Jordan Lee", view.Head.Name)
	assert.Equal(t, 6, view.Remaining)
}

func TestService_ResolveActions(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	_, err := svc.StartSession(ctx, "mom")
	require.NoError(t, err)
	_, err = svc.Pick(ctx)
	require.NoError(t, err)

	view, err := svc.Resolve(ctx, "email")
	assert.ErrorIs(t, err, app.ErrUnknownAction)
	assert.Equal(t, engine.StateAwaitingAction, view.State, "Unknown actions leave the pick pending")

	view, err = svc.Resolve(ctx, config.ActionNone)
	require.NoError(t, err)
	assert.Equal(t, engine.StateEmpty, view.State)
	assert.NotNil(t, view.UpNext)

	touches, err := svc.Touches(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, touches, "Dismissing records nothing")

	_, err = svc.Resolve(ctx, config.ActionText)
	assert.ErrorIs(t, err, engine.ErrInvalidTransition)
}

func TestService_UpdateContact(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	custom := engine.FrequencyCustom
	days := 12
	affinity := 42.0
	off := false

	c, err := svc.UpdateContact(ctx, "1", app.ContactPatch{Frequency: &custom, CustomIntervalDays: &days, Affinity: &affinity})
	require.NoError(t, err)
	assert.Equal(t, engine.FrequencyCustom, c.Frequency)
	assert.Equal(t, 12, c.CustomIntervalDays)
	assert.Equal(t, 10.0, c.Affinity, "Affinity is clamped")

	_, err = svc.UpdateContact(ctx, "1", app.ContactPatch{Included: &off})
	require.NoError(t, err)

	stored, err := svc.Contact(ctx, "1")
	require.NoError(t, err)
	assert.False(t, stored.IsIncluded())
	assert.Equal(t, 12, stored.CustomIntervalDays, "Earlier edits are kept")

	ranked, err := svc.Queue(ctx, "mom")
	require.NoError(t, err)
	assert.Empty(t, ranked, "Excluded contacts leave the queue")

	_, err = svc.UpdateContact(ctx, "nope", app.ContactPatch{Included: &off})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestService_ImportMerges(t *testing.T) {
	ctx := context.Background()
	svc, _ := newService(t)

	book := "BEGIN:VCARD\nVERSION:3.0\nUID:1\nFN:Mother\nTEL:+14155550100\nX-KETCHUP-FREQUENCY:yearly\nEND:VCARD\n" +
		"BEGIN:VCARD\nVERSION:3.0\nUID:new-1\nFN:Casey Park\nCATEGORIES:Friend\nEND:VCARD\n"
	path := filepath.Join(t.TempDir(), "book.vcf")
	require.NoError(t, os.WriteFile(path, []byte(book), 0600))

	stats, err := svc.Import(ctx, importer.Source{Path: path})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Imported)

	contacts, err := svc.Contacts(ctx)
	require.NoError(t, err)
	require.Len(t, contacts, 8)
	assert.Equal(t, "Casey Park", contacts[7].Name, "New contacts are appended")

	mom := contacts[0]
	assert.Equal(t, "Mother", mom.Name)
	assert.Equal(t, "+14155550100", mom.Phone)
	assert.Equal(t, "Family", mom.Relationship, "Empty categories keep the relationship")
	assert.Equal(t, engine.FrequencyWeekly, mom.Frequency, "Local cadence wins")
	assert.Equal(t, 10.0, mom.Affinity)
	require.NotNil(t, mom.LastContacted)
	assert.Empty(t, mom.Signals, "Signals follow the address book")
	assert.Equal(t, []string{config.SourceVCard}, mom.Sources)
}

func TestService_RenderFeed(t *testing.T) {
	svc, _ := newService(t)

	ics, count, err := svc.RenderFeed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, count)
	assert.Contains(t, string(ics), "SUMMARY:Catch up with Riya Singh")
}

type capturePublisher struct {
	mu      sync.Mutex
	updates [][]byte
	events  []int
}

func (p *capturePublisher) Update(data []byte, events int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updates = append(p.updates, data)
	p.events = append(p.events, events)
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.updates)
}

func TestWorker_RefreshAndTrigger(t *testing.T) {
	svc, _ := newService(t)
	pub := &capturePublisher{}
	w := app.NewWorker(svc, pub, importer.Source{}, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	require.Eventually(t, func() bool { return pub.count() == 1 }, 2*time.Second, 10*time.Millisecond,
		"Run publishes immediately")

	w.Trigger()
	require.Eventually(t, func() bool { return pub.count() == 2 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Worker did not stop")
	}

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Contains(t, string(pub.updates[0]), "BEGIN:VCALENDAR")
	assert.Equal(t, 7, pub.events[0], "The feed's event count travels with it")
}

func TestWorker_ImportFailureKeepsPublishing(t *testing.T) {
	svc, _ := newService(t)
	pub := &capturePublisher{}
	w := app.NewWorker(svc, pub, importer.Source{Path: filepath.Join(t.TempDir(), "missing.vcf")}, 0)
	assert.Equal(t, config.DefaultRefreshMin*time.Minute, w.Interval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	require.Eventually(t, func() bool { return pub.count() >= 1 }, 2*time.Second, 10*time.Millisecond)
}

// pausingRepo holds the next List call after arm until release is closed,
// leaving a window between an import's read and its write.
type pausingRepo struct {
	store.Repository
	armed   atomic.Bool
	listed  chan struct{}
	release chan struct{}
}

func (r *pausingRepo) List(ctx context.Context) ([]engine.Contact, error) {
	if r.armed.CompareAndSwap(true, false) {
		close(r.listed)
		<-r.release
	}
	return r.Repository.List(ctx)
}

func TestService_ImportKeepsConcurrentTouch(t *testing.T) {
	ctx := context.Background()
	base, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = base.Close() })

	repo := &pausingRepo{Repository: base, listed: make(chan struct{}), release: make(chan struct{})}
	svc := app.New(app.Options{Repo: repo, Clock: engine.FixedClock(appNow)})
	require.NoError(t, svc.Seed(ctx))

	_, err = svc.StartSession(ctx, "")
	require.NoError(t, err)
	view, err := svc.Pick(ctx)
	require.NoError(t, err)
	require.Equal(t, "7", view.Picked.ID)

	book := "BEGIN:VCARD\nVERSION:3.0\nUID:new-1\nFN:Casey Park\nEND:VCARD\n"
	path := filepath.Join(t.TempDir(), "book.vcf")
	require.NoError(t, os.WriteFile(path, []byte(book), 0600))

	repo.armed.Store(true)
	imported := make(chan error, 1)
	go func() {
		_, err := svc.Import(ctx, importer.Source{Path: path})
		imported <- err
	}()
	<-repo.listed

	// Resolve while the import sits between reading and writing the store.
	resolved := make(chan error, 1)
	go func() {
		_, err := svc.Resolve(ctx, config.ActionCall)
		resolved <- err
	}()

	var resolveErr error
	done := false
	select {
	case resolveErr = <-resolved:
		done = true
	case <-time.After(100 * time.Millisecond):
	}
	close(repo.release)

	require.NoError(t, <-imported)
	if !done {
		resolveErr = <-resolved
	}
	require.NoError(t, resolveErr)

	riya, err := base.Get(ctx, "7")
	require.NoError(t, err)
	require.NotNil(t, riya.LastContacted)
	assert.Equal(t, appNow, *riya.LastContacted, "The import must not write back the pre-touch contact")

	contacts, err := svc.Contacts(ctx)
	require.NoError(t, err)
	assert.Len(t, contacts, 8)
}

// failingTouchRepo rejects every touch write.
type failingTouchRepo struct {
	store.Repository
}

var errDiskFull = errors.New("disk full")

func (failingTouchRepo) RecordTouch(context.Context, store.Touch) error {
	return errDiskFull
}

func TestService_ResolveKeepsPickWhenTouchFails(t *testing.T) {
	ctx := context.Background()
	base, err := store.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = base.Close() })

	svc := app.New(app.Options{Repo: failingTouchRepo{base}, Clock: engine.FixedClock(appNow)})
	require.NoError(t, svc.Seed(ctx))

	_, err = svc.StartSession(ctx, "")
	require.NoError(t, err)
	_, err = svc.Pick(ctx)
	require.NoError(t, err)

	view, err := svc.Resolve(ctx, config.ActionCall)
	require.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, engine.StateAwaitingAction, view.State)
	require.NotNil(t, view.Picked)
	assert.Equal(t, "7", view.Picked.ID)
	assert.Equal(t, 6, view.Remaining)

	riya, err := base.Get(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, appNow.AddDate(0, 0, -400), *riya.LastContacted, "Nothing is written on failure")

	// Dismissing does not touch the store and still works.
	view, err = svc.Resolve(ctx, config.ActionNone)
	require.NoError(t, err)
	assert.Equal(t, engine.StateActive, view.State)
	assert.Equal(t, "Jordan Lee", view.Head.Name)
}
