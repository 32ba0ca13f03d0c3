package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tartampluch/go-ketchup/internal/config"
	"github.com/tartampluch/go-ketchup/internal/engine"
	"github.com/tartampluch/go-ketchup/internal/store"
)

var storeNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

type opener func(t *testing.T) store.Repository

func backends() map[string]opener {
	return map[string]opener{
		"json": func(t *testing.T) store.Repository {
			s, err := store.OpenFile(filepath.Join(t.TempDir(), config.StoreFileJSON))
			require.NoError(t, err)
			return s
		},
		"yaml": func(t *testing.T) store.Repository {
			s, err := store.OpenFile(filepath.Join(t.TempDir(), config.StoreFileYAML))
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) store.Repository {
			s, err := store.OpenMemory()
			require.NoError(t, err)
			return s
		},
	}
}

func forEachBackend(t *testing.T, fn func(t *testing.T, repo store.Repository)) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			repo := open(t)
			defer func() { require.NoError(t, repo.Close()) }()
			fn(t, repo)
		})
	}
}

func TestRepository_EmptyStore(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo store.Repository) {
		ctx := context.Background()

		contacts, err := repo.List(ctx)
		require.NoError(t, err)
		assert.NotNil(t, contacts)
		assert.Empty(t, contacts)

		_, err = repo.Get(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)

		touches, err := repo.Touches(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, touches)
	})
}

func TestRepository_RoundTrip(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo store.Repository) {
		ctx := context.Background()
		seeded := store.SeedContacts(storeNow)
		require.NoError(t, repo.SaveAll(ctx, seeded))

		contacts, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, seeded, contacts, "Contacts come back unchanged and in order")

		mom, err := repo.Get(ctx, "1")
		require.NoError(t, err)
		assert.Equal(t, seeded[0], mom)
	})
}

func TestRepository_OptionalFields(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo store.Repository) {
		ctx := context.Background()
		excluded := false
		contacts := []engine.Contact{
			{ID: "bare", Name: "Bare", Frequency: engine.FrequencyMonthly},
			{ID: "custom", Name: "Custom", Frequency: engine.FrequencyCustom, CustomIntervalDays: 45, Affinity: 2.5, Included: &excluded},
		}
		require.NoError(t, repo.SaveAll(ctx, contacts))

		got, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Nil(t, got[0].LastContacted)
		assert.Nil(t, got[0].Included)
		assert.Empty(t, got[0].Signals)
		assert.Equal(t, 45, got[1].CustomIntervalDays)
		assert.False(t, got[1].IsIncluded())
		assert.InDelta(t, 2.5, got[1].Affinity, 1e-9)
	})
}

func TestRepository_Update(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo store.Repository) {
		ctx := context.Background()
		require.NoError(t, repo.SaveAll(ctx, store.SeedContacts(storeNow)))

		mom, err := repo.Get(ctx, "1")
		require.NoError(t, err)
		mom = engine.WithLastContacted(mom, storeNow)
		mom.Signals = nil
		require.NoError(t, repo.Update(ctx, mom))

		got, err := repo.Get(ctx, "1")
		require.NoError(t, err)
		require.NotNil(t, got.LastContacted)
		assert.Equal(t, storeNow, *got.LastContacted)
		assert.Empty(t, got.Signals)

		all, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, "1", all[0].ID, "Update keeps the position")

		err = repo.Update(ctx, engine.Contact{ID: "ghost", Name: "Ghost"})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestRepository_SaveAllReplaces(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo store.Repository) {
		ctx := context.Background()
		seeded := store.SeedContacts(storeNow)
		require.NoError(t, repo.SaveAll(ctx, seeded))
		require.NoError(t, repo.RecordTouch(ctx, store.Touch{ContactID: "1", Action: config.ActionCall, At: storeNow}))
		require.NoError(t, repo.RecordTouch(ctx, store.Touch{ContactID: "2", Action: config.ActionText, At: storeNow}))

		// Keep Mom, drop everyone else, reorder with a newcomer first.
		newcomer := engine.Contact{ID: "8", Name: "Newcomer", Frequency: engine.FrequencyMonthly}
		require.NoError(t, repo.SaveAll(ctx, []engine.Contact{newcomer, seeded[0]}))

		got, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "8", got[0].ID)
		assert.Equal(t, "1", got[1].ID)

		touches, err := repo.Touches(ctx, "")
		require.NoError(t, err)
		require.Len(t, touches, 1, "Touches of removed contacts go with them")
		assert.Equal(t, "1", touches[0].ContactID)
	})
}

func TestRepository_Touches(t *testing.T) {
	forEachBackend(t, func(t *testing.T, repo store.Repository) {
		ctx := context.Background()
		require.NoError(t, repo.SaveAll(ctx, store.SeedContacts(storeNow)))

		require.NoError(t, repo.RecordTouch(ctx, store.Touch{ContactID: "1", Action: config.ActionCall, At: storeNow}))
		require.NoError(t, repo.RecordTouch(ctx, store.Touch{ContactID: "2", Action: config.ActionText, At: storeNow.Add(time.Minute)}))
		require.NoError(t, repo.RecordTouch(ctx, store.Touch{ID: "fixed", ContactID: "1", Action: config.ActionText, At: storeNow.Add(time.Hour)}))

		all, err := repo.Touches(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 3)

		mom, err := repo.Touches(ctx, "1")
		require.NoError(t, err)
		require.Len(t, mom, 2)
		assert.Equal(t, config.ActionCall, mom[0].Action)
		assert.NotEmpty(t, mom[0].ID, "IDs are generated when missing")
		assert.Equal(t, "fixed", mom[1].ID)
		assert.Equal(t, storeNow.Add(time.Hour), mom[1].At)

		got, err := repo.Get(ctx, "1")
		require.NoError(t, err)
		require.NotNil(t, got.LastContacted, "A touch marks the contact as contacted")
		assert.Equal(t, storeNow.Add(time.Hour), *got.LastContacted)

		err = repo.RecordTouch(ctx, store.Touch{ContactID: "ghost", Action: config.ActionCall, At: storeNow})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestFileStore_Permissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", config.StoreFileJSON)
	s, err := store.OpenFile(path)
	require.NoError(t, err)

	require.NoError(t, s.SaveAll(context.Background(), store.SeedContacts(storeNow)))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, config.FilePermUserRW, info.Mode().Perm())
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.StoreFileJSON)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	s, err := store.OpenFile(path)
	require.NoError(t, err)

	_, err = s.List(context.Background())
	assert.ErrorContains(t, err, config.ErrStoreRead)
}

func TestSQLStore_Schema(t *testing.T) {
	s, err := store.OpenMemory()
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	v, err := s.SchemaVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}

func TestSQLStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), config.StoreFileDB)
	s, err := store.OpenSQL(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveAll(context.Background(), store.SeedContacts(storeNow)))
	require.NoError(t, s.Close())

	s, err = store.OpenSQL(path)
	require.NoError(t, err, "Migrations are idempotent")
	defer func() { _ = s.Close() }()

	contacts, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, contacts, 7)
}

func TestOpen_ByKind(t *testing.T) {
	tests := []struct {
		kind    string
		wantErr bool
	}{
		{config.StoreKindFile, false},
		{config.StoreKindYAML, false},
		{config.StoreKindSQLite, false},
		{"redis", true},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			s := config.DefaultSettings()
			s.DataDir = t.TempDir()
			s.StoreKind = tt.kind

			repo, err := store.Open(s)
			if tt.wantErr {
				assert.ErrorContains(t, err, config.ErrStoreUnsupported)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, repo.Close())
		})
	}
}
