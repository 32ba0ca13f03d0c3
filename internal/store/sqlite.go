package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/tartampluch/go-ketchup/internal/config"
	"github.com/tartampluch/go-ketchup/internal/engine"
	_ "modernc.org/sqlite"
)

// SQLStore keeps contacts, signals and touches in SQLite. Times are stored
// as Unix milliseconds in UTC.
type SQLStore struct {
	db   *sql.DB
	Path string
}

// OpenSQL opens (or creates) the database at path and runs migrations.
func OpenSQL(path string) (*SQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), config.DirPermUserRWX); err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrStoreOpen, err)
	}
	return openSQL(path)
}

// OpenMemory opens an in-memory database, mostly for tests.
func OpenMemory() (*SQLStore, error) {
	return openSQL(config.SQLiteMemory)
}

func openSQL(path string) (*SQLStore, error) {
	db, err := sql.Open(config.SQLiteDriver, path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrStoreOpen, err)
	}
	// A single connection serializes writers and keeps :memory: databases
	// from splitting across the pool.
	db.SetMaxOpenConns(1)

	s := &SQLStore{db: db, Path: path}
	ctx := context.Background()
	if err := s.configurePragmas(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: %w", config.ErrMigrate, err)
	}
	return s, nil
}

func (s *SQLStore) configurePragmas(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

const contactColumns = `id, name, relationship, phone, frequency, custom_interval_days,
	last_contacted, affinity, included, sources`

func (s *SQLStore) List(ctx context.Context) ([]engine.Contact, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+contactColumns+` FROM contacts ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrStoreRead, err)
	}
	defer func() { _ = rows.Close() }()

	contacts := make([]engine.Contact, 0)
	index := make(map[string]int)
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		index[c.ID] = len(contacts)
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrStoreRead, err)
	}

	sigRows, err := s.db.QueryContext(ctx, `SELECT contact_id, type, when_ts, note FROM signals ORDER BY contact_id, position`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrStoreRead, err)
	}
	defer func() { _ = sigRows.Close() }()

	for sigRows.Next() {
		var (
			contactID string
			sig       engine.Signal
			when      int64
		)
		if err := sigRows.Scan(&contactID, &sig.Type, &when, &sig.Note); err != nil {
			return nil, fmt.Errorf("%s: %w", config.ErrStoreRead, err)
		}
		sig.When = fromMillis(when)
		if i, ok := index[contactID]; ok {
			contacts[i].Signals = append(contacts[i].Signals, sig)
		}
	}
	if err := sigRows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrStoreRead, err)
	}
	return contacts, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (engine.Contact, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+contactColumns+` FROM contacts WHERE id = ?`, id)
	c, err := scanContact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.Contact{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return engine.Contact{}, err
	}

	c.Signals, err = s.signals(ctx, id)
	if err != nil {
		return engine.Contact{}, err
	}
	return c, nil
}

func (s *SQLStore) signals(ctx context.Context, contactID string) ([]engine.Signal, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT type, when_ts, note FROM signals WHERE contact_id = ? ORDER BY position`, contactID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrStoreRead, err)
	}
	defer func() { _ = rows.Close() }()

	var out []engine.Signal
	for rows.Next() {
		var (
			sig  engine.Signal
			when int64
		)
		if err := rows.Scan(&sig.Type, &when, &sig.Note); err != nil {
			return nil, fmt.Errorf("%s: %w", config.ErrStoreRead, err)
		}
		sig.When = fromMillis(when)
		out = append(out, sig)
	}
	return out, rows.Err()
}

func (s *SQLStore) SaveAll(ctx context.Context, contacts []engine.Contact) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", config.ErrStoreWrite, err)
	}
	defer func() { _ = tx.Rollback() }()

	// Drop contacts that are gone first, their touches cascade.
	kept := make(map[string]bool, len(contacts))
	for _, c := range contacts {
		kept[c.ID] = true
	}
	existing, err := existingIDs(ctx, tx)
	if err != nil {
		return err
	}
	for _, id := range existing {
		if kept[id] {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM contacts WHERE id = ?`, id); err != nil {
			return fmt.Errorf("%s: %w", config.ErrStoreWrite, err)
		}
	}

	for pos, c := range contacts {
		if err := upsertContact(ctx, tx, c, pos); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", config.ErrStoreWrite, err)
	}
	return nil
}

func (s *SQLStore) Update(ctx context.Context, c engine.Contact) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", config.ErrStoreWrite, err)
	}
	defer func() { _ = tx.Rollback() }()

	var pos int
	err = tx.QueryRowContext(ctx, `SELECT position FROM contacts WHERE id = ?`, c.ID).Scan(&pos)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, c.ID)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", config.ErrStoreRead, err)
	}

	if err := upsertContact(ctx, tx, c, pos); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", config.ErrStoreWrite, err)
	}
	return nil
}

func (s *SQLStore) RecordTouch(ctx context.Context, t Touch) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", config.ErrStoreWrite, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`UPDATE contacts SET last_contacted = ? WHERE id = ?`,
		toMillis(t.At), t.ContactID,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", config.ErrStoreWrite, err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("%s: %w", config.ErrStoreWrite, err)
	} else if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, t.ContactID)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO touches (id, contact_id, action, at) VALUES (?, ?, ?, ?)`,
		t.ID, t.ContactID, t.Action, toMillis(t.At),
	)
	if err != nil {
		return fmt.Errorf("%s: %w", config.ErrStoreWrite, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%s: %w", config.ErrStoreWrite, err)
	}
	return nil
}

func (s *SQLStore) Touches(ctx context.Context, contactID string) ([]Touch, error) {
	query := `SELECT id, contact_id, action, at FROM touches`
	var args []any
	if contactID != "" {
		query += ` WHERE contact_id = ?`
		args = append(args, contactID)
	}
	query += ` ORDER BY at, rowid`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrStoreRead, err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]Touch, 0)
	for rows.Next() {
		var (
			t  Touch
			at int64
		)
		if err := rows.Scan(&t.ID, &t.ContactID, &t.Action, &at); err != nil {
			return nil, fmt.Errorf("%s: %w", config.ErrStoreRead, err)
		}
		t.At = fromMillis(at)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContact(row scanner) (engine.Contact, error) {
	var (
		c        engine.Contact
		last     sql.NullInt64
		included sql.NullBool
		sources  string
	)
	err := row.Scan(&c.ID, &c.Name, &c.Relationship, &c.Phone, &c.Frequency,
		&c.CustomIntervalDays, &last, &c.Affinity, &included, &sources)
	if errors.Is(err, sql.ErrNoRows) {
		return c, err
	}
	if err != nil {
		return c, fmt.Errorf("%s: %w", config.ErrStoreRead, err)
	}

	if last.Valid {
		t := fromMillis(last.Int64)
		c.LastContacted = &t
	}
	if included.Valid {
		b := included.Bool
		c.Included = &b
	}
	if err := json.Unmarshal([]byte(sources), &c.Sources); err != nil {
		return c, fmt.Errorf("%s: %w", config.ErrStoreRead, err)
	}
	if len(c.Sources) == 0 {
		c.Sources = nil
	}
	return c, nil
}

func existingIDs(ctx context.Context, tx *sql.Tx) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `SELECT id FROM contacts`)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrStoreRead, err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("%s: %w", config.ErrStoreRead, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func upsertContact(ctx context.Context, tx *sql.Tx, c engine.Contact, pos int) error {
	var last sql.NullInt64
	if c.LastContacted != nil {
		last = sql.NullInt64{Int64: toMillis(*c.LastContacted), Valid: true}
	}
	var included sql.NullBool
	if c.Included != nil {
		included = sql.NullBool{Bool: *c.Included, Valid: true}
	}
	sources := c.Sources
	if sources == nil {
		sources = []string{}
	}
	encoded, err := json.Marshal(sources)
	if err != nil {
		return fmt.Errorf("%s: %w", config.ErrStoreWrite, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO contacts (`+contactColumns+`, position)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			relationship = excluded.relationship,
			phone = excluded.phone,
			frequency = excluded.frequency,
			custom_interval_days = excluded.custom_interval_days,
			last_contacted = excluded.last_contacted,
			affinity = excluded.affinity,
			included = excluded.included,
			sources = excluded.sources,
			position = excluded.position
	`, c.ID, c.Name, c.Relationship, c.Phone, string(c.Frequency), c.CustomIntervalDays,
		last, c.Affinity, included, string(encoded), pos)
	if err != nil {
		return fmt.Errorf("%s: %w", config.ErrStoreWrite, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM signals WHERE contact_id = ?`, c.ID); err != nil {
		return fmt.Errorf("%s: %w", config.ErrStoreWrite, err)
	}
	for i, sig := range c.Signals {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO signals (contact_id, position, type, when_ts, note) VALUES (?, ?, ?, ?, ?)`,
			c.ID, i, string(sig.Type), toMillis(sig.When), sig.Note,
		); err != nil {
			return fmt.Errorf("%s: %w", config.ErrStoreWrite, err)
		}
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
