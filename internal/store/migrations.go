package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tartampluch/go-ketchup/internal/config"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "contacts: people tracked for outreach",
		SQL: `
CREATE TABLE contacts (
    id                   TEXT PRIMARY KEY,
    position             INTEGER NOT NULL,
    name                 TEXT NOT NULL,
    relationship         TEXT NOT NULL DEFAULT '',
    phone                TEXT NOT NULL DEFAULT '',
    frequency            TEXT NOT NULL,
    custom_interval_days INTEGER NOT NULL DEFAULT 0,
    last_contacted       INTEGER,
    affinity             REAL NOT NULL DEFAULT 0,
    included             INTEGER,
    sources              TEXT NOT NULL DEFAULT '[]'
);

CREATE INDEX idx_contacts_position ON contacts(position);
`,
	},
	{
		Version:     2,
		Description: "signals: life events attached to contacts",
		SQL: `
CREATE TABLE signals (
    contact_id TEXT NOT NULL,
    position   INTEGER NOT NULL,
    type       TEXT NOT NULL,
    when_ts    INTEGER NOT NULL,
    note       TEXT NOT NULL DEFAULT '',
    PRIMARY KEY (contact_id, position),
    FOREIGN KEY (contact_id) REFERENCES contacts(id) ON DELETE CASCADE
);
`,
	},
	{
		Version:     3,
		Description: "touches: outreach log",
		SQL: `
CREATE TABLE touches (
    id         TEXT PRIMARY KEY,
    contact_id TEXT NOT NULL,
    action     TEXT NOT NULL CHECK (action IN ('call', 'text', 'none')),
    at         INTEGER NOT NULL,
    FOREIGN KEY (contact_id) REFERENCES contacts(id) ON DELETE CASCADE
);

CREATE INDEX idx_touches_contact ON touches(contact_id, at);
`,
	},
}

func (s *SQLStore) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
		slog.Debug(config.MsgMigration,
			config.LogKeyComponent, config.CompStore,
			config.LogKeyVersion, m.Version,
		)
	}
	return nil
}

// SchemaVersion returns the current schema version.
func (s *SQLStore) SchemaVersion(ctx context.Context) (int, error) {
	var version int
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
