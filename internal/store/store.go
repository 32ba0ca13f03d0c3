// Package store persists contacts and the touch log.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tartampluch/go-ketchup/internal/config"
	"github.com/tartampluch/go-ketchup/internal/engine"
)

// ErrNotFound is returned when a contact id is unknown.
var ErrNotFound = errors.New(config.ErrNotFound)

// Touch records one outreach to a contact.
type Touch struct {
	ID        string    `json:"id" yaml:"id"`
	ContactID string    `json:"contactId" yaml:"contactId"`
	Action    string    `json:"action" yaml:"action"`
	At        time.Time `json:"at" yaml:"at"`
}

// Repository is the storage used by the application service. List returns
// contacts in the order they were saved so that ranking ties stay stable.
type Repository interface {
	List(ctx context.Context) ([]engine.Contact, error)
	Get(ctx context.Context, id string) (engine.Contact, error)
	// SaveAll replaces the stored contacts with contacts, keeping the touch
	// log of contacts that survive.
	SaveAll(ctx context.Context, contacts []engine.Contact) error
	// Update overwrites one existing contact.
	Update(ctx context.Context, c engine.Contact) error
	// RecordTouch appends t to the touch log and sets the contact's
	// LastContacted to t.At in the same write.
	RecordTouch(ctx context.Context, t Touch) error
	// Touches lists touches oldest first, for one contact or all when
	// contactID is empty.
	Touches(ctx context.Context, contactID string) ([]Touch, error)
	Close() error
}

// Open returns the repository configured by s.
func Open(s config.Settings) (Repository, error) {
	path := s.StorePath()

	var (
		repo Repository
		err  error
	)
	switch s.StoreKind {
	case config.StoreKindFile, config.StoreKindYAML:
		repo, err = OpenFile(path)
	case config.StoreKindSQLite:
		repo, err = OpenSQL(path)
	default:
		return nil, fmt.Errorf("%s: %q", config.ErrStoreUnsupported, s.StoreKind)
	}
	if err != nil {
		return nil, err
	}

	slog.Debug(config.MsgStoreOpened,
		config.LogKeyComponent, config.CompStore,
		config.LogKeyStore, s.StoreKind,
		config.LogKeyPath, path,
	)
	return repo, nil
}
