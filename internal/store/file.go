package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tartampluch/go-ketchup/internal/config"
	"github.com/tartampluch/go-ketchup/internal/engine"
	"gopkg.in/yaml.v3"
)

// document is the on-disk layout of a FileStore.
type document struct {
	Contacts []engine.Contact `json:"contacts" yaml:"contacts"`
	Touches  []Touch          `json:"touches,omitempty" yaml:"touches,omitempty"`
}

// FileStore keeps everything in a single JSON or YAML file, chosen by the
// file extension. Every write replaces the file atomically.
type FileStore struct {
	mu   sync.Mutex
	path string
	yaml bool
}

// OpenFile opens (or prepares) the store at path. The file is created on the
// first write.
func OpenFile(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), config.DirPermUserRWX); err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrStoreOpen, err)
	}
	ext := strings.ToLower(filepath.Ext(path))
	return &FileStore{
		path: path,
		yaml: ext == config.ExtYAML || ext == config.ExtYML,
	}, nil
}

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) List(ctx context.Context) ([]engine.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	if doc.Contacts == nil {
		return []engine.Contact{}, nil
	}
	return doc.Contacts, nil
}

func (s *FileStore) Get(ctx context.Context, id string) (engine.Contact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return engine.Contact{}, err
	}
	i := doc.index(id)
	if i < 0 {
		return engine.Contact{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return doc.Contacts[i], nil
}

func (s *FileStore) SaveAll(ctx context.Context, contacts []engine.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}

	kept := make(map[string]bool, len(contacts))
	doc.Contacts = make([]engine.Contact, 0, len(contacts))
	for _, c := range contacts {
		kept[c.ID] = true
		doc.Contacts = append(doc.Contacts, c.Clone())
	}

	touches := doc.Touches[:0]
	for _, t := range doc.Touches {
		if kept[t.ContactID] {
			touches = append(touches, t)
		}
	}
	doc.Touches = touches

	return s.save(doc)
}

func (s *FileStore) Update(ctx context.Context, c engine.Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	i := doc.index(c.ID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, c.ID)
	}
	doc.Contacts[i] = c.Clone()
	return s.save(doc)
}

func (s *FileStore) RecordTouch(ctx context.Context, t Touch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	i := doc.index(t.ContactID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, t.ContactID)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	doc.Contacts[i] = engine.WithLastContacted(doc.Contacts[i], t.At)
	doc.Touches = append(doc.Touches, t)
	return s.save(doc)
}

func (s *FileStore) Touches(ctx context.Context, contactID string) ([]Touch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	out := make([]Touch, 0, len(doc.Touches))
	for _, t := range doc.Touches {
		if contactID == "" || t.ContactID == contactID {
			out = append(out, t)
		}
	}
	return out, nil
}

// Close is a no-op, every operation opens the file itself.
func (s *FileStore) Close() error { return nil }

func (s *FileStore) load() (document, error) {
	var doc document
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, fmt.Errorf("%s: %w", config.ErrStoreRead, err)
	}

	if s.yaml {
		err = yaml.Unmarshal(data, &doc)
	} else {
		err = json.Unmarshal(data, &doc)
	}
	if err != nil {
		return doc, fmt.Errorf("%s: %w", config.ErrStoreRead, err)
	}
	return doc, nil
}

func (s *FileStore) save(doc document) error {
	var (
		data []byte
		err  error
	)
	if s.yaml {
		data, err = yaml.Marshal(doc)
	} else {
		data, err = json.MarshalIndent(doc, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("%s: %w", config.ErrStoreWrite, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("%s: %w", config.ErrStoreWrite, err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%s: %w", config.ErrStoreWrite, err)
	}
	if err := tmp.Chmod(config.FilePermUserRW); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("%s: %w", config.ErrStoreWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%s: %w", config.ErrStoreWrite, err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("%s: %w", config.ErrStoreWrite, err)
	}
	return nil
}

func (d document) index(id string) int {
	for i, c := range d.Contacts {
		if c.ID == id {
			return i
		}
	}
	return -1
}
