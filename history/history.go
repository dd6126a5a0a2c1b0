// Package history persists finished transcriptions in a local badger store.
package history

import (
	"encoding/json"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// Entry is one stored transcription.
type Entry struct {
	ID        string        `json:"id"`
	Text      string        `json:"text"`
	Language  string        `json:"language,omitempty"`
	Samples   int           `json:"samples"`  // PCM samples transcribed
	Duration  time.Duration `json:"duration"` // recording length
	Reason    string        `json:"reason"`   // why the recording stopped
	CreatedAt time.Time     `json:"created_at"`
}

// Store is a badger-backed transcription history.
type Store struct {
	db *badger.DB
}

// Open opens (or creates) the history database at path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	return &Store{db: db}, nil
}

// Save stores an entry. A missing ID or timestamp is filled in.
func (s *Store) Save(e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}

	// Keys sort by creation time so a reverse scan yields newest first.
	// The timestamp format must be fixed-width: RFC3339Nano trims trailing
	// zeros, which breaks lexicographic ordering.
	key := []byte("t/" + e.CreatedAt.UTC().Format("2006-01-02T15:04:05.000000000Z") + "/" + e.ID)
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
	if err != nil {
		return fmt.Errorf("save entry: %w", err)
	}
	return nil
}

// Recent returns up to n entries, newest first.
func (s *Store) Recent(n int) ([]Entry, error) {
	var entries []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte("t/")
		// Reverse iteration starts past the end of the prefix range.
		for it.Seek([]byte("t0")); it.ValidForPrefix(prefix) && len(entries) < n; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var e Entry
				if err := json.Unmarshal(val, &e); err != nil {
					return fmt.Errorf("unmarshal entry: %w", err)
				}
				entries = append(entries, e)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
