// Package repositories is the persistence adapter of the chat core.
// Every record lives in BadgerDB; multi-record operations run inside one
// serializable transaction so callers observe all of it or none of it.
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"chat-core/errors"

	"github.com/dgraph-io/badger/v4"
)

const (
	DefaultMaxRetries = 10
	retryBaseDelay    = 2 * time.Millisecond
)

// Store wraps the badger handle and retries transactions aborted by a
// concurrent writer on the same keys.
type Store struct {
	db         *badger.DB
	log        *slog.Logger
	maxRetries int
}

func NewStore(db *badger.DB, log *slog.Logger, maxRetries int) *Store {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Store{db: db, log: log, maxRetries: maxRetries}
}

// Txn exposes typed record operations on a single badger transaction.
type Txn struct {
	txn *badger.Txn
}

// Update runs fn in a read-write transaction. On badger.ErrConflict the whole
// closure is replayed, so fn must not accumulate state across attempts.
// After maxRetries conflicts it gives up with errors.ErrConflict.
func (s *Store) Update(fn func(tx *Txn) error) error {
	var err error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err = s.db.Update(func(txn *badger.Txn) error {
			return fn(&Txn{txn: txn})
		})
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debug("Transaction conflict, retrying", "attempt", attempt)
		time.Sleep(retryBaseDelay*time.Duration(attempt) + rand.N(retryBaseDelay))
	}
	return fmt.Errorf("%w: transaction aborted after %d attempts: %v", errors.ErrConflict, s.maxRetries, err)
}

// View runs fn in a read-only snapshot.
func (s *Store) View(fn func(tx *Txn) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		return fn(&Txn{txn: txn})
	})
}

// DropPrefixes removes whole key ranges outside of any transaction.
// Used to purge the messages of a deleted chat once nothing can reach them.
func (s *Store) DropPrefixes(prefixes ...string) error {
	raw := make([][]byte, 0, len(prefixes))
	for _, p := range prefixes {
		raw = append(raw, []byte(p))
	}
	return s.db.DropPrefix(raw...)
}

func (t *Txn) getJSON(key string, out any) error {
	item, err := t.txn.Get([]byte(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrNotFound
		}
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func (t *Txn) putJSON(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return t.txn.Set([]byte(key), data)
}

func (t *Txn) getRaw(key string) ([]byte, error) {
	item, err := t.txn.Get([]byte(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, errors.ErrNotFound
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (t *Txn) exists(key string) (bool, error) {
	_, err := t.txn.Get([]byte(key))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (t *Txn) delete(key string) error {
	return t.txn.Delete([]byte(key))
}

// scanKeys returns the suffixes of every key under prefix, in key order.
func (t *Txn) scanKeys(prefix string, reverse bool) ([]string, error) {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Reverse = reverse
	it := t.txn.NewIterator(opts)
	defer it.Close()

	p := []byte(prefix)
	seek := p
	if reverse {
		seek = append([]byte(prefix), 0xFF)
	}
	var suffixes []string
	for it.Seek(seek); it.ValidForPrefix(p); it.Next() {
		suffixes = append(suffixes, string(it.Item().Key()[len(p):]))
	}
	return suffixes, nil
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
