package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	apperrors "github.com/gmsas95/devocr/internal/errors"
)

const keyPrefix = "session:"

// BadgerStore keeps sessions as JSON values with a native TTL.
type BadgerStore struct {
	db  *badger.DB
	ttl time.Duration
	own bool
}

// OpenBadger opens (or creates) a session database at path. An empty path
// keeps everything in memory.
func OpenBadger(path string, ttl time.Duration) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).
		WithLogger(nil).
		WithNumVersionsToKeep(1).
		WithCompactL0OnClose(true).
		WithValueLogFileSize(16 << 20).
		WithMemTableSize(16 << 20)
	if path == "" {
		opts = opts.WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}
	return &BadgerStore{db: db, ttl: ttl, own: true}, nil
}

// NewBadgerStore wraps an already open database; Close leaves it open.
func NewBadgerStore(db *badger.DB, ttl time.Duration) *BadgerStore {
	return &BadgerStore{db: db, ttl: ttl}
}

func (b *BadgerStore) Create(ctx context.Context) (*Session, error) {
	s := NewSession()
	if err := b.Save(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

func (b *BadgerStore) Get(ctx context.Context, id string) (*Session, error) {
	var s Session
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + id))
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error {
			return json.Unmarshal(v, &s)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, apperrors.New(apperrors.ErrSessionNotFound.Code, "session "+id+" not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return &s, nil
}

func (b *BadgerStore) Save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	return b.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(keyPrefix+s.ID), data)
		if b.ttl > 0 {
			e = e.WithTTL(b.ttl)
		}
		return txn.SetEntry(e)
	})
}

func (b *BadgerStore) Delete(ctx context.Context, id string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + id))
	})
}

// Expired finds sessions whose entry outlived the idle TTL. Badger hides
// entries past their own TTL, so this catches ones saved with a longer TTL
// before a config change.
func (b *BadgerStore) Expired(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	err := b.each(func(s *Session) {
		if s.Expired(now, b.ttl) {
			ids = append(ids, s.ID)
		}
	})
	return ids, err
}

func (b *BadgerStore) Count(ctx context.Context) (int, error) {
	n := 0
	err := b.each(func(*Session) { n++ })
	return n, err
}

func (b *BadgerStore) each(fn func(*Session)) error {
	prefix := []byte(keyPrefix)
	return b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var s Session
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &s)
			}); err != nil {
				return err
			}
			fn(&s)
		}
		return nil
	})
}

// GC reclaims value log space left by expired and deleted sessions.
func (b *BadgerStore) GC() error {
	for {
		err := b.db.RunValueLogGC(0.5)
		if err == nil {
			continue
		}
		if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
			return nil
		}
		return err
	}
}

func (b *BadgerStore) Close() error {
	if !b.own {
		return nil
	}
	return b.db.Close()
}
