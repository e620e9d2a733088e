// ABOUTME: Advisory per-user locks that keep two syncs for the same user from overlapping
// ABOUTME: Markers live in BadgerDB with a TTL so a crashed holder frees the lock on its own
package lock

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/google/uuid"
)

// ErrLocked means another holder owns the key.
var ErrLocked = errors.New("lock is held")

// ErrLost means the lease expired and the key is free or held by someone else.
var ErrLost = errors.New("lock lease lost")

// Locker acquires short-lived advisory locks.
type Locker interface {
	// Acquire returns a lease on key, or ErrLocked when the key is held.
	Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error)
}

// BadgerLocker stores lock markers as TTL entries.
type BadgerLocker struct {
	db *badger.DB
}

// Open opens a badger store at dir, or an in-memory store when dir is empty.
func Open(dir string) (*BadgerLocker, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open lock store: %w", err)
	}
	return &BadgerLocker{db: db}, nil
}

// NewBadgerLocker wraps an existing badger database.
func NewBadgerLocker(db *badger.DB) *BadgerLocker {
	return &BadgerLocker{db: db}
}

func (l *BadgerLocker) Close() error {
	return l.db.Close()
}

func lockKey(key string) []byte {
	return []byte("lock/" + key)
}

func minTTL(ttl time.Duration) time.Duration {
	if ttl < time.Second {
		return time.Second
	}
	return ttl
}

func (l *BadgerLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	k := lockKey(key)
	token := []byte(uuid.NewString())

	err := l.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(k)
		if err == nil {
			return ErrLocked
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.SetEntry(badger.NewEntry(k, token).WithTTL(minTTL(ttl)))
	})
	if errors.Is(err, badger.ErrConflict) || errors.Is(err, ErrLocked) {
		return nil, ErrLocked
	}
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	return &Lease{db: l.db, key: k, token: token}, nil
}

// Lease is one holder's claim on a key.
type Lease struct {
	db    *badger.DB
	key   []byte
	token []byte
}

// held runs fn when the marker still carries this lease's token.
func (ls *Lease) held(fn func(txn *badger.Txn) error) error {
	err := ls.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(ls.key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrLost
		}
		if err != nil {
			return err
		}
		current, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if !bytes.Equal(current, ls.token) {
			return ErrLost
		}
		return fn(txn)
	})
	if errors.Is(err, badger.ErrConflict) {
		return ErrLost
	}
	return err
}

// Refresh pushes the expiry out to ttl from now. It returns ErrLost when
// the lease already expired, even if nobody else took the key.
func (ls *Lease) Refresh(ttl time.Duration) error {
	return ls.held(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(ls.key, ls.token).WithTTL(minTTL(ttl)))
	})
}

// Release deletes the marker unless it expired and was re-acquired.
func (ls *Lease) Release() {
	_ = ls.held(func(txn *badger.Txn) error {
		return txn.Delete(ls.key)
	})
}

// SyncKey is the lock key for a user's mailbox sync.
func SyncKey(userID string) string {
	return "sync/" + userID
}
