// GoMuseum Recognition Gateway
// Copyright 2026 GoMuseum Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/gomuseum/gateway

package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/gomuseum/gateway/internal/config"
	"github.com/gomuseum/gateway/internal/logging"
)

// badgerGCInterval is how often the value-log garbage collector runs.
const badgerGCInterval = 5 * time.Minute

// badgerStore is the embedded tier-2 store for single-node deployments
// that want recognition results to survive restarts without running Redis.
type badgerStore struct {
	db   *badger.DB
	stop chan struct{}
	done chan struct{}
}

// newBadgerStore opens (or creates) the Badger database at the configured
// path and starts background value-log GC.
func newBadgerStore(cfg config.Tier2Config) (Store, error) {
	opts := badger.DefaultOptions(cfg.BadgerPath)
	opts.Logger = nil // badger's own logger is too chatty; errors surface via returns

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %s: %w", cfg.BadgerPath, err)
	}

	s := &badgerStore{
		db:   db,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.runGC()
	return s, nil
}

// runGC periodically reclaims value-log space until Close is called.
func (s *badgerStore) runGC() {
	defer close(s.done)
	ticker := time.NewTicker(badgerGCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			// ErrNoRewrite means nothing to collect; anything else is
			// worth a log line but never fatal.
			if err := s.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				logging.Warn().Err(err).Msg("badger value log GC failed")
			}
		}
	}
}

func (s *badgerStore) Get(_ context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("badger get: %w", err)
	}
	return value, nil
}

func (s *badgerStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(keyPrefix+key), value)
		if ttl > 0 {
			e = e.WithTTL(ttl)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("badger set: %w", err)
	}
	return nil
}

func (s *badgerStore) Delete(_ context.Context, key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(keyPrefix + key))
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("badger delete: %w", err)
	}
	return nil
}

func (s *badgerStore) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger database is closed")
	}
	return nil
}

func (s *badgerStore) Close() error {
	close(s.stop)
	<-s.done
	return s.db.Close()
}
