package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"pdf-chat/internal/domain"
)

// BadgerStore keeps the source list in a local Badger database, for the
// terminal client.
type BadgerStore struct {
	db *badger.DB
}

func NewBadgerStore(db *badger.DB) (*BadgerStore, error) {
	if db == nil {
		return nil, errors.New("repository: badger db must not be nil")
	}
	return &BadgerStore{db: db}, nil
}

// Load reads the source list. A missing key is an empty list.
func (s *BadgerStore) Load(_ context.Context) ([]domain.Source, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(SourcesKey))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return []domain.Source{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("repository: Load badger: %w", err)
	}
	sources, err := decodeSources(data)
	if err != nil {
		return nil, fmt.Errorf("repository: Load: %w", err)
	}
	return sources, nil
}

// Save replaces the stored source list.
func (s *BadgerStore) Save(_ context.Context, sources []domain.Source) error {
	data, err := encodeSources(sources)
	if err != nil {
		return fmt.Errorf("repository: Save: %w", err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(SourcesKey), data)
	})
	if err != nil {
		return fmt.Errorf("repository: Save badger: %w", err)
	}
	return nil
}
