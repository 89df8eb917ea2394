package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/samber/lo"

	"pdf-chat/internal/domain"
	"pdf-chat/internal/repository"
)

// SourceStore persists the registered source list.
type SourceStore interface {
	Load(ctx context.Context) ([]domain.Source, error)
	Save(ctx context.Context, sources []domain.Source) error
}

// Library owns the registered sources and the current selection. Add and
// Remove reload the stored list before changing it and save before the change
// becomes visible, so a failed save leaves state untouched and writers sharing
// a store do not drop each other's sources.
type Library struct {
	store SourceStore

	mu       sync.RWMutex
	sources  []domain.Source
	selected string
}

// maxSaveAttempts bounds reload-and-retry rounds after a store conflict.
const maxSaveAttempts = 3

func NewLibrary(store SourceStore) (*Library, error) {
	if store == nil {
		return nil, errors.New("usecase: source store must not be nil")
	}
	return &Library{store: store}, nil
}

// Load replaces the in-memory list with the persisted one and selects the
// newest source, if any.
func (l *Library) Load(ctx context.Context) error {
	sources, err := l.store.Load(ctx)
	if err != nil {
		return newError(ErrorInternal, "source_load_error", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sources = sources
	l.selected = ""
	if len(sources) > 0 {
		l.selected = sources[0].ID
	}
	return nil
}

// Refresh picks up changes other writers saved. The selection survives when
// its source still exists.
func (l *Library) Refresh(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	sources, err := l.store.Load(ctx)
	if err != nil {
		return newError(ErrorInternal, "source_load_error", err)
	}
	l.commit(sources)
	return nil
}

// List returns the sources, newest first.
func (l *Library) List() []domain.Source {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.Source(nil), l.sources...)
}

// Selected returns the selected source. ok is false when nothing is selected.
func (l *Library) Selected() (domain.Source, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.find(l.selected)
}

// Get returns the source with the given id.
func (l *Library) Get(id string) (domain.Source, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.find(strings.TrimSpace(id))
}

func (l *Library) Select(id string) (domain.Source, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	src, ok := l.find(strings.TrimSpace(id))
	if !ok {
		return domain.Source{}, newError(ErrorNotFound, "unknown_source", nil)
	}
	l.selected = src.ID
	return src, nil
}

// Add puts src at the front of the list and selects it.
func (l *Library) Add(ctx context.Context, src domain.Source) error {
	if strings.TrimSpace(src.ID) == "" {
		return newError(ErrorInvalidInput, "empty_source_id", nil)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	next, err := l.update(ctx, func(current []domain.Source) ([]domain.Source, bool) {
		rest := lo.Reject(current, func(s domain.Source, _ int) bool { return s.ID == src.ID })
		return append([]domain.Source{src}, rest...), true
	})
	if err != nil {
		return err
	}
	l.sources = next
	l.selected = src.ID
	return nil
}

// Remove drops the source with the given id. When it was selected, the first
// remaining source becomes selected, or nothing when the list is empty. A
// source another writer already removed counts as removed.
func (l *Library) Remove(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)

	l.mu.Lock()
	defer l.mu.Unlock()
	_, known := l.find(id)
	found := false
	next, err := l.update(ctx, func(current []domain.Source) ([]domain.Source, bool) {
		found = lo.ContainsBy(current, func(s domain.Source) bool { return s.ID == id })
		if !found {
			return current, false
		}
		return lo.Reject(current, func(s domain.Source, _ int) bool { return s.ID == id }), true
	})
	if err != nil {
		return err
	}
	l.commit(next)
	if !found && !known {
		return newError(ErrorNotFound, "unknown_source", nil)
	}
	return nil
}

// update reloads the stored list, applies change and saves the result,
// retrying when another writer got in first. change reports false when there
// is nothing to save. Must be called with mu held.
func (l *Library) update(ctx context.Context, change func([]domain.Source) ([]domain.Source, bool)) ([]domain.Source, error) {
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		current, err := l.store.Load(ctx)
		if err != nil {
			return nil, newError(ErrorInternal, "source_load_error", err)
		}
		next, changed := change(current)
		if !changed {
			return next, nil
		}
		err = l.store.Save(ctx, next)
		if errors.Is(err, repository.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, newError(ErrorInternal, "source_save_error", err)
		}
		return next, nil
	}
	return nil, newError(ErrorInternal, "source_save_conflict", repository.ErrConflict)
}

// commit installs sources and keeps the selection valid. Must be called with
// mu held.
func (l *Library) commit(sources []domain.Source) {
	l.sources = sources
	if _, ok := l.find(l.selected); ok {
		return
	}
	l.selected = ""
	if len(sources) > 0 {
		l.selected = sources[0].ID
	}
}

// find must be called with mu held.
func (l *Library) find(id string) (domain.Source, bool) {
	if id == "" {
		return domain.Source{}, false
	}
	return lo.Find(l.sources, func(s domain.Source) bool { return s.ID == id })
}
