package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pdf-chat/internal/domain"
	"pdf-chat/internal/repository"
)

type memStore struct {
	sources []domain.Source
	loadErr error
	saveErr error
	saves   int
	// conflicts is how many upcoming saves fail with repository.ErrConflict.
	conflicts int
}

func (m *memStore) Load(_ context.Context) ([]domain.Source, error) {
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return append([]domain.Source(nil), m.sources...), nil
}

func (m *memStore) Save(_ context.Context, sources []domain.Source) error {
	m.saves++
	if m.conflicts > 0 {
		m.conflicts--
		return repository.ErrConflict
	}
	if m.saveErr != nil {
		return m.saveErr
	}
	m.sources = append([]domain.Source(nil), sources...)
	return nil
}

func src(id string) domain.Source {
	return domain.Source{ID: id, Name: id + ".pdf", DateAdded: time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)}
}

func ids(sources []domain.Source) []string {
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		out = append(out, s.ID)
	}
	return out
}

func expectError(t *testing.T, err error, code ErrorCode, reason string) {
	t.Helper()
	var usecaseErr *Error
	require.ErrorAs(t, err, &usecaseErr)
	require.Equal(t, code, usecaseErr.Code)
	require.Equal(t, reason, usecaseErr.Reason)
}

func loadedLibrary(t *testing.T, store *memStore) *Library {
	t.Helper()
	lib, err := NewLibrary(store)
	require.NoError(t, err)
	require.NoError(t, lib.Load(context.Background()))
	return lib
}

func selectedID(lib *Library) string {
	s, ok := lib.Selected()
	if !ok {
		return ""
	}
	return s.ID
}

func TestNewLibrary_NilStore(t *testing.T) {
	_, err := NewLibrary(nil)
	require.Error(t, err)
}

func TestLibrary_LoadSelectsFirst(t *testing.T) {
	lib := loadedLibrary(t, &memStore{sources: []domain.Source{src("b"), src("a")}})
	require.Equal(t, []string{"b", "a"}, ids(lib.List()))
	require.Equal(t, "b", selectedID(lib))

	empty := loadedLibrary(t, &memStore{})
	_, ok := empty.Selected()
	require.False(t, ok)
	require.Empty(t, empty.List())
}

func TestLibrary_LoadError(t *testing.T) {
	lib, err := NewLibrary(&memStore{loadErr: errors.New("disk gone")})
	require.NoError(t, err)
	expectError(t, lib.Load(context.Background()), ErrorInternal, "source_load_error")
}

func TestLibrary_AddPrependsSelectsAndPersists(t *testing.T) {
	store := &memStore{sources: []domain.Source{src("a")}}
	lib := loadedLibrary(t, store)

	require.NoError(t, lib.Add(context.Background(), src("b")))
	require.Equal(t, []string{"b", "a"}, ids(lib.List()))
	require.Equal(t, "b", selectedID(lib))
	require.Equal(t, []string{"b", "a"}, ids(store.sources))
}

func TestLibrary_AddReplacesDuplicateID(t *testing.T) {
	store := &memStore{sources: []domain.Source{src("a"), src("b")}}
	lib := loadedLibrary(t, store)

	renamed := src("b")
	renamed.Name = "renamed.pdf"
	require.NoError(t, lib.Add(context.Background(), renamed))
	require.Equal(t, []string{"b", "a"}, ids(lib.List()))
	require.Equal(t, "renamed.pdf", lib.List()[0].Name)
}

func TestLibrary_AddSaveFailureLeavesState(t *testing.T) {
	store := &memStore{sources: []domain.Source{src("a")}}
	lib := loadedLibrary(t, store)
	store.saveErr = errors.New("throttled")

	expectError(t, lib.Add(context.Background(), src("b")), ErrorInternal, "source_save_error")
	require.Equal(t, []string{"a"}, ids(lib.List()))
	require.Equal(t, "a", selectedID(lib))
}

func TestLibrary_AddRejectsEmptyID(t *testing.T) {
	lib := loadedLibrary(t, &memStore{})
	expectError(t, lib.Add(context.Background(), domain.Source{Name: "x.pdf"}), ErrorInvalidInput, "empty_source_id")
}

func TestLibrary_Select(t *testing.T) {
	lib := loadedLibrary(t, &memStore{sources: []domain.Source{src("a"), src("b")}})

	got, err := lib.Select("b")
	require.NoError(t, err)
	require.Equal(t, "b", got.ID)
	require.Equal(t, "b", selectedID(lib))

	_, err = lib.Select("zzz")
	expectError(t, err, ErrorNotFound, "unknown_source")
	require.Equal(t, "b", selectedID(lib))
}

func TestLibrary_RemoveSelectedMovesToNext(t *testing.T) {
	store := &memStore{sources: []domain.Source{src("c"), src("b"), src("a")}}
	lib := loadedLibrary(t, store)

	require.NoError(t, lib.Remove(context.Background(), "c"))
	require.Equal(t, "b", selectedID(lib))
	require.Equal(t, []string{"b", "a"}, ids(store.sources))

	require.NoError(t, lib.Remove(context.Background(), "b"))
	require.Equal(t, "a", selectedID(lib))

	require.NoError(t, lib.Remove(context.Background(), "a"))
	_, ok := lib.Selected()
	require.False(t, ok)
	require.Empty(t, lib.List())
}

func TestLibrary_RemoveUnselectedKeepsSelection(t *testing.T) {
	lib := loadedLibrary(t, &memStore{sources: []domain.Source{src("c"), src("b"), src("a")}})
	_, err := lib.Select("a")
	require.NoError(t, err)

	require.NoError(t, lib.Remove(context.Background(), "b"))
	require.Equal(t, "a", selectedID(lib))
	require.Equal(t, []string{"c", "a"}, ids(lib.List()))
}

func TestLibrary_RemoveErrors(t *testing.T) {
	store := &memStore{sources: []domain.Source{src("a")}}
	lib := loadedLibrary(t, store)

	expectError(t, lib.Remove(context.Background(), "missing"), ErrorNotFound, "unknown_source")

	store.saveErr = errors.New("throttled")
	expectError(t, lib.Remove(context.Background(), "a"), ErrorInternal, "source_save_error")
	require.Equal(t, []string{"a"}, ids(lib.List()))
	require.Equal(t, "a", selectedID(lib))
}

func TestLibrary_ListIsACopy(t *testing.T) {
	lib := loadedLibrary(t, &memStore{sources: []domain.Source{src("a")}})
	list := lib.List()
	list[0].Name = "changed"
	require.Equal(t, "a.pdf", lib.List()[0].Name)
}

func TestLibrary_WritersSharingAStoreKeepEachOthersChanges(t *testing.T) {
	store := &memStore{sources: []domain.Source{src("old")}}
	first := loadedLibrary(t, store)
	second := loadedLibrary(t, store)

	require.NoError(t, first.Add(context.Background(), src("a")))
	require.NoError(t, second.Add(context.Background(), src("b")))
	require.Equal(t, []string{"b", "a", "old"}, ids(store.sources))
	require.Equal(t, []string{"b", "a", "old"}, ids(second.List()))

	require.NoError(t, first.Remove(context.Background(), "b"))
	require.Equal(t, []string{"a", "old"}, ids(store.sources))
	require.Equal(t, "a", selectedID(first))
}

func TestLibrary_RemoveAlreadyRemovedElsewhere(t *testing.T) {
	store := &memStore{sources: []domain.Source{src("a"), src("b")}}
	first := loadedLibrary(t, store)
	second := loadedLibrary(t, store)

	require.NoError(t, second.Remove(context.Background(), "a"))
	saves := store.saves
	require.NoError(t, first.Remove(context.Background(), "a"))
	require.Equal(t, saves, store.saves)
	require.Equal(t, []string{"b"}, ids(first.List()))
	require.Equal(t, "b", selectedID(first))
}

func TestLibrary_RetriesAfterConflict(t *testing.T) {
	store := &memStore{sources: []domain.Source{src("a")}, conflicts: 2}
	lib := loadedLibrary(t, store)

	require.NoError(t, lib.Add(context.Background(), src("b")))
	require.Equal(t, 3, store.saves)
	require.Equal(t, []string{"b", "a"}, ids(store.sources))
}

func TestLibrary_GivesUpAfterRepeatedConflicts(t *testing.T) {
	store := &memStore{sources: []domain.Source{src("a")}, conflicts: maxSaveAttempts}
	lib := loadedLibrary(t, store)

	err := lib.Add(context.Background(), src("b"))
	expectError(t, err, ErrorInternal, "source_save_conflict")
	require.ErrorIs(t, err, repository.ErrConflict)
	require.Equal(t, []string{"a"}, ids(lib.List()))
	require.Equal(t, "a", selectedID(lib))
}

func TestLibrary_Refresh(t *testing.T) {
	store := &memStore{sources: []domain.Source{src("b"), src("a")}}
	lib := loadedLibrary(t, store)
	_, err := lib.Select("a")
	require.NoError(t, err)

	store.sources = []domain.Source{src("c"), src("b"), src("a")}
	require.NoError(t, lib.Refresh(context.Background()))
	require.Equal(t, []string{"c", "b", "a"}, ids(lib.List()))
	require.Equal(t, "a", selectedID(lib))

	store.sources = []domain.Source{src("c")}
	require.NoError(t, lib.Refresh(context.Background()))
	require.Equal(t, "c", selectedID(lib))

	store.loadErr = errors.New("timeout")
	expectError(t, lib.Refresh(context.Background()), ErrorInternal, "source_load_error")
	require.Equal(t, []string{"c"}, ids(lib.List()))
}
