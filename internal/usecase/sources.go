package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"pdf-chat/internal/domain"
)

// SourceRegistry is the part of the document service that manages sources.
type SourceRegistry interface {
	AddByURL(ctx context.Context, pdfURL string) (string, error)
	AddByFile(ctx context.Context, name string, r io.Reader) (string, error)
	DeleteSource(ctx context.Context, sourceID string) error
}

// SourceService registers and removes documents upstream and mirrors the
// result in the Library. Validation runs before any network call; upstream
// failures leave the library unchanged.
type SourceService struct {
	registry SourceRegistry
	library  *Library
	log      *slog.Logger
}

func NewSourceService(registry SourceRegistry, library *Library, log *slog.Logger) (*SourceService, error) {
	if registry == nil {
		return nil, errors.New("usecase: source registry must not be nil")
	}
	if library == nil {
		return nil, errors.New("usecase: library must not be nil")
	}
	if log == nil {
		log = slog.Default()
	}
	return &SourceService{registry: registry, library: library, log: log}, nil
}

func (s *SourceService) List() []domain.Source {
	return s.library.List()
}

// Refresh reloads the list so sources registered by other writers show up.
func (s *SourceService) Refresh(ctx context.Context) error {
	return s.library.Refresh(ctx)
}

func (s *SourceService) Selected() (domain.Source, bool) {
	return s.library.Selected()
}

func (s *SourceService) Select(id string) (domain.Source, error) {
	return s.library.Select(id)
}

// AddByURL registers the PDF at rawURL and selects it.
func (s *SourceService) AddByURL(ctx context.Context, rawURL string) (domain.Source, error) {
	u, err := validatePDFURL(rawURL)
	if err != nil {
		return domain.Source{}, err
	}

	id, err := s.registry.AddByURL(ctx, u.String())
	if err != nil {
		return domain.Source{}, classifyUpstream(err, "add_url")
	}
	src := domain.Source{ID: id, Name: nameFromURL(u), DateAdded: now().UTC()}
	if err := s.library.Add(ctx, src); err != nil {
		return domain.Source{}, err
	}
	s.log.Info("source added", "source_id", id, "name", src.Name, "via", "url")
	return src, nil
}

// AddByFile uploads data as a PDF named name and selects it.
func (s *SourceService) AddByFile(ctx context.Context, name string, data []byte) (domain.Source, error) {
	name = strings.TrimSpace(name)
	if err := validatePDFUpload(name, data); err != nil {
		return domain.Source{}, err
	}

	id, err := s.registry.AddByFile(ctx, name, bytes.NewReader(data))
	if err != nil {
		return domain.Source{}, classifyUpstream(err, "add_file")
	}
	src := domain.Source{ID: id, Name: name, DateAdded: now().UTC()}
	if err := s.library.Add(ctx, src); err != nil {
		return domain.Source{}, err
	}
	s.log.Info("source added", "source_id", id, "name", name, "via", "file", "bytes", len(data))
	return src, nil
}

// Delete removes the source upstream, then locally.
func (s *SourceService) Delete(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	if _, ok := s.library.Get(id); !ok {
		if err := s.library.Refresh(ctx); err != nil {
			return err
		}
		if _, ok := s.library.Get(id); !ok {
			return newError(ErrorNotFound, "unknown_source", nil)
		}
	}
	if err := s.registry.DeleteSource(ctx, id); err != nil {
		return classifyUpstream(err, "delete")
	}
	if err := s.library.Remove(ctx, id); err != nil {
		return err
	}
	s.log.Info("source deleted", "source_id", id)
	return nil
}

var now = time.Now
