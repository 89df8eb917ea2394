package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"pdf-chat/internal/domain"
)

// SourcesKey is the fixed key the source list is stored under.
const SourcesKey = "chatpdf-sources"

// ErrConflict reports that the stored list changed since it was last loaded.
// Callers reload and retry.
var ErrConflict = errors.New("repository: source list changed concurrently")

// SourceStore persists the whole registered source list as one document.
type SourceStore interface {
	Load(ctx context.Context) ([]domain.Source, error)
	Save(ctx context.Context, sources []domain.Source) error
}

func encodeSources(sources []domain.Source) ([]byte, error) {
	if sources == nil {
		sources = []domain.Source{}
	}
	data, err := json.Marshal(sources)
	if err != nil {
		return nil, fmt.Errorf("repository: encode sources: %w", err)
	}
	return data, nil
}

func decodeSources(data []byte) ([]domain.Source, error) {
	var sources []domain.Source
	if err := json.Unmarshal(data, &sources); err != nil {
		return nil, fmt.Errorf("repository: decode sources: %w", err)
	}
	if sources == nil {
		sources = []domain.Source{}
	}
	return sources, nil
}
