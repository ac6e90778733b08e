package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tieubaoca/course-assistant/database"
	"github.com/tieubaoca/course-assistant/types"
)

var (
	ErrEmbedding   = errors.New("embedding failed")
	ErrDuplicateID = errors.New("duplicate entry id")
)

// VectorIndex owns the course collection: it embeds text and keeps entries in
// the configured store.
type VectorIndex struct {
	store    database.VectorDatabase
	embedder Embedder
}

func NewVectorIndex(store database.VectorDatabase, embedder Embedder) *VectorIndex {
	return &VectorIndex{store: store, embedder: embedder}
}

// Embed replaces newlines with spaces before calling the embedding model.
func (idx *VectorIndex) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.ReplaceAll(text, "\n", " ")
	vec, err := idx.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	return vec, nil
}

// Add stores entries. Ids must be unique within one call. An id that is
// already in the collection is overwritten (last write wins).
func (idx *VectorIndex) Add(ctx context.Context, entries []types.IndexedEntry) error {
	if len(entries) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(entries))
	rows := make([]database.Entry, 0, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateID, e.ID)
		}
		seen[e.ID] = struct{}{}

		meta, err := database.MetadataFromChunk(e.Chunk.Metadata())
		if err != nil {
			return fmt.Errorf("metadata for %s: %w", e.ID, err)
		}
		rows = append(rows, database.Entry{
			ID:        e.ID,
			Content:   e.Chunk.Content,
			Metadata:  meta,
			Embedding: e.Embedding,
		})
	}
	return idx.store.Add(ctx, rows)
}

// Search returns at most topK entries closest to query, most similar first.
// An empty collection gives an empty result.
func (idx *VectorIndex) Search(ctx context.Context, query string, topK int) ([]types.SearchResult, error) {
	if topK <= 0 {
		return []types.SearchResult{}, nil
	}
	vec, err := idx.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := idx.store.Query(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("query collection: %w", err)
	}
	results := make([]types.SearchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, types.SearchResult{
			Content:  h.Content,
			Metadata: database.ChunkMetadataFromMap(h.Metadata),
			Distance: h.Distance,
		})
	}
	return results, nil
}

// Clear drops every entry and leaves an empty collection of the same name.
func (idx *VectorIndex) Clear(ctx context.Context) error {
	return idx.store.Reset(ctx)
}

func (idx *VectorIndex) Count(ctx context.Context) (int, error) {
	return idx.store.Count(ctx)
}

func (idx *VectorIndex) Close() error {
	return idx.store.Close()
}
