package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tieubaoca/course-assistant/config"
	"github.com/tieubaoca/course-assistant/types"
)

const CollectionDescription = "course material vector collection"

var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// Entry is the persisted form of an indexed chunk. Metadata values are
// scalars only (string, int64, float64, bool).
type Entry struct {
	ID        string
	Content   string
	Metadata  map[string]any
	Embedding []float32
}

// Hit is a stored entry returned by a nearest-neighbour query.
type Hit struct {
	ID       string
	Content  string
	Metadata map[string]any
	Distance float32
}

// VectorDatabase is a single named collection of embedded entries.
type VectorDatabase interface {
	// Add appends entries. An id that already exists is overwritten (last write wins).
	Add(ctx context.Context, entries []Entry) error
	// Query returns at most limit hits ordered by increasing distance.
	// An empty collection yields an empty slice and no error.
	Query(ctx context.Context, vector []float32, limit int) ([]Hit, error)
	// Reset drops every entry and recreates the empty collection in one step.
	Reset(ctx context.Context) error
	Count(ctx context.Context) (int, error)
	Close() error
}

// NewVectorDatabase opens the collection in the store selected by vector_store.type.
func NewVectorDatabase(cfg config.VectorStoreConfig) (VectorDatabase, error) {
	switch cfg.Type {
	case config.StoreSQLite:
		store, err := NewSQLiteStore(cfg.Path, cfg.Collection)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StoreWeaviate:
		store, err := NewWeaviateStore(cfg.Weaviate, cfg.Collection)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("%w: unknown vector store %q", config.ErrInvalidConfig, cfg.Type)
}

// MetadataFromChunk flattens typed metadata to the scalar-only map stored
// alongside each entry. Images are encoded as a JSON string.
func MetadataFromChunk(m types.ChunkMetadata) (map[string]any, error) {
	out := map[string]any{
		"filename":    m.Filename,
		"filepath":    m.Filepath,
		"filetype":    string(m.FileType),
		"page_number": int64(m.PageNumber),
		"chunk_id":    int64(m.ChunkID),
	}
	if m.Images != nil {
		raw, err := json.Marshal([]string(m.Images))
		if err != nil {
			return nil, fmt.Errorf("encode images: %w", err)
		}
		out["images"] = string(raw)
	}
	return out, nil
}

// ChunkMetadataFromMap is the inverse of MetadataFromChunk. Unknown keys are
// ignored and a malformed images value is treated as absent.
func ChunkMetadataFromMap(m map[string]any) types.ChunkMetadata {
	md := types.ChunkMetadata{
		Filename:   stringValue(m["filename"]),
		Filepath:   stringValue(m["filepath"]),
		FileType:   types.FileType(stringValue(m["filetype"])),
		PageNumber: intValue(m["page_number"]),
		ChunkID:    intValue(m["chunk_id"]),
	}
	if raw, ok := m["images"].(string); ok {
		var images []string
		if err := json.Unmarshal([]byte(raw), &images); err == nil {
			if images == nil {
				images = []string{}
			}
			md.Images = images
		}
	}
	return md
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	}
	return 0
}
