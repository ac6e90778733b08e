package service

import (
	"context"
	"errors"
	"hash/fnv"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"unicode"

	"github.com/stretchr/testify/require"
	"github.com/tieubaoca/course-assistant/database"
	"github.com/tieubaoca/course-assistant/types"
)

const fakeDims = 64

// hashEmbedder is a deterministic bag-of-words embedder: each lower-cased word
// is hashed into one of fakeDims buckets and the vector is L2-normalised.
type hashEmbedder struct {
	calls  atomic.Int64
	failAt int64 // 1-based call that fails; 0 never fails
	block  chan struct{}
}

func (e *hashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	n := e.calls.Add(1)
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.failAt > 0 && n == e.failAt {
		return nil, errors.New("embedding service unavailable")
	}
	vec := make([]float32, fakeDims)
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		h := fnv.New32a()
		h.Write([]byte(word))
		vec[h.Sum32()%fakeDims]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v * v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

// fakeCompleter records every request and replies with reply or err.
type fakeCompleter struct {
	mu       sync.Mutex
	reply    string
	err      error
	requests [][]types.Message
	opts     []CompletionOptions
}

func (c *fakeCompleter) Complete(_ context.Context, messages []types.Message, opts CompletionOptions) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, append([]types.Message(nil), messages...))
	c.opts = append(c.opts, opts)
	if c.err != nil {
		return "", c.err
	}
	return c.reply, nil
}

func (c *fakeCompleter) last() []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.requests) == 0 {
		return nil
	}
	return c.requests[len(c.requests)-1]
}

func newTestIndex(t *testing.T, embedder Embedder) *VectorIndex {
	t.Helper()
	store, err := database.NewSQLiteStore(t.TempDir(), "course_knowledge")
	require.NoError(t, err)
	idx := NewVectorIndex(store, embedder)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func indexChunks(t *testing.T, idx *VectorIndex, chunks ...types.Chunk) {
	t.Helper()
	entries := make([]types.IndexedEntry, 0, len(chunks))
	for i, c := range chunks {
		vec, err := idx.Embed(context.Background(), c.Content)
		require.NoError(t, err)
		entries = append(entries, types.IndexedEntry{
			ID:        entryID(c, i+1),
			Chunk:     c,
			Embedding: vec,
		})
	}
	require.NoError(t, idx.Add(context.Background(), entries))
}
