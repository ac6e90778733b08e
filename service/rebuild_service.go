package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/tieubaoca/course-assistant/logger"
	"github.com/tieubaoca/course-assistant/types"
	"go.uber.org/zap"
)

const (
	StageIdle      = "idle"
	StageStarting  = "starting"
	StageScanning  = "scanning files"
	StageClearing  = "clearing index"
	StageLoading   = "loading documents"
	StageSplitting = "splitting documents"
	StageEmbedding = "embedding"
	StageVerifying = "verifying"

	maxLogLines  = 5000
	logsTailSize = 400
)

var (
	ErrRebuildRunning = errors.New("rebuild already running")
	ErrNoDocuments    = errors.New("no documents found")
	ErrEmptyIndex     = errors.New("index is empty after rebuild")
)

// IndexWriter is the part of the vector index a rebuild needs.
type IndexWriter interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Add(ctx context.Context, entries []types.IndexedEntry) error
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

// IndexProvider opens the process-wide index on first use.
type IndexProvider func(ctx context.Context) (IndexWriter, error)

type rebuildState struct {
	running    bool
	startedAt  time.Time
	finishedAt time.Time
	lastError  *string
	logs       []string
	stage      string
	current    int
	total      int
}

// RebuildService runs full-corpus rebuilds, one at a time, and keeps the
// progress readers poll. The lock only guards state updates; extraction,
// embedding and store I/O run without it.
type RebuildService struct {
	loader    *Loader
	splitter  *TextSplitter
	index     IndexProvider
	batchSize int

	mu    sync.Mutex
	state rebuildState
	wg    sync.WaitGroup
}

func NewRebuildService(loader *Loader, splitter *TextSplitter, index IndexProvider, batchSize int) *RebuildService {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &RebuildService{
		loader:    loader,
		splitter:  splitter,
		index:     index,
		batchSize: batchSize,
		state:     rebuildState{stage: StageIdle},
	}
}

// Start launches a rebuild in the background. A request made while another
// rebuild runs is rejected, not queued.
func (s *RebuildService) Start() types.RebuildResponse {
	if !s.begin(true) {
		return types.RebuildResponse{Started: false, Message: ErrRebuildRunning.Error()}
	}
	go func() {
		defer s.wg.Done()
		s.run(context.Background())
	}()
	return types.RebuildResponse{Started: true, Message: "rebuild started in the background"}
}

// RunSync rebuilds in the caller's goroutine.
func (s *RebuildService) RunSync(ctx context.Context) error {
	if !s.begin(false) {
		return ErrRebuildRunning
	}
	return s.run(ctx)
}

// Wait blocks until the background rebuild, if any, has finished.
func (s *RebuildService) Wait() {
	s.wg.Wait()
}

func (s *RebuildService) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.running
}

// Snapshot copies the current state.
func (s *RebuildService) Snapshot() types.RebuildStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := types.RebuildStatus{
		Running: s.state.running,
		Stage:   s.state.stage,
		Current: s.state.current,
		Total:   s.state.total,
	}
	if !s.state.startedAt.IsZero() {
		ts := unixSeconds(s.state.startedAt)
		st.LastStartedAt = &ts
	}
	if !s.state.finishedAt.IsZero() {
		ts := unixSeconds(s.state.finishedAt)
		st.LastFinishedAt = &ts
	}
	if s.state.lastError != nil {
		msg := *s.state.lastError
		st.LastError = &msg
	}
	tail := s.state.logs
	if len(tail) > logsTailSize {
		tail = tail[len(tail)-logsTailSize:]
	}
	st.LogsTail = append([]string{}, tail...)
	if s.state.total > 0 {
		pct := s.state.current * 100 / s.state.total
		st.Percent = max(0, min(100, pct))
	}
	return st
}

func (s *RebuildService) begin(async bool) bool {
	s.mu.Lock()
	if s.state.running {
		s.mu.Unlock()
		return false
	}
	s.state.running = true
	s.state.startedAt = time.Now()
	s.state.lastError = nil
	s.state.stage = StageStarting
	s.state.current = 0
	s.state.total = 0
	line := s.appendLocked("== rebuild started ==")
	if async {
		s.wg.Add(1)
	}
	s.mu.Unlock()
	logger.Info("rebuild", zap.String("line", line))
	return true
}

func (s *RebuildService) run(ctx context.Context) error {
	err := s.pipeline(ctx)

	s.mu.Lock()
	if err != nil {
		msg := err.Error()
		s.state.lastError = &msg
		s.appendLocked("rebuild failed: " + msg)
	}
	s.state.running = false
	s.state.finishedAt = time.Now()
	s.state.stage = StageIdle
	s.mu.Unlock()

	if err != nil {
		logger.Error("rebuild failed", zap.Error(err))
	}
	return err
}

func (s *RebuildService) pipeline(ctx context.Context) error {
	// Scan before clearing so a missing or empty corpus leaves the index untouched.
	s.logf("scanning %s ...", s.loader.Root())
	s.setProgress(StageScanning, 0, 1)
	files, err := s.loader.ListFiles(ctx)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("%w: no supported files under %s", ErrNoDocuments, s.loader.Root())
	}
	s.setProgress(StageScanning, 1, 1)
	s.logf("found %d files", len(files))

	s.logf("clearing index ...")
	s.setProgress(StageClearing, 0, 1)
	index, err := s.index(ctx)
	if err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	if err := index.Clear(ctx); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	s.setProgress(StageClearing, 1, 1)

	s.logf("loading documents ...")
	s.setProgress(StageLoading, 0, len(files))
	var docs []types.RawDocument
	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.logf("loading: %s", s.relPath(path))
		docs = append(docs, s.loader.LoadFile(ctx, path)...)
		s.setProgress(StageLoading, i+1, len(files))
	}
	if len(docs) == 0 {
		return fmt.Errorf("%w: no text could be extracted from %d files", ErrNoDocuments, len(files))
	}

	s.logf("splitting documents ...")
	s.setProgress(StageSplitting, 0, len(docs))
	var chunks []types.Chunk
	for i, doc := range docs {
		chunks = append(chunks, s.chunkDocument(doc)...)
		s.setProgress(StageSplitting, i+1, len(docs))
	}
	s.logf("split complete: %d chunks", len(chunks))

	s.logf("embedding and writing to the index ...")
	if err := s.embedChunks(ctx, index, chunks); err != nil {
		return err
	}

	s.setProgress(StageVerifying, 0, 1)
	count, err := index.Count(ctx)
	if err != nil {
		return fmt.Errorf("count index: %w", err)
	}
	s.logf("index entries: %d", count)
	if count == 0 {
		return ErrEmptyIndex
	}
	s.setProgress(StageVerifying, 1, 1)
	s.logf("rebuild complete")
	return nil
}

// chunkDocument keeps a page or slide whole and splits unpaged text.
func (s *RebuildService) chunkDocument(doc types.RawDocument) []types.Chunk {
	if doc.FileType.Paged() {
		return []types.Chunk{{
			Content:    doc.Content,
			Filename:   doc.Filename,
			Filepath:   doc.Filepath,
			FileType:   doc.FileType,
			PageNumber: doc.PageNumber,
		}}
	}
	var chunks []types.Chunk
	i := 0
	for part := range s.splitter.Chunks(doc.Content) {
		chunks = append(chunks, types.Chunk{
			Content:  part,
			Filename: doc.Filename,
			Filepath: doc.Filepath,
			FileType: doc.FileType,
			ChunkID:  i,
		})
		i++
	}
	return chunks
}

// embedChunks embeds chunks in order and writes them in batches. Empty chunks
// are skipped but still count towards progress. The counter in each entry id
// runs across the whole rebuild, so ids never collide.
func (s *RebuildService) embedChunks(ctx context.Context, index IndexWriter, chunks []types.Chunk) error {
	total := len(chunks)
	s.setProgress(StageEmbedding, 0, total)

	batch := make([]types.IndexedEntry, 0, s.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := index.Add(ctx, batch); err != nil {
			return fmt.Errorf("write batch: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	for i, chunk := range chunks {
		n := i + 1
		if strings.TrimSpace(chunk.Content) == "" {
			s.setProgress(StageEmbedding, n, total)
			continue
		}
		vec, err := index.Embed(ctx, chunk.Content)
		if err != nil {
			return fmt.Errorf("chunk %d/%d of %s: %w", n, total, chunk.Filename, err)
		}
		batch = append(batch, types.IndexedEntry{
			ID:        entryID(chunk, n),
			Chunk:     chunk,
			Embedding: vec,
		})
		if len(batch) >= s.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
		if n%10 == 0 || n == total {
			s.logf("embedding: %d/%d", n, total)
		}
		s.setProgress(StageEmbedding, n, total)
	}
	return flush()
}

func entryID(c types.Chunk, counter int) string {
	return fmt.Sprintf("%s_%d_%d", c.Filename, c.ChunkID, counter)
}

func (s *RebuildService) relPath(path string) string {
	rel, err := filepath.Rel(s.loader.Root(), path)
	if err != nil {
		return path
	}
	return filepath.ToSlash(rel)
}

func (s *RebuildService) setProgress(stage string, current, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.stage = stage
	s.state.current = current
	s.state.total = total
}

// logf appends to the rebuild log and mirrors the line to zap once the state
// lock is released.
func (s *RebuildService) logf(format string, args ...any) {
	s.mu.Lock()
	line := s.appendLocked(fmt.Sprintf(format, args...))
	s.mu.Unlock()
	logger.Info("rebuild", zap.String("line", line))
}

// appendLocked adds a timestamped line, dropping the oldest past maxLogLines.
func (s *RebuildService) appendLocked(line string) string {
	s.state.logs = append(s.state.logs, time.Now().Format("[15:04:05] ")+line)
	if over := len(s.state.logs) - maxLogLines; over > 0 {
		s.state.logs = s.state.logs[over:]
	}
	return line
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
