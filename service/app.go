package service

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/tieubaoca/course-assistant/config"
	"github.com/tieubaoca/course-assistant/database"
	"github.com/tieubaoca/course-assistant/logger"
	"github.com/tieubaoca/course-assistant/types"
	"go.uber.org/zap"
)

// App is the application context shared by every handler and command. The
// rebuild coordinator exists from startup; the index and agent are opened on
// first use.
type App struct {
	cfg     *config.Config
	loader  *Loader
	rebuild *RebuildService

	openStore    func(config.VectorStoreConfig) (database.VectorDatabase, error)
	newEmbedder  func(*config.Config) (Embedder, error)
	newCompleter func(*config.Config) (Completer, error)

	mu        sync.Mutex
	index     *VectorIndex
	completer Completer
	agent     *RAGAgent
}

type AppOption func(*App)

func WithEmbedder(e Embedder) AppOption {
	return func(a *App) {
		a.newEmbedder = func(*config.Config) (Embedder, error) { return e, nil }
	}
}

func WithCompleter(c Completer) AppOption {
	return func(a *App) {
		a.newCompleter = func(*config.Config) (Completer, error) { return c, nil }
	}
}

func WithExtractors(extractors map[types.FileType]Extractor) AppOption {
	return func(a *App) {
		a.loader = NewLoader(a.cfg.DataDir, extractors)
	}
}

func NewApp(cfg *config.Config, opts ...AppOption) (*App, error) {
	splitter, err := NewTextSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	a := &App{
		cfg:          cfg,
		loader:       NewLoader(cfg.DataDir, DefaultExtractors(cfg.OCRFallback)),
		openStore:    database.NewVectorDatabase,
		newEmbedder:  NewEmbedder,
		newCompleter: NewCompleter,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.rebuild = NewRebuildService(a.loader, splitter, a.indexWriter, cfg.BatchSize)
	return a, nil
}

func (a *App) Config() *config.Config { return a.cfg }

func (a *App) Rebuilder() *RebuildService { return a.rebuild }

// Index opens the vector index once. A failed attempt is retried on the next call.
func (a *App) Index(ctx context.Context) (*VectorIndex, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.indexLocked()
}

func (a *App) indexLocked() (*VectorIndex, error) {
	if a.index != nil {
		return a.index, nil
	}
	embedder, err := a.newEmbedder(a.cfg)
	if err != nil {
		return nil, err
	}
	store, err := a.openStore(a.cfg.VectorStore)
	if err != nil {
		return nil, err
	}
	a.index = NewVectorIndex(store, embedder)
	logger.Info("vector index opened",
		zap.String("store", a.cfg.VectorStore.Type),
		zap.String("collection", a.cfg.VectorStore.Collection))
	return a.index, nil
}

func (a *App) indexWriter(ctx context.Context) (IndexWriter, error) {
	idx, err := a.Index(ctx)
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// Agent builds the retrieval agent on first use.
func (a *App) Agent(ctx context.Context) (*RAGAgent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.agent != nil {
		return a.agent, nil
	}
	idx, err := a.indexLocked()
	if err != nil {
		return nil, err
	}
	completer, err := a.newCompleter(a.cfg)
	if err != nil {
		return nil, err
	}
	a.completer = completer
	a.agent = NewRAGAgent(idx, completer, AgentConfig{
		SystemPrompt: a.cfg.SystemPrompt,
		TopK:         a.cfg.TopK,
		Temperature:  a.cfg.Temperature,
		MaxTokens:    a.cfg.MaxTokens,
	})
	return a.agent, nil
}

// Status reports corpus and index health together with the rebuild state.
func (a *App) Status(ctx context.Context) types.StatusResponse {
	dataDir := absPath(a.cfg.DataDir)
	st := types.StatusResponse{
		DataDir:        dataDir,
		DataDirExists:  dirExists(dataDir),
		VectorStore:    a.cfg.VectorStore.Type,
		Collection:     a.cfg.VectorStore.Collection,
		Provider:       a.cfg.LLM.Provider,
		Model:          a.cfg.LLM.Model,
		EmbeddingModel: a.cfg.Embedding.Model,
		APIBase:        a.cfg.LLM.BaseURL,
		Defaults: types.StatusDefaults{
			TopK:         a.cfg.TopK,
			ChunkSize:    a.cfg.ChunkSize,
			ChunkOverlap: a.cfg.ChunkOverlap,
		},
		Rebuild: a.rebuild.Snapshot(),
	}

	count, err := a.count(ctx)
	if err != nil {
		msg := err.Error()
		st.CollectionCountError = &msg
	} else {
		st.CollectionCount = &count
	}

	if a.cfg.VectorStore.Type == config.StoreWeaviate {
		st.VectorDBPath = a.cfg.VectorStore.Weaviate.Host
		st.VectorDBExists = err == nil
	} else {
		st.VectorDBPath = absPath(a.cfg.VectorStore.Path)
		st.VectorDBExists = dirExists(st.VectorDBPath)
	}
	return st
}

func (a *App) count(ctx context.Context) (int, error) {
	idx, err := a.Index(ctx)
	if err != nil {
		return 0, err
	}
	return idx.Count(ctx)
}

func (a *App) Rebuild() types.RebuildResponse {
	return a.rebuild.Start()
}

func (a *App) RebuildStatus() types.RebuildStatus {
	return a.rebuild.Snapshot()
}

// Chat fails only when the agent cannot be built; model errors come back in the answer.
func (a *App) Chat(ctx context.Context, req types.ChatRequest) (types.ChatResponse, error) {
	agent, err := a.Agent(ctx)
	if err != nil {
		return types.ChatResponse{}, err
	}
	return agent.Chat(ctx, req), nil
}

func (a *App) Ask(ctx context.Context, question string, history []types.Message) string {
	agent, err := a.Agent(ctx)
	if err != nil {
		return "error generating answer: " + err.Error()
	}
	return agent.Answer(ctx, question, history)
}

// Close releases the store and the completion client.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if c, ok := a.completer.(io.Closer); ok {
		if err := c.Close(); err != nil {
			logger.Warn("failed to close completion client", zap.Error(err))
		}
	}
	a.completer = nil
	a.agent = nil
	if a.index == nil {
		return nil
	}
	err := a.index.Close()
	a.index = nil
	return err
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}

func dirExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
