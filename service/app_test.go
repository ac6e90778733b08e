package service

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tieubaoca/course-assistant/config"
	"github.com/tieubaoca/course-assistant/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	return &config.Config{
		DataDir: filepath.Join(dir, "data"),
		LLM: config.LLMConfig{
			Provider: config.ProviderOpenAI,
			BaseURL:  "http://localhost:1/v1",
			Model:    "qwen-plus",
		},
		Embedding: config.EmbeddingConfig{Model: "text-embedding-v1"},
		VectorStore: config.VectorStoreConfig{
			Type:       config.StoreSQLite,
			Path:       filepath.Join(dir, "vector_db"),
			Collection: "course_knowledge",
		},
		ChunkSize:    500,
		ChunkOverlap: 50,
		TopK:         3,
		Temperature:  0.7,
		MaxTokens:    1500,
		BatchSize:    32,
		SystemPrompt: config.DefaultSystemPrompt,
	}
}

func newTestApp(t *testing.T, cfg *config.Config, opts ...AppOption) *App {
	t.Helper()
	app, err := NewApp(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })
	return app
}

func TestNewApp_InvalidSplitter(t *testing.T) {
	cfg := testConfig(t)
	cfg.ChunkOverlap = cfg.ChunkSize

	_, err := NewApp(cfg)

	assert.ErrorIs(t, err, ErrInvalidSplitter)
}

func TestApp_RebuildThenChat(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	writeFile(t, filepath.Join(cfg.DataDir, "week1", "lecture.pdf"), "%PDF")
	writeFile(t, filepath.Join(cfg.DataDir, "notes.txt"), "Bias and variance trade off against each other.")
	completer := &fakeCompleter{reply: "Bias is error from wrong assumptions."}
	extractors := DefaultExtractors(false)
	extractors[types.FileTypePDF] = fakePDF{pages: []string{"Gradient descent updates weights", "Momentum smooths updates"}}
	app := newTestApp(t, cfg,
		WithEmbedder(&hashEmbedder{}),
		WithCompleter(completer),
		WithExtractors(extractors),
	)

	st := app.Status(ctx)
	assert.True(t, st.DataDirExists)
	require.NotNil(t, st.CollectionCount)
	assert.Equal(t, 0, *st.CollectionCount)
	assert.Equal(t, types.StatusDefaults{TopK: 3, ChunkSize: 500, ChunkOverlap: 50}, st.Defaults)
	assert.Equal(t, StageIdle, st.Rebuild.Stage)

	resp := app.Rebuild()
	require.True(t, resp.Started)
	app.Rebuilder().Wait()

	rs := app.RebuildStatus()
	assert.False(t, rs.Running)
	assert.Nil(t, rs.LastError)

	st = app.Status(ctx)
	require.NotNil(t, st.CollectionCount)
	assert.Equal(t, 3, *st.CollectionCount)
	assert.True(t, st.VectorDBExists)
	assert.Nil(t, st.CollectionCountError)

	chat, err := app.Chat(ctx, types.ChatRequest{Message: "what is the bias variance trade off", IncludeContext: true})
	require.NoError(t, err)
	assert.Equal(t, "Bias is error from wrong assumptions.", chat.Answer)
	require.NotEmpty(t, chat.Sources)
	assert.Equal(t, "notes.txt", chat.Sources[0].Filename)
	require.NotNil(t, chat.Context)
	assert.Contains(t, *chat.Context, "【source: notes.txt】")

	answer := app.Ask(ctx, "momentum?", []types.Message{{Role: types.RoleUser, Content: "hi"}})
	assert.Equal(t, "Bias is error from wrong assumptions.", answer)
	assert.Len(t, completer.last(), 3)
}

func TestApp_LazyInitErrorIsReportedAndRetried(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig(t)
	app := newTestApp(t, cfg)

	st := app.Status(ctx)
	assert.Nil(t, st.CollectionCount)
	require.NotNil(t, st.CollectionCountError)
	assert.Contains(t, *st.CollectionCountError, "OPENAI_API_KEY")
	assert.False(t, st.DataDirExists)

	_, err := app.Chat(ctx, types.ChatRequest{Message: "hello"})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.Contains(t, app.Ask(ctx, "hello", nil), "error generating answer: ")

	// The key becomes available: the next call initialises successfully.
	cfg.LLM.OpenAIAPIKey = "sk-test"
	idx, err := app.Index(ctx)
	require.NoError(t, err)
	n, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestApp_RebuildFailureIsVisibleInStatus(t *testing.T) {
	cfg := testConfig(t)
	app := newTestApp(t, cfg, WithEmbedder(&hashEmbedder{}), WithCompleter(&fakeCompleter{}))

	require.True(t, app.Rebuild().Started)
	app.Rebuilder().Wait()

	st := app.Status(context.Background())
	require.NotNil(t, st.Rebuild.LastError)
	assert.Contains(t, *st.Rebuild.LastError, ErrCorpusNotFound.Error())
	assert.False(t, st.Rebuild.Running)
}
