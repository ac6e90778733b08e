package database

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tieubaoca/course-assistant/config"
)

type fakeObject struct {
	entryID  string
	content  string
	metadata string
	vector   []float32
}

// fakeWeaviate answers the schema, batch and GraphQL calls the store makes,
// keeping objects in memory and ranking them by cosine distance.
type fakeWeaviate struct {
	mu      sync.Mutex
	classes map[string]map[string]fakeObject
	creates int
	graphql int

	// When set, DELETE /v1/schema/{class} signals deleting and waits on release.
	deleting chan struct{}
	release  chan struct{}
}

var (
	getClassRe       = regexp.MustCompile(`\{Get \{(\w+)`)
	aggregateClassRe = regexp.MustCompile(`\{Aggregate\{(\w+)`)
	vectorRe         = regexp.MustCompile(`vector: (\[[^\]]*\])`)
	limitRe          = regexp.MustCompile(`limit: (\d+)`)
)

func newFakeWeaviate(t *testing.T) (*fakeWeaviate, *httptest.Server) {
	t.Helper()
	f := &fakeWeaviate{classes: map[string]map[string]fakeObject{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeWeaviate) serve(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1")
	switch {
	case path == "/meta":
		writeJSON(w, map[string]any{"version": "1.27.0"})
	case path == "/schema" && r.Method == http.MethodPost:
		var class struct {
			Class string `json:"class"`
		}
		if err := json.NewDecoder(r.Body).Decode(&class); err != nil {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		f.mu.Lock()
		f.creates++
		f.classes[class.Class] = map[string]fakeObject{}
		f.mu.Unlock()
		writeJSON(w, class)
	case strings.HasPrefix(path, "/schema/"):
		f.serveClass(w, r, strings.TrimPrefix(path, "/schema/"))
	case path == "/batch/objects":
		f.serveBatch(w, r)
	case path == "/graphql":
		f.serveGraphQL(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeWeaviate) serveClass(w http.ResponseWriter, r *http.Request, class string) {
	f.mu.Lock()
	_, exists := f.classes[class]
	deleting, release := f.deleting, f.release
	f.mu.Unlock()
	if !exists {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, map[string]any{"class": class})
	case http.MethodDelete:
		if deleting != nil {
			close(deleting)
			<-release
		}
		f.mu.Lock()
		delete(f.classes, class)
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (f *fakeWeaviate) serveBatch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Objects []struct {
			Class      string            `json:"class"`
			ID         string            `json:"id"`
			Properties map[string]string `json:"properties"`
			Vector     []float32         `json:"vector"`
		} `json:"objects"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	resp := make([]map[string]any, 0, len(body.Objects))
	for _, obj := range body.Objects {
		item := map[string]any{"class": obj.Class, "id": obj.ID, "result": map[string]any{}}
		objects, ok := f.classes[obj.Class]
		switch {
		case !ok:
			item["result"] = batchError("class " + obj.Class + " not found")
		case obj.Properties["content"] == "reject me":
			item["result"] = batchError("vector index is read-only")
		default:
			objects[obj.ID] = fakeObject{
				entryID:  obj.Properties["entryId"],
				content:  obj.Properties["content"],
				metadata: obj.Properties["metadata"],
				vector:   obj.Vector,
			}
		}
		resp = append(resp, item)
	}
	writeJSON(w, resp)
}

func batchError(msg string) map[string]any {
	return map[string]any{"errors": map[string]any{"error": []map[string]any{{"message": msg}}}}
}

func (f *fakeWeaviate) serveGraphQL(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.graphql++

	if m := aggregateClassRe.FindStringSubmatch(body.Query); m != nil {
		objects, ok := f.classes[m[1]]
		if !ok {
			writeJSON(w, graphQLError("Cannot query field \""+m[1]+"\" on type \"AggregateObjectsObj\"."))
			return
		}
		groups := []any{}
		if len(objects) > 0 {
			groups = append(groups, map[string]any{"meta": map[string]any{"count": len(objects)}})
		}
		writeJSON(w, map[string]any{"data": map[string]any{"Aggregate": map[string]any{m[1]: groups}}})
		return
	}

	m := getClassRe.FindStringSubmatch(body.Query)
	if m == nil {
		writeJSON(w, graphQLError("unsupported query"))
		return
	}
	objects, ok := f.classes[m[1]]
	if !ok {
		writeJSON(w, graphQLError("Cannot query field \""+m[1]+"\" on type \"GetObjectsObj\"."))
		return
	}
	var query []float32
	if vm := vectorRe.FindStringSubmatch(body.Query); vm != nil {
		_ = json.Unmarshal([]byte(vm[1]), &query)
	}
	limit := len(objects)
	if lm := limitRe.FindStringSubmatch(body.Query); lm != nil {
		limit, _ = strconv.Atoi(lm[1])
	}

	type ranked struct {
		obj      fakeObject
		distance float64
	}
	all := make([]ranked, 0, len(objects))
	for _, obj := range objects {
		all = append(all, ranked{obj: obj, distance: cosineDistance(query, obj.vector)})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].distance < all[j].distance })
	if len(all) > limit {
		all = all[:limit]
	}
	items := make([]any, 0, len(all))
	for _, hit := range all {
		items = append(items, map[string]any{
			"entryId":     hit.obj.entryID,
			"content":     hit.obj.content,
			"metadata":    hit.obj.metadata,
			"_additional": map[string]any{"distance": hit.distance},
		})
	}
	writeJSON(w, map[string]any{"data": map[string]any{"Get": map[string]any{m[1]: items}}})
}

func graphQLError(msg string) map[string]any {
	return map[string]any{"errors": []map[string]any{{"message": msg}}}
}

func cosineDistance(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		if i >= len(b) {
			break
		}
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeWeaviate) object(class, id string) (fakeObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.classes[class][id]
	return obj, ok
}

func (f *fakeWeaviate) graphQLCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.graphql
}

func newTestWeaviateStore(t *testing.T, srv *httptest.Server) *WeaviateStore {
	t.Helper()
	store, err := NewWeaviateStore(config.WeaviateStoreConfig{Host: srv.URL}, "course_knowledge")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestWeaviateStore_CreatesClassOnce(t *testing.T) {
	fake, srv := newFakeWeaviate(t)

	newTestWeaviateStore(t, srv)
	newTestWeaviateStore(t, srv)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, 1, fake.creates)
	assert.Contains(t, fake.classes, "CourseKnowledge")
}

func TestWeaviateStore_EmptyClass(t *testing.T) {
	_, srv := newFakeWeaviate(t)
	store := newTestWeaviateStore(t, srv)
	ctx := context.Background()

	hits, err := store.Query(ctx, []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	assert.NotNil(t, hits)
	assert.Empty(t, hits)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestWeaviateStore_QueryNonPositiveLimit(t *testing.T) {
	fake, srv := newFakeWeaviate(t)
	store := newTestWeaviateStore(t, srv)

	hits, err := store.Query(context.Background(), []float32{1, 0, 0}, 0)

	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Equal(t, 0, fake.graphQLCalls())
}

func TestWeaviateStore_AddQueryCount(t *testing.T) {
	_, srv := newFakeWeaviate(t)
	store := newTestWeaviateStore(t, srv)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, []Entry{
		{
			ID:        "lecture1.pdf_p2_c0",
			Content:   "Entropy measures uncertainty.",
			Metadata:  map[string]any{"filename": "lecture1.pdf", "page_number": int64(2), "chunk_id": int64(0)},
			Embedding: []float32{1, 0, 0},
		},
		{
			ID:        "notes.txt_p0_c1",
			Content:   "Channel capacity.",
			Metadata:  map[string]any{"filename": "notes.txt", "page_number": int64(0), "chunk_id": int64(1)},
			Embedding: []float32{0, 1, 0},
		},
		{
			ID:        "notes.txt_p0_c2",
			Content:   "Mostly about entropy.",
			Metadata:  map[string]any{"filename": "notes.txt", "page_number": int64(0), "chunk_id": int64(2)},
			Embedding: []float32{1, 1, 0},
		},
	}))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	hits, err := store.Query(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	assert.Equal(t, "lecture1.pdf_p2_c0", hits[0].ID)
	assert.Equal(t, "Entropy measures uncertainty.", hits[0].Content)
	assert.InDelta(t, 0, hits[0].Distance, 1e-6)
	assert.Equal(t, "lecture1.pdf", hits[0].Metadata["filename"])
	assert.EqualValues(t, 2, hits[0].Metadata["page_number"])

	assert.Equal(t, "notes.txt_p0_c2", hits[1].ID)
	assert.InDelta(t, 1-1/math.Sqrt2, hits[1].Distance, 1e-5)
	assert.LessOrEqual(t, hits[0].Distance, hits[1].Distance)

	meta := ChunkMetadataFromMap(hits[1].Metadata)
	assert.Equal(t, "notes.txt", meta.Filename)
	assert.Equal(t, 2, meta.ChunkID)
}

func TestWeaviateStore_DuplicateIDLastWriteWins(t *testing.T) {
	fake, srv := newFakeWeaviate(t)
	store := newTestWeaviateStore(t, srv)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, []Entry{{ID: "dup", Content: "first", Embedding: []float32{1, 0}}}))
	require.NoError(t, store.Add(ctx, []Entry{{ID: "dup", Content: "second", Embedding: []float32{0, 1}}}))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	obj, ok := fake.object("CourseKnowledge", objectID("dup").String())
	require.True(t, ok)
	assert.Equal(t, "second", obj.content)
	assert.Equal(t, objectID("dup"), objectID("dup"))
	assert.NotEqual(t, objectID("dup"), objectID("dup2"))
}

func TestWeaviateStore_AddBatchesLargeInput(t *testing.T) {
	_, srv := newFakeWeaviate(t)
	store := newTestWeaviateStore(t, srv)
	ctx := context.Background()

	entries := make([]Entry, BATCH_SIZE+7)
	for i := range entries {
		entries[i] = Entry{ID: "e" + strconv.Itoa(i), Content: "chunk", Embedding: []float32{float32(i), 1}}
	}
	require.NoError(t, store.Add(ctx, entries))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, BATCH_SIZE+7, count)
}

func TestWeaviateStore_AddReportsObjectError(t *testing.T) {
	_, srv := newFakeWeaviate(t)
	store := newTestWeaviateStore(t, srv)

	err := store.Add(context.Background(), []Entry{
		{ID: "ok", Content: "fine", Embedding: []float32{1}},
		{ID: "bad", Content: "reject me", Embedding: []float32{1}},
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "vector index is read-only")
	assert.Contains(t, err.Error(), objectID("bad").String())
}

func TestWeaviateStore_QuerySurfacesGraphQLErrors(t *testing.T) {
	fake, srv := newFakeWeaviate(t)
	store := newTestWeaviateStore(t, srv)

	fake.mu.Lock()
	delete(fake.classes, "CourseKnowledge")
	fake.mu.Unlock()

	_, err := store.Query(context.Background(), []float32{1}, 3)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search failed")

	_, err = store.Count(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count failed")
}

func TestWeaviateStore_ResetRecreatesEmptyClass(t *testing.T) {
	fake, srv := newFakeWeaviate(t)
	store := newTestWeaviateStore(t, srv)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, []Entry{{ID: "a", Content: "a", Embedding: []float32{1, 0}}}))
	require.NoError(t, store.Reset(ctx))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	fake.mu.Lock()
	assert.Contains(t, fake.classes, "CourseKnowledge")
	assert.Equal(t, 2, fake.creates)
	fake.mu.Unlock()

	// A class removed behind the store's back is simply recreated.
	fake.mu.Lock()
	delete(fake.classes, "CourseKnowledge")
	fake.mu.Unlock()
	require.NoError(t, store.Reset(ctx))
	hits, err := store.Query(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestWeaviateStore_QueryWaitsForReset(t *testing.T) {
	fake, srv := newFakeWeaviate(t)
	store := newTestWeaviateStore(t, srv)
	ctx := context.Background()
	require.NoError(t, store.Add(ctx, []Entry{{ID: "a", Content: "a", Embedding: []float32{1, 0}}}))

	deleting, release := make(chan struct{}), make(chan struct{})
	fake.mu.Lock()
	fake.deleting, fake.release = deleting, release
	fake.mu.Unlock()

	resetDone := make(chan error, 1)
	go func() { resetDone <- store.Reset(ctx) }()

	select {
	case <-deleting:
	case <-time.After(2 * time.Second):
		t.Fatal("reset never reached the class delete")
	}

	before := fake.graphQLCalls()
	type queryResult struct {
		hits []Hit
		err  error
	}
	queryDone := make(chan queryResult, 1)
	go func() {
		hits, err := store.Query(ctx, []float32{1, 0}, 3)
		queryDone <- queryResult{hits, err}
	}()

	select {
	case <-queryDone:
		t.Fatal("query ran while the class was being replaced")
	case <-time.After(100 * time.Millisecond):
	}
	assert.Equal(t, before, fake.graphQLCalls())

	close(release)
	require.NoError(t, <-resetDone)

	select {
	case res := <-queryDone:
		require.NoError(t, res.err)
		assert.NotNil(t, res.hits)
		assert.Empty(t, res.hits)
	case <-time.After(2 * time.Second):
		t.Fatal("query did not resume after reset")
	}
}
