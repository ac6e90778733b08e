package database

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/tieubaoca/course-assistant/config"
	"github.com/weaviate/weaviate-go-client/v4/weaviate"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v4/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

const BATCH_SIZE = 200

// entryNamespace seeds the deterministic object UUIDs derived from entry ids.
var entryNamespace = uuid.MustParse("5f0c4d3e-7a3b-4c8e-9a51-2b6f0e4d8c17")

// WeaviateStore keeps one collection as a Weaviate class with caller-supplied
// vectors. Re-adding an id overwrites the object (last write wins).
type WeaviateStore struct {
	client    *weaviate.Client
	className string

	// Reset takes the write side so queries never see the class missing.
	mu sync.RWMutex
}

func NewWeaviateStore(cfg config.WeaviateStoreConfig, collection string) (*WeaviateStore, error) {
	var scheme string
	if strings.HasPrefix(cfg.Host, "https") {
		scheme = "https"
	} else {
		scheme = "http"
	}
	host := strings.TrimPrefix(cfg.Host, scheme+"://")
	wcfg := weaviate.Config{
		Host:   host,
		Scheme: scheme,
	}
	if cfg.APIKey != "" {
		wcfg.AuthConfig = auth.ApiKey{
			Value: cfg.APIKey,
		}
		wcfg.Headers = map[string]string{
			"X-Weaviate-Api-Key":     cfg.APIKey,
			"X-Weaviate-Cluster-Url": fmt.Sprintf("%s://%s", scheme, host),
		}
	}
	client, err := weaviate.NewClient(wcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create weaviate client: %w", err)
	}

	s := &WeaviateStore{
		client:    client,
		className: ClassName(collection),
	}

	exists, err := client.Schema().ClassExistenceChecker().WithClassName(s.className).Do(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to get schema: %w", err)
	}
	if !exists {
		if err := s.createClass(context.Background()); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ClassName turns a collection name such as course_knowledge into a valid
// Weaviate class name (CourseKnowledge).
func ClassName(collection string) string {
	var b strings.Builder
	upper := true
	for _, r := range collection {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	name := b.String()
	if name == "" || !unicode.IsLetter(rune(name[0])) {
		name = "C" + name
	}
	return name
}

func (s *WeaviateStore) classObject() *models.Class {
	return &models.Class{
		Class:       s.className,
		Description: CollectionDescription,
		Properties: []*models.Property{
			{Name: "entryId", DataType: []string{"text"}},
			{Name: "content", DataType: []string{"text"}},
			{Name: "metadata", DataType: []string{"text"}},
		},
		Vectorizer:      "none",
		VectorIndexType: "hnsw",
	}
}

func (s *WeaviateStore) createClass(ctx context.Context) error {
	if err := s.client.Schema().ClassCreator().WithClass(s.classObject()).Do(ctx); err != nil {
		return fmt.Errorf("failed to create %s class: %w", s.className, err)
	}
	return nil
}

func objectID(entryID string) strfmt.UUID {
	return strfmt.UUID(uuid.NewSHA1(entryNamespace, []byte(entryID)).String())
}

func (s *WeaviateStore) Add(ctx context.Context, entries []Entry) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := len(entries)
	for i := 0; i < total; i += BATCH_SIZE {
		end := min(i+BATCH_SIZE, total)

		batcher := s.client.Batch().ObjectsBatcher()
		for j := i; j < end; j++ {
			meta, err := json.Marshal(entries[j].Metadata)
			if err != nil {
				return fmt.Errorf("encode metadata for %s: %w", entries[j].ID, err)
			}
			batcher = batcher.WithObjects(&models.Object{
				Class: s.className,
				ID:    objectID(entries[j].ID),
				Properties: map[string]interface{}{
					"entryId":  entries[j].ID,
					"content":  entries[j].Content,
					"metadata": string(meta),
				},
				Vector: entries[j].Embedding,
			})
		}

		resp, err := batcher.Do(ctx)
		if err != nil {
			return fmt.Errorf("failed to insert batch %d-%d: %w", i, end, err)
		}
		for _, obj := range resp {
			if obj.Result != nil && obj.Result.Errors != nil && len(obj.Result.Errors.Error) > 0 {
				return fmt.Errorf("failed to insert object %s: %s", obj.ID, obj.Result.Errors.Error[0].Message)
			}
		}
	}
	return nil
}

func (s *WeaviateStore) Query(ctx context.Context, vector []float32, limit int) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		return []Hit{}, nil
	}
	fields := []graphql.Field{
		{Name: "entryId"},
		{Name: "content"},
		{Name: "metadata"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}
	nearVector := s.client.GraphQL().NearVectorArgBuilder().WithVector(vector)
	result, err := s.client.GraphQL().Get().
		WithClassName(s.className).
		WithFields(fields...).
		WithNearVector(nearVector).
		WithLimit(limit).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("search failed: %v", result.Errors[0].Message)
	}

	hits := make([]Hit, 0)
	get, _ := result.Data["Get"].(map[string]interface{})
	items, _ := get[s.className].([]interface{})
	for _, item := range items {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		hit := Hit{
			ID:       stringValue(obj["entryId"]),
			Content:  stringValue(obj["content"]),
			Metadata: map[string]any{},
		}
		if raw := stringValue(obj["metadata"]); raw != "" {
			if err := json.Unmarshal([]byte(raw), &hit.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata for %s: %w", hit.ID, err)
			}
		}
		if additional, ok := obj["_additional"].(map[string]interface{}); ok {
			if d, ok := additional["distance"].(float64); ok {
				hit.Distance = float32(d)
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (s *WeaviateStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.client.Schema().ClassExistenceChecker().WithClassName(s.className).Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to get schema: %w", err)
	}
	if exists {
		if err := s.client.Schema().ClassDeleter().WithClassName(s.className).Do(ctx); err != nil {
			return fmt.Errorf("failed to delete %s class: %w", s.className, err)
		}
	}
	return s.createClass(ctx)
}

func (s *WeaviateStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta := graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}
	result, err := s.client.GraphQL().Aggregate().
		WithClassName(s.className).
		WithFields(meta).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(result.Errors) > 0 {
		return 0, fmt.Errorf("count failed: %v", result.Errors[0].Message)
	}
	aggregate, _ := result.Data["Aggregate"].(map[string]interface{})
	groups, _ := aggregate[s.className].([]interface{})
	if len(groups) == 0 {
		return 0, nil
	}
	group, _ := groups[0].(map[string]interface{})
	metaData, _ := group["meta"].(map[string]interface{})
	count, _ := metaData["count"].(float64)
	return int(count), nil
}

func (s *WeaviateStore) Close() error { return nil }
