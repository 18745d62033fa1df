package searchindex

import (
	"context"
	"fmt"
	"strconv"
	"time"

	weaviate "github.com/weaviate/weaviate-go-client/v5/weaviate"
	filters "github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	gql "github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/xmrt-ecosystem/assistant-server/internal/model"
)

const memoryClass = "AssistantMemory"

// wavIndex is an Index backed by Weaviate. Vectors are supplied by our
// embedding provider, so the class is created with vectorizer "none".
type wavIndex struct{ client *weaviate.Client }

// NewWeaviateIndex constructs an Index backed by Weaviate at baseURL.
// baseURL should be host:port without scheme, e.g. "localhost:8081".
func NewWeaviateIndex(baseURL string) (Index, error) {
	cfg := weaviate.Config{Scheme: "http", Host: baseURL}
	cl, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &wavIndex{client: cl}, nil
}

// EnsureSchema creates the memory class when it does not exist yet.
func (w *wavIndex) EnsureSchema(ctx context.Context) error {
	exists, err := w.client.Schema().ClassExistenceChecker().WithClassName(memoryClass).Do(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	class := &models.Class{
		Class:      memoryClass,
		Vectorizer: "none",
		Properties: []*models.Property{
			{Name: "content", DataType: []string{"text"}},
			{Name: "contextType", DataType: []string{"text"}},
			{Name: "importanceScore", DataType: []string{"number"}},
			{Name: "sessionId", DataType: []string{"text"}},
			{Name: "creationTime", DataType: []string{"text"}},
		},
	}
	return w.client.Schema().ClassCreator().WithClass(class).Do(ctx)
}

func (w *wavIndex) UpsertMemory(ctx context.Context, m *model.MemoryEntry) error {
	// Hard replace: an existing object with the same id is removed first.
	_ = w.client.Data().Deleter().WithClassName(memoryClass).WithID(m.MemoryID).Do(ctx)

	props := map[string]interface{}{
		"content":         m.Content,
		"contextType":     m.ContextType,
		"importanceScore": m.Importance,
		"creationTime":    m.CreationTime.UTC().Format(time.RFC3339Nano),
	}
	if m.SessionID != nil {
		props["sessionId"] = *m.SessionID
	}
	_, err := w.client.Data().Creator().
		WithClassName(memoryClass).
		WithID(m.MemoryID).
		WithProperties(props).
		WithVector(m.Embedding).
		Do(ctx)
	return err
}

func (w *wavIndex) DeleteMemory(ctx context.Context, memoryID string) error {
	return w.client.Data().Deleter().WithClassName(memoryClass).WithID(memoryID).Do(ctx)
}

func (w *wavIndex) Query(ctx context.Context, vec []float32, limit int, threshold float64, contextType string) ([]*model.MemoryEntry, error) {
	// Weaviate certainty is (1+cosine)/2.
	certainty := float32((1 + threshold) / 2)
	nv := (&gql.NearVectorArgumentBuilder{}).WithVector(vec).WithCertainty(certainty)

	req := w.client.GraphQL().Get().
		WithClassName(memoryClass).
		WithNearVector(nv).
		WithLimit(limit).
		WithFields(
			gql.Field{Name: "content"},
			gql.Field{Name: "contextType"},
			gql.Field{Name: "importanceScore"},
			gql.Field{Name: "sessionId"},
			gql.Field{Name: "creationTime"},
			gql.Field{Name: "_additional", Fields: []gql.Field{{Name: "id"}, {Name: "certainty"}}},
		)
	if contextType != "" {
		where := filters.Where().WithPath([]string{"contextType"}).WithOperator(filters.Equal).WithValueText(contextType)
		req = req.WithWhere(where)
	}

	resp, err := req.Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("weaviate graphql: %s", resp.Errors[0].Message)
	}

	getData, ok := resp.Data["Get"].(map[string]interface{})
	if !ok {
		return []*model.MemoryEntry{}, nil
	}
	raw, ok := getData[memoryClass].([]interface{})
	if !ok {
		return []*model.MemoryEntry{}, nil
	}

	out := make([]*model.MemoryEntry, 0, len(raw))
	for _, item := range raw {
		obj, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		e := &model.MemoryEntry{}
		if v, ok := obj["content"].(string); ok {
			e.Content = v
		}
		if v, ok := obj["contextType"].(string); ok {
			e.ContextType = v
		}
		if v, ok := obj["importanceScore"].(float64); ok {
			e.Importance = v
		}
		if v, ok := obj["sessionId"].(string); ok && v != "" {
			sid := v
			e.SessionID = &sid
		}
		if v, ok := obj["creationTime"].(string); ok {
			if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
				e.CreationTime = ts
			}
		}
		if add, ok := obj["_additional"].(map[string]interface{}); ok {
			if id, ok := add["id"].(string); ok {
				e.MemoryID = id
			}
			switch c := add["certainty"].(type) {
			case float64:
				e.Similarity = 2*c - 1
			case string:
				if f, err := strconv.ParseFloat(c, 64); err == nil {
					e.Similarity = 2*f - 1
				}
			}
		}
		if e.Similarity < threshold {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// HealthPing implements health.HealthPinger via the readiness endpoint.
func (w *wavIndex) HealthPing(ctx context.Context) error {
	ready, err := w.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return err
	}
	if !ready {
		return fmt.Errorf("weaviate not ready")
	}
	return nil
}
