package searchindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/rs/zerolog/log"
	weaviate "github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/fault"
	gql "github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/picc-digital/storyline/internal/model"
)

// documentClass is the single Weaviate class holding story and knowledge
// chunks. docType distinguishes them.
const documentClass = "StoryDocument"

// weavNative is a native implementation of Index using the Weaviate Go client.
type weavNative struct {
	client  *weaviate.Client
	baseURL string // host:port without scheme
}

// NewWeaviateNativeIndex constructs an Index backed by Weaviate at baseURL.
// baseURL should be host:port (without scheme), e.g., "localhost:8081".
func NewWeaviateNativeIndex(baseURL string) (Index, error) {
	cfg := weaviate.Config{Scheme: "http", Host: baseURL}
	cl, err := weaviate.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	return &weavNative{client: cl, baseURL: baseURL}, nil
}

func (w *weavNative) Search(ctx context.Context, query string, vec []float32, topK int, alpha float32) ([]model.SearchHit, error) {
	log.Info().Str("query", query).Int("topK", topK).Float32("alpha", alpha).Int("vectorLength", len(vec)).Msg("weaviate search starting")

	safeString := func(v interface{}) string {
		s, _ := v.(string)
		return s
	}

	hy := (&gql.HybridArgumentBuilder{}).
		WithQuery(query).
		WithVector(vec).
		WithAlpha(alpha).
		WithProperties([]string{"title", "excerpt"})

	req := w.client.GraphQL().Get().
		WithClassName(documentClass).
		WithHybrid(hy).
		WithLimit(topK).
		WithFields(
			gql.Field{Name: "docId"},
			gql.Field{Name: "docType"},
			gql.Field{Name: "title"},
			gql.Field{Name: "excerpt"},
			gql.Field{Name: "_additional", Fields: []gql.Field{{Name: "score"}}},
		)

	resp, err := req.Do(ctx)
	if err != nil {
		log.Error().Err(err).Msg("weaviate graphql query failed")
		return nil, err
	}
	if len(resp.Errors) > 0 {
		log.Error().Interface("errors", resp.Errors).Msg("weaviate graphql errors")
		return nil, fmt.Errorf("weaviate graphql: %s", formatGraphQLErrors(resp.Errors))
	}

	getData, ok := resp.Data["Get"].(map[string]interface{})
	if !ok {
		log.Warn().Msg("weaviate response has no Get data")
		return nil, nil
	}
	docVal := getData[documentClass]
	if docVal == nil {
		return []model.SearchHit{}, nil
	}
	raw, ok := docVal.([]interface{})
	if !ok {
		log.Warn().Interface("docVal", docVal).Msg("document result is not an array")
		return nil, nil
	}

	out := make([]model.SearchHit, 0, len(raw))
	for _, item := range raw {
		m := item.(map[string]interface{})
		var score float64
		if add, ok := m["_additional"].(map[string]interface{}); ok {
			switch v := add["score"].(type) {
			case float64:
				score = v
			case string:
				if f, err := strconv.ParseFloat(v, 64); err == nil {
					score = f
				}
			}
		}
		out = append(out, model.SearchHit{
			DocID:   safeString(m["docId"]),
			DocType: safeString(m["docType"]),
			Title:   safeString(m["title"]),
			Excerpt: safeString(m["excerpt"]),
			Score:   score,
		})
	}
	log.Info().Int("resultCount", len(out)).Msg("weaviate search completed")
	return out, nil
}

// UpsertDocument writes a single document through the batch API, which
// replaces an existing object with the same id.
func (w *weavNative) UpsertDocument(ctx context.Context, docID string, vec []float32, payload map[string]interface{}) error {
	if w == nil || w.client == nil || docID == "" {
		return nil
	}
	obj := &models.Object{
		Class:      documentClass,
		ID:         strfmt.UUID(docID),
		Properties: payload,
		Vector:     vec,
	}
	_, err := w.client.Batch().ObjectsBatcher().WithObjects(obj).Do(ctx)
	return err
}

// DeleteDocument removes a document by id; missing documents are not an error.
func (w *weavNative) DeleteDocument(ctx context.Context, docID string) error {
	if w == nil || w.client == nil || docID == "" {
		return nil
	}
	err := w.client.Data().Deleter().WithClassName(documentClass).WithID(docID).Do(ctx)
	var clientErr *fault.WeaviateClientError
	if errors.As(err, &clientErr) && clientErr.StatusCode == http.StatusNotFound {
		return nil
	}
	return err
}

// HealthPing implements health.HealthPinger for the weaviate-based index.
// It calls GET http://<baseURL>/v1/meta and expects 200 OK.
func (w *weavNative) HealthPing(ctx context.Context) error {
	if w == nil || w.baseURL == "" {
		return fmt.Errorf("weaviate baseURL missing")
	}
	url := w.baseURL
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "http://" + url
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/v1/meta", nil)
	if err != nil {
		return err
	}
	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("weaviate status %d", resp.StatusCode)
	}
	return nil
}

// formatGraphQLErrors returns a compact string with messages extracted for logging.
func formatGraphQLErrors(errs interface{}) string {
	if b, err := json.Marshal(errs); err == nil {
		return string(b)
	}
	return fmt.Sprintf("%v", errs)
}
