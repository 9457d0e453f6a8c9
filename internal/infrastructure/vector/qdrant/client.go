package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/adaptive-rag/internal/core/domain"
	"github.com/kirillkom/adaptive-rag/internal/infrastructure/resilience"
)

// pointNamespace makes point ids a pure function of (document, chunk) so a
// re-index overwrites instead of duplicating.
var pointNamespace = uuid.MustParse("6f1c3b0e-2f4e-4a7c-9d0b-5a8e7c1d2b3f")

type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, collection string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

func pointID(documentID string, chunkIndex int) string {
	return uuid.NewSHA1(pointNamespace, []byte(fmt.Sprintf("%s#%d", documentID, chunkIndex))).String()
}

func (c *Client) IndexPassages(ctx context.Context, passages []domain.Passage, vectors [][]float32) error {
	if len(passages) == 0 {
		return nil
	}
	if len(passages) != len(vectors) {
		return fmt.Errorf("passages/vectors mismatch: %d/%d", len(passages), len(vectors))
	}
	if err := c.ensureCollection(ctx, len(vectors[0])); err != nil {
		return err
	}

	points := make([]point, 0, len(passages))
	for i, p := range passages {
		points = append(points, point{
			ID:     pointID(p.DocumentID, p.ChunkIndex),
			Vector: vectors[i],
			Payload: map[string]any{
				"doc_id":      p.DocumentID,
				"source":      p.Source,
				"chunk_index": p.ChunkIndex,
				"text":        p.Text,
			},
		})
	}

	path := fmt.Sprintf("/collections/%s/points?wait=true", c.collection)
	return c.call(ctx, "upsert", http.MethodPut, path, map[string]any{"points": points}, nil)
}

func (c *Client) SearchVector(ctx context.Context, queryVector []float32, limit int) ([]domain.Passage, error) {
	if limit <= 0 {
		return []domain.Passage{}, nil
	}
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
	}

	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	path := fmt.Sprintf("/collections/%s/points/search", c.collection)
	if err := c.call(ctx, "search", http.MethodPost, path, reqBody, &searchResp); err != nil {
		return nil, err
	}

	out := make([]domain.Passage, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		out = append(out, domain.Passage{
			DocumentID: getStringPayload(r.Payload, "doc_id"),
			Source:     getStringPayload(r.Payload, "source"),
			ChunkIndex: getIntPayload(r.Payload, "chunk_index"),
			Text:       getStringPayload(r.Payload, "text"),
			Score:      r.Score,
		})
	}
	return out, nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	}
	err := c.call(ctx, "ensure collection", http.MethodPut, "/collections/"+c.collection, reqBody, nil)
	if err != nil {
		var statusErr *resilience.HTTPStatusError
		// 409 when the collection already exists.
		if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusConflict {
			return err
		}
	}

	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
	return nil
}

func (c *Client) call(ctx context.Context, operation, method, path string, payload any, out any) error {
	_, err := resilience.Do(ctx, c.executor, "qdrant."+strings.ReplaceAll(operation, " ", "_"), func(callCtx context.Context) (struct{}, error) {
		return struct{}{}, c.do(callCtx, operation, method, path, payload, out)
	}, resilience.ClassifyHTTPError)
	return resilience.WrapTemporary("qdrant "+operation, err)
}

func (c *Client) do(ctx context.Context, operation, method, path string, payload any, out any) error {
	return resilience.DoJSON(ctx, c.httpClient, "qdrant", operation, method, c.baseURL+path, payload, out)
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
