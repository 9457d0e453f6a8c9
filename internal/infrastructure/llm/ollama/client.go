package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/adaptive-rag/internal/infrastructure/resilience"
)

// Client talks to the Ollama REST API. Completer and Embedder share one
// client and one executor.
type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	options    map[string]any
	httpClient *http.Client
	executor   *resilience.Executor
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithTemperature pins sampling temperature; the judge and classifier
// prompts expect near-deterministic replies.
func WithTemperature(temperature float64) Option {
	return func(c *Client) { c.options["temperature"] = temperature }
}

func New(baseURL, genModel, embedModel string, executor *resilience.Executor, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		options:    map[string]any{},
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Completer implements ports.TextCompleter over /api/generate.
type Completer struct {
	client *Client
}

func NewCompleter(client *Client) *Completer {
	return &Completer{client: client}
}

func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody := map[string]any{
		"model":  c.client.genModel,
		"prompt": prompt,
		"stream": false,
	}
	if len(c.client.options) > 0 {
		reqBody["options"] = c.client.options
	}

	text, err := resilience.Do(ctx, c.client.executor, "ollama.generate", func(callCtx context.Context) (string, error) {
		var response struct {
			Response string `json:"response"`
		}
		if err := c.client.postJSON(callCtx, "/api/generate", reqBody, &response, "generate"); err != nil {
			return "", err
		}
		return strings.TrimSpace(response.Response), nil
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return "", resilience.WrapTemporary("ollama generate", err)
	}
	return text, nil
}

// Embedder implements ports.Embedder over /api/embed.
type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	vectors, err := resilience.Do(ctx, e.client.executor, "ollama.embed", func(callCtx context.Context) ([][]float32, error) {
		var response struct {
			Embeddings [][]float32 `json:"embeddings"`
		}
		if err := e.client.postJSON(callCtx, "/api/embed", request, &response, "embed"); err != nil {
			return nil, err
		}
		return response.Embeddings, nil
	}, resilience.ClassifyHTTPError)
	if err != nil {
		return nil, resilience.WrapTemporary("ollama embed", err)
	}
	return vectors, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("empty embedding result")
	}
	return vectors[0], nil
}
