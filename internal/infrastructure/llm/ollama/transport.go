package ollama

import (
	"context"
	"net/http"

	"github.com/kirillkom/adaptive-rag/internal/infrastructure/resilience"
)

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	return resilience.DoJSON(ctx, c.httpClient, "ollama", operation, http.MethodPost, c.baseURL+path, payload, out)
}
