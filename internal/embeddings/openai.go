// Package embeddings provides the embedding client used by the semantic
// analyzer. The OpenAI implementation is the only production backend;
// tests substitute their own Client.
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const apiURL = "https://api.openai.com/v1/embeddings"

// Client generates embedding vectors for text. Implementations must be
// deterministic for identical input and return fixed-dimension vectors.
type Client interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// OpenAIClient calls the OpenAI embeddings API with bounded retries.
type OpenAIClient struct {
	apiKey  string
	model   string
	dim     int
	retries int
	baseURL string
	client  *http.Client
}

func NewOpenAIClient(apiKey, model string, dim int, timeout time.Duration, retries int) *OpenAIClient {
	return &OpenAIClient{
		apiKey:  apiKey,
		model:   model,
		dim:     dim,
		retries: retries,
		baseURL: apiURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type embedRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

type errorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Embed returns one vector per input text, in input order. Transient
// failures (network errors, 429, 5xx) are retried with linear backoff up to
// the configured retry count; anything else fails immediately.
func (c *OpenAIClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		vecs, retryable, err := c.embedOnce(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("embed after %d attempts: %w", c.retries+1, lastErr)
}

func (c *OpenAIClient) embedOnce(ctx context.Context, texts []string) ([][]float32, bool, error) {
	body, err := json.Marshal(embedRequest{Input: texts, Model: c.model})
	if err != nil {
		return nil, false, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("api call: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		var errResp errorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error.Message != "" {
			return nil, retryable, fmt.Errorf("api error %d: %s", resp.StatusCode, errResp.Error.Message)
		}
		return nil, retryable, fmt.Errorf("api error %d: %s", resp.StatusCode, string(respBody))
	}

	var apiResp embedResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, false, fmt.Errorf("unmarshal response: %w", err)
	}

	vecs := make([][]float32, len(texts))
	for _, d := range apiResp.Data {
		if d.Index < 0 || d.Index >= len(vecs) {
			return nil, false, fmt.Errorf("embedding index %d out of range", d.Index)
		}
		vecs[d.Index] = d.Embedding
	}
	for i, v := range vecs {
		if len(v) == 0 {
			return nil, false, fmt.Errorf("missing embedding for input %d", i)
		}
		if c.dim > 0 && len(v) != c.dim {
			return nil, false, fmt.Errorf("embedding dimension %d, expected %d", len(v), c.dim)
		}
	}
	return vecs, false, nil
}

// EmbedOne embeds a single text.
func (c *OpenAIClient) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return vecs[0], nil
}
