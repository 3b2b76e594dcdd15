package embeddings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeResponse(vecs ...[]float32) embedResponse {
	var resp embedResponse
	for i, v := range vecs {
		resp.Data = append(resp.Data, struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{Embedding: v, Index: i})
	}
	return resp
}

func testClient(serverURL string) *OpenAIClient {
	c := NewOpenAIClient("test-key", "text-embedding-3-small", 3, 5*time.Second, 2)
	c.baseURL = serverURL
	return c
}

func TestEmbedOne(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req embedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"test text"}, req.Input)
		assert.Equal(t, "text-embedding-3-small", req.Model)

		json.NewEncoder(w).Encode(fakeResponse([]float32{0.1, 0.2, 0.3}))
	}))
	defer server.Close()

	vec, err := testClient(server.URL).EmbedOne(context.Background(), "test text")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestEmbedPreservesOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Return data out of input order; Index must win.
		var resp embedResponse
		resp.Data = append(resp.Data, struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{Embedding: []float32{0.4, 0.5, 0.6}, Index: 1})
		resp.Data = append(resp.Data, struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{Embedding: []float32{0.1, 0.2, 0.3}, Index: 0})
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	vecs, err := testClient(server.URL).Embed(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vecs[0])
	assert.Equal(t, []float32{0.4, 0.5, 0.6}, vecs[1])
}

func TestEmbedRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(fakeResponse([]float32{0.1, 0.2, 0.3}))
	}))
	defer server.Close()

	vec, err := testClient(server.URL).EmbedOne(context.Background(), "x")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
	assert.Equal(t, int32(2), calls.Load())
}

func TestEmbedDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"type": "invalid_request_error", "message": "bad key"},
		})
	}))
	defer server.Close()

	_, err := testClient(server.URL).EmbedOne(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad key")
	assert.Equal(t, int32(1), calls.Load())
}

func TestEmbedRejectsWrongDimension(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(fakeResponse([]float32{0.1, 0.2}))
	}))
	defer server.Close()

	_, err := testClient(server.URL).EmbedOne(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension")
}

func TestEmbedEmptyInput(t *testing.T) {
	vecs, err := testClient("http://unreachable.invalid").Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
}
