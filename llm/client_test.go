package llm_test

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

	"github.com/c360studio/semtrip/llm"
	_ "github.com/c360studio/semtrip/llm/providers" // Register providers
	"github.com/c360studio/semtrip/model"
)

func chatCompletion(content string) map[string]any {
	return map[string]any{
		"model": "test-model",
		"choices": []map[string]any{
			{
				"message":       map[string]string{"role": "assistant", "content": content},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 8, "total_tokens": 18},
	}
}

func testRegistry(url string) *model.Registry {
	return model.NewRegistry(map[string]*model.EndpointConfig{
		"test-model": {Provider: "ollama", URL: url, Model: "test-model", MaxTokens: 256},
	}, "test-model")
}

func fastRetry(attempts int) llm.RetryConfig {
	return llm.RetryConfig{
		MaxAttempts:       attempts,
		BackoffBase:       time.Millisecond,
		BackoffMultiplier: 1.0,
		MaxBackoff:        5 * time.Millisecond,
	}
}

func TestClient_Complete_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 256.0, body["max_tokens"], "endpoint default used")

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatCompletion("Hello from the model"))
	}))
	defer server.Close()

	client := llm.NewClient(testRegistry(server.URL))
	resp, err := client.Complete(context.Background(), llm.Request{
		Capability: "planning",
		Messages:   []llm.Message{{Role: "user", Content: "Hello"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "Hello from the model", resp.Content)
	assert.Equal(t, "test-model", resp.Model)
	assert.Equal(t, 18, resp.Usage.TotalTokens)
	assert.NotEmpty(t, resp.RequestID)
}

func TestClient_Complete_RetriesTransient(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("temporarily unavailable"))
			return
		}
		json.NewEncoder(w).Encode(chatCompletion("third time lucky"))
	}))
	defer server.Close()

	client := llm.NewClient(testRegistry(server.URL), llm.WithRetryConfig(fastRetry(3)))
	resp, err := client.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "Hi"}},
	})

	require.NoError(t, err)
	assert.Equal(t, "third time lucky", resp.Content)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestClient_Complete_DefaultIsSingleAttempt(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	_, err := llm.NewClient(testRegistry(server.URL)).Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "Hi"}},
	})

	require.Error(t, err)
	assert.True(t, llm.IsTransient(err))
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClient_Complete_FatalNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid api key"}`))
	}))
	defer server.Close()

	client := llm.NewClient(testRegistry(server.URL), llm.WithRetryConfig(fastRetry(3)))
	_, err := client.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "Hi"}},
	})

	require.Error(t, err)
	assert.True(t, llm.IsFatal(err))
	assert.Contains(t, err.Error(), "status 401")
	assert.Equal(t, int32(1), attempts.Load())
}

func TestClient_Complete_CircuitOpens(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	registry := testRegistry(server.URL)
	registry.SetHealthConfig(model.HealthConfig{FailureThreshold: 2, RecoveryTimeout: time.Hour})
	client := llm.NewClient(registry)
	req := llm.Request{Messages: []llm.Message{{Role: "user", Content: "Hi"}}}

	for range 2 {
		_, err := client.Complete(context.Background(), req)
		require.Error(t, err)
	}
	_, err := client.Complete(context.Background(), req)
	assert.ErrorIs(t, err, llm.ErrCircuitOpen)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestClient_Complete_Validation(t *testing.T) {
	client := llm.NewClient(testRegistry("http://unused"))

	_, err := client.Complete(context.Background(), llm.Request{})
	assert.ErrorContains(t, err, "at least one message")

	_, err = client.Complete(context.Background(), llm.Request{
		Endpoint: "missing",
		Messages: []llm.Message{{Role: "user", Content: "Hi"}},
	})
	assert.ErrorIs(t, err, model.ErrUnknownEndpoint)
	assert.True(t, llm.IsFatal(err))
}

func TestClient_Complete_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := llm.NewClient(testRegistry(server.URL)).Complete(ctx, llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "Hi"}},
	})
	require.Error(t, err)
	assert.True(t, llm.IsTransient(err))
}
