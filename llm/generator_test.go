package llm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semtrip/cache"
	"github.com/c360studio/semtrip/llm"
	"github.com/c360studio/semtrip/llm/testutil"
	"github.com/c360studio/semtrip/model"
)

func TestGenerator_CacheAside(t *testing.T) {
	mock := &testutil.MockLLMClient{
		Responses: []*llm.Response{{Content: "first"}, {Content: "second"}},
	}
	gen := llm.NewGenerator(mock, model.NewDefaultRegistry(), cache.New[string](time.Hour, 8))
	ctx := context.Background()

	a, err := gen.Invoke(ctx, "plan Paris", "llama", 512)
	require.NoError(t, err)
	b, err := gen.Invoke(ctx, "plan Paris", "llama", 512)
	require.NoError(t, err)

	assert.Equal(t, "first", a)
	assert.Equal(t, a, b, "second call served from cache")
	assert.Equal(t, 1, mock.CallCount())

	req := mock.Requests()[0]
	assert.Equal(t, "llama", req.Endpoint)
	assert.Equal(t, 512, req.MaxTokens)
	require.NotNil(t, req.Temperature)
	assert.Zero(t, *req.Temperature)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, llm.SystemPrompt, req.Messages[0].Content)
	assert.Equal(t, "plan Paris", testutil.UserPrompt(req))
}

func TestGenerator_KeyIncludesEveryPart(t *testing.T) {
	mock := &testutil.MockLLMClient{
		Respond: func(req llm.Request) (*llm.Response, error) {
			return &llm.Response{Content: testutil.UserPrompt(req)}, nil
		},
	}
	gen := llm.NewGenerator(mock, model.NewDefaultRegistry(), cache.New[string](time.Hour, 8))
	ctx := context.Background()

	for _, call := range []struct {
		prompt, model string
		tokens        int
	}{
		{"p", "m", 512},
		{"p ", "m", 512},
		{"p", "other", 512},
		{"p", "m", 256},
		{"p", "m", 512},
	} {
		_, err := gen.Invoke(ctx, call.prompt, call.model, call.tokens)
		require.NoError(t, err)
	}
	assert.Equal(t, 4, mock.CallCount())
}

func TestGenerator_ExpiredEntryRefetched(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := cache.New[string](time.Hour, 8, cache.WithClock(func() time.Time { return now }))
	mock := &testutil.MockLLMClient{Responses: []*llm.Response{{Content: "old"}, {Content: "new"}}}
	gen := llm.NewGenerator(mock, model.NewDefaultRegistry(), c)

	first, _ := gen.Invoke(context.Background(), "p", "m", 0)
	now = now.Add(2 * time.Hour)
	second, _ := gen.Invoke(context.Background(), "p", "m", 0)

	assert.Equal(t, "old", first)
	assert.Equal(t, "new", second)
}

func TestGenerator_FailureNotCached(t *testing.T) {
	mock := &testutil.MockLLMClient{Err: errors.New("backend down")}
	c := cache.New[string](time.Hour, 8)
	gen := llm.NewGenerator(mock, model.NewDefaultRegistry(), c)

	_, err := gen.Invoke(context.Background(), "p", "m", 512)
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrGenerationUnavailable)
	assert.Zero(t, c.Len())

	mock.Err = nil
	mock.Responses = []*llm.Response{{Content: "recovered"}}
	text, err := gen.Invoke(context.Background(), "p", "m", 512)
	require.NoError(t, err)
	assert.Equal(t, "recovered", text)
	assert.Equal(t, 2, mock.CallCount())
}

func TestGenerator_ModelFor(t *testing.T) {
	registry := model.NewRegistry(map[string]*model.EndpointConfig{
		"a": {Provider: "groq", Model: "a"},
		"b": {Provider: "ollama", Model: "b"},
	}, "a")
	registry.SetCapability(model.CapabilityWriting, "b")

	gen := llm.NewGenerator(&testutil.MockLLMClient{}, registry, cache.New[string](time.Hour, 8))
	assert.Equal(t, "a", gen.ModelFor(model.CapabilityPlanning))
	assert.Equal(t, "b", gen.ModelFor(model.CapabilityWriting))
}
