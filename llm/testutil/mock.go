// Package testutil provides test doubles for the llm package.
package testutil

import (
	"context"
	"sync"

	"github.com/c360studio/semtrip/llm"
)

// MockLLMClient is a thread-safe llm.Completer for tests. It records
// every request and returns configured responses in sequence.
//
//	mock := &MockLLMClient{
//	    Responses: []*llm.Response{{Content: `{"days":[]}`}},
//	}
//
// Respond, when set, takes precedence over Responses so tests can answer
// based on the prompt.
type MockLLMClient struct {
	mu            sync.Mutex
	Responses     []*llm.Response
	Respond       func(req llm.Request) (*llm.Response, error)
	Err           error
	requests      []llm.Request
	responseIndex int
}

// Complete implements llm.Completer.
func (m *MockLLMClient) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.requests = append(m.requests, req)

	if m.Err != nil {
		return nil, m.Err
	}
	if m.Respond != nil {
		return m.Respond(req)
	}
	if m.responseIndex < len(m.Responses) {
		resp := m.Responses[m.responseIndex]
		m.responseIndex++
		return resp, nil
	}
	return &llm.Response{Content: "", Model: "test-model"}, nil
}

// CallCount returns the number of Complete calls.
func (m *MockLLMClient) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of the recorded requests.
func (m *MockLLMClient) Requests() []llm.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]llm.Request(nil), m.requests...)
}

// UserPrompt returns the user message of a request.
func UserPrompt(req llm.Request) string {
	for _, msg := range req.Messages {
		if msg.Role == "user" {
			return msg.Content
		}
	}
	return ""
}

// Reset clears recorded requests and the response index.
func (m *MockLLMClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.responseIndex = 0
}
