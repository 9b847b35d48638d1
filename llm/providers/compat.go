// Package providers registers the wire adapters for the generation
// backends. Groq, Ollama and OpenAI share the chat-completions format;
// Anthropic has its own.
package providers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/c360studio/semtrip/llm"
)

func init() {
	llm.RegisterProvider(NewGroqProvider())
	llm.RegisterProvider(NewOllamaProvider())
	llm.RegisterProvider(NewOpenAIProvider())
	llm.RegisterProvider(&AnthropicProvider{})
}

// CompatProvider speaks the OpenAI chat-completions format. Credentials
// come from the environment variable named by KeyEnv, if any.
type CompatProvider struct {
	name       string
	defaultURL string
	keyEnv     string
}

// NewGroqProvider returns the adapter for Groq's OpenAI-compatible API
// (GROQ_API_KEY).
func NewGroqProvider() *CompatProvider {
	return &CompatProvider{name: "groq", defaultURL: "https://api.groq.com/openai/v1", keyEnv: "GROQ_API_KEY"}
}

// NewOllamaProvider returns the adapter for a local Ollama or vLLM server.
// OPENAI_API_KEY is sent when set, for gateways that need it.
func NewOllamaProvider() *CompatProvider {
	return &CompatProvider{name: "ollama", defaultURL: "http://localhost:11434/v1", keyEnv: "OPENAI_API_KEY"}
}

// NewOpenAIProvider returns the adapter for OpenAI (OPENAI_API_KEY).
func NewOpenAIProvider() *CompatProvider {
	return &CompatProvider{name: "openai", defaultURL: "https://api.openai.com/v1", keyEnv: "OPENAI_API_KEY"}
}

func (p *CompatProvider) Name() string {
	return p.name
}

// BuildURL appends /chat/completions unless the base already ends with it.
func (p *CompatProvider) BuildURL(baseURL string) string {
	if baseURL == "" {
		baseURL = p.defaultURL
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	if strings.HasSuffix(baseURL, "/chat/completions") {
		return baseURL
	}
	return baseURL + "/chat/completions"
}

func (p *CompatProvider) SetHeaders(req *http.Request) {
	if p.keyEnv == "" {
		return
	}
	if apiKey := os.Getenv(p.keyEnv); apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (p *CompatProvider) BuildRequestBody(model string, messages []llm.Message, temperature *float64, maxTokens int) ([]byte, error) {
	req := chatRequest{
		Model:       model,
		Messages:    make([]chatMessage, len(messages)),
		Temperature: temperature,
	}
	for i, msg := range messages {
		req.Messages[i] = chatMessage{Role: msg.Role, Content: msg.Content}
	}
	if maxTokens > 0 {
		req.MaxTokens = &maxTokens
	}
	return json.Marshal(req)
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage llm.TokenUsage `json:"usage"`
}

func (p *CompatProvider) ParseResponse(body []byte, model string) (*llm.Response, error) {
	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse %s response: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%s response has no choices", p.name)
	}
	if resp.Model == "" {
		resp.Model = model
	}
	return &llm.Response{
		Content:      resp.Choices[0].Message.Content,
		Model:        resp.Model,
		Usage:        resp.Usage,
		FinishReason: resp.Choices[0].FinishReason,
	}, nil
}
