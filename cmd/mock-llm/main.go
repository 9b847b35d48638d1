// Package main implements an offline stand-in for the model endpoint.
// It speaks the OpenAI-compatible /v1/chat/completions protocol and
// answers trip prompts with generated text, so semtrip can be run and
// demoed without a real model.
//
// Usage:
//
//	mock-llm --addr :11434 [--fixtures /path/to/fixtures]
//
// Planning prompts (those asking for JSON) get an outline with one day per
// requested day. Every other prompt gets a narrative with "Day N" headings.
// A fixture file named after the model (e.g. "qwen2.5.json") replaces the
// generated reply for that model.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens *int          `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type server struct {
	fixtures map[string]string
	logger   *slog.Logger
	calls    atomic.Int64

	mu      sync.Mutex
	byModel map[string]int
}

func newServer(fixtures map[string]string, logger *slog.Logger) *server {
	return &server{
		fixtures: fixtures,
		logger:   logger,
		byModel:  make(map[string]int),
	}
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var addr, fixtureDir string

	cmd := &cobra.Command{
		Use:          "mock-llm",
		Short:        "Serve canned trip generations over the OpenAI chat API",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
			if fixtureDir == "" {
				fixtureDir = os.Getenv("MOCK_LLM_FIXTURES")
			}
			fixtures, err := loadFixtures(fixtureDir)
			if err != nil {
				return err
			}
			logger.Info("Loaded fixtures", "dir", fixtureDir, "models", len(fixtures))

			gin.SetMode(gin.ReleaseMode)
			srv := &http.Server{
				Addr:              addr,
				Handler:           newServer(fixtures, logger).router(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			go func() {
				<-ctx.Done()
				shutdown, done := context.WithTimeout(context.Background(), 5*time.Second)
				defer done()
				_ = srv.Shutdown(shutdown)
			}()

			logger.Info("Mock model listening", "addr", addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":11434", "Listen address")
	cmd.Flags().StringVar(&fixtureDir, "fixtures", "", "Directory of <model>.json reply overrides")
	return cmd
}

// loadFixtures reads <model>.json files from dir. An empty dir yields no
// fixtures.
func loadFixtures(dir string) (map[string]string, error) {
	fixtures := make(map[string]string)
	if dir == "" {
		return fixtures, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read fixture %s: %w", e.Name(), err)
		}
		fixtures[strings.TrimSuffix(e.Name(), ".json")] = string(data)
	}
	return fixtures, nil
}

func (s *server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/stats", s.stats)
	r.POST("/v1/chat/completions", s.chatCompletions)
	return r
}

func (s *server) stats(c *gin.Context) {
	s.mu.Lock()
	byModel := make(map[string]int, len(s.byModel))
	for k, v := range s.byModel {
		byModel[k] = v
	}
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"total_calls": s.calls.Load(), "by_model": byModel})
}

func (s *server) chatCompletions(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": err.Error()}})
		return
	}
	n := s.calls.Add(1)
	s.mu.Lock()
	s.byModel[req.Model]++
	s.mu.Unlock()

	prompt := lastUserMessage(req.Messages)
	content, ok := s.fixtures[req.Model]
	if !ok {
		content = reply(prompt)
	}
	s.logger.Debug("Served completion", "call", n, "model", req.Model, "fixture", ok)

	promptTokens := len(strings.Fields(prompt))
	completionTokens := len(strings.Fields(content))
	c.JSON(http.StatusOK, chatResponse{
		ID:      "mock-" + strconv.FormatInt(n, 10),
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   req.Model,
		Choices: []chatChoice{{
			Message:      chatMessage{Role: "assistant", Content: content},
			FinishReason: "stop",
		}},
		Usage: chatUsage{
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
			TotalTokens:      promptTokens + completionTokens,
		},
	})
}

func lastUserMessage(msgs []chatMessage) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return msgs[i].Content
		}
	}
	return ""
}

var (
	cityLine     = regexp.MustCompile(`(?m)^City:\s*(.+)$`)
	daysLine     = regexp.MustCompile(`(?m)^Duration \(days\):\s*(\d+)`)
	interestLine = regexp.MustCompile(`(?m)^Interests:\s*(.+)$`)
	themeField   = regexp.MustCompile(`"theme":\s*"([^"]*)"`)
)

// reply generates a plausible answer for a trip prompt.
func reply(prompt string) string {
	if strings.Contains(prompt, "Output ONLY valid JSON") {
		return outline(prompt)
	}
	return narrative(prompt)
}

type outlineDoc struct {
	TripOverview string       `json:"trip_overview"`
	Days         []outlineDay `json:"days"`
}

type outlineDay struct {
	Day         int      `json:"day"`
	Theme       string   `json:"theme"`
	Activities  []string `json:"activities"`
	Description string   `json:"description"`
}

func outline(prompt string) string {
	city := "the city"
	if m := cityLine.FindStringSubmatch(prompt); m != nil {
		city = strings.TrimSpace(m[1])
	}
	days := 1
	if m := daysLine.FindStringSubmatch(prompt); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			days = n
		}
	}
	interests := []string{"sightseeing"}
	if m := interestLine.FindStringSubmatch(prompt); m != nil {
		if parts := strings.Split(strings.TrimSpace(m[1]), ","); parts[0] != "" {
			interests = parts
		}
	}

	doc := outlineDoc{TripOverview: fmt.Sprintf("%d days in %s", days, city)}
	for i := range days {
		interest := strings.TrimSpace(interests[i%len(interests)])
		doc.Days = append(doc.Days, outlineDay{
			Day:         i + 1,
			Theme:       fmt.Sprintf("%s %s", city, interest),
			Activities:  []string{"Morning " + interest, "Afternoon walk", "Dinner nearby"},
			Description: fmt.Sprintf("A day of %s around %s.", interest, city),
		})
	}
	data, _ := json.Marshal(doc)
	return string(data)
}

func narrative(prompt string) string {
	themes := themeField.FindAllStringSubmatch(prompt, -1)
	if len(themes) == 0 {
		return "Day 1: Explore\nWander the old town and try the local food."
	}
	var b strings.Builder
	for i, m := range themes {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Day %d: %s\nStart early, follow the suggested order and keep the evening free.\n", i+1, m[1])
	}
	return b.String()
}
