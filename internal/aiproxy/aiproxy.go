// Package aiproxy shapes requests to the hosted AI backend and propagates
// its failures as upstream errors.
package aiproxy

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/picc-digital/storyline/internal/config"
	"github.com/picc-digital/storyline/internal/model"
)

// SummarizeOptions tune the summary request.
type SummarizeOptions struct {
	// MaxWords caps the summary length; zero means the backend default.
	MaxWords int
	// Tone is a plain-language style hint, e.g. "warm", "formal".
	Tone string
}

// Client talks to the hosted AI backend.
type Client struct {
	http       *resty.Client
	model      string
	embedModel string
	logger     zerolog.Logger
}

func NewClient(cfg *config.Config, logger zerolog.Logger) *Client {
	c := resty.New().
		SetBaseURL(cfg.AIBaseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(60 * time.Second)
	if cfg.AIAPIKey != "" {
		c.SetAuthToken(cfg.AIAPIKey)
	}
	return &Client{
		http:       c,
		model:      cfg.AIModel,
		embedModel: cfg.EmbedModel,
		logger:     logger.With().Str("component", "aiproxy").Logger(),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Summarize produces a short summary of story content.
func (c *Client) Summarize(ctx context.Context, content string, opts SummarizeOptions) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("%w: content is empty", model.ErrValidation)
	}

	prompt := "Summarize the following community story for a public listing page."
	if opts.MaxWords > 0 {
		prompt += fmt.Sprintf(" Keep it under %d words.", opts.MaxWords)
	}
	if opts.Tone != "" {
		prompt += fmt.Sprintf(" Use a %s tone.", opts.Tone)
	}

	out, err := c.chat(ctx, prompt, content)
	if err != nil {
		return "", err
	}
	return out, nil
}

// StoryPrompts generates writing prompts for contributors around a topic.
func (c *Client) StoryPrompts(ctx context.Context, topic string) ([]string, error) {
	if strings.TrimSpace(topic) == "" {
		topic = "community life"
	}
	system := "You generate story-writing prompts for a community storytelling platform. " +
		"Return exactly five prompts, one per line, no numbering."
	out, err := c.chat(ctx, system, "Topic: "+topic)
	if err != nil {
		return nil, err
	}
	var prompts []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			prompts = append(prompts, line)
		}
	}
	return prompts, nil
}

func (c *Client) chat(ctx context.Context, system, user string) (string, error) {
	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(&reqBody).
		Post("/v1/chat/completions")
	if err != nil {
		return "", fmt.Errorf("%w: chat request: %v", model.ErrUpstream, err)
	}
	if resp.StatusCode() != http.StatusOK {
		c.logger.Warn().Int("status", resp.StatusCode()).Msg("AI backend rejected chat request")
		return "", fmt.Errorf("%w: AI backend returned %d", model.ErrUpstream, resp.StatusCode())
	}
	var cr chatResponse
	if err := json.Unmarshal(resp.Body(), &cr); err != nil {
		return "", fmt.Errorf("%w: decode chat response: %v", model.ErrUpstream, err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("%w: AI backend returned no choices", model.ErrUpstream)
	}
	return strings.TrimSpace(cr.Choices[0].Message.Content), nil
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
	} `json:"data"`
}

// Embed returns a dense vector for text, used by semantic search.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is empty", model.ErrValidation)
	}
	reqBody := embedRequest{Model: c.embedModel, Input: text}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(&reqBody).
		Post("/v1/embeddings")
	if err != nil {
		return nil, fmt.Errorf("%w: embed request: %v", model.ErrUpstream, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: AI backend returned %d", model.ErrUpstream, resp.StatusCode())
	}
	var er embedResponse
	if err := json.Unmarshal(resp.Body(), &er); err != nil {
		return nil, fmt.Errorf("%w: decode embed response: %v", model.ErrUpstream, err)
	}
	if len(er.Data) == 0 {
		return nil, fmt.Errorf("%w: AI backend returned no embedding", model.ErrUpstream)
	}
	vec := make([]float32, len(er.Data[0].Embedding))
	for i, v := range er.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec, nil
}

// HealthPing verifies the backend is reachable.
func (c *Client) HealthPing(ctx context.Context) error {
	resp, err := c.http.R().SetContext(ctx).Get("/v1/models")
	if err != nil {
		return err
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		return fmt.Errorf("AI backend unhealthy: status %d", resp.StatusCode())
	}
	return nil
}
