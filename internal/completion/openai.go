package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

const maxErrorBodyBytes = 512

type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature *float64
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// OpenAIClient talks to any OpenAI-compatible chat completions endpoint
// (Groq by default).
type OpenAIClient struct {
	baseURL     string
	apiKey      string
	model       string
	temperature *float64
	client      *http.Client
}

func NewOpenAIClient(cfg OpenAIConfig) (*OpenAIClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "llama-3.3-70b-versatile"
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 60 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	return &OpenAIClient{
		baseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		client:      client,
	}, nil
}

func (c *OpenAIClient) Model() string {
	return c.model
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends prompt as a single user message and returns the first
// choice's content untouched.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", &UpstreamError{Op: "request chat completion", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	rawRespBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &UpstreamError{Op: "read chat response body", Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &UpstreamError{
			Op:         "chat completion failed",
			StatusCode: resp.StatusCode,
			Body:       truncate(string(rawRespBody), maxErrorBodyBytes),
		}
	}

	var parsed chatResponse
	if err := json.Unmarshal(rawRespBody, &parsed); err != nil {
		return "", &UpstreamError{Op: "decode chat completion response", Err: err}
	}
	if len(parsed.Choices) == 0 {
		return NoSQLReturned, nil
	}
	message := parsed.Choices[0].Message
	if message == nil || message.Content == nil || *message.Content == "" {
		return NoSQLReturned, nil
	}
	return *message.Content, nil
}

// truncate cuts value to at most limit bytes without splitting a UTF-8
// sequence.
func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(value[cut]) {
		cut--
	}
	return value[:cut] + "..."
}
