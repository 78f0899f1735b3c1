package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"paper-trading-bot/internal/circuit"
)

// ErrNoAPIKey means the client was built without credentials; callers
// treat the AI path as unavailable rather than failing the cycle.
var ErrNoAPIKey = errors.New("llm: api key not configured")

// ErrAuthRejected means the API key was rejected. The client disables
// itself after the first 401 so every cycle does not re-burn a request.
var ErrAuthRejected = errors.New("llm: authentication rejected")

// Client talks to an OpenRouter-compatible chat completions API.
type Client struct {
	apiKey  string
	baseURL string
	model   string
	http    *http.Client
	breaker *circuit.Breaker

	mu           sync.Mutex
	authDisabled bool
}

func NewClient(apiKey, baseURL, model string, timeout time.Duration) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		model:   model,
		http:    &http.Client{Timeout: timeout},
		// Stop hammering a failing provider; signal cycles fall back to rules.
		breaker: circuit.NewBreaker(3, 2*time.Minute),
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends a single-turn prompt and returns the raw model output.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	if c.apiKey == "" {
		return "", ErrNoAPIKey
	}
	c.mu.Lock()
	disabled := c.authDisabled
	c.mu.Unlock()
	if disabled {
		return "", ErrAuthRejected
	}
	if err := c.breaker.Allow(); err != nil {
		return "", fmt.Errorf("llm provider unavailable: %w", err)
	}

	payload, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0.7,
		MaxTokens:   500,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.breaker.Record(err)
		return "", fmt.Errorf("chat completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.mu.Lock()
		c.authDisabled = true
		c.mu.Unlock()
		return "", ErrAuthRejected
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("chat completion status %d: %s", resp.StatusCode, string(body))
		c.breaker.Record(err)
		return "", err
	}
	c.breaker.Record(nil)

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding chat response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("chat response has no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}
