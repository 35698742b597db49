package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Message represents a role-tagged chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ErrShapeUnsupported is returned by an Upstream that does not implement a
// given call shape; the caller is expected to fall through to the next one.
var ErrShapeUnsupported = errors.New("call shape not supported by upstream")

// Upstream is the generation capability consumed by the invoker. No shape is
// assumed always available: any method may fail with ErrShapeUnsupported.
type Upstream interface {
	// CompleteMessages sends a role-tagged message array (system + user).
	CompleteMessages(ctx context.Context, messages []Message) (string, error)

	// CompleteWithSystem sends a plain user string with a separate system prompt.
	CompleteWithSystem(ctx context.Context, system, prompt string) (string, error)

	// CompleteQuiet sends one combined block without touching conversation state.
	CompleteQuiet(ctx context.Context, prompt string) (string, error)
}

// Client talks to an OpenAI-compatible server (LM Studio, llama.cpp, vLLM).
type Client struct {
	client  *http.Client
	baseURL string
	model   string
}

var _ Upstream = (*Client)(nil)

// NewClient creates a client for the given endpoint. model may be empty, in
// which case the server uses whatever model is loaded.
func NewClient(baseURL, model string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

// CompleteMessages sends messages to the chat completions endpoint and returns the response text.
func (c *Client) CompleteMessages(ctx context.Context, messages []Message) (string, error) {
	payload := map[string]interface{}{
		"messages": messages,
		"stream":   false,
	}
	if c.model != "" {
		payload["model"] = c.model
	}

	raw, err := c.post(ctx, "/v1/chat/completions", payload)
	if err != nil {
		return "", err
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("decode chat response: %v", err)
	}
	if len(result.Choices) == 0 {
		return "", errors.New("no choices in chat response")
	}
	return result.Choices[0].Message.Content, nil
}

// CompleteWithSystem sends a plain prompt plus a system_prompt field to the
// text completions endpoint. Servers without the extension reject the field,
// which surfaces as an ordinary call failure and lets the chain move on.
func (c *Client) CompleteWithSystem(ctx context.Context, system, prompt string) (string, error) {
	payload := map[string]interface{}{
		"prompt":        prompt,
		"system_prompt": system,
		"stream":        false,
	}
	if c.model != "" {
		payload["model"] = c.model
	}
	return c.completeText(ctx, payload)
}

// CompleteQuiet sends one combined block to the text completions endpoint.
func (c *Client) CompleteQuiet(ctx context.Context, prompt string) (string, error) {
	payload := map[string]interface{}{
		"prompt": prompt,
		"stream": false,
	}
	if c.model != "" {
		payload["model"] = c.model
	}
	return c.completeText(ctx, payload)
}

func (c *Client) completeText(ctx context.Context, payload map[string]interface{}) (string, error) {
	raw, err := c.post(ctx, "/v1/completions", payload)
	if err != nil {
		return "", err
	}

	var result struct {
		Choices []struct {
			Text string `json:"text"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("decode completion response: %v", err)
	}
	if len(result.Choices) == 0 {
		return "", errors.New("no choices in completion response")
	}
	return result.Choices[0].Text, nil
}

func (c *Client) post(ctx context.Context, path string, payload map[string]interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("upstream returned status %d but reading body failed: %v", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream error (status %d): %s", resp.StatusCode, string(respBody))
	}
	return respBody, nil
}

// HealthCheck checks that the upstream server is reachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("upstream not reachable: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}
	return nil
}
