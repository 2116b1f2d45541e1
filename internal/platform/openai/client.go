package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"merchbot/internal/app/bot"

	"go.uber.org/zap"
)

// Client runs the two inference calls the core depends on. Prompting and
// model choice live here; the core only sees the structured results.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	logger     *zap.Logger
}

func NewClient(baseURL, apiKey, model string, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 25 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
		model:      model,
		logger:     logger,
	}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

const intentPrompt = `Extract the purchase intent and any requested colors from this message.
Respond as JSON: {"intent": "...", "colors": ["..."]}.
Message: `

func (c *Client) AnalyzeIntent(ctx context.Context, text string) (bot.IntentAnalysis, error) {
	content, err := c.complete(ctx, []chatMessage{
		{Role: "user", Content: intentPrompt + text},
	})
	if err != nil {
		return bot.IntentAnalysis{}, err
	}

	var analysis bot.IntentAnalysis
	if err := json.Unmarshal([]byte(content), &analysis); err != nil {
		return bot.IntentAnalysis{}, fmt.Errorf("parse intent response: %w", err)
	}
	return analysis, nil
}

func (c *Client) AnalyzeLogoColors(ctx context.Context, logoURL string) ([]string, error) {
	content, err := c.complete(ctx, []chatMessage{
		{Role: "user", Content: []map[string]any{
			{"type": "text", "text": `List the dominant colors of this logo as JSON: {"colors": ["..."]}.`},
			{"type": "image_url", "image_url": map[string]string{"url": logoURL}},
		}},
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Colors []string `json:"colors"`
	}
	if err := json.Unmarshal([]byte(content), &parsed); err != nil {
		return nil, fmt.Errorf("parse color response: %w", err)
	}
	return parsed.Colors, nil
}

func (c *Client) complete(ctx context.Context, messages []chatMessage) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:          c.model,
		Messages:       messages,
		ResponseFormat: &responseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", fmt.Errorf("encode completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("inference request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("inference api returned %d", httpResp.StatusCode)
	}

	var resp chatResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("completion response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
