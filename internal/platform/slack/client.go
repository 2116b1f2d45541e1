package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"merchbot/internal/app/bot"

	"go.uber.org/zap"
)

// Client is a minimal chat-platform client covering the two calls the core
// needs: posting a message and resolving file metadata.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *zap.Logger
}

func NewClient(baseURL, token string, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
		token:      token,
		logger:     logger,
	}
}

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	File  struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		Mimetype   string `json:"mimetype"`
		URLPrivate string `json:"url_private"`
	} `json:"file"`
}

func (c *Client) PostMessage(ctx context.Context, channelID, text string) error {
	body, err := json.Marshal(map[string]string{"channel": channelID, "text": text})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat.postMessage", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	if !resp.OK {
		return fmt.Errorf("chat.postMessage failed: %s", resp.Error)
	}
	return nil
}

func (c *Client) FileInfo(ctx context.Context, fileID string) (bot.FileInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/files.info?file="+url.QueryEscape(fileID), nil)
	if err != nil {
		return bot.FileInfo{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.do(req)
	if err != nil {
		return bot.FileInfo{}, err
	}
	if !resp.OK {
		return bot.FileInfo{}, fmt.Errorf("files.info failed: %s", resp.Error)
	}
	return bot.FileInfo{
		ID:       resp.File.ID,
		Name:     resp.File.Name,
		MimeType: resp.File.Mimetype,
		URL:      resp.File.URLPrivate,
	}, nil
}

func (c *Client) do(req *http.Request) (*apiResponse, error) {
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat api request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 500 {
		return nil, fmt.Errorf("chat api returned %d", httpResp.StatusCode)
	}

	var resp apiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode chat api response: %w", err)
	}
	return &resp, nil
}
