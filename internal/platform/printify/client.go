package printify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"merchbot/internal/app/bot"

	"go.uber.org/zap"
)

// Client talks to the print-on-demand catalog API. Recommendation is a
// keyword match over the blueprint catalog; mockup creation publishes a
// draft product carrying the logo.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	shopID     string
	logger     *zap.Logger
}

func NewClient(baseURL, token, shopID string, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    baseURL,
		token:      token,
		shopID:     shopID,
		logger:     logger,
	}
}

type blueprint struct {
	ID    json.Number `json:"id"`
	Title string      `json:"title"`
	Brand string      `json:"brand"`
}

func (c *Client) RecommendProducts(ctx context.Context, intent string, reqCtx map[string]any) ([]bot.Product, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/catalog/blueprints.json", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog api returned %d", httpResp.StatusCode)
	}

	var blueprints []blueprint
	if err := json.NewDecoder(httpResp.Body).Decode(&blueprints); err != nil {
		return nil, fmt.Errorf("decode catalog response: %w", err)
	}

	color := firstColor(reqCtx)
	products := make([]bot.Product, 0, 5)
	terms := strings.Fields(strings.ToLower(intent))
	for _, b := range blueprints {
		if matches(strings.ToLower(b.Title), terms) {
			products = append(products, bot.Product{ID: b.ID.String(), Title: b.Title, Color: color})
			if len(products) == 5 {
				break
			}
		}
	}
	// Empty result means the intent was too specific; fall back to the
	// catalog's leading entries so the user always gets suggestions.
	if len(products) == 0 {
		for i := 0; i < len(blueprints) && i < 3; i++ {
			products = append(products, bot.Product{ID: blueprints[i].ID.String(), Title: blueprints[i].Title, Color: color})
		}
	}
	return products, nil
}

func (c *Client) CreateMockup(ctx context.Context, productID, logoURL, color string) (bot.Mockup, error) {
	body, err := json.Marshal(map[string]any{
		"blueprint_id": productID,
		"title":        "Custom logo product",
		"print_areas": []map[string]any{
			{"placement": "front", "image_url": logoURL},
		},
		"color": color,
	})
	if err != nil {
		return bot.Mockup{}, fmt.Errorf("encode mockup request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/shops/%s/products.json", c.baseURL, c.shopID), bytes.NewReader(body))
	if err != nil {
		return bot.Mockup{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return bot.Mockup{}, fmt.Errorf("mockup request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusCreated {
		return bot.Mockup{}, fmt.Errorf("mockup api returned %d", httpResp.StatusCode)
	}

	var resp struct {
		ID     json.Number `json:"id"`
		Images []struct {
			Src string `json:"src"`
		} `json:"images"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return bot.Mockup{}, fmt.Errorf("decode mockup response: %w", err)
	}

	mockup := bot.Mockup{ProductID: productID}
	if len(resp.Images) > 0 {
		mockup.ImageURL = resp.Images[0].Src
	}
	return mockup, nil
}

func matches(title string, terms []string) bool {
	for _, t := range terms {
		if strings.Contains(title, t) {
			return true
		}
	}
	return false
}

func firstColor(reqCtx map[string]any) string {
	colors, ok := reqCtx["colors"].([]string)
	if ok && len(colors) > 0 {
		return colors[0]
	}
	return ""
}
