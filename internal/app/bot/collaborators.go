package bot

import "context"

// The core treats the chat platform, the AI inference service and the
// commerce catalog as opaque collaborators reachable through these
// interfaces. Which product or color they pick is their business.

type FileInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	URL      string `json:"url"`
}

// ChatClient sends replies and resolves file metadata on the chat platform.
type ChatClient interface {
	PostMessage(ctx context.Context, channelID, text string) error
	FileInfo(ctx context.Context, fileID string) (FileInfo, error)
}

// IntentAnalysis is the inference result for a user message.
type IntentAnalysis struct {
	Intent string   `json:"intent"`
	Colors []string `json:"colors,omitempty"`
}

// AIClient runs inference calls. These are the expensive operations the
// cache shields.
type AIClient interface {
	AnalyzeIntent(ctx context.Context, text string) (IntentAnalysis, error)
	AnalyzeLogoColors(ctx context.Context, logoURL string) ([]string, error)
}

type Product struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Color string `json:"color,omitempty"`
}

type Mockup struct {
	ProductID string `json:"product_id"`
	ImageURL  string `json:"image_url"`
}

// CatalogClient talks to the print-on-demand catalog API.
type CatalogClient interface {
	RecommendProducts(ctx context.Context, intent string, reqCtx map[string]any) ([]Product, error)
	CreateMockup(ctx context.Context, productID, logoURL, color string) (Mockup, error)
}
