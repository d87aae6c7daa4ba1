package embedding

import (
	"context"
	"fmt"

	"github.com/AnantSomani/elara2/internal/domain"
	"github.com/go-resty/resty/v2"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Client generates text embeddings through an OpenAI-compatible API.
type Client struct {
	client     *resty.Client
	model      string
	dimensions int
}

// Config holds configuration for the embedding client.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
}

// NewClient creates an embedding client from config.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Authorization", "Bearer "+cfg.APIKey).
		SetHeader("Content-Type", "application/json")

	return &Client{
		client:     client,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
}

// Model returns the model name being used.
func (c *Client) Model() string {
	return c.model
}

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Embed generates an embedding for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, &domain.ExternalServiceError{
			Service: "embeddings",
			Err:     fmt.Errorf("no embedding returned"),
		}
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for multiple texts. Results are
// returned in input order.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	req := embeddingRequest{
		Model:      c.model,
		Input:      texts,
		Dimensions: c.dimensions,
	}

	var body embeddingResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&body).
		Post("/embeddings")
	if err != nil {
		return nil, &domain.ExternalServiceError{Service: "embeddings", Err: err}
	}
	if resp.IsError() {
		msg := body.Error.Message
		if msg == "" {
			msg = fmt.Sprintf("status %d", resp.StatusCode())
		}
		return nil, &domain.ExternalServiceError{
			Service: "embeddings",
			Err:     fmt.Errorf("%s", msg),
		}
	}
	if len(body.Data) != len(texts) {
		return nil, &domain.ExternalServiceError{
			Service: "embeddings",
			Err:     fmt.Errorf("got %d embeddings for %d inputs", len(body.Data), len(texts)),
		}
	}

	// The API reports an index per item; order by it rather than
	// trusting response order.
	embeddings := make([][]float32, len(texts))
	for _, item := range body.Data {
		if item.Index >= 0 && item.Index < len(embeddings) {
			embeddings[item.Index] = item.Embedding
		}
	}
	return embeddings, nil
}
