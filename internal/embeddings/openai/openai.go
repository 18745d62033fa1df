package openai

import (
	"context"
	"errors"
	"fmt"

	oa "github.com/sashabaranov/go-openai"
)

// Provider generates embeddings through an OpenAI-compatible endpoint.
type Provider struct {
	client *oa.Client
	model  oa.EmbeddingModel
}

func New(apiKey, baseURL, model string) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("API key is required")
	}
	cfg := oa.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = string(oa.SmallEmbedding3)
	}
	return &Provider{client: oa.NewClientWithConfig(cfg), model: oa.EmbeddingModel(model)}, nil
}

func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, oa.EmbeddingRequest{
		Input: []string{text},
		Model: p.model,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai embeddings returned no data")
	}
	return resp.Data[0].Embedding, nil
}

// HealthPing implements health.HealthPinger by embedding a constant probe.
func (p *Provider) HealthPing(ctx context.Context) error {
	_, err := p.Embed(ctx, "ping")
	return err
}
