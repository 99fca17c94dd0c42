package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultHuggingFaceURL = "https://api-inference.huggingface.co/pipeline/feature-extraction/"

// HuggingFaceModel embeds with the Inference API feature-extraction pipeline.
type HuggingFaceModel struct {
	client *resty.Client
	model  string
}

func NewHuggingFaceModel(apiKey, modelName, baseURL string, timeout time.Duration) (*HuggingFaceModel, error) {
	if baseURL == "" {
		baseURL = defaultHuggingFaceURL
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &HuggingFaceModel{client: client, model: modelName}, nil
}

func (m *HuggingFaceModel) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

func (m *HuggingFaceModel) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var embeddings [][]float32
	resp, err := m.client.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"inputs":  texts,
			"options": map[string]bool{"wait_for_model": true},
		}).
		SetResult(&embeddings).
		Post(m.model)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("huggingface returned status %d: %s", resp.StatusCode(), resp.String())
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("huggingface returned %d embeddings for %d inputs", len(embeddings), len(texts))
	}
	return embeddings, nil
}
