package embedding

import "context"

// Embedding turns text into dense vectors.
type Embedding interface {
	Embed(ctx context.Context, text string) ([]float32, error)

	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ModelType names a supported embedding provider.
type ModelType string

const (
	OpenAI      ModelType = "openai"
	Google      ModelType = "gemini"
	Ollama      ModelType = "ollama"
	HuggingFace ModelType = "huggingface"
)
