package embedding

import (
	"fmt"
	"time"

	"github.com/Rishav0123/sentimatix/internal/config"
)

// NewEmdModel builds the raw provider client named by cfg.Provider.
func NewEmdModel(cfg config.EmbeddingConfig) (Embedding, error) {
	timeout := config.Duration(cfg.Timeout, 15*time.Second)
	switch ModelType(cfg.Provider) {
	case Google:
		return NewGoogleModel(cfg.APIKey, cfg.Model)
	case OpenAI:
		return NewOpenAIModel(cfg.APIKey, cfg.Model, cfg.BaseURL)
	case HuggingFace:
		return NewHuggingFaceModel(cfg.APIKey, cfg.Model, cfg.BaseURL, timeout)
	case Ollama:
		return NewOllamaModel(cfg.Model, cfg.BaseURL, timeout)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
}
