package llm

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/company-scraper/internal/config"
	"github.com/sells-group/company-scraper/pkg/anthropic"
)

// New builds the completer selected by cfg.LLM.Provider.
func New(cfg *config.Config) (Completer, error) {
	switch cfg.LLM.Provider {
	case "", "anthropic":
		if cfg.Anthropic.Key == "" {
			return nil, eris.New("llm: anthropic.key is required")
		}
		return NewAnthropic(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic.Model, cfg.Anthropic.MaxTokens), nil
	case "openai":
		if cfg.OpenAI.Key == "" {
			return nil, eris.New("llm: openai.key is required")
		}
		return NewOpenAI(cfg.OpenAI.Key, cfg.OpenAI.Model, cfg.OpenAI.BaseURL), nil
	default:
		return nil, eris.Errorf("llm: unknown provider %q", cfg.LLM.Provider)
	}
}
