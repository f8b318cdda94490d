package llm

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-scraper/pkg/anthropic"
)

const defaultMaxTokens = 4096

// Anthropic completes prompts with a Claude model.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropic wraps an Anthropic client. maxTokens <= 0 uses 4096.
func NewAnthropic(client anthropic.Client, model string, maxTokens int64) *Anthropic {
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	return &Anthropic{client: client, model: model, maxTokens: maxTokens}
}

// Name implements Completer.
func (a *Anthropic) Name() string { return "anthropic" }

// Complete implements Completer. The system prompt is marked cacheable
// since it is identical across calls.
func (a *Anthropic) Complete(ctx context.Context, system, user string) (*Completion, error) {
	temp := 0.0
	resp, err := a.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System: []anthropic.SystemBlock{
			{Text: system, CacheControl: &anthropic.CacheControl{TTL: "5m"}},
		},
		Messages:    []anthropic.Message{{Role: "user", Content: user}},
		Temperature: &temp,
	})
	if err != nil {
		return nil, eris.Wrap(err, "llm: anthropic")
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, eris.Wrapf(ErrEmptyCompletion, "llm: anthropic stop_reason=%s", resp.StopReason)
	}

	model := resp.Model
	if model == "" {
		model = a.model
	}
	return &Completion{
		Text:  text,
		Model: model,
		Usage: Usage{
			InputTokens:  resp.Usage.InputTokens + resp.Usage.CacheCreationInputTokens + resp.Usage.CacheReadInputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}, nil
}
