// Package llm adapts chat model APIs to the single completion call the
// extraction step makes.
package llm

import (
	"context"

	"github.com/rotisserie/eris"
)

// Usage is the token count of one completion.
type Usage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Completion is a model's reply.
type Completion struct {
	Text  string `json:"text"`
	Model string `json:"model"`
	Usage Usage  `json:"usage"`
}

// Completer sends one system + user prompt pair and returns the reply.
type Completer interface {
	Complete(ctx context.Context, system, user string) (*Completion, error)
	Name() string
}

// ErrEmptyCompletion is returned when the model replies with no text.
var ErrEmptyCompletion = eris.New("llm: empty completion")
