package agent

import (
	"context"

	"github.com/MikeSquared-Agency/lure/internal/anthropic"
)

// replyMaxTokens keeps generated replies to a line or two.
const replyMaxTokens = 150

// Completer is the part of the Anthropic client the agent uses.
type Completer interface {
	Complete(ctx context.Context, system string, messages []anthropic.Message, maxTokens int) (string, error)
}

// LLMGenerator adapts a Messages API client into a Generator.
type LLMGenerator struct {
	llm Completer
}

func NewLLMGenerator(llm Completer) *LLMGenerator {
	return &LLMGenerator{llm: llm}
}

func (g *LLMGenerator) Generate(ctx context.Context, p Prompt) (string, error) {
	return g.llm.Complete(ctx, p.System, []anthropic.Message{
		{Role: "user", Content: p.User},
	}, replyMaxTokens)
}
