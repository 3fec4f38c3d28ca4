package llm

import "context"

type Message struct {
	Role    string
	Content string
}

type Response struct {
	Content          string
	Model            string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Client is the one collaborator contract: structured prompt in, JSON
// text out. Implementations request a JSON-object response where the
// backing API supports it; callers own parsing and shape validation.
type Client interface {
	Generate(ctx context.Context, messages []Message) (Response, error)
}
