package generationports

import (
	"context"
)

// Image is an inline image attached to a prompt message.
type Image struct {
	MIME string // e.g. "image/jpeg"
	Data string // base64 payload without the data URL prefix
}

// DataURL renders the image as a data URL.
func (i Image) DataURL() string {
	return "data:" + i.MIME + ";base64," + i.Data
}

// PromptMessage represents a single chat message used to build prompts.
type PromptMessage struct {
	Role    string // "user", "assistant"
	Content string
	Images  []Image
}

// PromptInput aggregates everything the provider needs to produce a completion.
type PromptInput struct {
	System   string            // high-level system instructions
	Messages []PromptMessage   // ordered chat history
	Meta     map[string]string // lightweight metadata for tracing
}

// Options controls sampling and limits.
type Options struct {
	MaxNewTokens int
	Temperature  float32
}

// Usage captures token accounting for telemetry.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Completion is the provider's non-streaming response.
type Completion struct {
	Text  string
	Model string
	Usage *Usage // optional usage information
}

// Provider is the abstraction for all LLM backends.
type Provider interface {
	Complete(ctx context.Context, in PromptInput, opts Options) (Completion, error)
}
