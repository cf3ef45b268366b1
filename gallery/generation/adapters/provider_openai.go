package adapters

import (
	"context"
	"errors"

	ports "github.com/ZanzyTHEbar/twinkle-gallery/gallery/generation/ports"
	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider talks to any OpenAI compatible chat completions endpoint.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates a provider. An empty baseURL uses the OpenAI API.
func NewOpenAIProvider(apiKey, baseURL, model string) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

// Complete sends one chat completion request.
func (p *OpenAIProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(in.Messages)+1)
	if in.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: in.System,
		})
	}
	for _, m := range in.Messages {
		messages = append(messages, toOpenAIMessage(m))
	}

	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxNewTokens,
	}

	rsp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return ports.Completion{}, err
	}

	if len(rsp.Choices) == 0 || len(rsp.Choices[0].Message.Content) == 0 {
		return ports.Completion{}, errors.New("no response from OpenAI")
	}

	return ports.Completion{
		Text:  rsp.Choices[0].Message.Content,
		Model: rsp.Model,
		Usage: &ports.Usage{
			PromptTokens:     rsp.Usage.PromptTokens,
			CompletionTokens: rsp.Usage.CompletionTokens,
			TotalTokens:      rsp.Usage.TotalTokens,
		},
	}, nil
}

func toOpenAIMessage(m ports.PromptMessage) openai.ChatCompletionMessage {
	role := openai.ChatMessageRoleUser
	if m.Role == openai.ChatMessageRoleAssistant {
		role = openai.ChatMessageRoleAssistant
	}

	if len(m.Images) == 0 {
		return openai.ChatCompletionMessage{Role: role, Content: m.Content}
	}

	parts := []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: m.Content},
	}
	for _, img := range m.Images {
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: img.DataURL()},
		})
	}
	return openai.ChatCompletionMessage{Role: role, MultiContent: parts}
}

var _ ports.Provider = (*OpenAIProvider)(nil)
