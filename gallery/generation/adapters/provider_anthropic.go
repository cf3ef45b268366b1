package adapters

import (
	"context"
	"errors"
	"strings"

	ports "github.com/ZanzyTHEbar/twinkle-gallery/gallery/generation/ports"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	anthropicopt "github.com/anthropics/anthropic-sdk-go/option"
)

const defaultAnthropicMaxTokens = 1024

// AnthropicProvider talks to the Anthropic messages API.
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicProvider creates a provider for model.
func NewAnthropicProvider(apiKey, model string) *AnthropicProvider {
	client := anthropic.NewClient(
		anthropicopt.WithAPIKey(apiKey),
	)
	return &AnthropicProvider{
		client: &client,
		model:  model,
	}
}

// Complete sends one messages request.
func (p *AnthropicProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	maxTokens := int64(opts.MaxNewTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	req := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   maxTokens,
		Messages:    make([]anthropic.MessageParam, 0, len(in.Messages)),
		Temperature: anthropic.Float(float64(opts.Temperature)),
	}
	if in.System != "" {
		req.System = []anthropic.TextBlockParam{{Text: in.System}}
	}
	for _, m := range in.Messages {
		blocks := []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(m.Content)}
		for _, img := range m.Images {
			blocks = append(blocks, anthropic.NewImageBlockBase64(img.MIME, img.Data))
		}
		if m.Role == "assistant" {
			req.Messages = append(req.Messages, anthropic.NewAssistantMessage(blocks...))
		} else {
			req.Messages = append(req.Messages, anthropic.NewUserMessage(blocks...))
		}
	}

	rsp, err := p.client.Messages.New(ctx, req)
	if err != nil {
		return ports.Completion{}, err
	}

	var b strings.Builder
	for _, content := range rsp.Content {
		if text, ok := content.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(text.Text)
		}
	}

	result := b.String()
	if len(result) == 0 {
		return ports.Completion{}, errors.New("no response from Anthropic")
	}

	return ports.Completion{
		Text:  result,
		Model: string(rsp.Model),
		Usage: &ports.Usage{
			PromptTokens:     int(rsp.Usage.InputTokens),
			CompletionTokens: int(rsp.Usage.OutputTokens),
			TotalTokens:      int(rsp.Usage.InputTokens + rsp.Usage.OutputTokens),
		},
	}, nil
}

var _ ports.Provider = (*AnthropicProvider)(nil)
