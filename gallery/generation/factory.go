package generation

import (
	"context"
	"strings"

	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/config"
	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/generation/adapters"
	ports "github.com/ZanzyTHEbar/twinkle-gallery/gallery/generation/ports"
	"github.com/rs/zerolog"
)

// Factory creates and wires generation components from configuration.
type Factory struct {
	llmConfig config.LLMConfig
	logger    zerolog.Logger
}

// NewFactory creates a new generation factory.
func NewFactory(llmConfig config.LLMConfig, logger zerolog.Logger) *Factory {
	return &Factory{
		llmConfig: llmConfig,
		logger:    logger,
	}
}

// CreateGenerator creates a QAGenerator. Whether a provider is available is
// decided here, once; an unconfigured provider yields a generator whose
// Available reports false.
func (f *Factory) CreateGenerator() *QAGenerator {
	provider := f.CreateProvider()
	if provider == nil {
		f.logger.Warn().
			Str("provider", f.llmConfig.Provider).
			Msg("generation is not configured; set MY_API_BASE and OPENAI_API_KEY")
	}

	return NewQAGenerator(provider, QAOptions{
		Model:          f.llmConfig.Model,
		SupportsVision: f.llmConfig.SupportsVision,
		BackgroundProb: f.llmConfig.BackgroundProb,
	}, f.createTracer(), f.logger)
}

// CreateProvider returns the configured provider, or nil when credentials
// are missing.
func (f *Factory) CreateProvider() ports.Provider {
	if !f.llmConfig.Configured() {
		return nil
	}

	switch strings.ToLower(f.llmConfig.Provider) {
	case "anthropic":
		return adapters.NewAnthropicProvider(f.llmConfig.AnthropicAPIKey, f.llmConfig.Model)
	default:
		return adapters.NewOpenAIProvider(f.llmConfig.APIKey, f.llmConfig.APIBase, f.llmConfig.Model)
	}
}

// createTracer traces generation calls only when debug logging is on.
func (f *Factory) createTracer() ports.Tracer {
	if f.logger.GetLevel() > zerolog.DebugLevel {
		return &noOpTracer{}
	}

	return adapters.NewZerologTracer(f.logger)
}

// noOpTracer implements Tracer interface with no-op behavior.
type noOpTracer struct{}

func (t noOpTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	return ctx, func(err error) {}
}

func (t noOpTracer) Event(ctx context.Context, name string, attrs map[string]any) {}

var _ ports.Tracer = noOpTracer{}
