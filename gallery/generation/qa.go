package generation

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/ZanzyTHEbar/twinkle-gallery/gallery/dataset"
	ports "github.com/ZanzyTHEbar/twinkle-gallery/gallery/generation/ports"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"
)

const (
	minTemperature = 0.1
	maxTemperature = 0.8
)

var errEmptyCompletion = errors.New("empty completion")

// RandomTemperature draws a sampling temperature uniformly from [0.1, 0.8],
// rounded to two decimals.
func RandomTemperature() float32 {
	t := minTemperature + rand.Float64()*(maxTemperature-minTemperature)
	return float32(math.Round(t*100) / 100)
}

// QAOptions configures a QAGenerator.
type QAOptions struct {
	Model          string
	SupportsVision bool
	BackgroundProb float64
}

// QAGenerator drafts a question about a record's image and an answer grounded
// on the record's text. It never returns an error: every failure degrades to
// a fallback string.
type QAGenerator struct {
	provider  ports.Provider
	opts      QAOptions
	sanitizer *Sanitizer
	tracer    ports.Tracer
	logger    zerolog.Logger

	// coin returns a value in [0, 1); replaced in tests.
	coin func() float64
}

// NewQAGenerator creates a generator. A nil provider means generation is not
// configured; Question and Answer then return their fallbacks.
func NewQAGenerator(provider ports.Provider, opts QAOptions, tracer ports.Tracer, logger zerolog.Logger) *QAGenerator {
	if tracer == nil {
		tracer = noOpTracer{}
	}
	opts.BackgroundProb = math.Max(0, math.Min(1, opts.BackgroundProb))
	return &QAGenerator{
		provider:  provider,
		opts:      opts,
		sanitizer: NewSanitizer(),
		tracer:    tracer,
		logger:    logger,
		coin:      rand.Float64,
	}
}

// Available reports whether a provider is configured.
func (g *QAGenerator) Available() bool {
	return g != nil && g.provider != nil
}

// Model is the configured model name stamped onto records.
func (g *QAGenerator) Model() string {
	return g.opts.Model
}

// Question asks the model for a single question about the record's image.
func (g *QAGenerator) Question(ctx context.Context, rec dataset.Record, temperature float32) string {
	fallback := FallbackQuestion(rec.ImagePath)
	if !g.Available() || !g.opts.SupportsVision {
		return fallback
	}

	img, ok := g.imageFor(rec)
	if !ok {
		return fallback
	}

	in := ports.PromptInput{
		System: questionSystemPrompt,
		Messages: []ports.PromptMessage{
			{Role: string(dataset.RoleUser), Content: questionUserPrompt, Images: []ports.Image{img}},
		},
		Meta: map[string]string{"kind": "question", "image": rec.ImagePath},
	}

	text, err := g.complete(ctx, "question", in, ports.Options{Temperature: temperature})
	if err != nil {
		g.logger.Warn().Err(err).Str("image", rec.ImagePath).Msg("question generation failed, using fallback")
		return fallback
	}
	return text
}

// Answer asks the model to answer question from the record's text, attaching
// the image when the model supports vision. The result is sanitized.
func (g *QAGenerator) Answer(ctx context.Context, rec dataset.Record, question string, temperature float32) string {
	if !g.Available() {
		return FallbackAnswer
	}

	background := g.coin() < g.opts.BackgroundProb
	msg := ports.PromptMessage{
		Role:    string(dataset.RoleUser),
		Content: answerUserPrompt(question, rec.Text, background),
	}
	if g.opts.SupportsVision {
		if img, ok := g.imageFor(rec); ok {
			msg.Images = []ports.Image{img}
		}
	}

	in := ports.PromptInput{
		System:   answerSystemPrompt,
		Messages: []ports.PromptMessage{msg},
		Meta:     map[string]string{"kind": "answer", "image": rec.ImagePath},
	}

	text, err := g.complete(ctx, "answer", in, ports.Options{Temperature: temperature})
	if err != nil {
		g.logger.Warn().Err(err).Str("image", rec.ImagePath).Msg("answer generation failed, using fallback")
		return FallbackAnswer
	}

	out := g.sanitizer.Sanitize(text)
	if out == "" {
		return FallbackAnswer
	}
	return out
}

func (g *QAGenerator) imageFor(rec dataset.Record) (ports.Image, bool) {
	info := dataset.InspectImage(rec.ImagePath)
	if !info.Exists {
		return ports.Image{}, false
	}
	data, err := info.Base64()
	if err != nil {
		g.logger.Debug().Err(err).Str("image", rec.ImagePath).Msg("image not attached")
		return ports.Image{}, false
	}
	return ports.Image{MIME: info.MIME, Data: data}, true
}

// complete calls the provider once. Panics raised inside the SDK are turned
// into errors.
func (g *QAGenerator) complete(ctx context.Context, kind string, in ports.PromptInput, opts ports.Options) (text string, err error) {
	ctx, finish := g.tracer.StartSpan(ctx, "generation."+kind, map[string]any{
		"model":       g.opts.Model,
		"temperature": opts.Temperature,
		"images":      countImages(in.Messages),
	})
	defer func() { finish(err) }()

	var rsp ports.Completion
	var pc panics.Catcher
	pc.Try(func() {
		rsp, err = g.provider.Complete(ctx, in, opts)
	})
	if r := pc.Recovered(); r != nil {
		return "", r.AsError()
	}
	if err != nil {
		return "", err
	}

	if rsp.Usage != nil {
		g.tracer.Event(ctx, "generation.usage", map[string]any{
			"prompt_tokens":     rsp.Usage.PromptTokens,
			"completion_tokens": rsp.Usage.CompletionTokens,
		})
	}

	text = strings.TrimSpace(rsp.Text)
	if text == "" {
		return "", errEmptyCompletion
	}
	return text, nil
}

func countImages(msgs []ports.PromptMessage) int {
	n := 0
	for _, m := range msgs {
		n += len(m.Images)
	}
	return n
}
