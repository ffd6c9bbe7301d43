// Package translator provides the text translation capability used by the
// PDF pipeline. Paragraph text reaches it with formula spans already
// replaced by {v<n>} reference tokens; the translation model is instructed
// to leave those tokens verbatim.
package translator

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"pdf-translator/internal/logger"
	"pdf-translator/internal/types"
)

const (
	// DefaultMaxRetries is the bounded per-call retry budget.
	DefaultMaxRetries = 3
	// BaseRetryDelay is the base delay for exponential backoff.
	BaseRetryDelay = 2 * time.Second
)

// TokenPattern matches the inline formula reference tokens embedded in
// paragraph text.
var TokenPattern = regexp.MustCompile(`\{\s*v\d+\s*\}`)

// tokenOnly matches text consisting of a single reference token.
var tokenOnly = regexp.MustCompile(`^\s*\{v\d+\}\s*$`)

// Translator is the external translation capability consumed by the
// dispatcher. Implementations must not alter {v<n>} tokens; callers treat
// any error as recoverable and keep the original text.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
	TargetLanguage() string
}

// chatModel is the narrow slice of eino's chat model used here.
type chatModel interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// Engine translates text through an OpenAI-compatible chat model.
type Engine struct {
	model      chatModel
	sourceLang string
	targetLang string
	maxRetries int
	baseDelay  time.Duration
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	SourceLang string
	TargetLang string
	MaxRetries int
	Timeout    time.Duration
}

// NewEngine creates a translation engine backed by the configured
// OpenAI-compatible endpoint.
func NewEngine(ctx context.Context, cfg EngineConfig) (*Engine, error) {
	if cfg.APIKey == "" {
		return nil, types.NewAppError(types.ErrConfig, "translation API key is not configured", nil)
	}
	temperature := float32(0)
	cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: &temperature,
		Timeout:     cfg.Timeout,
	})
	if err != nil {
		return nil, types.NewAppError(types.ErrConfig, "failed to create chat model", err)
	}
	return newEngine(cm, cfg), nil
}

func newEngine(cm chatModel, cfg EngineConfig) *Engine {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	sourceLang := cfg.SourceLang
	if sourceLang == "" {
		sourceLang = "en"
	}
	return &Engine{
		model:      cm,
		sourceLang: sourceLang,
		targetLang: cfg.TargetLang,
		maxRetries: maxRetries,
		baseDelay:  BaseRetryDelay,
	}
}

// TargetLanguage returns the configured target language code.
func (e *Engine) TargetLanguage() string { return e.targetLang }

// Translate translates one paragraph, retrying transient failures with
// exponential backoff. Empty or token-only input is returned unchanged
// without an API call.
func (e *Engine) Translate(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" || tokenOnly.MatchString(text) {
		return text, nil
	}

	var lastErr error
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		out, err := e.generate(ctx, text)
		if err == nil {
			return out, nil
		}
		lastErr = err
		logger.Warn("translation attempt failed", err,
			logger.Int("attempt", attempt))

		if ctx.Err() != nil {
			break
		}
		if attempt < e.maxRetries {
			delay := e.baseDelay * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", types.NewAppError(types.ErrTranslation, "translation cancelled", ctx.Err())
			}
		}
	}
	return "", types.NewAppErrorWithDetails(types.ErrTranslation,
		"translation failed after retries",
		fmt.Sprintf("attempted %d times", e.maxRetries), lastErr)
}

func (e *Engine) generate(ctx context.Context, text string) (string, error) {
	resp, err := e.model.Generate(ctx, []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userPrompt(text, e.targetLang)),
	})
	if err != nil {
		return "", err
	}
	out := strings.TrimSpace(resp.Content)
	if out == "" {
		return "", fmt.Errorf("model returned empty translation")
	}
	if got, want := len(TokenPattern.FindAllString(out, -1)), len(TokenPattern.FindAllString(text, -1)); got < want {
		return "", fmt.Errorf("translation dropped formula tokens: got %d, want %d", got, want)
	}
	return out, nil
}

const systemPrompt = "You are a professional, authentic machine translation engine. " +
	"Only output the translated text, do not include any other text."

// languageName spells out a BCP 47 code for the prompt; models follow
// "Simplified Chinese" far more reliably than "zh".
func languageName(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	if name := display.English.Tags().Name(tag); name != "" {
		return name
	}
	return code
}

func userPrompt(text, targetLang string) string {
	return fmt.Sprintf(
		"Translate the following text to %s. "+
			"Keep the formula notation {v*} unchanged. "+
			"Output translation directly without any additional text.\n\n"+
			"Source Text: %s\n\nTranslated Text:", languageName(targetLang), text)
}
