// Package translate fills in missing English translations for German entries.
package translate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/wortnest/pkg/utils"
	openai "github.com/sashabaranov/go-openai"
)

// DefaultModel is the chat model used when none is configured.
const DefaultModel = openai.GPT4oMini

// ErrEmptyTranslation is returned when the backend answers with nothing usable.
var ErrEmptyTranslation = errors.New("empty translation")

// Translator turns German text into English.
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// Config configures OpenAITranslator.
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	MaxRetries int
	RetryDelay time.Duration
}

const systemPrompt = `You translate German vocabulary entries (words, phrases or sentences) into English.
Answer with the English translation only: no quotes, no explanations, no alternatives.
Keep articles for nouns ("das Haus" -> "the house").`

// OpenAITranslator translates with a chat completion.
type OpenAITranslator struct {
	client     *openai.Client
	model      string
	maxRetries int
	retryDelay time.Duration
}

// NewOpenAITranslator returns a translator for cfg. An API key is required.
func NewOpenAITranslator(cfg Config) (*OpenAITranslator, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OpenAI API key is required (set OPENAI_API_KEY)")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAITranslator{
		client:     openai.NewClientWithConfig(clientCfg),
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
	}, nil
}

// Translate returns the English translation of text.
func (t *OpenAITranslator) Translate(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyTranslation
	}

	var lastErr error
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(utils.Backoff(t.retryDelay, attempt)):
			}
		}

		resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: t.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
				{Role: openai.ChatMessageRoleUser, Content: text},
			},
			Temperature: 0,
		})
		if err != nil {
			lastErr = fmt.Errorf("attempt %d: %w", attempt+1, err)
			if !retryable(err) {
				break
			}
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("attempt %d: no choices returned", attempt+1)
			continue
		}
		out := clean(resp.Choices[0].Message.Content)
		if out == "" {
			return "", ErrEmptyTranslation
		}
		return out, nil
	}
	return "", fmt.Errorf("translate after %d attempts: %w", t.maxRetries+1, lastErr)
}

// clean strips whitespace and the quotes models like to wrap answers in.
func clean(s string) string {
	s = strings.TrimSpace(s)
	for _, q := range []string{`"`, "'", "„", "“", "”"} {
		s = strings.TrimPrefix(s, q)
		s = strings.TrimSuffix(s, q)
	}
	return utils.CollapseWhitespace(s)
}

func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.HTTPStatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return false
		}
	}
	return !errors.Is(err, context.Canceled)
}

// Static translates from a fixed table and fails for everything else.
// Used by tests and offline setups with a prepared glossary.
type Static map[string]string

// Translate looks text up case-insensitively.
func (s Static) Translate(_ context.Context, text string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(text))
	for k, v := range s {
		if strings.ToLower(k) == key {
			return v, nil
		}
	}
	return "", fmt.Errorf("no translation for %q", text)
}
