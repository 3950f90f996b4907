package translate

import (
	"context"
	"fmt"
)

// Translator is the remote translation service seen by the pipeline: a
// list of texts goes in, a parallel list of translations comes out in the
// same order. Any transport, HTTP or API error is a retryable failure to
// the caller.
type Translator interface {
	Translate(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error)

	// Name returns the provider name for logging
	Name() string
}

// Config selects and configures the translation backend.
type Config struct {
	Provider string // "http" or "openai"
	APIURL   string
	APIKey   string
	Model    string
	Timeout  int // seconds, per connection
}

func (c Config) Validate() error {
	switch c.Provider {
	case "http":
		if c.APIURL == "" {
			return fmt.Errorf("TRANSLATOR_API_URL is required for the http provider")
		}
	case "openai":
		if c.APIKey == "" {
			return fmt.Errorf("TRANSLATOR_API_KEY is required for the openai provider")
		}
	default:
		return fmt.Errorf("unknown translator provider: %s", c.Provider)
	}
	return nil
}

// NewTranslator creates the backend named by the configuration.
func NewTranslator(cfg Config) (Translator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Provider {
	case "http":
		return newHTTPTranslator(cfg), nil
	case "openai":
		return newOpenAITranslator(cfg), nil
	default:
		return nil, fmt.Errorf("unknown translator provider: %s", cfg.Provider)
	}
}

// countMismatchError is returned when the backend answers with a
// different number of texts than it was sent.
type countMismatchError struct {
	want, got int
}

func (e *countMismatchError) Error() string {
	return fmt.Sprintf("translation count mismatch: sent %d texts, received %d", e.want, e.got)
}
