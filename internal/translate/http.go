package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// httpTranslator talks to a generic JSON translation endpoint:
// POST {texts, source_lang, target_lang} -> {translations}.
// The HTTP connection pool is shared across all batches.
type httpTranslator struct {
	config     Config
	httpClient *http.Client
}

func newHTTPTranslator(cfg Config) *httpTranslator {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if cfg.Timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &httpTranslator{
		config: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (t *httpTranslator) Name() string { return "http" }

type translateRequest struct {
	Texts      []string `json:"texts"`
	SourceLang string   `json:"source_lang"`
	TargetLang string   `json:"target_lang"`
}

type translateResponse struct {
	Translations []string `json:"translations"`
	Error        string   `json:"error,omitempty"`
}

func (t *httpTranslator) Translate(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error) {
	payload := translateRequest{
		Texts:      texts,
		SourceLang: sourceLang,
		TargetLang: targetLang,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.config.APIURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.config.APIKey)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		if os.IsTimeout(err) {
			return nil, fmt.Errorf("request timed out: %w", err)
		}
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("translation request failed with status %d: %s", resp.StatusCode, string(responseBody))
	}

	var parsed translateResponse
	if err := json.Unmarshal(responseBody, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("translation service error: %s", parsed.Error)
	}

	if len(parsed.Translations) != len(texts) {
		return nil, &countMismatchError{want: len(texts), got: len(parsed.Translations)}
	}
	return parsed.Translations, nil
}
