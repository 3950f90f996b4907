package translate

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// lineBreaker separates individual texts inside one chat completion so a
// whole batch travels in a single request. Cell values containing real
// newlines are protected with a placeholder before framing.
const (
	lineBreaker              = "\n@@@\n"
	inlineBreakPlaceholder   = "<br-inline>"
	defaultOpenAIModel       = "gpt-4o-mini"
	defaultOpenAITemperature = 0.3
)

// openaiTranslator translates through the OpenAI chat completion API.
type openaiTranslator struct {
	client *openai.Client
	model  string
}

func newOpenAITranslator(cfg Config) *openaiTranslator {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.APIURL != "" {
		clientCfg.BaseURL = cfg.APIURL
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	return &openaiTranslator{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}
}

func (t *openaiTranslator) Name() string { return "openai" }

func (t *openaiTranslator) Translate(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error) {
	framed := make([]string, len(texts))
	for i, text := range texts {
		framed[i] = strings.ReplaceAll(text, "\n", inlineBreakPlaceholder)
	}

	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       t.model,
		Temperature: defaultOpenAITemperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: buildSystemPrompt(sourceLang, targetLang),
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: strings.Join(framed, lineBreaker),
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no translation returned")
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	parts := strings.Split(content, strings.TrimSpace(lineBreaker))
	if len(parts) != len(texts) {
		// Retry handling is the executor's job; report the mismatch as a
		// plain failure.
		return nil, &countMismatchError{want: len(texts), got: len(parts)}
	}

	translations := make([]string, len(parts))
	for i, part := range parts {
		part = strings.TrimSpace(part)
		translations[i] = strings.ReplaceAll(part, inlineBreakPlaceholder, "\n")
	}
	return translations, nil
}

func buildSystemPrompt(sourceLang, targetLang string) string {
	var prompt strings.Builder
	prompt.WriteString("You are a professional translator for product caption and metadata fields. ")
	prompt.WriteString(fmt.Sprintf("Translate each text from %s to %s.\n\n", sourceLang, targetLang))
	prompt.WriteString("The input contains multiple independent texts separated by " + strings.TrimSpace(lineBreaker) + " markers.\n")
	prompt.WriteString("Rules:\n")
	prompt.WriteString("1. Return ONLY the translations, separated by the same " + strings.TrimSpace(lineBreaker) + " markers.\n")
	prompt.WriteString("2. The number of output texts must exactly match the number of input texts.\n")
	prompt.WriteString("3. Preserve " + inlineBreakPlaceholder + " markers exactly where they appear.\n")
	prompt.WriteString("4. Do not add explanations, numbering or quotes.\n")
	return prompt.String()
}
