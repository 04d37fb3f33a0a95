package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"github.com/use-agent/distill/models"
)

// systemPrompt is sent unchanged on every extraction.
const systemPrompt = "You are an intelligent data extraction assistant. " +
	"Your task is to extract structured JSON data from the text of a web page. " +
	"Only return pure JSON. Do not add comments, explanations or markdown fences."

// Extractor asks the model for a fixed list of fields and parses the reply.
type Extractor struct {
	model Model
}

// NewExtractor creates an Extractor backed by model.
func NewExtractor(model Model) *Extractor {
	return &Extractor{model: model}
}

// Extract sends the first maxChars characters of text together with fields
// to the model and parses the reply. The model is called exactly once.
//
// A failed call keeps the model's transport error code; a reply that is not
// a JSON object or array of objects fails with ErrCodeLLMInvalidOutput.
func (e *Extractor) Extract(ctx context.Context, text string, fields []string, maxChars int) (*models.Extraction, error) {
	if len(fields) == 0 {
		return nil, models.NewPipelineError(models.ErrCodeInvalidInput, "at least one field is required", nil)
	}
	if maxChars < 1 {
		return nil, models.NewPipelineError(models.ErrCodeInvalidInput,
			fmt.Sprintf("max chars must be at least 1, got %d", maxChars), nil)
	}

	truncated := Truncate(text, maxChars)
	if len(truncated) < len(text) {
		slog.Debug("raw text truncated for extraction",
			"original_chars", utf8.RuneCountInString(text),
			"max_chars", maxChars,
		)
	}

	user := BuildUserPrompt(fields, truncated)
	slog.Info("requesting extraction",
		"fields", len(fields),
		"chars", utf8.RuneCountInString(truncated),
		"estimated_tokens", estimateTokens(systemPrompt)+estimateTokens(user),
	)

	completion, err := e.model.Complete(ctx, systemPrompt, user)
	if err != nil {
		pe := models.AsPipelineError(err)
		if pe.Code == models.ErrCodeInternal {
			pe = models.NewPipelineError(models.ErrCodeLLMFailure, "LLM request failed", err)
		}
		return nil, pe
	}

	data, err := ParseReply(completion.Content)
	if err != nil {
		slog.Warn("model returned unparsable output", "error", err, "reply_chars", len(completion.Content))
		return nil, err
	}

	return &models.Extraction{Data: data, Usage: completion.Usage}, nil
}

// Truncate returns the first maxChars characters (runes) of text.
func Truncate(text string, maxChars int) string {
	if maxChars < 0 || utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxChars])
}

// BuildUserPrompt lists the requested fields followed by the page text.
func BuildUserPrompt(fields []string, text string) string {
	list, _ := json.Marshal(fields)
	return fmt.Sprintf("Extract the following fields:\n%s\n\nText:\n%s", list, text)
}

// ParseReply parses the model's reply. Surrounding whitespace is ignored;
// anything else that is not a JSON object or an array of objects is an
// ErrCodeLLMInvalidOutput error. No repair is attempted.
func ParseReply(reply string) (json.RawMessage, error) {
	trimmed := strings.TrimSpace(reply)

	var probe any
	if err := json.Unmarshal([]byte(trimmed), &probe); err != nil {
		return nil, models.NewPipelineError(models.ErrCodeLLMInvalidOutput,
			"could not parse JSON from LLM output", err)
	}

	parsed := gjson.Parse(trimmed)
	switch {
	case parsed.IsObject():
	case parsed.IsArray():
		for i, item := range parsed.Array() {
			if !item.IsObject() {
				return nil, models.NewPipelineError(models.ErrCodeLLMInvalidOutput,
					fmt.Sprintf("LLM output array element %d is not an object", i), nil)
			}
		}
	default:
		return nil, models.NewPipelineError(models.ErrCodeLLMInvalidOutput,
			"LLM output is not a JSON object or array of objects", nil)
	}

	return json.RawMessage(trimmed), nil
}

// estimateTokens is a rough token count: runes / 3, which sits between
// English (~4 chars/token) and CJK (~1.5 chars/token).
func estimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	if n < 3 {
		return 1
	}
	return n / 3
}
