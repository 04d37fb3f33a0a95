package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/use-agent/distill/config"
	"github.com/use-agent/distill/models"
)

// Completion is a single text reply from the model.
type Completion struct {
	Content string
	Usage   *models.LLMUsage
}

// Model is the language-model collaborator.
type Model interface {
	// Complete sends a system and a user instruction and returns the reply.
	Complete(ctx context.Context, system, user string) (*Completion, error)
}

// OpenAIModel talks to any OpenAI-compatible chat completions API
// (Groq, OpenAI, DeepSeek, ...).
type OpenAIModel struct {
	client      openai.Client
	model       string
	temperature float64
	timeout     time.Duration
}

// NewOpenAIModel creates a model client. A missing API key is a
// configuration error. Pass a nil httpClient to use the SDK default.
func NewOpenAIModel(cfg config.LLMConfig, httpClient *http.Client) (*OpenAIModel, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, models.NewPipelineError(models.ErrCodeConfig, "GROQ_API_KEY not found", nil)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.groq.com/openai/v1"
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
		// The extraction step makes exactly one call.
		option.WithMaxRetries(0),
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	return &OpenAIModel{
		client:      openai.NewClient(opts...),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
	}, nil
}

// Name returns the configured model name.
func (m *OpenAIModel) Name() string { return m.model }

// Complete implements Model.
func (m *OpenAIModel) Complete(ctx context.Context, system, user string) (*Completion, error) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	resp, err := m.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(m.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		Temperature: openai.Float(m.temperature),
	})
	if err != nil {
		return nil, classifyLLMError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, models.NewPipelineError(models.ErrCodeLLMFailure, "LLM returned no choices", nil)
	}

	return &Completion{
		Content: resp.Choices[0].Message.Content,
		Usage: &models.LLMUsage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// classifyLLMError maps SDK errors to pipeline error codes.
func classifyLLMError(err error) *models.PipelineError {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return models.NewPipelineError(models.ErrCodeLLMFailure, "LLM request failed", err)
	}

	switch apiErr.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return models.NewPipelineError(models.ErrCodeLLMAuthFailure, "LLM API rejected the credential", err)
	case http.StatusTooManyRequests:
		return models.NewPipelineError(models.ErrCodeLLMRateLimited, "LLM API rate limit exceeded", err)
	default:
		return models.NewPipelineError(models.ErrCodeLLMFailure,
			fmt.Sprintf("LLM API returned %d", apiErr.StatusCode), err)
	}
}
