package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"edith/models"

	"github.com/sashabaranov/go-openai"
)

// Sampling parameters are fixed; callers cannot tune them per request.
const (
	completionMaxTokens        = 500
	completionTemperature      = 0.7
	completionPresencePenalty  = 0.1
	completionFrequencyPenalty = 0.1
)

// Completion is the part of an upstream reply the gateway uses.
type Completion struct {
	Content     string
	TotalTokens int
}

// Completer calls the hosted completion model. The first message is the
// system prompt.
type Completer interface {
	Complete(ctx context.Context, messages []models.HistoryEntry) (Completion, error)
}

var errNoChoices = errors.New("completion returned no choices")

type OpenAIService struct {
	client *openai.Client
	model  string
}

// NewOpenAIService builds a client for the OpenAI chat completions API. An
// empty baseURL keeps the public endpoint.
func NewOpenAIService(apiKey, baseURL, model string) *OpenAIService {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4
	}
	return &OpenAIService{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
}

func (s *OpenAIService) Complete(ctx context.Context, messages []models.HistoryEntry) (Completion, error) {
	openAIMessages := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		openAIMessages = append(openAIMessages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	start := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:            s.model,
		Messages:         openAIMessages,
		MaxTokens:        completionMaxTokens,
		Temperature:      completionTemperature,
		PresencePenalty:  completionPresencePenalty,
		FrequencyPenalty: completionFrequencyPenalty,
	})
	observeUpstreamLatency(time.Since(start))
	if err != nil {
		return Completion{}, fmt.Errorf("OpenAI API call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return Completion{}, errNoChoices
	}
	slog.Debug("Received response from OpenAI",
		"model", resp.Model,
		"finish_reason", resp.Choices[0].FinishReason,
		"total_tokens", resp.Usage.TotalTokens)

	return Completion{
		Content:     resp.Choices[0].Message.Content,
		TotalTokens: resp.Usage.TotalTokens,
	}, nil
}
