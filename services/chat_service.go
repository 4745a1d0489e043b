package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"edith/clock"
	"edith/models"

	"github.com/sashabaranov/go-openai"
)

// DefaultUpstreamTimeout bounds a completion call when no timeout is configured.
const DefaultUpstreamTimeout = 30 * time.Second

// Client-facing messages. Causes are logged, never returned.
const (
	msgMessageRequired = "Message is required and must be a string"
	msgMessageTooLong  = "Message too long. Please keep it under 1000 characters."
	msgHistoryInvalid  = "Conversation history must be a list of {role, content} messages"
	msgQuotaExceeded   = "API quota exceeded. Please try again later."
	msgRateLimited     = "Rate limit exceeded. Please slow down your requests."
	msgUnavailable     = "Sorry, EDITH is temporarily unavailable. Please try again later."
)

// ChatService turns a user message and a conversation tail into one reply.
// It keeps no per-conversation state.
type ChatService struct {
	knowledge KnowledgeStore
	prompt    PromptBuilder
	completer Completer
	timeout   time.Duration
	clock     clock.Clock
}

type ChatServiceOption func(*ChatService)

// WithUpstreamTimeout bounds every completion call. Zero or negative values
// keep DefaultUpstreamTimeout.
func WithUpstreamTimeout(d time.Duration) ChatServiceOption {
	return func(s *ChatService) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func WithOwnerName(name string) ChatServiceOption {
	return func(s *ChatService) { s.prompt.OwnerName = name }
}

func WithClock(c clock.Clock) ChatServiceOption {
	return func(s *ChatService) { s.clock = c }
}

func NewChatService(knowledge KnowledgeStore, completer Completer, opts ...ChatServiceOption) *ChatService {
	s := &ChatService{
		knowledge: knowledge,
		completer: completer,
		timeout:   DefaultUpstreamTimeout,
		clock:     clock.Real(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateMessage enforces the user message contract. Length is counted in
// Unicode code points.
func ValidateMessage(message *string) (string, *ChatError) {
	if message == nil || *message == "" {
		return "", invalidRequest(msgMessageRequired, ErrMessageEmpty)
	}
	if utf8.RuneCountInString(*message) > models.MaxMessageLength {
		return "", invalidRequest(msgMessageTooLong, ErrMessageLong)
	}
	return *message, nil
}

// InvalidHistory reports a conversationHistory that does not decode.
func InvalidHistory(err error) *ChatError {
	return invalidRequest(msgHistoryInvalid, fmt.Errorf("%w: %v", ErrHistoryInvalid, err))
}

// HistoryTail keeps the last HistoryLimit entries and maps every role other
// than user onto assistant so that callers cannot smuggle in system turns.
func HistoryTail(history []models.HistoryEntry) []models.HistoryEntry {
	if len(history) > models.HistoryLimit {
		history = history[len(history)-models.HistoryLimit:]
	}
	tail := make([]models.HistoryEntry, 0, len(history))
	for _, h := range history {
		role := models.RoleAssistant
		if strings.EqualFold(h.Role, models.RoleUser) {
			role = models.RoleUser
		}
		tail = append(tail, models.HistoryEntry{Role: role, Content: h.Content})
	}
	return tail
}

// Reply validates the request, renders a fresh system prompt and calls the
// completion model. Every returned error is a *ChatError.
func (s *ChatService) Reply(ctx context.Context, req models.ChatRequest) (models.ChatResponse, error) {
	message, verr := ValidateMessage(req.Message)
	if verr != nil {
		chatRequestsTotal.WithLabelValues(string(verr.Kind)).Inc()
		return models.ChatResponse{}, verr
	}

	doc, err := s.knowledge.Load(ctx)
	if err != nil {
		slog.Error("Error loading knowledge base", "error", err)
		doc = models.KnowledgeDocument{}
	}

	systemPrompt, err := s.prompt.BuildSystemPrompt(doc)
	if err != nil {
		return models.ChatResponse{}, s.fail(&ChatError{Kind: KindUpstreamFailure, Message: msgUnavailable, Err: err})
	}

	tail := HistoryTail(req.ConversationHistory)
	messages := make([]models.HistoryEntry, 0, len(tail)+2)
	messages = append(messages, models.HistoryEntry{Role: openai.ChatMessageRoleSystem, Content: systemPrompt})
	messages = append(messages, tail...)
	messages = append(messages, models.HistoryEntry{Role: models.RoleUser, Content: message})

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	completion, err := s.completer.Complete(callCtx, messages)
	if err != nil {
		return models.ChatResponse{}, s.fail(ClassifyUpstreamError(err))
	}

	chatRequestsTotal.WithLabelValues("success").Inc()
	chatTokensTotal.Add(float64(completion.TotalTokens))

	return models.ChatResponse{
		Success:    true,
		Reply:      completion.Content,
		Timestamp:  FormatTimestamp(s.clock.Now()),
		TokensUsed: completion.TotalTokens,
	}, nil
}

func (s *ChatService) fail(err *ChatError) *ChatError {
	slog.Error("EDITH Chat Error", "kind", err.Kind, "error", err.Err)
	chatRequestsTotal.WithLabelValues(string(err.Kind)).Inc()
	return err
}

// ClassifyUpstreamError maps a completion failure onto the error taxonomy.
// Anything not recognised as quota or rate limiting is an upstream failure.
func ClassifyUpstreamError(err error) *ChatError {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := fmt.Sprint(apiErr.Code)
		switch {
		case code == "insufficient_quota" || apiErr.Type == "insufficient_quota":
			return &ChatError{Kind: KindQuotaExceeded, Message: msgQuotaExceeded, Err: err}
		case code == "rate_limit_exceeded" || apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return &ChatError{Kind: KindRateLimited, Message: msgRateLimited, Err: err}
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return &ChatError{Kind: KindRateLimited, Message: msgRateLimited, Err: err}
	}

	return &ChatError{Kind: KindUpstreamFailure, Message: msgUnavailable, Err: err}
}
