package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"edith/clock"
	"edith/models"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCompleter records what it was asked and answers with a fixed reply.
type stubCompleter struct {
	mu       sync.Mutex
	calls    int
	messages []models.HistoryEntry
	reply    Completion
	err      error
	block    bool
}

func (s *stubCompleter) Complete(ctx context.Context, messages []models.HistoryEntry) (Completion, error) {
	s.mu.Lock()
	s.calls++
	s.messages = append([]models.HistoryEntry(nil), messages...)
	s.mu.Unlock()

	if s.block {
		<-ctx.Done()
		return Completion{}, fmt.Errorf("OpenAI API call failed: %w", ctx.Err())
	}
	return s.reply, s.err
}

// countingStore counts Load calls on top of a memory store.
type countingStore struct {
	*MemoryKnowledgeStore
	mu    sync.Mutex
	loads int
}

func (c *countingStore) Load(ctx context.Context) (models.KnowledgeDocument, error) {
	c.mu.Lock()
	c.loads++
	c.mu.Unlock()
	return c.MemoryKnowledgeStore.Load(ctx)
}

func strPtr(s string) *string { return &s }

func newTestChatService(t *testing.T, completer Completer, doc models.KnowledgeDocument) (*ChatService, *countingStore) {
	t.Helper()
	store := &countingStore{MemoryKnowledgeStore: NewMemoryKnowledgeStore(doc)}
	fake := clock.NewFake(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	return NewChatService(store, completer, WithClock(fake)), store
}

func TestChatService_Reply_Skills(t *testing.T) {
	completer := &stubCompleter{reply: Completion{Content: "Vishal works with Go, React and Three.js.", TotalTokens: 42}}
	svc, store := newTestChatService(t, completer, models.KnowledgeDocument{
		"skills": []any{"Go", "React", "Three.js"},
	})

	resp, err := svc.Reply(context.Background(), models.ChatRequest{Message: strPtr("What are Vishal's skills?")})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Reply)
	assert.Greater(t, resp.TokensUsed, 0)
	assert.Equal(t, "2025-06-01T12:00:00Z", resp.Timestamp)
	assert.Equal(t, 1, store.loads)

	require.Len(t, completer.messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, completer.messages[0].Role)
	assert.Contains(t, completer.messages[0].Content, `"Three.js"`)
	assert.Equal(t, models.HistoryEntry{Role: "user", Content: "What are Vishal's skills?"}, completer.messages[1])
}

func TestChatService_Reply_Validation(t *testing.T) {
	tests := []struct {
		name    string
		message *string
		wantMsg string
	}{
		{"missing message", nil, msgMessageRequired},
		{"empty message", strPtr(""), msgMessageRequired},
		{"1001 characters", strPtr(strings.Repeat("a", 1001)), msgMessageTooLong},
		{"1001 multibyte characters", strPtr(strings.Repeat("é", 1001)), msgMessageTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := &stubCompleter{}
			svc, store := newTestChatService(t, completer, models.KnowledgeDocument{"name": "Vishal"})

			_, err := svc.Reply(context.Background(), models.ChatRequest{Message: tt.message})

			var chatErr *ChatError
			require.ErrorAs(t, err, &chatErr)
			assert.Equal(t, KindInvalidRequest, chatErr.Kind)
			assert.Equal(t, http.StatusBadRequest, chatErr.Status())
			assert.Equal(t, tt.wantMsg, chatErr.Message)
			assert.Equal(t, 0, store.loads, "knowledge must not be read for invalid input")
			assert.Equal(t, 0, completer.calls)
		})
	}

	t.Run("exactly 1000 characters is accepted", func(t *testing.T) {
		completer := &stubCompleter{reply: Completion{Content: "ok", TotalTokens: 1}}
		svc, _ := newTestChatService(t, completer, nil)

		_, err := svc.Reply(context.Background(), models.ChatRequest{Message: strPtr(strings.Repeat("é", 1000))})
		assert.NoError(t, err)
	})
}

func TestChatService_Reply_UsesCurrentKnowledge(t *testing.T) {
	completer := &stubCompleter{reply: Completion{Content: "ok", TotalTokens: 3}}
	svc, store := newTestChatService(t, completer, models.KnowledgeDocument{"project": "Spider Portfolio"})

	_, err := svc.Reply(context.Background(), models.ChatRequest{Message: strPtr("projects?")})
	require.NoError(t, err)
	assert.Contains(t, completer.messages[0].Content, "Spider Portfolio")

	require.NoError(t, store.Replace(context.Background(), models.KnowledgeDocument{"project": "Omnitrix Tracker"}))

	_, err = svc.Reply(context.Background(), models.ChatRequest{Message: strPtr("projects?")})
	require.NoError(t, err)
	assert.Contains(t, completer.messages[0].Content, "Omnitrix Tracker")
	assert.NotContains(t, completer.messages[0].Content, "Spider Portfolio")
	assert.Equal(t, 2, store.loads)
}

func TestChatService_Reply_HistoryTail(t *testing.T) {
	completer := &stubCompleter{reply: Completion{Content: "ok", TotalTokens: 3}}
	svc, _ := newTestChatService(t, completer, nil)

	var history []models.HistoryEntry
	for i := 0; i < 15; i++ {
		role := "user"
		if i%2 == 1 {
			role = "edith"
		}
		history = append(history, models.HistoryEntry{Role: role, Content: fmt.Sprintf("turn %d", i)})
	}
	history[14].Role = "system"

	_, err := svc.Reply(context.Background(), models.ChatRequest{
		Message:             strPtr("latest"),
		ConversationHistory: history,
	})
	require.NoError(t, err)

	// system + 10 history + new message
	require.Len(t, completer.messages, 12)
	assert.Equal(t, "turn 5", completer.messages[1].Content)
	assert.Equal(t, "user", completer.messages[2].Role)
	assert.Equal(t, "assistant", completer.messages[1].Role)
	assert.Equal(t, "assistant", completer.messages[10].Role, "system role from a caller is demoted")
	assert.Equal(t, "latest", completer.messages[11].Content)
}

func TestChatService_Reply_KnowledgeLoadFailure(t *testing.T) {
	completer := &stubCompleter{reply: Completion{Content: "ok", TotalTokens: 3}}
	svc := NewChatService(NewFileKnowledgeStore(t.TempDir()+"/missing.json"), completer)

	resp, err := svc.Reply(context.Background(), models.ChatRequest{Message: strPtr("hi")})
	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Contains(t, completer.messages[0].Content, "{}")
}

func TestChatService_Reply_Timeout(t *testing.T) {
	completer := &stubCompleter{block: true}
	store := NewMemoryKnowledgeStore(nil)
	svc := NewChatService(store, completer, WithUpstreamTimeout(20*time.Millisecond))

	_, err := svc.Reply(context.Background(), models.ChatRequest{Message: strPtr("hello?")})

	var chatErr *ChatError
	require.ErrorAs(t, err, &chatErr)
	assert.Equal(t, KindUpstreamFailure, chatErr.Kind)
	assert.Equal(t, http.StatusInternalServerError, chatErr.Status())
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestClassifyUpstreamError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantKind ErrorKind
		wantCode int
	}{
		{
			name:     "insufficient quota",
			err:      &openai.APIError{Code: "insufficient_quota", Type: "insufficient_quota", HTTPStatusCode: 429},
			wantKind: KindQuotaExceeded,
			wantCode: http.StatusTooManyRequests,
		},
		{
			name:     "rate limit code",
			err:      fmt.Errorf("wrapped: %w", &openai.APIError{Code: "rate_limit_exceeded", HTTPStatusCode: 429}),
			wantKind: KindRateLimited,
			wantCode: http.StatusTooManyRequests,
		},
		{
			name:     "bare 429 request error",
			err:      &openai.RequestError{HTTPStatusCode: 429, Err: errors.New("too many")},
			wantKind: KindRateLimited,
			wantCode: http.StatusTooManyRequests,
		},
		{
			name:     "server error",
			err:      &openai.APIError{Code: "server_error", HTTPStatusCode: 500},
			wantKind: KindUpstreamFailure,
			wantCode: http.StatusInternalServerError,
		},
		{
			name:     "transport error",
			err:      errors.New("dial tcp: connection refused"),
			wantKind: KindUpstreamFailure,
			wantCode: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyUpstreamError(tt.err)
			assert.Equal(t, tt.wantKind, got.Kind)
			assert.Equal(t, tt.wantCode, got.Status())
			assert.Equal(t, string(tt.wantKind), got.ResponseType())
			assert.NotContains(t, got.Message, "dial tcp")
		})
	}
}
