package assistant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"edith/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPGateway_Chat(t *testing.T) {
	var got models.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/edith-chat", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(models.ChatResponse{
			Success:    true,
			Reply:      "He knows Go.",
			Timestamp:  "2025-01-02T03:04:05Z",
			TokensUsed: 12,
		})
	}))
	defer srv.Close()

	history := []models.HistoryEntry{{Role: models.RoleUser, Content: "hi"}, {Role: models.RoleAssistant, Content: "hello"}}
	reply, err := NewHTTPGateway(srv.URL, time.Second).Chat(context.Background(), "skills?", history)
	require.NoError(t, err)

	assert.Equal(t, "He knows Go.", reply.Text)
	assert.Equal(t, 12, reply.TokensUsed)
	assert.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), reply.Timestamp.UTC())

	require.NotNil(t, got.Message)
	assert.Equal(t, "skills?", *got.Message)
	assert.Equal(t, history, got.ConversationHistory)
}

func TestHTTPGateway_ErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"API quota exceeded. Please try again later.","type":"quota_exceeded"}`))
	}))
	defer srv.Close()

	_, err := NewHTTPGateway(srv.URL, time.Second).Chat(context.Background(), "hi", nil)

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, http.StatusTooManyRequests, gwErr.Status)
	assert.Equal(t, "quota_exceeded", gwErr.Type)
	assert.Equal(t, "API quota exceeded. Please try again later.", gwErr.Message)
}

func TestHTTPGateway_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPGateway(url, time.Second).Chat(context.Background(), "hi", nil)
	assert.Error(t, err)
}
