package assistant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"edith/models"

	"github.com/go-resty/resty/v2"
)

// Reply is a successful gateway answer.
type Reply struct {
	Text       string
	TokensUsed int
	Timestamp  time.Time
}

// Gateway sends one user turn plus history to the chat gateway.
type Gateway interface {
	Chat(ctx context.Context, message string, history []models.HistoryEntry) (Reply, error)
}

// HTTPGateway talks to the gateway's POST /api/edith-chat endpoint.
type HTTPGateway struct {
	client *resty.Client
}

func NewHTTPGateway(baseURL string, timeout time.Duration) *HTTPGateway {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if timeout > 0 {
		client.SetTimeout(timeout)
	}
	return &HTTPGateway{client: client}
}

func (g *HTTPGateway) Chat(ctx context.Context, message string, history []models.HistoryEntry) (Reply, error) {
	var result models.ChatResponse
	var failure models.ErrorResponse

	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(models.ChatRequest{Message: &message, ConversationHistory: history}).
		SetResult(&result).
		SetError(&failure).
		Post("/api/edith-chat")
	if err != nil {
		return Reply{}, fmt.Errorf("failed to reach gateway: %w", err)
	}

	if resp.IsError() {
		return Reply{}, &GatewayError{
			Status:  resp.StatusCode(),
			Message: failure.Error,
			Type:    failure.Type,
		}
	}
	if !result.Success {
		return Reply{}, errors.New("gateway reply was not successful")
	}

	ts, err := time.Parse(time.RFC3339, result.Timestamp)
	if err != nil {
		ts = time.Now()
	}
	return Reply{Text: result.Reply, TokensUsed: result.TokensUsed, Timestamp: ts}, nil
}
