package models

// Limits shared by the gateway and the client so that the client can reject
// input that the gateway would refuse anyway.
const (
	MaxMessageLength = 1000
	HistoryLimit     = 10
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// HistoryEntry is one prior turn sent along with a new chat message.
type HistoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of POST /api/edith-chat. Message is a pointer so
// that a missing field can be told apart from an empty one.
type ChatRequest struct {
	Message             *string        `json:"message"`
	ConversationHistory []HistoryEntry `json:"conversationHistory"`
}

type ChatResponse struct {
	Success    bool   `json:"success"`
	Reply      string `json:"reply"`
	Timestamp  string `json:"timestamp"`
	TokensUsed int    `json:"tokensUsed"`
}

// ErrorResponse is the envelope for every non-2xx gateway response.
type ErrorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`
}
