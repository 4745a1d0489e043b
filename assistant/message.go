package assistant

import (
	"encoding/json"
	"fmt"
	"time"

	"edith/models"
)

// PersistLimit is the number of most recent messages kept in storage.
const PersistLimit = 10

// Message is one transcript entry. Error-flagged messages are assistant
// messages standing in for a failed round.
type Message struct {
	ID        int64
	Role      string
	Content   string
	CreatedAt time.Time
	IsError   bool
}

type storedMessage struct {
	ID        int64  `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
	IsError   bool   `json:"isError,omitempty"`
}

// encodeTranscript serializes the last PersistLimit messages.
func encodeTranscript(messages []Message) ([]byte, error) {
	if len(messages) > PersistLimit {
		messages = messages[len(messages)-PersistLimit:]
	}
	stored := make([]storedMessage, 0, len(messages))
	for _, m := range messages {
		stored = append(stored, storedMessage{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.CreatedAt.Format(time.RFC3339Nano),
			IsError:   m.IsError,
		})
	}
	return json.Marshal(stored)
}

// decodeTranscript parses stored data back into messages, restoring
// timestamps. Any malformed entry makes the whole transcript corrupt.
func decodeTranscript(data []byte) ([]Message, error) {
	var stored []storedMessage
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptTranscript, err)
	}

	messages := make([]Message, 0, len(stored))
	for i, s := range stored {
		role, ok := normalizeRole(s.Role)
		if !ok {
			return nil, fmt.Errorf("%w: entry %d has role %q", ErrCorruptTranscript, i, s.Role)
		}
		createdAt, err := time.Parse(time.RFC3339Nano, s.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrCorruptTranscript, i, err)
		}
		messages = append(messages, Message{
			ID:        s.ID,
			Role:      role,
			Content:   s.Content,
			CreatedAt: createdAt,
			IsError:   s.IsError,
		})
	}
	if len(messages) > PersistLimit {
		messages = messages[len(messages)-PersistLimit:]
	}
	return messages, nil
}

// normalizeRole accepts the legacy "edith" role written by older clients.
func normalizeRole(role string) (string, bool) {
	switch role {
	case models.RoleUser:
		return models.RoleUser, true
	case models.RoleAssistant, "edith":
		return models.RoleAssistant, true
	default:
		return "", false
	}
}

// historyFor maps the transcript onto the gateway's history format. Error
// stand-ins are left out; only the last HistoryLimit entries are sent.
func historyFor(messages []Message) []models.HistoryEntry {
	history := make([]models.HistoryEntry, 0, len(messages))
	for _, m := range messages {
		if m.IsError {
			continue
		}
		history = append(history, models.HistoryEntry{Role: m.Role, Content: m.Content})
	}
	if len(history) > models.HistoryLimit {
		history = history[len(history)-models.HistoryLimit:]
	}
	return history
}
