package assistant

import (
	"encoding/json"
	"testing"
	"time"

	"edith/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranscriptEncoding(t *testing.T) {
	at := time.Date(2025, 5, 4, 3, 2, 1, 500, time.UTC)
	messages := []Message{
		{ID: 10, Role: models.RoleUser, Content: "hi", CreatedAt: at},
		{ID: 11, Role: models.RoleAssistant, Content: ErrorReply, CreatedAt: at.Add(time.Second), IsError: true},
	}

	data, err := encodeTranscript(messages)
	require.NoError(t, err)

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw, 2)
	assert.Equal(t, "2025-05-04T03:02:01.0000005Z", raw[0]["timestamp"])
	assert.NotContains(t, raw[0], "isError")
	assert.Equal(t, true, raw[1]["isError"])

	decoded, err := decodeTranscript(data)
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.True(t, decoded[0].CreatedAt.Equal(at))
	assert.True(t, decoded[1].IsError)
}

func TestDecodeTranscript_Rejects(t *testing.T) {
	tests := map[string]string{
		"not json":      "{",
		"not an array":  `{"id":1}`,
		"unknown role":  `[{"id":1,"role":"system","content":"x","timestamp":"2025-01-01T00:00:00Z"}]`,
		"bad timestamp": `[{"id":1,"role":"user","content":"x","timestamp":"yesterday"}]`,
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := decodeTranscript([]byte(data))
			assert.ErrorIs(t, err, ErrCorruptTranscript)
		})
	}
}

func TestHistoryFor(t *testing.T) {
	var messages []Message
	for i := 0; i < 12; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		messages = append(messages, Message{ID: int64(i), Role: role, Content: string(rune('a' + i))})
	}
	messages = append(messages, Message{ID: 99, Role: models.RoleAssistant, Content: ErrorReply, IsError: true})

	history := historyFor(messages)
	require.Len(t, history, models.HistoryLimit)
	assert.Equal(t, "c", history[0].Content)
	assert.Equal(t, "l", history[9].Content)
}
