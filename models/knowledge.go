package models

// KnowledgeDocument describes the portfolio owner. Its shape is owned by
// whoever authors it; the gateway only serializes it into the system prompt.
type KnowledgeDocument map[string]any

// KnowledgeUpdateRequest is the body of POST /api/admin/knowledge.
type KnowledgeUpdateRequest struct {
	Password  string            `json:"password"`
	Knowledge KnowledgeDocument `json:"knowledge"`
}
