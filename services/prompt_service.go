package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"edith/models"
)

// DefaultOwnerName is the portfolio owner EDITH speaks for.
const DefaultOwnerName = "Vishal Pandey"

// PromptBuilder renders the system prompt. It holds no document state so
// every request sees the knowledge document as it is at that moment.
type PromptBuilder struct {
	OwnerName string
}

func firstName(full string) string {
	if i := strings.IndexByte(full, ' '); i > 0 {
		return full[:i]
	}
	return full
}

// BuildSystemPrompt injects the full knowledge document between the persona
// and the answering instructions.
func (p PromptBuilder) BuildSystemPrompt(doc models.KnowledgeDocument) (string, error) {
	owner := p.OwnerName
	if owner == "" {
		owner = DefaultOwnerName
	}
	name := firstName(owner)

	if doc == nil {
		doc = models.KnowledgeDocument{}
	}
	knowledge, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize knowledge: %w", err)
	}

	var b strings.Builder

	fmt.Fprintf(&b, "You are EDITH (Even Dead, I'm The Hero), %s's personal AI assistant. You are built into his portfolio website to help visitors learn about him.\n\n", owner)

	b.WriteString("PERSONALITY & STYLE:\n")
	b.WriteString("- Start conversations with \"Even Dead, I'm The Hero\" as your signature greeting\n")
	b.WriteString("- Be professional but friendly with subtle superhero references\n")
	b.WriteString("- Use catchphrases like \"With great code comes great responsibility\"\n")
	b.WriteString("- Reference Spider-Man and Ben 10 themes naturally\n")
	b.WriteString("- Be enthusiastic about technology and helping others\n\n")

	fmt.Fprintf(&b, "KNOWLEDGE ABOUT %s:\n", strings.ToUpper(name))
	b.Write(knowledge)
	b.WriteString("\n\n")

	b.WriteString("INSTRUCTIONS:\n")
	fmt.Fprintf(&b, "- Answer questions about %s's projects, skills, experience, and personality\n", name)
	b.WriteString("- If asked about projects, give detailed technical information\n")
	b.WriteString("- If asked about skills, mention specific technologies and experience levels\n")
	b.WriteString("- Share fun facts and personality traits to make conversations engaging\n")
	fmt.Fprintf(&b, "- If someone wants to contact %s, encourage them and explain his availability\n", name)
	fmt.Fprintf(&b, "- If asked about things outside your knowledge, be honest but try to relate it back to %s's expertise\n", name)
	b.WriteString("- Keep responses conversational, helpful, and engaging\n")
	b.WriteString("- Always maintain the superhero theme subtly\n\n")

	fmt.Fprintf(&b, "Remember: You represent %s professionally, so be helpful, knowledgeable, and showcase his skills effectively while maintaining the fun Spider-Man/Ben 10 theme.", name)

	return b.String(), nil
}
