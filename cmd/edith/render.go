package main

import (
	"fmt"
	"io"
	"sync"

	"edith/assistant"
	"edith/models"

	"github.com/charmbracelet/lipgloss"
)

type styles struct {
	title     lipgloss.Style
	user      lipgloss.Style
	assistant lipgloss.Style
	errorMsg  lipgloss.Style
	hint      lipgloss.Style
}

func defaultStyles() styles {
	return styles{
		title:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("51")),
		user:      lipgloss.NewStyle().Foreground(lipgloss.Color("252")).PaddingLeft(2),
		assistant: lipgloss.NewStyle().Foreground(lipgloss.Color("45")).PaddingLeft(2),
		errorMsg:  lipgloss.NewStyle().Foreground(lipgloss.Color("203")).PaddingLeft(2),
		hint:      lipgloss.NewStyle().Faint(true),
	}
}

// renderer prints transcript messages as they arrive. Views can come from
// the intro timer, the speaker and the input loop, so it serializes output.
type renderer struct {
	mu        sync.Mutex
	out       io.Writer
	styles    styles
	lastID    int64
	composing bool
}

func newRenderer(out io.Writer) *renderer {
	return &renderer{out: out, styles: defaultStyles()}
}

func (r *renderer) banner() {
	fmt.Fprintln(r.out, r.styles.title.Render("E.D.I.T.H. - Even Dead, I'm The Hero"))
	fmt.Fprintln(r.out, r.styles.hint.Render("/clear to reset, /voice to toggle speech, /stop to silence, /quit to leave"))
}

func (r *renderer) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastID = 0
	r.composing = false
}

func (r *renderer) notice(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, r.styles.hint.Render(text))
}

func (r *renderer) render(view assistant.View) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, msg := range view.Messages {
		if msg.ID <= r.lastID {
			continue
		}
		r.lastID = msg.ID
		fmt.Fprintln(r.out, r.format(msg))
	}

	if view.Composing && !r.composing && view.State == assistant.StateSending {
		fmt.Fprintln(r.out, r.styles.hint.Render("EDITH is typing..."))
	}
	r.composing = view.Composing
}

func (r *renderer) format(msg assistant.Message) string {
	stamp := msg.CreatedAt.Format("15:04")
	switch {
	case msg.Role == models.RoleUser:
		return r.styles.user.Render(fmt.Sprintf("[%s] you: %s", stamp, msg.Content))
	case msg.IsError:
		return r.styles.errorMsg.Render(fmt.Sprintf("[%s] EDITH: %s", stamp, msg.Content))
	default:
		return r.styles.assistant.Render(fmt.Sprintf("[%s] EDITH: %s", stamp, msg.Content))
	}
}
