// Package assistant is the client half of EDITH: it owns the visible
// transcript, persists it between sessions, drives requests to the chat
// gateway and keeps at most one spoken reply playing.
package assistant

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"edith/clock"
	"edith/models"
)

// State is the manager's position in the conversation lifecycle.
type State int

const (
	StateClosed State = iota
	StateRehydrating
	StateIntroPending
	StateActive
	StateSending
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateRehydrating:
		return "rehydrating"
	case StateIntroPending:
		return "intro_pending"
	case StateActive:
		return "active"
	case StateSending:
		return "sending"
	default:
		return "unknown"
	}
}

const (
	// IntroGreeting is shown as the first assistant message of a new conversation.
	IntroGreeting = "Even Dead, I'm The Hero.\n\nHello! I'm EDITH, Vishal's personal AI assistant. I'm here to help you learn about his projects, skills, and experience. What would you like to know?"

	// ErrorReply replaces the assistant turn of any failed round.
	ErrorReply = "I'm experiencing some technical difficulties right now. Please try again in a moment, or feel free to contact Vishal directly!"

	DefaultIntroDelay = 3 * time.Second
	introSpeechDelay  = 500 * time.Millisecond
)

// View is a snapshot of what a UI needs to render.
type View struct {
	State        State
	Open         bool
	Messages     []Message
	Composing    bool
	Speaking     bool
	VoiceEnabled bool
}

type Option func(*Manager)

func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

func WithIntroDelay(d time.Duration) Option {
	return func(m *Manager) { m.introDelay = d }
}

func WithSpeaker(s *Speaker) Option {
	return func(m *Manager) { m.speaker = s }
}

// WithListener registers fn to receive a View after every change. fn is
// called without the manager's lock held.
func WithListener(fn func(View)) Option {
	return func(m *Manager) { m.listener = fn }
}

// Manager is the conversation state machine. All methods are safe for
// concurrent use; Send blocks for the duration of the gateway call.
type Manager struct {
	storage    Storage
	gateway    Gateway
	speaker    *Speaker
	clock      clock.Clock
	introDelay time.Duration
	listener   func(View)

	// persistMu orders storage writes so a newer snapshot is never
	// overwritten by an older one.
	persistMu sync.Mutex

	mu         sync.Mutex
	state      State
	open       bool
	messages   []Message
	generation uint64
	inFlight   bool
	introTimer clock.Timer
	lastID     int64
}

func NewManager(storage Storage, gateway Gateway, opts ...Option) *Manager {
	m := &Manager{
		storage:    storage,
		gateway:    gateway,
		clock:      clock.Real(),
		introDelay: DefaultIntroDelay,
		state:      StateClosed,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.speaker == nil {
		m.speaker = NewSpeaker(nil, false)
	}
	m.speaker.OnChange(func(bool) { m.notify() })
	return m
}

// Open shows the assistant. A persisted transcript is restored; a missing or
// corrupt one is discarded and the intro greeting is scheduled.
func (m *Manager) Open(ctx context.Context) {
	m.mu.Lock()
	if m.open {
		m.mu.Unlock()
		return
	}
	m.open = true
	m.state = StateRehydrating
	m.mu.Unlock()

	restored := m.rehydrate(ctx)

	m.mu.Lock()
	switch {
	case len(restored) > 0:
		m.messages = restored
		m.lastID = restored[len(restored)-1].ID
		m.state = StateActive
	case len(m.messages) > 0:
		// Storage was unreadable; keep what this session already has.
		m.state = StateActive
	default:
		m.enterIntroLocked()
	}
	if m.inFlight {
		m.state = StateSending
	}
	m.mu.Unlock()
	m.notify()
}

func (m *Manager) rehydrate(ctx context.Context) []Message {
	messages, err := LoadTranscript(ctx, m.storage)
	switch {
	case errors.Is(err, ErrCorruptTranscript):
		slog.Warn("Discarding corrupt conversation history", "error", err)
		if err := m.storage.Delete(ctx, StorageKey); err != nil {
			slog.Warn("Error clearing conversation history", "error", err)
		}
		return nil
	case err != nil:
		slog.Warn("Error loading conversation history", "error", err)
		return nil
	}
	return messages
}

// enterIntroLocked schedules the greeting for the current generation.
func (m *Manager) enterIntroLocked() {
	m.state = StateIntroPending
	if m.introTimer != nil {
		m.introTimer.Stop()
	}
	gen := m.generation
	m.introTimer = m.clock.AfterFunc(m.introDelay, func() { m.deliverIntro(gen) })
}

func (m *Manager) deliverIntro(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || m.state != StateIntroPending || !m.open {
		m.mu.Unlock()
		return
	}
	m.introTimer = nil
	m.appendLocked(Message{Role: models.RoleAssistant, Content: IntroGreeting})
	m.state = StateActive
	m.mu.Unlock()

	m.persist()
	m.notify()

	m.clock.AfterFunc(introSpeechDelay, func() {
		m.mu.Lock()
		speak := gen == m.generation && m.open
		m.mu.Unlock()
		if speak {
			m.speaker.Speak(strings.ReplaceAll(IntroGreeting, "\n\n", " "))
		}
	})
}

// Close hides the assistant. Speech stops and a pending intro is dropped; an
// in-flight request keeps running and its result still lands in the
// transcript.
func (m *Manager) Close() {
	m.mu.Lock()
	if !m.open {
		m.mu.Unlock()
		return
	}
	m.open = false
	if m.introTimer != nil {
		m.introTimer.Stop()
		m.introTimer = nil
	}
	m.state = StateClosed
	m.mu.Unlock()

	m.speaker.Cancel()
	m.notify()
}

// Clear erases the transcript and its persisted copy and restarts the intro.
// A reply still in flight for the erased transcript is discarded.
func (m *Manager) Clear(ctx context.Context) {
	m.mu.Lock()
	m.generation++
	m.inFlight = false
	m.messages = nil
	m.lastID = 0
	if m.introTimer != nil {
		m.introTimer.Stop()
		m.introTimer = nil
	}
	if m.open {
		m.enterIntroLocked()
	} else {
		m.state = StateClosed
	}
	m.mu.Unlock()

	m.speaker.Cancel()
	m.persistMu.Lock()
	if err := m.storage.Delete(ctx, StorageKey); err != nil {
		slog.Warn("Error clearing conversation history", "error", err)
	}
	m.persistMu.Unlock()
	m.notify()
}

// ValidateInput trims input and applies the gateway's length limit locally.
func ValidateInput(input string) (string, error) {
	text := strings.TrimSpace(input)
	if text == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > models.MaxMessageLength {
		return "", ErrMessageTooLong
	}
	return text, nil
}

// Send runs one round: the user message is appended at once, the gateway is
// called, and exactly one assistant message (a reply or an error stand-in)
// is appended. A second Send while a round is running returns ErrBusy.
// Gateway failures are not returned; they show up as an error-flagged
// message.
func (m *Manager) Send(ctx context.Context, input string) (Message, error) {
	text, err := ValidateInput(input)
	if err != nil {
		return Message{}, err
	}

	m.mu.Lock()
	if !m.open {
		m.mu.Unlock()
		return Message{}, ErrClosed
	}
	if m.inFlight {
		m.mu.Unlock()
		return Message{}, ErrBusy
	}
	if m.introTimer != nil {
		m.introTimer.Stop()
		m.introTimer = nil
	}
	history := historyFor(m.messages)
	m.appendLocked(Message{Role: models.RoleUser, Content: text})
	m.inFlight = true
	m.state = StateSending
	gen := m.generation
	m.mu.Unlock()

	m.persist()
	m.notify()

	reply, callErr := m.gateway.Chat(ctx, text, history)

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return Message{}, ErrDiscarded
	}
	m.inFlight = false

	var msg Message
	if callErr != nil {
		slog.Warn("EDITH request failed", "error", callErr)
		msg = m.appendLocked(Message{Role: models.RoleAssistant, Content: ErrorReply, IsError: true})
	} else {
		msg = m.appendLocked(Message{Role: models.RoleAssistant, Content: reply.Text})
	}
	open := m.open
	if open {
		m.state = StateActive
	} else {
		m.state = StateClosed
	}
	m.mu.Unlock()

	m.persist()
	if open && callErr == nil {
		m.speaker.Speak(msg.Content)
	}
	m.notify()
	return msg, nil
}

// SpeakMessage speaks a transcript message again, replacing any current speech.
func (m *Manager) SpeakMessage(id int64) error {
	m.mu.Lock()
	var text string
	found := false
	for _, msg := range m.messages {
		if msg.ID == id {
			text, found = msg.Content, true
			break
		}
	}
	m.mu.Unlock()

	if !found {
		return ErrUnknownMessage
	}
	m.speaker.Speak(text)
	return nil
}

// SetVoiceEnabled toggles speech output; turning it off silences the
// current utterance immediately.
func (m *Manager) SetVoiceEnabled(enabled bool) {
	m.speaker.SetEnabled(enabled)
	m.notify()
}

// StopSpeaking cancels the current utterance without changing the setting.
func (m *Manager) StopSpeaking() {
	m.speaker.Cancel()
}

// View returns a snapshot of the current state.
func (m *Manager) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.viewLocked()
}

func (m *Manager) viewLocked() View {
	return View{
		State:        m.state,
		Open:         m.open,
		Messages:     append([]Message(nil), m.messages...),
		Composing:    m.state == StateSending || m.state == StateIntroPending,
		Speaking:     m.speaker.Speaking(),
		VoiceEnabled: m.speaker.Enabled(),
	}
}

// appendLocked stamps msg with a strictly increasing ID and the current time.
func (m *Manager) appendLocked(msg Message) Message {
	now := m.clock.Now()
	id := now.UnixMilli()
	if id <= m.lastID {
		id = m.lastID + 1
	}
	m.lastID = id
	msg.ID = id
	msg.CreatedAt = now
	m.messages = append(m.messages, msg)
	return msg
}

func (m *Manager) persist() {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	data, err := encodeTranscript(m.messages)
	m.mu.Unlock()
	if err != nil {
		slog.Error("Error encoding conversation history", "error", err)
		return
	}
	if err := m.storage.Set(context.Background(), StorageKey, data); err != nil {
		slog.Warn("Error saving conversation history", "error", err)
	}
}

func (m *Manager) notify() {
	if m.listener == nil {
		return
	}
	m.listener(m.View())
}
