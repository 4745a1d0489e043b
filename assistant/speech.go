package assistant

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
)

// Voice is one voice offered by a Synthesizer.
type Voice struct {
	ID     string
	Name   string
	Lang   string
	Female bool
}

// Utterance is the text to speak plus delivery settings. Rate, Pitch and
// Volume are relative: 1.0 is the platform default.
type Utterance struct {
	Text   string
	Voice  *Voice
	Rate   float64
	Pitch  float64
	Volume float64
}

// Synthesizer is the platform speech engine. Speak blocks until the
// utterance finishes or ctx is canceled.
type Synthesizer interface {
	Voices(ctx context.Context) ([]Voice, error)
	Speak(ctx context.Context, u Utterance) error
}

// EDITH's delivery: a little slower, higher and quieter than default.
const (
	voiceRate   = 0.9
	voicePitch  = 1.1
	voiceVolume = 0.8
)

var femaleVoiceHints = []string{"female", "woman", "zira", "hazel"}

// SelectVoice prefers a voice flagged or named as female. It returns nil,
// meaning the platform default, when none matches.
func SelectVoice(voices []Voice) *Voice {
	for i := range voices {
		if voices[i].Female {
			return &voices[i]
		}
	}
	for i := range voices {
		name := strings.ToLower(voices[i].Name)
		for _, hint := range femaleVoiceHints {
			if strings.Contains(name, hint) {
				return &voices[i]
			}
		}
	}
	return nil
}

// Speaker owns the synthesizer and guarantees at most one active utterance.
// Starting a new utterance cancels the current one, and the new one does not
// begin until the old one has returned.
type Speaker struct {
	synth Synthesizer

	mu       sync.Mutex
	enabled  bool
	seq      uint64
	cancel   context.CancelFunc
	done     chan struct{}
	speaking bool
	onChange func(speaking bool)
}

func NewSpeaker(synth Synthesizer, enabled bool) *Speaker {
	return &Speaker{synth: synth, enabled: enabled}
}

// OnChange registers a callback invoked whenever speaking starts or stops.
func (s *Speaker) OnChange(fn func(speaking bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

func (s *Speaker) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// SetEnabled toggles speech. Disabling cancels the current utterance at once.
func (s *Speaker) SetEnabled(enabled bool) {
	s.mu.Lock()
	s.enabled = enabled
	s.mu.Unlock()
	if !enabled {
		s.Cancel()
	}
}

func (s *Speaker) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// Speak starts text, canceling whatever is being spoken. It returns
// immediately; playback runs in its own goroutine.
func (s *Speaker) Speak(text string) {
	s.mu.Lock()
	if !s.enabled || s.synth == nil || strings.TrimSpace(text) == "" {
		s.mu.Unlock()
		return
	}

	prev := s.done
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.seq++
	id := s.seq
	s.cancel = cancel
	s.done = done
	s.speaking = true
	notify := s.onChange
	s.mu.Unlock()

	if notify != nil {
		notify(true)
	}

	go func() {
		defer close(done)
		defer cancel()
		if prev != nil {
			<-prev
		}
		if ctx.Err() == nil {
			s.play(ctx, text)
		}
		s.finish(id)
	}()
}

func (s *Speaker) play(ctx context.Context, text string) {
	u := Utterance{Text: text, Rate: voiceRate, Pitch: voicePitch, Volume: voiceVolume}

	voices, err := s.synth.Voices(ctx)
	if err != nil {
		slog.Debug("Voice list unavailable, using default voice", "error", err)
	}
	u.Voice = SelectVoice(voices)

	if err := s.synth.Speak(ctx, u); err != nil && !errors.Is(err, context.Canceled) && ctx.Err() == nil {
		slog.Warn("Speech synthesis failed", "error", err)
	}
}

func (s *Speaker) finish(id uint64) {
	s.mu.Lock()
	if s.seq != id {
		s.mu.Unlock()
		return
	}
	s.cancel = nil
	wasSpeaking := s.speaking
	s.speaking = false
	notify := s.onChange
	s.mu.Unlock()

	if wasSpeaking && notify != nil {
		notify(false)
	}
}

// Cancel stops the current utterance, if any.
func (s *Speaker) Cancel() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	wasSpeaking := s.speaking
	s.speaking = false
	notify := s.onChange
	s.mu.Unlock()

	if wasSpeaking && notify != nil {
		notify(false)
	}
}

// Wait blocks until the most recently started utterance has returned.
func (s *Speaker) Wait() {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
}
