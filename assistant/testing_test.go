package assistant

import (
	"context"
	"sync"

	"edith/models"
)

type gatewayCall struct {
	message string
	history []models.HistoryEntry
}

// fakeGateway records calls. When block is set each call waits on it after
// signalling called.
type fakeGateway struct {
	mu     sync.Mutex
	calls  []gatewayCall
	reply  string
	err    error
	called chan struct{}
	block  chan struct{}
}

func newFakeGateway(reply string) *fakeGateway {
	return &fakeGateway{reply: reply, called: make(chan struct{}, 16)}
}

func (g *fakeGateway) Chat(ctx context.Context, message string, history []models.HistoryEntry) (Reply, error) {
	g.mu.Lock()
	g.calls = append(g.calls, gatewayCall{message: message, history: history})
	reply, err, block := g.reply, g.err, g.block
	g.mu.Unlock()

	g.called <- struct{}{}
	if block != nil {
		<-block
	}
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: reply, TokensUsed: 7}, nil
}

func (g *fakeGateway) Calls() []gatewayCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]gatewayCall(nil), g.calls...)
}

// fakeSynth blocks each utterance until it is canceled or release is closed.
type fakeSynth struct {
	mu        sync.Mutex
	voices    []Voice
	started   []Utterance
	completed []string
	canceled  []string
	release   chan struct{}
}

func newFakeSynth() *fakeSynth {
	return &fakeSynth{release: make(chan struct{})}
}

func (s *fakeSynth) Voices(ctx context.Context) ([]Voice, error) {
	return s.voices, nil
}

func (s *fakeSynth) Speak(ctx context.Context, u Utterance) error {
	s.mu.Lock()
	s.started = append(s.started, u)
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		s.mu.Lock()
		s.canceled = append(s.canceled, u.Text)
		s.mu.Unlock()
		return ctx.Err()
	case <-s.release:
		s.mu.Lock()
		s.completed = append(s.completed, u.Text)
		s.mu.Unlock()
		return nil
	}
}

func (s *fakeSynth) Started() []Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Utterance(nil), s.started...)
}

func (s *fakeSynth) Completed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.completed...)
}

func (s *fakeSynth) Canceled() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.canceled...)
}
