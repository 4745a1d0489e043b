package assistant

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ExecSynthesizer drives an espeak-compatible command line synthesizer.
// Canceling the context kills the process.
type ExecSynthesizer struct {
	Command string
}

func NewExecSynthesizer(command string) *ExecSynthesizer {
	if command == "" {
		command = "espeak-ng"
	}
	return &ExecSynthesizer{Command: command}
}

// Available reports whether the command is on PATH.
func (e *ExecSynthesizer) Available() bool {
	_, err := exec.LookPath(e.Command)
	return err == nil
}

// Voices parses the table printed by --voices:
//
//	Pty Language  Age/Gender VoiceName  File        Other Languages
//	 5  en-gb     --/F       English_F  gmw/en-F
func (e *ExecSynthesizer) Voices(ctx context.Context) ([]Voice, error) {
	out, err := exec.CommandContext(ctx, e.Command, "--voices").Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list voices: %w", err)
	}
	return parseVoiceTable(out), nil
}

func parseVoiceTable(out []byte) []Voice {
	var voices []Voice
	scanner := bufio.NewScanner(bytes.NewReader(out))
	first := true
	for scanner.Scan() {
		if first {
			first = false
			continue
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) < 5 {
			continue
		}
		voices = append(voices, Voice{
			ID:     fields[4],
			Name:   fields[3],
			Lang:   fields[1],
			Female: strings.HasSuffix(fields[2], "/F"),
		})
	}
	return voices
}

func (e *ExecSynthesizer) Speak(ctx context.Context, u Utterance) error {
	cmd := exec.CommandContext(ctx, e.Command, espeakArgs(u)...)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s failed: %w", e.Command, err)
	}
	return nil
}

// espeakArgs scales the relative settings onto espeak's defaults: 175 words
// per minute, pitch 50 of 99, amplitude 100 of 200.
func espeakArgs(u Utterance) []string {
	var args []string
	if u.Voice != nil && u.Voice.ID != "" {
		args = append(args, "-v", u.Voice.ID)
	}
	if u.Rate > 0 {
		args = append(args, "-s", strconv.Itoa(int(175*u.Rate)))
	}
	if u.Pitch > 0 {
		args = append(args, "-p", strconv.Itoa(clampInt(int(50*u.Pitch), 0, 99)))
	}
	if u.Volume > 0 {
		args = append(args, "-a", strconv.Itoa(clampInt(int(100*u.Volume), 0, 200)))
	}
	return append(args, "--", u.Text)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
