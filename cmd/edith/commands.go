package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"edith/assistant"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type clientFlags struct {
	gateway   string
	timeout   time.Duration
	store     string
	storeDir  string
	redisAddr string
	namespace string
	voice     bool
	speechCmd string
}

func newRootCmd() *cobra.Command {
	flags := &clientFlags{}

	root := &cobra.Command{
		Use:           "edith",
		Short:         "Talk to EDITH, the portfolio assistant, from a terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.store, "store", "file", "transcript storage: file, memory or redis")
	pf.StringVar(&flags.storeDir, "store-dir", "", "directory for file storage (default: user config dir)")
	pf.StringVar(&flags.redisAddr, "redis-addr", "localhost:6379", "redis address for redis storage")
	pf.StringVar(&flags.namespace, "namespace", "default", "redis key namespace, usually a user name")

	chat := &cobra.Command{
		Use:   "chat",
		Short: "Open an interactive conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context(), flags, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	chat.Flags().StringVar(&flags.gateway, "gateway", "http://localhost:8000", "chat gateway base URL")
	chat.Flags().DurationVar(&flags.timeout, "timeout", 60*time.Second, "request timeout")
	chat.Flags().BoolVar(&flags.voice, "voice", false, "speak replies")
	chat.Flags().StringVar(&flags.speechCmd, "speech-cmd", "espeak-ng", "espeak-compatible speech command")

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Erase the saved conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			storage, closeStorage, err := openStorage(flags)
			if err != nil {
				return err
			}
			defer closeStorage()
			return storage.Delete(cmd.Context(), assistant.StorageKey)
		},
	}

	history := &cobra.Command{
		Use:   "history",
		Short: "Print the saved conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			storage, closeStorage, err := openStorage(flags)
			if err != nil {
				return err
			}
			defer closeStorage()
			return printHistory(cmd.Context(), storage, cmd.OutOrStdout())
		},
	}

	root.AddCommand(chat, clearCmd, history)
	return root
}

// openStorage returns the configured storage and a function releasing any
// connection it holds.
func openStorage(flags *clientFlags) (assistant.Storage, func(), error) {
	noop := func() {}
	switch flags.store {
	case "memory":
		return assistant.NewMemoryStorage(), noop, nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: flags.redisAddr})
		return assistant.NewRedisStorage(client, flags.namespace), func() { _ = client.Close() }, nil
	case "file":
		dir := flags.storeDir
		if dir == "" {
			var err error
			if dir, err = assistant.DefaultStorageDir(); err != nil {
				return nil, nil, fmt.Errorf("failed to locate config dir: %w", err)
			}
		}
		storage, err := assistant.NewFileStorage(dir)
		if err != nil {
			return nil, nil, err
		}
		return storage, noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown store %q", flags.store)
	}
}

func printHistory(ctx context.Context, storage assistant.Storage, out io.Writer) error {
	r := newRenderer(out)
	messages, err := assistant.LoadTranscript(ctx, storage)
	if err != nil {
		return fmt.Errorf("failed to read saved conversation: %w", err)
	}
	if len(messages) == 0 {
		fmt.Fprintln(out, r.styles.hint.Render("No saved conversation."))
		return nil
	}
	r.render(assistant.View{Messages: messages})
	return nil
}

func runChat(ctx context.Context, flags *clientFlags, in io.Reader, out io.Writer) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	storage, closeStorage, err := openStorage(flags)
	if err != nil {
		return err
	}
	defer closeStorage()

	synth := assistant.NewExecSynthesizer(flags.speechCmd)
	voice := flags.voice
	if voice && !synth.Available() {
		fmt.Fprintf(out, "%s not found, voice disabled\n", flags.speechCmd)
		voice = false
	}

	r := newRenderer(out)
	m := assistant.NewManager(storage, assistant.NewHTTPGateway(flags.gateway, flags.timeout),
		assistant.WithSpeaker(assistant.NewSpeaker(synth, voice)),
		assistant.WithListener(r.render),
	)

	r.banner()
	m.Open(ctx)
	defer m.Close()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if quit := handleLine(ctx, m, r, line); quit {
				return nil
			}
		}
	}
}

func handleLine(ctx context.Context, m *assistant.Manager, r *renderer, line string) bool {
	switch strings.TrimSpace(line) {
	case "/quit", "/exit":
		return true
	case "/clear":
		r.reset()
		m.Clear(ctx)
		return false
	case "/voice":
		enabled := !m.View().VoiceEnabled
		m.SetVoiceEnabled(enabled)
		r.notice(fmt.Sprintf("voice %s", onOff(enabled)))
		return false
	case "/stop":
		m.StopSpeaking()
		return false
	}

	_, err := m.Send(ctx, line)
	switch {
	case err == nil, errors.Is(err, assistant.ErrEmptyMessage):
	case errors.Is(err, assistant.ErrMessageTooLong):
		r.notice("Message too long. Please keep it under 1000 characters.")
	default:
		r.notice(err.Error())
	}
	return false
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
