package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"edith/clock"
	"edith/config"
	"edith/routes"
	"edith/services"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	configFile, err := parseFlags(os.Args[1:])
	if err != nil {
		slog.Error("Invalid arguments", "error", err)
		os.Exit(2)
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	knowledge, err := newKnowledgeStore(ctx, cfg)
	if err != nil {
		slog.Error("Failed to open knowledge store", "backend", cfg.Knowledge.Backend, "error", err)
		os.Exit(1)
	}

	governor, closeGovernor := newGovernor(cfg)
	defer closeGovernor()

	verifier, err := newAdminVerifier(cfg)
	if err != nil {
		slog.Error("Failed to configure admin verifier", "error", err)
		os.Exit(1)
	}

	completer := services.NewOpenAIService(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model)
	chat := services.NewChatService(knowledge, completer,
		services.WithUpstreamTimeout(cfg.OpenAI.UpstreamTimeout),
		services.WithOwnerName(cfg.OwnerName),
	)

	router := routes.SetupRouter(routes.Dependencies{
		Chat:           chat,
		Admin:          services.NewKnowledgeAdmin(knowledge, verifier),
		Governor:       governor,
		AllowedOrigin:  cfg.FrontendURL,
		TrustedProxies: cfg.TrustedProxies,
		MaxBodyBytes:   cfg.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("EDITH AI Backend starting", "addr", srv.Addr)
	slog.Info("CORS enabled", "origin", cfg.FrontendURL)
	slog.Info("Client address resolution", "trusted_proxies", cfg.TrustedProxies)
	slog.Info("OpenAI API configured", "configured", cfg.OpenAI.APIKey != "", "model", cfg.OpenAI.Model)
	if fs, ok := knowledge.(*services.FileKnowledgeStore); ok {
		slog.Info("Knowledge base", "path", fs.Path(), "loaded", fs.Exists())
	} else {
		slog.Info("Knowledge base", "backend", cfg.Knowledge.Backend)
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed to start", "error", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
	slog.Info("Server stopped")
}

// parseFlags returns the optional config file path.
func parseFlags(args []string) (string, error) {
	fs := pflag.NewFlagSet("edith-gateway", pflag.ContinueOnError)
	configFile := fs.StringP("config", "c", "", "optional YAML config file")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	return *configFile, nil
}

func newKnowledgeStore(ctx context.Context, cfg *config.Config) (services.KnowledgeStore, error) {
	switch cfg.Knowledge.Backend {
	case "memory":
		return services.NewMemoryKnowledgeStore(nil), nil
	case "dynamodb":
		db, err := services.NewDynamoDBClient(ctx, services.DynamoOptions{
			Endpoint: cfg.Knowledge.DynamoDBEndpoint,
			Region:   cfg.Knowledge.AWSRegion,
		})
		if err != nil {
			return nil, err
		}
		return services.NewDynamoKnowledgeStore(ctx, db, cfg.Knowledge.DynamoDBTable), nil
	case "postgres":
		return services.NewPostgresKnowledgeStore(ctx, cfg.Knowledge.PostgresURI)
	default:
		return services.NewFileKnowledgeStore(cfg.Knowledge.Path), nil
	}
}

func newGovernor(cfg *config.Config) (services.RateGovernor, func()) {
	if cfg.RateLimit.Backend == "redis" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddress})
		return services.NewRedisGovernor(client, cfg.RateLimit.Window(), cfg.RateLimit.MaxRequests),
			func() { _ = client.Close() }
	}
	return services.NewWindowGovernor(cfg.RateLimit.Window(), cfg.RateLimit.MaxRequests, clock.Real()), func() {}
}

func newAdminVerifier(cfg *config.Config) (services.AdminVerifier, error) {
	switch {
	case cfg.Admin.PasswordHash != "":
		return services.NewBcryptVerifier(cfg.Admin.PasswordHash)
	case cfg.Admin.Password != "":
		slog.Warn("Admin endpoint protected by a plain shared secret; set ADMIN_PASSWORD_HASH instead")
		return services.NewSharedSecretVerifier(cfg.Admin.Password), nil
	default:
		slog.Warn("No admin credential configured; knowledge updates are disabled")
		return services.DenyAllVerifier{}, nil
	}
}
