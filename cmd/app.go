package main

import (
	"context"
	"fmt"
	"net/http"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog"

	"llm-gateway/handler"
	"llm-gateway/internal/config"
	"llm-gateway/internal/integrations/anthropic"
	"llm-gateway/internal/integrations/appsscript"
	"llm-gateway/internal/integrations/gemini"
	"llm-gateway/internal/integrations/ollama"
	"llm-gateway/internal/integrations/openai"
	"llm-gateway/internal/integrations/paramstore"
	"llm-gateway/internal/integrations/workersai"
	"llm-gateway/internal/logger"
	"llm-gateway/internal/provider"
	"llm-gateway/internal/repository"
	"llm-gateway/internal/usecase"
)

type app struct {
	cfg     *config.Config
	log     zerolog.Logger
	handler http.Handler
	chat    *usecase.ChatService
	closers []func() error
}

// Close waits for pending session writes, then releases the store.
func (a *app) Close() {
	a.chat.Wait()
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.log.Warn().Err(err).Msg("close failed")
		}
	}
}

func newApp(ctx context.Context) (_ *app, retErr error) {
	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := logger.New(cfg.LogLevel, cfg.LogPretty)
	a := &app{cfg: cfg, log: log}

	// ---- AWS SDK config ----
	var store repository.SessionStore
	if cfg.NeedsAWS() {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load AWS config: %w", err)
		}
		if cfg.ParamPrefix != "" {
			params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
			if err != nil {
				return nil, err
			}
			if err := cfg.OverlaySecrets(ctx, params); err != nil {
				return nil, err
			}
		}
		if cfg.SessionBackend == config.BackendDynamoDB {
			store, err = repository.NewDynamoStore(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable)
			if err != nil {
				return nil, err
			}
		}
	}
	if cfg.SessionBackend == config.BackendSQLite {
		sqlite, err := repository.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		defer func() {
			if retErr != nil {
				_ = sqlite.Close()
			}
		}()
		a.closers = append(a.closers, sqlite.Close)
		store = sqlite
	}
	if missing := cfg.MissingSecrets(); len(missing) > 0 {
		log.Info().Strs("unset", missing).Msg("some providers are not configured")
	}

	// ---- Providers ----
	oa := openai.NewProvider(openai.WithBaseURL(cfg.OpenAIBaseURL))
	cf := workersai.NewProvider(workersai.WithBaseURL(cfg.CloudflareBaseURL))
	registry := provider.NewRegistry(cfg.Secrets)
	registry.Register(oa)
	registry.Register(gemini.NewProvider(
		gemini.WithBaseURL(cfg.GeminiBaseURL),
		gemini.WithSearchGrounding(cfg.GeminiSearchGrounding),
	))
	registry.Register(cf)
	registry.Register(anthropic.NewProvider(anthropic.WithBaseURL(cfg.AnthropicBaseURL)))
	registry.Register(ollama.NewProvider(ollama.WithHost(cfg.OllamaHost)))

	// ---- Services ----
	chat, err := usecase.NewChatService(registry, store, log)
	if err != nil {
		return nil, err
	}
	a.chat = chat
	catalog, err := usecase.NewCatalogService(registry, log)
	if err != nil {
		return nil, err
	}
	sessions, err := usecase.NewSessionService(store)
	if err != nil {
		return nil, err
	}
	scripts := appsscript.NewClient(appsscript.WithBaseURL(cfg.AppsScriptBaseURL))
	aux, err := usecase.NewAuxService(oa, cf, scripts, cfg.Secrets, log)
	if err != nil {
		return nil, err
	}

	// ---- Handler ----
	h, err := handler.NewHandler(chat, catalog, sessions, aux, log)
	if err != nil {
		return nil, err
	}
	a.handler = h.Routes()
	log.Info().
		Strs("providers", registry.Names()).
		Str("session_backend", cfg.SessionBackend).
		Msg("gateway ready")
	return a, nil
}
