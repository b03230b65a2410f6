// Package app assembles the question pipeline from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/conversation"
	conversationredis "github.com/askdb/askdb/internal/conversation/redis"
	"github.com/askdb/askdb/internal/insight"
	"github.com/askdb/askdb/internal/intent"
	"github.com/askdb/askdb/internal/llm"
	"github.com/askdb/askdb/internal/nl2sql"
	"github.com/askdb/askdb/internal/observability"
	"github.com/askdb/askdb/internal/orchestrator"
	querypostgres "github.com/askdb/askdb/internal/query/postgres"
	"github.com/askdb/askdb/internal/schema"
	schemapostgres "github.com/askdb/askdb/internal/schema/postgres"
)

type App struct {
	Orchestrator *orchestrator.Orchestrator
	Translator   nl2sql.Translator
	Gateway      *querypostgres.Gateway
	Conversation *conversationredis.KV

	db *querypostgres.DB
}

// Build opens the database pool and the conversation cache and wires every
// pipeline stage. Close releases both.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	model, err := llm.NewFromConfig(cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("initialize language model: %w", err)
	}

	db, err := querypostgres.Open(ctx, querypostgres.PoolConfig{
		DSN:             cfg.Database.DSN,
		MinConns:        cfg.Database.MinConns,
		MaxConns:        cfg.Database.MaxConns,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}

	kv, err := conversationredis.Open(ctx, cfg.Cache.RedisURL)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	gateway := querypostgres.NewGateway(db.SQL, querypostgres.GatewayConfig{
		QueryTimeout: cfg.Database.QueryTimeout,
		Logger:       logger,
	})

	var schemas schema.Introspector = schemapostgres.NewIntrospector(schemapostgres.ConnectDSN(cfg.Database.DSN))
	if cfg.Schema.CacheEnabled {
		schemas = schema.NewCached(schemas, cfg.Schema.CacheTTL)
	}

	synthesizer := nl2sql.NewSynthesizer(llm.Instrument("synthesize", model), logger)
	orch, err := orchestrator.New(orchestrator.Dependencies{
		Schemas:     schemas,
		Classifier:  intent.NewClassifier(llm.Instrument("classify", model), logger),
		Synthesizer: synthesizer,
		Executor:    gateway,
		Analyzer:    gateway,
		Responder:   insight.NewSynthesizer(llm.Instrument("insight", model), cfg.AI.AssistantName),
		Store:       conversation.NewStore(kv, conversation.Options{TTL: cfg.Cache.ConversationTTL}),
		SchemaName:  cfg.Schema.Name,
		Logger:      logger,
	})
	if err != nil {
		_ = kv.Close()
		_ = db.Close()
		return nil, err
	}

	observability.SetDBPoolSource(db.PoolStats)

	return &App{
		Orchestrator: orch,
		Translator: &nl2sql.SchemaTranslator{
			Schemas:       schemas,
			Synthesizer:   synthesizer,
			DefaultSchema: cfg.Schema.Name,
		},
		Gateway:      gateway,
		Conversation: kv,
		db:           db,
	}, nil
}

func (a *App) Close() error {
	observability.SetDBPoolSource(nil)
	return errors.Join(a.Conversation.Close(), a.db.Close())
}
