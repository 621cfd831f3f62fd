package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"agentforge/chat-api/internal/config"
	"agentforge/chat-api/internal/domain/agent"
	"agentforge/chat-api/internal/domain/billing"
	"agentforge/chat-api/internal/domain/chat"
	"agentforge/chat-api/internal/domain/document"
	"agentforge/chat-api/internal/domain/preference"
	"agentforge/chat-api/internal/domain/retry"
	"agentforge/chat-api/internal/infrastructure/database"
	"agentforge/chat-api/internal/infrastructure/memory"
	"agentforge/chat-api/internal/infrastructure/queue"
	"agentforge/chat-api/internal/interfaces/httpserver"
)

// Repositories groups the domain repositories of one storage backend.
type Repositories struct {
	Chats       chat.Repository
	Agents      agent.Repository
	Documents   document.Repository
	Ledger      billing.Repository
	Preferences preference.Repository
}

type storage struct {
	repos  *Repositories
	queue  queue.TaskQueue
	checks map[string]httpserver.ReadinessCheck
	db     *gorm.DB
	log    zerolog.Logger
}

// openStorage connects postgres when DATABASE_URL is set and falls back to
// process memory otherwise.
func openStorage(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*storage, error) {
	s := &storage{checks: map[string]httpserver.ReadinessCheck{}, log: log}
	if !cfg.UsesDatabase() {
		log.Warn().Msg("DATABASE_URL not set, using in-memory storage")
		s.repos = &Repositories{
			Chats:       memory.NewChatRepository(),
			Agents:      memory.NewAgentRepository(),
			Documents:   memory.NewDocumentRepository(),
			Ledger:      memory.NewLedgerRepository(),
			Preferences: memory.NewPreferenceRepository(),
		}
		s.queue = queue.NewMemoryQueue()
		return s, nil
	}

	db, err := database.Connect(ctx, database.Config{
		DatabaseURL: cfg.DatabaseURL,
		MaxIdle:     cfg.DBMaxIdleConns,
		MaxOpen:     cfg.DBMaxOpenConns,
		MaxLifetime: cfg.DBConnLifetime,
		LogLevel:    database.ParseLogLevel(cfg.DBLogLevel),
		Retry:       retry.DefaultPolicy(),
	}, log)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if cfg.DBAutoMigrate {
		if err := database.AutoMigrate(ctx, db, log); err != nil {
			_ = database.Close(db)
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}
	s.db = db
	s.repos = CreateRepositories(db)
	s.queue = queue.NewPostgresQueue(db, log)
	s.checks["database"] = func(ctx context.Context) error {
		return database.Ping(ctx, db)
	}
	return s, nil
}

func (s *storage) Close() {
	if s.db == nil {
		return
	}
	if err := database.Close(s.db); err != nil {
		s.log.Error().Err(err).Msg("close database")
	}
}
