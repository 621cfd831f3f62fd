package repository

import (
	"github.com/google/wire"

	"agentforge/chat-api/internal/infrastructure/database/repository/agentrepo"
	"agentforge/chat-api/internal/infrastructure/database/repository/billingrepo"
	"agentforge/chat-api/internal/infrastructure/database/repository/chatrepo"
	"agentforge/chat-api/internal/infrastructure/database/repository/documentrepo"
	"agentforge/chat-api/internal/infrastructure/database/repository/preferencerepo"
	"agentforge/chat-api/internal/infrastructure/database/transaction"
)

// RepositoryProvider binds the gorm repositories to their domain interfaces.
var RepositoryProvider = wire.NewSet(
	transaction.NewDatabase,
	chatrepo.NewChatGormRepository,
	agentrepo.NewAgentGormRepository,
	documentrepo.NewDocumentGormRepository,
	billingrepo.NewLedgerGormRepository,
	preferencerepo.NewPreferenceGormRepository,
)
