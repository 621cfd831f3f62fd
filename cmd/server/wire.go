//go:build wireinject

package main

import (
	"github.com/google/wire"
	"gorm.io/gorm"

	"agentforge/chat-api/internal/infrastructure/database/repository"
)

func CreateRepositories(db *gorm.DB) *Repositories {
	wire.Build(
		repository.RepositoryProvider,
		wire.Struct(new(Repositories), "*"),
	)
	return nil
}
