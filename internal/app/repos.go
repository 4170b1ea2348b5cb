package app

import (
	"fmt"

	"github.com/yungbote/docquiz-backend/internal/data/db"
	"github.com/yungbote/docquiz-backend/internal/data/repos"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
)

// wireRepos opens the database, picks the embedding store for its driver and
// migrates every table before handing out repositories.
func wireRepos(log *logger.Logger, cfg Config) (*db.Service, *repos.Repos, error) {
	log.Info("Wiring repos...", "driver", cfg.DB.Driver, "vector_store", cfg.VectorStore)

	svc, err := db.NewService(log, db.Config{
		Driver:           cfg.DB.Driver,
		PostgresHost:     cfg.DB.Host,
		PostgresPort:     cfg.DB.Port,
		PostgresUser:     cfg.DB.User,
		PostgresPassword: cfg.DB.Password,
		PostgresName:     cfg.DB.Name,
		PostgresSSLMode:  cfg.DB.SSLMode,
		SQLitePath:       cfg.DB.SQLitePath,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init database: %w", err)
	}

	vectors, err := resolveVectorStore(cfg.VectorStore, svc.Driver())
	if err != nil {
		_ = svc.Close()
		return nil, nil, err
	}
	if err := db.AutoMigrateAll(svc.DB(), vectors); err != nil {
		_ = svc.Close()
		return nil, nil, err
	}
	return svc, repos.New(svc.DB(), log, vectors), nil
}
