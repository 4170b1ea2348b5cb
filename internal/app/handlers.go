package app

import (
	"gorm.io/gorm"

	httpH "github.com/yungbote/docquiz-backend/internal/http/handlers"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
)

type Handlers struct {
	Document *httpH.DocumentHandler
	Quiz     *httpH.QuizHandler
	Health   *httpH.HealthHandler
}

func wireHandlers(log *logger.Logger, cfg Config, db *gorm.DB, s *Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Document: httpH.NewDocumentHandler(log, s.Documents, s.Status, s.Hub, cfg.Upload.MaxBytes, httpH.StreamConfig{
			Interval: cfg.Stream.Interval,
			Budget:   cfg.Stream.Budget,
		}),
		Quiz:   httpH.NewQuizHandler(log, s.Quiz),
		Health: httpH.NewHealthHandler(db),
	}
}
