package app

import (
	"time"

	httpapi "github.com/yungbote/docquiz-backend/internal/http"
	httpMW "github.com/yungbote/docquiz-backend/internal/http/middleware"
	"github.com/yungbote/docquiz-backend/internal/observability"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
)

func wireServer(log *logger.Logger, cfg Config, metrics *observability.Metrics, clients *Clients, h Handlers) *httpapi.Server {
	log.Info("Wiring router...")
	return httpapi.NewServer(httpapi.RouterConfig{
		Log:         log,
		Metrics:     metrics,
		ServiceName: cfg.ServiceName,
		CORSOrigins: cfg.CORSOrigins,
		UploadLimit: httpMW.RateLimitConfig{
			Limit:     cfg.Upload.RPM,
			Window:    time.Minute,
			Redis:     clients.Redis,
			KeyPrefix: "docquiz:upload",
			Log:       log,
		},
		DocumentHandler: h.Document,
		QuizHandler:     h.Quiz,
		HealthHandler:   h.Health,
	})
}
