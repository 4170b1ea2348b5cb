package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/docquiz-backend/internal/http/handlers"
	httpMW "github.com/yungbote/docquiz-backend/internal/http/middleware"
	"github.com/yungbote/docquiz-backend/internal/observability"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	CORSOrigins []string
	UploadLimit httpMW.RateLimitConfig

	DocumentHandler *httpH.DocumentHandler
	QuizHandler     *httpH.QuizHandler
	HealthHandler   *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}
	name := cfg.ServiceName
	if name == "" {
		name = "docquiz-api"
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(name))
	r.Use(httpMW.AttachRequestData())
	r.Use(httpMW.RequestLogger(log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapF(cfg.Metrics.WriteHTTP))
	}

	api := r.Group("/api")
	{
		// Documents
		if cfg.DocumentHandler != nil {
			api.POST("/documents", httpMW.RateLimit(cfg.UploadLimit), cfg.DocumentHandler.Submit)
			api.GET("/documents/:id/status", cfg.DocumentHandler.Status)
			api.GET("/documents/:id/status/stream", cfg.DocumentHandler.StatusStream)
		}

		// Quizzes
		if cfg.QuizHandler != nil {
			api.GET("/modules/:id/quiz", cfg.QuizHandler.Get)
			api.POST("/modules/:id/quiz", cfg.QuizHandler.Generate)
		}
	}

	return r
}
