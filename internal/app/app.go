package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/yungbote/docquiz-backend/internal/data/db"
	"github.com/yungbote/docquiz-backend/internal/data/repos"
	httpapi "github.com/yungbote/docquiz-backend/internal/http"
	"github.com/yungbote/docquiz-backend/internal/observability"
	"github.com/yungbote/docquiz-backend/internal/platform/logger"
	"github.com/yungbote/docquiz-backend/internal/temporalx"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	DB       *db.Service
	Repos    *repos.Repos
	Clients  *Clients
	Services *Services
	Server   *httpapi.Server

	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

// New wires the whole process. ctx bounds background forwarders started
// during wiring; Close stops them.
func New(ctx context.Context) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading configuration...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load config: %w", err)
	}
	tcfg := temporalx.LoadConfig()

	ctx, cancel := context.WithCancel(ctx)
	a := &App{Log: log, Cfg: cfg, cancel: cancel}

	metrics := observability.Init()
	a.otelShutdown = observability.InitOTel(ctx, log, observability.OtelConfig{ServiceName: cfg.ServiceName})

	a.DB, a.Repos, err = wireRepos(log, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Clients, err = wireClients(ctx, log, cfg, tcfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Services, err = wireServices(ctx, log, cfg, tcfg, a.DB, a.Repos, a.Clients)
	if err != nil {
		a.Close()
		return nil, err
	}
	if cfg.RunsAPI() {
		a.Server = wireServer(log, cfg, metrics, a.Clients, wireHandlers(log, cfg, a.DB.DB(), a.Services))
	}
	log.Info("app wired", "role", cfg.Role, "temporal", tcfg.Enabled())
	return a, nil
}

// Run starts the job runner this role owns and serves HTTP until ctx is
// cancelled. A worker-only process just blocks.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Services == nil {
		return fmt.Errorf("app not initialized")
	}
	if err := a.Services.start(ctx, a.Cfg); err != nil {
		return fmt.Errorf("start job runner: %w", err)
	}
	defer a.Services.wait()

	if a.Server == nil {
		<-ctx.Done()
		return nil
	}
	addr := ":" + a.Cfg.Port
	a.Log.Info("http listening", "addr", addr)
	return a.Server.Run(ctx, addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.Services != nil && a.Services.Bus != nil {
		_ = a.Services.Bus.Close()
	}
	a.Clients.Close()
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Log.Warn("close database", "error", err)
		}
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown", "error", err)
		}
		cancel()
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
