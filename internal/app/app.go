package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"marketplace-auth/internal/config"
)

type App struct {
	httpServer *http.Server
	infra      *Infra
	cancel     context.CancelFunc
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	infra, err := setupInfra(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// Background workers (rate limiter eviction) live until Shutdown.
	runCtx, cancel := context.WithCancel(context.Background())

	router, err := setupHTTP(runCtx, cfg, infra)
	if err != nil {
		cancel()
		_ = infra.Close()
		return nil, err
	}

	server := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		httpServer: server,
		infra:      infra,
		cancel:     cancel,
	}, nil
}

func (a *App) Run() error {
	if err := a.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) Shutdown(ctx context.Context) error {
	defer a.cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	return a.infra.Close()
}
