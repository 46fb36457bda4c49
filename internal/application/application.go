package application

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/peerloom/liveclass-service/internal/admission"
	"github.com/peerloom/liveclass-service/internal/config"
	"github.com/peerloom/liveclass-service/internal/control"
	"github.com/peerloom/liveclass-service/internal/database"
	"github.com/peerloom/liveclass-service/internal/handler"
	"github.com/peerloom/liveclass-service/internal/registry"
	"github.com/peerloom/liveclass-service/internal/router"
	"github.com/peerloom/liveclass-service/internal/rtc"
	"github.com/peerloom/liveclass-service/internal/session"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// API is the HTTP + WebSocket coordinator application.
type API struct {
	cfg *config.Config
	srv *http.Server
	db  *gorm.DB
	hub *control.Hub
	mgr *session.Manager
}

// NewAPI creates the API application: validates config, runs
// migrations, opens the database, wires the coordinator graph.
func NewAPI(cfg *config.Config) (*API, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := database.MigrateUp(cfg.DatabaseURL()); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db, err := database.Open(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}

	logger, _ := zap.NewProduction()
	if cfg.AppEnv == "development" {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	feed := registry.NewFeed()
	store := registry.NewGormStore(db, feed, cfg.MarkerTTL)
	hub := control.NewHub(cfg.WSReadBufferSize, cfg.WSWriteBufferSize, cfg.WSMaxMessageSize, logger)
	mgr := session.NewManager(hub, cfg.WhiteboardFlush, logger)
	tokens := rtc.NewClient(cfg.RTCTokenURL, logger)

	admCfg := admission.DefaultConfig()
	admCfg.HostPollInterval = cfg.HostPollInterval
	admCfg.StatusPollInterval = cfg.StatusPollInterval
	admCfg.ReadRetries = cfg.ReadRetries
	admCfg.ReadRetryBackoff = cfg.ReadRetryBackoff

	sessionHandler := handler.NewSessionHandler(store, mgr, cfg.WSBaseURL, cfg.RoomPollInterval, logger)
	controlWS := handler.NewControlWSHandler(hub, store, feed, mgr, tokens, admCfg, logger)
	health := handler.NewHealthHandler()

	r := router.New(sessionHandler, controlWS, health)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &API{cfg: cfg, srv: srv, db: db, hub: hub, mgr: mgr}, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled; then
// shuts down gracefully.
func (a *API) Run(ctx context.Context) error {
	addr := a.srv.Addr
	host := a.cfg.AppHost
	if host == "0.0.0.0" {
		host = "localhost"
	}
	base := "http://" + host + ":" + a.cfg.HTTPPort
	log.Printf("HTTP server listening on %s", addr)
	log.Printf("  Health:        %s/health", base)
	log.Printf("  Ready:         %s/ready", base)
	log.Printf("  Sessions:      %s/sessions", base)
	log.Printf("  WebSocket:     ws://%s:%s/ws/control/:group_id/:user_id", host, a.cfg.HTTPPort)

	go func() {
		if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("http: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
