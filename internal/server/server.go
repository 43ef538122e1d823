package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/teamerhq/relay/internal/persist"
	"github.com/teamerhq/relay/internal/presence"
	"github.com/teamerhq/relay/internal/relay"
	"github.com/teamerhq/relay/internal/router"
	"github.com/teamerhq/relay/internal/server/middleware"
	"github.com/teamerhq/relay/pkg/config"
	"github.com/teamerhq/relay/pkg/state"
	"github.com/teamerhq/relay/pkg/state/statemanager"
	"github.com/teamerhq/relay/pkg/transport"
)

type App struct {
	logger       *slog.Logger
	stateManager state.Manager
	eventRouter  *router.Router
	eventRelay   *relay.Relay
	wg           sync.WaitGroup
	http         *http.Server
	handler      http.Handler
	config       *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, store persist.Store, mirror presence.Mirror) *App {
	stateManager := statemanager.NewInMemoryManager(logger)
	broadcaster := presence.NewBroadcaster(logger, stateManager, mirror)
	eventRelay := relay.New(logger, stateManager)
	eventRouter := router.New(logger, stateManager, store, broadcaster, eventRelay)

	app := &App{
		logger:       logger,
		stateManager: stateManager,
		eventRouter:  eventRouter,
		eventRelay:   eventRelay,
		config:       cfg,
		ctx:          rootCtx,
	}

	isOnline := func(userID string) bool {
		_, ok := stateManager.Resolve(userID)
		return ok
	}
	// Closing the previous connection realizes last-connection-wins at the
	// transport level; the registry entry is overwritten at announce time.
	cycler := func(userID string) {
		if conn, ok := stateManager.Resolve(userID); ok {
			logger.Info("Cycling connection: closing previous", slog.String("userID", userID), slog.String("connID", conn.ID.String()))
			conn.Transport.Close(errors.New("connection cycled by new connection"))
		}
	}

	wsMiddlewares := []middleware.Middleware{
		middleware.RequestMetadataMiddleware(),
		middleware.NewRequestLogger(logger),
		middleware.NewConnectionLimiter(logger, isOnline, cycler, cfg.Server.ConnectionLimit),
	}
	if cfg.Server.Auth.Enabled {
		wsMiddlewares = append(wsMiddlewares, middleware.NewAuthMiddleware(logger, cfg.Server.Auth.JWTSecret))
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", middleware.Chain(http.HandlerFunc(app.upgradeHandler), wsMiddlewares...))
	mux.Handle("/internal/events", middleware.Chain(
		http.HandlerFunc(app.ingestHandler),
		middleware.RequestMetadataMiddleware(),
		middleware.NewRequestLogger(logger),
	))
	mux.HandleFunc("/healthz", app.healthHandler)

	app.handler = mux
	app.http = &http.Server{
		Addr:    cfg.Server.Address,
		Handler: mux,
		BaseContext: func(l net.Listener) context.Context {
			return app.ctx
		},
	}
	return app
}

// Handler exposes the full route table, mostly for tests.
func (a *App) Handler() http.Handler {
	return a.handler
}

func (a *App) Run() error {
	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, _ := middleware.ReqMetadataFrom(r.Context())
	connLogger := a.logger
	if reqMeta != nil {
		connLogger = a.logger.With(slog.String("remoteAddr", reqMeta.IP))
	}

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.Config(a.config.Transport),
		a.logger,
	)
	if _, err := a.stateManager.RegisterConnection(conn); err != nil {
		connLogger.Error("Failed to register connection state", slog.Any("error", err))
		conn.Close(err)
		return
	}

	conn.SetMessageHandler(a.eventRouter.HandleMessage)
	conn.SetCloseHandler(func(id uuid.UUID, err error) {
		connLogger.Info("Cleaning up closed connection", slog.String("connID", id.String()))
		a.eventRouter.HandleDisconnect(id)
	})

	connLogger.Info("Connection established, awaiting announce")
	conn.Run()
	<-conn.Done()
}

// Shutdown runs the graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	a.logger.Info("Closing all active connections...")
	for _, t := range a.stateManager.AllTransports() {
		t.Close(errors.New("graceful shutdown"))
	}

	a.wg.Wait()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
