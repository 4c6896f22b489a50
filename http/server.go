package http

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/awantoch/edgebridge/config"
	"github.com/awantoch/edgebridge/constants"
	"github.com/awantoch/edgebridge/event"
	"github.com/awantoch/edgebridge/telemetry"
	"github.com/awantoch/edgebridge/utils"
	"github.com/awantoch/edgebridge/vercel"
)

const shutdownTimeout = 10 * time.Second

// NewAdapter builds the Vercel adapter serving the built-in routes.
func NewAdapter(cfg *config.Config, bus event.EventBus) *vercel.Adapter {
	return vercel.New(vercel.Options{
		Handler:       NewRouter(bus),
		Origin:        cfg.HTTP.Origin,
		BodySizeLimit: cfg.Body.SizeLimit,
		ChunkSize:     cfg.Body.ChunkSize,
		HighWaterMark: cfg.Body.HighWaterMark,
	})
}

// NewMux mounts the metrics endpoint and the instrumented adapter. Completed
// requests are published to bus when it is non-nil.
func NewMux(name string, cfg *config.Config, bus event.EventBus) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", telemetry.MetricsHandler())
	mux.Handle("/", telemetry.WrapHandler(name, withAccessEvents(bus, NewAdapter(cfg, bus))))
	return mux
}

// NewServer returns the local HTTP server for cfg.
func NewServer(cfg *config.Config, bus event.EventBus) *http.Server {
	return &http.Server{
		Addr:     cfg.Addr(),
		Handler:  NewMux("edgebridge", cfg, bus),
		ErrorLog: log.New(&utils.LoggerWriter{Fn: utils.Warn, Prefix: "http: "}, "", 0),
	}
}

// StartServer serves until ctx is done, then shuts down gracefully.
func StartServer(ctx context.Context, cfg *config.Config) error {
	bus, err := event.NewEventBusFromConfig(cfg.Events)
	if err != nil {
		return fmt.Errorf("failed to create event bus: %w", err)
	}
	defer bus.Close()

	subCtx, stopAccessLog := context.WithCancel(context.Background())
	defer stopAccessLog()
	if err := bus.Subscribe(subCtx, constants.TopicRequestCompleted, logAccess); err != nil {
		return err
	}

	srv := NewServer(cfg, bus)
	// Streaming responses such as /events only end when their request
	// context does.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	srv.BaseContext = func(net.Listener) context.Context { return baseCtx }
	srv.RegisterOnShutdown(cancelBase)

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
	}
	utils.Info("edgebridge listening on http://%s", ln.Addr())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		utils.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
