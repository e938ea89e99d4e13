package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	councilhttp "github.com/opencouncil/councild/internal/adapter/http"
	"github.com/opencouncil/councild/internal/adapter/litellm"
	councilnats "github.com/opencouncil/councild/internal/adapter/nats"
	telemetry "github.com/opencouncil/councild/internal/adapter/otel"
	"github.com/opencouncil/councild/internal/adapter/postgres"
	"github.com/opencouncil/councild/internal/adapter/ristretto"
	"github.com/opencouncil/councild/internal/adapter/ws"
	"github.com/opencouncil/councild/internal/config"
	"github.com/opencouncil/councild/internal/logger"
	"github.com/opencouncil/councild/internal/port/messagequeue"
	"github.com/opencouncil/councild/internal/resilience"
	"github.com/opencouncil/councild/internal/service"
)

const teamCacheSize = 32 << 20 // 32 MB

func main() {
	args := os.Args[1:]

	if len(args) > 0 && args[0] == "admin" {
		if err := runAdmin(args[1:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(args); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags, err := config.ParseFlags(args)
	if err != nil {
		return fmt.Errorf("flags: %w", err)
	}

	cfg, yamlPath, err := config.LoadWithCLI(flags)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	slog.SetDefault(logger.New(cfg.Logging))
	slog.Info("config loaded",
		"path", yamlPath,
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"agents", len(cfg.Agents),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---
	shutdownTelemetry, err := telemetry.Init(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Error("telemetry shutdown failed", "error", err)
		}
	}()

	metrics, err := telemetry.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Infrastructure ---
	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pool.Close()
	slog.Info("postgres connected")

	if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	slog.Info("migrations applied")

	queue, err := councilnats.Connect(ctx, cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	defer func() {
		if err := queue.Drain(); err != nil {
			slog.Error("nats drain failed", "error", err)
		}
	}()

	cache, err := ristretto.New(teamCacheSize)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer cache.Close()

	llm := litellm.NewClient(cfg.Gateway)
	llm.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	// --- Services ---
	hub := ws.NewHub()
	store := postgres.NewStore(pool)

	teams := service.NewTeamService(store, cache)
	dispatcher := service.NewDispatcher(llm, store, cfg.Agents, cfg.Learning, metrics)
	deliberator := service.NewDeliberator(llm, cfg.Agents, cfg.Council, metrics)
	router := service.NewRouter(cfg.Council)
	synth := service.NewSynthesizer(llm, cfg.Council, metrics)
	council := service.NewCouncil(store, teams, dispatcher, deliberator, router, synth, queue, hub, metrics)
	intake := service.NewIntakeService(llm, store, cfg.Council, metrics)
	observations := service.NewObservationService(store, cfg.Learning)
	learning := service.NewLearningService(llm, store, queue, cfg.Agents, cfg.Learning, metrics)

	cancelLearning, err := learning.Start(ctx)
	if err != nil {
		return fmt.Errorf("learning loop: %w", err)
	}
	defer cancelLearning()

	// --- HTTP ---
	handlers := &councilhttp.Handlers{
		Intake:       intake,
		Council:      council,
		Observations: observations,
		Learning:     learning,
		Store:        store,
		Gateway:      llm,
		Roster:       cfg.Agents,
	}

	r := chi.NewRouter()
	r.Use(councilhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(councilhttp.SecurityHeaders)
	r.Use(councilhttp.Logger)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(telemetry.HTTPMiddleware(cfg.Logging.Service))

	r.Get("/health", healthHandler(queue, llm))
	r.Get("/ws", hub.HandleWS)
	councilhttp.MountRoutes(r, handlers)

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Evaluation streams stay open across multiple gateway calls.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// healthHandler reports the health of the service and its dependencies.
func healthHandler(queue messagequeue.Queue, llm *litellm.Client) http.HandlerFunc {
	type healthStatus struct {
		Status  string `json:"status"`
		NATS    string `json:"nats"`
		Gateway string `json:"gateway"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		status := healthStatus{Status: "ok", NATS: "ok", Gateway: "ok"}

		if !queue.IsConnected() {
			status.Status = "degraded"
			status.NATS = "disconnected"
		}

		checkCtx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if healthy, _ := llm.Health(checkCtx); !healthy {
			status.Status = "degraded"
			status.Gateway = "unreachable"
		}

		code := http.StatusOK
		if status.Status != "ok" {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	}
}
