package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"go.temporal.io/sdk/worker"

	"github.com/efebarandurmaz/pdfrag/internal/bootstrap"
	"github.com/efebarandurmaz/pdfrag/internal/config"
	"github.com/efebarandurmaz/pdfrag/internal/observability"
	"github.com/efebarandurmaz/pdfrag/internal/server"
	temporalmod "github.com/efebarandurmaz/pdfrag/internal/temporal"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "Config file path (optional)")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	// A missing .env file is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := bootstrap.NewLogger(cfg.Log)
	for _, w := range cfg.Validate() {
		logger.Warn("config", "warning", w)
	}

	ctx := context.Background()

	tp, err := bootstrap.InitTracing(ctx, cfg.Tracing, "pdfrag-worker", version)
	if err != nil {
		return err
	}

	rt, err := bootstrap.NewRuntime(ctx, cfg)
	if err != nil {
		tp.Shutdown(ctx)
		return err
	}
	temporalmod.SetDependencies(rt.Dependencies())

	c, err := bootstrap.DialTemporal(cfg.Temporal, logger)
	if err != nil {
		rt.Close(ctx)
		tp.Shutdown(ctx)
		return err
	}

	w, err := temporalmod.StartWorker(c, cfg.Temporal.TaskQueue, worker.Options{})
	if err != nil {
		c.Close()
		rt.Close(ctx)
		tp.Shutdown(ctx)
		return err
	}
	metrics := observability.Metrics()
	metrics.ActiveWorkers.Inc()

	gs := server.NewGracefulServer(&server.HealthConfig{Version: version, Metrics: metrics.Handler()}, nil)
	gs.Health.RegisterCheck("temporal", server.TemporalHealthChecker(c))
	rt.RegisterHealthChecks(gs.Health)

	gs.AddHook(server.TemporalWorkerShutdownHook(func() {
		w.Stop()
		metrics.ActiveWorkers.Dec()
	}))
	gs.AddHook(server.TemporalClientShutdownHook(c.Close))
	gs.AddHook(server.TracingShutdownHook(tp.Shutdown))
	rt.RegisterShutdownHooks(gs)

	gs.Start(cfg.Server.HealthAddr)
	logger.Info("worker started",
		"task_queue", cfg.Temporal.TaskQueue,
		"namespace", cfg.Temporal.Namespace,
		"vector_provider", cfg.Vector.Provider,
		"llm_provider", cfg.LLM.Provider,
		"health_addr", cfg.Server.HealthAddr,
	)

	gs.Wait()
	logger.Info("worker stopped")
	return nil
}
