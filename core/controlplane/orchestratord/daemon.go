// Package orchestratord runs the workflow orchestrator as a daemon: an HTTP
// API for submitting and managing executions, event fan-out to NATS, Redis
// and WebSocket subscribers, and Prometheus metrics.
package orchestratord

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/weftwork/weft/core/agent"
	"github.com/weftwork/weft/core/infra/bus"
	"github.com/weftwork/weft/core/infra/config"
	"github.com/weftwork/weft/core/infra/logging"
	"github.com/weftwork/weft/core/infra/metrics"
	"github.com/weftwork/weft/core/workflow"
)

const (
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 3 * time.Second
)

// Run starts the orchestrator daemon and blocks until SIGINT or SIGTERM.
func Run(cfg *config.Config) error {
	if cfg == nil {
		cfg = config.Load()
	}

	sink, hub, closeSinks, err := buildSinks(cfg)
	if err != nil {
		return err
	}
	defer closeSinks()

	coord := agent.NewCoordinator(echoFactory()).
		WithCacheSize(cfg.AgentCacheSize).
		WithMetrics(metrics.NewAgentProm(cfg.MetricNamespace))

	orch := workflow.NewOrchestrator(newAgentExecutor(coord), sink).
		WithMetrics(metrics.NewWorkflowProm(cfg.MetricNamespace)).
		WithDefaultTimeout(cfg.DefaultTimeout)
	runner := workflow.NewAsyncRunner(orch).WithHistoryLimit(cfg.HistoryLimit)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.WorkflowFile != "" {
		if err := smokeRun(ctx, runner, cfg.WorkflowFile); err != nil {
			return err
		}
	}

	srv := startServer(cfg.HTTPAddr, newServer(runner, coord), hub)
	logging.Info("orchestratord", "started", "http", cfg.HTTPAddr,
		"history_limit", cfg.HistoryLimit, "default_timeout", cfg.DefaultTimeout.String())

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	logging.Info("orchestratord", "stopped")
	return nil
}

// buildSinks assembles the event fan-out from the configuration. NATS and
// Redis sinks are optional; the WebSocket hub and log sink are always on.
func buildSinks(cfg *config.Config) (workflow.Sink, *bus.WSHub, func(), error) {
	hub := bus.NewWSHub()
	sinks := bus.MultiSink{bus.LogSink{}, hub}
	var closers []func()

	if cfg.NatsURL != "" {
		ns, err := bus.NewNatsSink(cfg.NatsURL, cfg.EventSubject)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect nats: %w", err)
		}
		sinks = append(sinks, ns)
		closers = append(closers, ns.Close)
	}
	if cfg.RedisURL != "" {
		rs, err := bus.NewRedisSink(cfg.RedisURL, cfg.EventChannel)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		sinks = append(sinks, rs)
		closers = append(closers, func() { _ = rs.Close() })
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	return sinks, hub, closeAll, nil
}

// smokeRun executes a workflow definition file once at startup. A failure to
// load or validate the file is fatal; a failed run is only logged.
func smokeRun(ctx context.Context, runner *workflow.AsyncRunner, path string) error {
	wf, err := workflow.LoadDefinitionFile(path)
	if err != nil {
		return fmt.Errorf("load workflow file %s: %w", path, err)
	}
	ec, err := runner.Execute(ctx, wf, nil)
	if err != nil {
		return fmt.Errorf("run workflow file %s: %w", path, err)
	}
	logging.Info("orchestratord", "startup workflow finished",
		"workflow_id", wf.ID,
		"execution_id", ec.ExecutionID(),
		"status", string(ec.Status()))
	return nil
}

func startServer(addr string, api *server, hub *bus.WSHub) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", metrics.Handler())
	mux.Handle("/api/v1/events", hub.Handler())
	api.routes(mux)

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("orchestratord", "http server error", "error", err)
		}
	}()
	return srv
}
