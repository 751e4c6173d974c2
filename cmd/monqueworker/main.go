// Command monqueworker is an ambient-stack example host: it loads config
// from the environment, connects to Postgres, registers one example
// worker, and runs a monque.Scheduler until terminated. It is not the
// excluded "CLI/server host" product surface — there is no job CRUD HTTP
// API here, only /healthz and /metrics. Grounded on the teacher's
// cmd/scheduler/main.go graceful-shutdown shape.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relaysched/monque"
	"github.com/relaysched/monque/config"
	"github.com/relaysched/monque/internal/ctxlog"
	"github.com/relaysched/monque/internal/health"
	"github.com/relaysched/monque/internal/metrics"
	"github.com/relaysched/monque/internal/store/postgres"
)

type emailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
}

func sendEmail(_ context.Context, data json.RawMessage, job *monque.Job) error {
	var p emailPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	log.Printf("job %s: sending %q to %s (attempt %d)", job.ID, p.Subject, p.To, job.FailCount+1)
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := newLogger(cfg.Env, cfg.SlogLevel())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		stop()
		log.Fatalf("db: %v", err)
	}
	defer pool.Close()

	logger.Info("db connected")

	metrics.Register()
	checker := health.NewChecker(pool, logger, prometheus.DefaultRegisterer)

	recoverStaleJobs := cfg.RecoverStaleJobs
	sched := monque.New(pool, monque.Options{
		PollInterval:      cfg.PollInterval(),
		LockTimeout:       cfg.LockTimeout(),
		MaxRetries:        cfg.MaxRetries,
		BaseRetryInterval: cfg.BaseRetryInterval(),
		MaxBackoffDelay:   cfg.MaxBackoffDelay(),
		ShutdownTimeout:   cfg.ShutdownTimeout(),
		WorkerConcurrency: cfg.WorkerConcurrency,
		RecoverStaleJobs:  &recoverStaleJobs,
		JobRetention: monque.RetentionOptions{
			Completed: cfg.RetentionCompleted(),
			Failed:    cfg.RetentionFailed(),
			Interval:  cfg.RetentionInterval(),
		},
		Logger: logger,
	})

	if err := sched.Worker("send-email", sendEmail, monque.WorkerOptions{}); err != nil {
		log.Fatalf("register worker: %v", err)
	}

	sched.On(monque.EventJobFailed, func(ev monque.Event) {
		logger.Warn("job failed", "job_id", ev.JobID, "error", ev.Err)
	})

	if err := sched.Initialize(ctx); err != nil {
		log.Fatalf("initialize: %v", err)
	}
	if err := sched.Start(); err != nil {
		log.Fatalf("start: %v", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		result := checker.Readiness(r.Context())
		if result.Status != "up" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(result)
	})
	httpSrv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: mux}
	go func() {
		logger.Info("metrics server started", "port", cfg.MetricsPort)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", "error", err)
		}
	}()

	<-ctx.Done()
	stop()
	logger.Info("shutting down")

	if err := sched.Stop(cfg.ShutdownTimeout()); err != nil {
		logger.Error("scheduler stop", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown", "error", err)
	}

	logger.Info("scheduler shut down")
}

func newLogger(env string, level slog.Level) *slog.Logger {
	var inner slog.Handler
	if env == "local" {
		inner = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	} else {
		inner = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}
	return slog.New(ctxlog.NewContextHandler(inner))
}
