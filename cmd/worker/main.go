package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"github.com/kirillkom/receipt-reminders/internal/bootstrap"
	"github.com/kirillkom/receipt-reminders/internal/config"
	"github.com/kirillkom/receipt-reminders/internal/observability/logging"
	"github.com/kirillkom/receipt-reminders/internal/observability/metrics"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger("worker", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	app.Reminders.WithObserver(workerMetrics)
	app.ProcessUC.WithObserver(workerMetrics)
	app.Dispatcher.WithObserver(workerMetrics)

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics_server_failed", "error", err)
		}
	}()

	scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := scheduler.AddFunc(cfg.ReminderDispatchSpec, func() {
		dispatched, err := app.Dispatcher.DispatchDue(ctx)
		if err != nil {
			slog.Error("reminder_dispatch_tick_failed", "dispatched", dispatched, "error", err)
			return
		}
		if dispatched > 0 {
			slog.Info("reminder_dispatch_tick", "dispatched", dispatched)
		}
	}); err != nil {
		slog.Error("invalid_dispatch_schedule", "spec", cfg.ReminderDispatchSpec, "error", err)
		os.Exit(1)
	}
	scheduler.Start()

	processTimeout := time.Duration(cfg.ScanProcessTimeoutSeconds) * time.Second
	slog.Info("worker_subscribed", "subject", cfg.NATSScanSubject, "dispatch_schedule", cfg.ReminderDispatchSpec)
	err = app.Queue.SubscribeScanSubmitted(ctx, func(handlerCtx context.Context, scanID string) error {
		workerMetrics.StartScan()
		defer workerMetrics.FinishScan()

		if job, err := app.ScanRepo.GetByID(handlerCtx, scanID); err == nil {
			workerMetrics.ObserveQueueLag(time.Since(job.SubmittedAt))
		}

		processCtx, cancel := context.WithTimeout(handlerCtx, processTimeout)
		defer cancel()
		return app.ProcessUC.ProcessByID(processCtx, scanID)
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
	}

	<-scheduler.Stop().Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsServer.Shutdown(shutdownCtx)
}
