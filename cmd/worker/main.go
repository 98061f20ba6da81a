package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/marimovDEV/tipografiya/internal/config"
	"github.com/marimovDEV/tipografiya/internal/engine"
	"github.com/marimovDEV/tipografiya/internal/scheduling/workflows"
	"github.com/marimovDEV/tipografiya/pkg/logging"
	"github.com/marimovDEV/tipografiya/pkg/metrics"
	"github.com/marimovDEV/tipografiya/pkg/temporal"
	"github.com/marimovDEV/tipografiya/pkg/tracing"
)

const reoptimizationScheduleID = "machine-queue-reoptimization"

func main() {
	reoptimizeNow := flag.Bool("reoptimize-now", false, "start one queue re-optimization run on startup")
	flag.Parse()

	cfg, err := config.Load(getEnv("PLANNER_CONFIG", ""))
	if err != nil {
		logging.New(logging.DefaultConfig("planning-worker")).WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	// Setup logger
	logConfig := logging.DefaultConfig(cfg.ServiceName + "-worker")
	logConfig.Level = logging.LogLevel(cfg.LogLevel)
	logConfig.Environment = cfg.Environment
	logger := logging.New(logConfig)
	logger.SetDefault()

	logger.Info("Starting planning worker")
	ctx := context.Background()

	tracerProvider, err := tracing.Initialize(ctx, &cfg.Tracing)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize tracing")
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tracerProvider.Shutdown(shutdownCtx)
		}()
	}

	m := metrics.New(metrics.DefaultConfig(cfg.ServiceName + "-worker"))

	eng, err := engine.New(ctx, cfg, m, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to build planning engine")
		os.Exit(1)
	}
	defer eng.Close(context.Background())

	// Initialize Temporal client
	temporalClient, err := temporal.NewClient(ctx, &cfg.Temporal, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to create Temporal client")
		os.Exit(1)
	}
	defer temporalClient.Close()
	logger.Info("Connected to Temporal", "hostPort", cfg.Temporal.HostPort, "namespace", cfg.Temporal.Namespace)

	// Create worker
	w := temporalClient.NewWorker(temporal.DefaultWorkerOptions(temporal.TaskQueues.Planning))
	workflows.Register(w, workflows.NewActivities(eng.Scheduler))
	logger.Info("Registered workflows and activities", "workflow", temporal.WorkflowNames.QueueReoptimization)

	if every := cfg.Temporal.ReoptimizeEvery; every > 0 {
		err := temporalClient.EnsureSchedule(ctx, reoptimizationScheduleID, every,
			temporal.TaskQueues.Planning, temporal.WorkflowNames.QueueReoptimization, workflows.ReoptimizationInput{})
		if err != nil {
			logger.WithError(err).Error("Failed to register re-optimization schedule")
			os.Exit(1)
		}
		logger.Info("Queue re-optimization scheduled", "every", every)
	}

	if *reoptimizeNow {
		workflowID := fmt.Sprintf("%s-manual-%d", reoptimizationScheduleID, time.Now().Unix())
		run, err := temporalClient.StartWorkflow(ctx, workflowID, temporal.TaskQueues.Planning,
			temporal.WorkflowNames.QueueReoptimization, workflows.ReoptimizationInput{})
		if err != nil {
			logger.WithError(err).Error("Failed to start re-optimization run")
		} else {
			logger.Info("Re-optimization run started", "workflowId", run.GetID(), "runId", run.GetRunID())
		}
	}

	// Start worker in background
	go func() {
		if err := w.Run(nil); err != nil {
			logger.WithError(err).Error("Worker failed")
			os.Exit(1)
		}
	}()
	logger.Info("Worker started", "taskQueue", temporal.TaskQueues.Planning)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down worker...")

	w.Stop()
	logger.Info("Worker stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
