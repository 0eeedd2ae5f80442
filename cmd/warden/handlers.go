// handlers.go contains the command implementations: configuration loading,
// component wiring, and the worker run loop.
package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/warden/internal/config"
	"github.com/haasonsaas/warden/internal/jobs"
	"github.com/haasonsaas/warden/internal/memory"
	"github.com/haasonsaas/warden/internal/observability"
	"github.com/haasonsaas/warden/internal/policy"
	"github.com/haasonsaas/warden/internal/runs"
	"github.com/haasonsaas/warden/internal/sandbox"
	"github.com/haasonsaas/warden/internal/tools"
	"github.com/haasonsaas/warden/pkg/models"
)

// loadConfig reads the config file, falling back to defaults when the
// default path does not exist.
func loadConfig(path string) (*config.Config, error) {
	if path == "warden.yaml" && os.Getenv(config.EnvConfigPath) == "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

func runWorker(ctx context.Context, configPath string, debug bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if debug {
		cfg.Logging.Level = "debug"
	}

	logger := observability.NewLogger(cfg.LogConfig())
	metrics := observability.NewMetrics()
	tracer, shutdownTracer := observability.NewTracer(cfg.TraceConfig())

	store, err := memory.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open memory store: %w", err)
	}
	defer store.Close()

	writer := memory.NewWriter(store)
	enforcer := memory.NewEnforcer(store, cfg.EnforcementConfig())

	executor, err := buildExecutor(cfg, logger, metrics, tracer)
	if err != nil {
		return err
	}

	queue := jobs.NewMemoryQueue()
	dispatcher := jobs.NewDispatcher(queue, logger, metrics)

	retry := jobs.RetryPolicy{
		MaxAttempts: cfg.Jobs.Retry.MaxAttempts,
		InitialMs:   cfg.Jobs.Retry.InitialMs,
		MaxMs:       cfg.Jobs.Retry.MaxMs,
		Factor:      cfg.Jobs.Retry.Factor,
		Jitter:      cfg.Jobs.Retry.Jitter,
	}

	dispatcher.RegisterHandler(models.JobTypeRun, runJobHandler(executor, logger), jobs.RegisterOptions{
		Concurrency: cfg.Jobs.Concurrency[string(models.JobTypeRun)],
		Retry:       retry,
	})
	dispatcher.RegisterHandler(models.JobTypeMemoryWrite, memoryWriteHandler(writer), jobs.RegisterOptions{
		Concurrency: cfg.Jobs.Concurrency[string(models.JobTypeMemoryWrite)],
		Retry:       retry,
	})
	dispatcher.RegisterHandler(models.JobTypeWake, wakeHandler(enforcer), jobs.RegisterOptions{
		Concurrency: cfg.Jobs.Concurrency[string(models.JobTypeWake)],
		Retry:       retry,
	})

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var scheduler *memory.Scheduler
	if cfg.Memory.EnforceSchedule != "" {
		scheduler = memory.NewScheduler(enforcer, store, logger, metrics)
		if err := scheduler.Start(cfg.Memory.EnforceSchedule); err != nil {
			return fmt.Errorf("start enforcement schedule: %w", err)
		}
	}

	dispatcher.Start(ctx)
	logger.Info(ctx, "worker started", "database", cfg.Database.Path)

	go ingestJobs(ctx, os.Stdin, queue, logger)

	<-ctx.Done()
	logger.Info(context.Background(), "shutting down")

	queue.Close()
	dispatcher.Stop()
	if scheduler != nil {
		scheduler.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Warn(context.Background(), "tracer shutdown failed", "error", err)
	}
	return nil
}

// buildExecutor assembles the tool safety chain from config: the registry of
// known tools, the policy engine with its profiles, and the sandbox invoker
// when out-of-process execution is enabled.
func buildExecutor(cfg *config.Config, logger *observability.Logger, metrics *observability.Metrics, tracer *observability.Tracer) (*runs.Executor, error) {
	registry := tools.NewRegistry(nil, tools.Builtins()...)

	engine := policy.New(cfg.PolicyClassification())
	for name, c := range cfg.PolicyProfiles() {
		engine = engine.WithProfile(name, c)
	}

	var invoker *sandbox.Invoker
	if cfg.Sandbox.Enabled {
		invoker = sandbox.NewInvoker(cfg.Sandbox.RunnerPath, tools.SandboxDefaults{
			MemoryLimitMB: int(cfg.Sandbox.MemoryLimitMB),
			TimeoutMs:     int(cfg.Sandbox.TimeoutMs),
		})
		for _, def := range registry.List() {
			if err := registry.SetSandboxConfig(def.Name, tools.SandboxConfig{Enabled: true}); err != nil {
				return nil, err
			}
		}
	}

	return runs.NewExecutor(registry, engine, invoker, logger, metrics, tracer), nil
}

// runJobHandler drives one queued tool invocation through the executor.
// Policy refusals and malformed requests will not succeed on a retry, so
// they come back wrapped as permanent.
func runJobHandler(executor *runs.Executor, logger *observability.Logger) jobs.Handler {
	return func(ctx context.Context, job *models.Job) error {
		var payload struct {
			Invocation models.Invocation `json:"invocation"`
			Profile    string            `json:"profile,omitempty"`
		}
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return jobs.Permanent(fmt.Errorf("run payload: %w", err))
		}
		inv := payload.Invocation
		if inv.TenantID == "" {
			inv.TenantID = job.TenantID
		}
		if inv.AgentID == "" {
			inv.AgentID = job.AgentID
		}
		if inv.RunID == "" {
			inv.RunID = job.RunID
		}

		collector := runs.NewCollector(inv.RunID, models.RunKindWorker)
		_, err := executor.ExecuteStep(ctx, inv, payload.Profile, nil, collector)

		status := models.RunStatusCompleted
		if err != nil {
			status = models.RunStatusFailed
		}
		m := collector.Finish(status)
		for _, slo := range runs.CheckSLOs(m) {
			logger.Warn(ctx, "run violated SLO", "run_id", inv.RunID, "slo", slo)
		}

		switch {
		case err == nil:
			return nil
		case errors.Is(err, runs.ErrPolicyDenied),
			errors.Is(err, runs.ErrConfirmRequired),
			errors.Is(err, runs.ErrBudgetExhausted),
			errors.Is(err, tools.ErrToolNotFound),
			errors.Is(err, tools.ErrCommandNotFound):
			return jobs.Permanent(err)
		default:
			return err
		}
	}
}

// ingestJobs reads newline-delimited JSON jobs from r and enqueues them.
// Blank lines are skipped; malformed lines are logged and dropped.
func ingestJobs(ctx context.Context, r io.Reader, queue *jobs.MemoryQueue, logger *observability.Logger) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var job models.Job
		if err := json.Unmarshal(line, &job); err != nil {
			logger.Warn(ctx, "dropping malformed job line", "error", err)
			continue
		}
		if job.ID == "" {
			job.ID = uuid.NewString()
		}
		if err := queue.Enqueue(ctx, &job); err != nil {
			logger.Warn(ctx, "enqueue failed", "job_type", string(job.Type), "error", err)
		}
	}
}

// memoryWriteHandler applies one queued memory write.
func memoryWriteHandler(writer *memory.Writer) jobs.Handler {
	return func(ctx context.Context, job *models.Job) error {
		var req memory.WriteRequest
		if err := json.Unmarshal(job.Payload, &req); err != nil {
			return jobs.Permanent(fmt.Errorf("memory write payload: %w", err))
		}
		if req.TenantID == "" {
			req.TenantID = job.TenantID
		}
		if req.UserID == "" {
			req.UserID = job.UserID
		}
		_, err := writer.Write(ctx, req)
		if errors.Is(err, memory.ErrSecretValue) || errors.Is(err, memory.ErrInvalidLevel) {
			return jobs.Permanent(err)
		}
		return err
	}
}

// wakeHandler runs a retention sweep for the waking user.
func wakeHandler(enforcer *memory.Enforcer) jobs.Handler {
	return func(ctx context.Context, job *models.Job) error {
		if job.TenantID == "" || job.UserID == "" {
			return jobs.Permanent(fmt.Errorf("wake job requires tenant and user"))
		}
		_, err := enforcer.Enforce(ctx, job.TenantID, job.UserID)
		return err
	}
}

func runEnforceMemory(ctx context.Context, configPath, tenantID, userID string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	store, err := memory.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open memory store: %w", err)
	}
	defer store.Close()

	enforcer := memory.NewEnforcer(store, cfg.EnforcementConfig())

	var targets [][2]string
	switch {
	case tenantID != "" && userID != "":
		targets = [][2]string{{tenantID, userID}}
	case userID != "":
		return fmt.Errorf("--user requires --tenant")
	default:
		targets, err = store.ListMemoryUsers(ctx)
		if err != nil {
			return err
		}
		if tenantID != "" {
			filtered := targets[:0]
			for _, t := range targets {
				if t[0] == tenantID {
					filtered = append(filtered, t)
				}
			}
			targets = filtered
		}
	}

	total := 0
	for _, t := range targets {
		report, err := enforcer.Enforce(ctx, t[0], t[1])
		if err != nil {
			return fmt.Errorf("enforce %s/%s: %w", t[0], t[1], err)
		}
		if n := report.Total(); n > 0 {
			fmt.Printf("%s/%s: archived %d\n", t[0], t[1], n)
			total += n
		}
	}
	fmt.Printf("swept %d users, archived %d items\n", len(targets), total)
	return nil
}

func runToolsList(_ context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	registry := tools.NewRegistry(nil, tools.Builtins()...)
	if cfg.Sandbox.Enabled {
		for _, def := range registry.List() {
			if err := registry.SetSandboxConfig(def.Name, tools.SandboxConfig{Enabled: true}); err != nil {
				return err
			}
		}
	}

	defs := registry.List()
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	for _, def := range defs {
		sandboxed := ""
		if registry.ShouldSandbox(def.Name) {
			sandboxed = " [sandboxed]"
		}
		fmt.Printf("%-12s %s%s\n", def.Name, def.Description, sandboxed)
	}
	return nil
}
