// Package main - точка входа для фоновых процессов (Worker) Progression Hub.
//
// Worker отвечает за периодические задачи:
// - Ретроактивная выдача бейджей по всем ученикам
// - Пересборка лидерборда монет в Redis из балансов профилей
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/k9quest/progression-hub/config"
	"github.com/k9quest/progression-hub/internal/app"
	"github.com/k9quest/progression-hub/internal/infrastructure/scheduler"
	"github.com/k9quest/progression-hub/internal/infrastructure/scheduler/jobs"
	"github.com/k9quest/progression-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN
// ══════════════════════════════════════════════════════════════════════════════

func main() {
	// Создаём корневой контекст с возможностью отмены
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. ЗАГРУЗКА КОНФИГУРАЦИИ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. НАСТРОЙКА ЛОГИРОВАНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	log := app.NewLogger(cfg).With(logger.Component("worker"))
	defer func() { _ = log.Sync() }()

	if !cfg.Scheduler.Enabled {
		log.Info("scheduler is disabled, nothing to do")
		return nil
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ХРАНИЛИЩЕ И ДВИЖКИ
	// ─────────────────────────────────────────────────────────────────────────
	rt, err := app.Open(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize runtime: %w", err)
	}
	defer rt.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. РЕГИСТРАЦИЯ ЗАДАЧ
	// ─────────────────────────────────────────────────────────────────────────
	sched, err := setupScheduler(cfg, rt, log)
	if err != nil {
		return err
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	for _, info := range sched.ListJobs() {
		log.Info("job registered",
			logger.String("job", info.Name),
			logger.String("schedule", info.Schedule),
			logger.Bool("enabled", info.Enabled),
			logger.Time("next_run", info.NextRun),
		)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ОЖИДАНИЕ СИГНАЛА ЗАВЕРШЕНИЯ
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Info("received shutdown signal", logger.String("signal", sig.String()))
	case <-ctx.Done():
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	if err := sched.Stop(); err != nil {
		log.Warn("scheduler stop failed", logger.Err(err))
	}
	snap := sched.Metrics().Snapshot()
	log.Info("worker stopped", logger.Any("job_metrics", snap))
	return nil
}

// setupScheduler регистрирует задачи согласно конфигурации и фиче-флагам.
func setupScheduler(cfg *config.Config, rt *app.Runtime, log *logger.Logger) (*scheduler.Scheduler, error) {
	schedCfg := scheduler.DefaultConfig()
	schedCfg.Logger = log
	schedCfg.Timezone = cfg.App.Location
	sched := scheduler.New(schedCfg)

	sched.OnJobComplete(func(r scheduler.JobResult) {
		if !r.Success() {
			log.Error("job failed", logger.String("job", r.JobName), logger.Err(r.Error))
		}
	})

	// Ретроактивные бейджи
	backfillSchedule, err := scheduler.ParseSchedule(cfg.Scheduler.BackfillSchedule)
	if err != nil {
		return nil, fmt.Errorf("backfill schedule: %w", err)
	}
	backfillCfg := jobs.DefaultBackfillBadgesConfig()
	backfillCfg.PageSize = cfg.Scheduler.BackfillPageSize
	backfillCfg.Concurrency = cfg.Scheduler.BackfillConcurrency
	backfillCfg.Timeout = cfg.Scheduler.JobTimeout

	backfill := jobs.NewBackfillBadgesJob(rt.Repos.Profiles, rt.Engines.Badges, backfillCfg, log)
	if err := sched.Register(backfill, backfillSchedule); err != nil {
		return nil, err
	}
	if err := sched.SetEnabled(backfill.Name(), cfg.Features.IsEnabled(config.FeatureJobBadgeBackfill, nil)); err != nil {
		return nil, err
	}

	// Лидерборд в Redis. Без Redis таблица читается прямо из профилей.
	if rt.Leaderboard == nil {
		log.Info("redis disabled, leaderboard rebuild is not registered")
		return sched, nil
	}
	rebuildSchedule, err := scheduler.ParseSchedule(cfg.Scheduler.LeaderboardSchedule)
	if err != nil {
		return nil, fmt.Errorf("leaderboard schedule: %w", err)
	}
	rebuildCfg := jobs.DefaultRebuildLeaderboardConfig()
	rebuildCfg.PageSize = cfg.Scheduler.BackfillPageSize
	rebuildCfg.Timeout = cfg.Scheduler.JobTimeout

	rebuild := jobs.NewRebuildLeaderboardJob(rt.Repos.Profiles, rt.Leaderboard, rebuildCfg, log)
	if err := sched.Register(rebuild, rebuildSchedule); err != nil {
		return nil, err
	}
	if err := sched.SetEnabled(rebuild.Name(), cfg.Features.IsEnabled(config.FeatureJobLeaderboardRebuild, nil)); err != nil {
		return nil, err
	}
	return sched, nil
}
