package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prizmbets/pickem/services"
	"github.com/robfig/cron/v3"
)

const jobTimeout = 5 * time.Minute

// Jobs - операции, которые периодически запускает планировщик.
type Jobs interface {
	SyncUpcoming(ctx context.Context) (*services.SyncResult, error)
	FinalizeCompletedWeeks(ctx context.Context) (*services.FinalizeResult, error)
}

type Specs struct {
	Sync     string
	Finalize string
}

// SetupCron регистрирует задачи синхронизации расписания и закрытия недель.
// Выражения расписаний - с секундами, как в cron.WithSeconds.
func SetupCron(jobs Jobs, specs Specs, logger *slog.Logger) (*cron.Cron, error) {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	cronService := cron.New(
		cron.WithSeconds(),
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)

	if _, err := cronService.AddFunc(specs.Sync, func() { RunSync(jobs, logger) }); err != nil {
		return nil, fmt.Errorf("failed to schedule schedule sync (%q): %w", specs.Sync, err)
	}
	if _, err := cronService.AddFunc(specs.Finalize, func() { RunFinalize(jobs, logger) }); err != nil {
		return nil, fmt.Errorf("failed to schedule week finalization (%q): %w", specs.Finalize, err)
	}

	return cronService, nil
}

func RunSync(jobs Jobs, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	result, err := jobs.SyncUpcoming(ctx)
	if err != nil {
		logger.Error("Scheduler: schedule sync failed", slog.Any("error", err))
		return
	}
	logger.Info("Scheduler: schedule sync finished",
		slog.Int("games_created", result.GamesCreated),
		slog.Int("games_updated", result.GamesUpdated),
	)
}

func RunFinalize(jobs Jobs, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	result, err := jobs.FinalizeCompletedWeeks(ctx)
	if err != nil {
		logger.Error("Scheduler: week finalization failed", slog.Any("error", err))
		return
	}
	if len(result.WeeksCompleted) > 0 {
		logger.Info("Scheduler: weeks finalized",
			slog.Any("weeks", result.WeeksCompleted),
			slog.Int("pools_scored", result.PoolsScored),
		)
	}
	if len(result.WeeksPending) > 0 {
		logger.Warn("Scheduler: weeks left pending", slog.Any("weeks", result.WeeksPending))
	}
}
