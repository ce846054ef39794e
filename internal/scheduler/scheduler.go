package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"go.uber.org/fx"

	"log-viewer-backend/config"
	"log-viewer-backend/internal/service"
)

// Pruner drops records that aged out of the retention window.
type Pruner interface {
	Prune(ctx context.Context, now time.Time) (int, error)
}

// NewCron returns a cron runner that accepts six-field specs with seconds.
func NewCron() *cron.Cron {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.DowOptional | cron.Descriptor)
	return cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
}

// AddPruneJob schedules retention pruning. A zero retention disables it.
func AddPruneJob(c *cron.Cron, schedule string, retention time.Duration, pruner Pruner) error {
	if retention <= 0 {
		log.Info().Msg("Retention disabled, prune job not scheduled")
		return nil
	}
	_, err := c.AddFunc(schedule, func() {
		removed, err := pruner.Prune(context.Background(), time.Now())
		if err != nil {
			log.Error().Err(err).Msg("Error during scheduled prune")
			return
		}
		if removed > 0 {
			log.Info().Int("removed", removed).Dur("retention", retention).Msg("Pruned expired records")
		}
	})
	if err != nil {
		return fmt.Errorf("add prune job %q: %w", schedule, err)
	}
	log.Info().Str("schedule", schedule).Dur("retention", retention).Msg("Scheduled prune job")
	return nil
}

func AddFileSourceJob(c *cron.Cron, schedule string, fileSvc service.FileSourceService) error {
	_, err := c.AddFunc(schedule, func() {
		if err := fileSvc.ProcessFiles(context.Background()); err != nil {
			log.Error().Err(err).Msg("Error during scheduled file source run")
		}
	})
	if err != nil {
		return fmt.Errorf("add file source job %q: %w", schedule, err)
	}
	log.Info().Str("schedule", schedule).Msg("Scheduled file source job")
	return nil
}

// NewScheduler wires the maintenance jobs and ties the cron runner to the
// application lifecycle. Stopping waits for a running job to finish.
func NewScheduler(lc fx.Lifecycle, cfg *config.Config, pruner Pruner, fileSvc service.FileSourceService) (*cron.Cron, error) {
	c := NewCron()
	if err := AddPruneJob(c, cfg.Store.PruneSchedule, cfg.Store.Retention, pruner); err != nil {
		return nil, err
	}
	if len(cfg.FileSource.Paths) > 0 {
		if err := AddFileSourceJob(c, cfg.FileSource.Schedule, fileSvc); err != nil {
			return nil, err
		}
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info().Int("jobs", len(c.Entries())).Msg("Starting cron scheduler")
			c.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("Stopping cron scheduler...")
			stopCtx := c.Stop()
			select {
			case <-stopCtx.Done():
				log.Info().Msg("Cron scheduler stopped gracefully.")
				return nil
			case <-ctx.Done():
				log.Error().Msg("Context cancelled while waiting for cron scheduler to stop.")
				return ctx.Err()
			}
		},
	})
	return c, nil
}
