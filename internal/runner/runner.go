// Package runner feeds job files through the worker and waits for every
// unit, for operators and smoke tests.
package runner

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	service "github.com/okian/radworker/internal/app"
	"github.com/okian/radworker/internal/domain/model"
	"github.com/okian/radworker/pkg/logger"
	"golang.org/x/sync/errgroup"
)

// Dispatcher starts one unit per job.
type Dispatcher interface {
	Dispatch(ctx context.Context, job model.Job, nextService string, env service.Env, identity string) *service.Handle
}

// Run loads the configured files, dispatches every job at once and waits on
// all handles until ctx is done. It fails if any unit failed or was still
// running when ctx ended; the remaining units still run to completion.
func Run(ctx context.Context, d Dispatcher, config *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("runner")

	log.Info(ctx, "starting rad job run",
		logger.Any("files", config.Files),
		logger.String("nextService", config.NextService),
	)

	sources, err := LoadJobs(config.Files)
	if err != nil {
		return stats, err
	}
	stats.JobsLoaded = len(sources)

	handles := make([]*service.Handle, len(sources))
	for i, src := range sources {
		handles[i] = d.Dispatch(ctx, src.Job, config.NextService, config.Env, config.Identity)
	}
	log.Info(ctx, "dispatched jobs", logger.Int("count", len(handles)))

	var succeeded, failed, pending atomic.Int64
	var g errgroup.Group
	for i, h := range handles {
		g.Go(func() error {
			select {
			case <-h.Done():
			case <-ctx.Done():
				pending.Add(1)
				log.Warn(ctx, "unit still running at deadline",
					logger.String("unit", h.Name),
					logger.String("file", sources[i].File),
					logger.Int("index", sources[i].Index),
				)
				return fmt.Errorf("%w: %s (%s #%d): %w", ErrRunIncomplete, h.Name, sources[i].File, sources[i].Index, ctx.Err())
			}
			if err := h.Wait(); err != nil {
				failed.Add(1)
				log.Error(ctx, "unit failed",
					logger.String("unit", h.Name),
					logger.String("file", sources[i].File),
					logger.Int("index", sources[i].Index),
					logger.Error(err),
				)
				return fmt.Errorf("%w: %s (%s #%d): %w", ErrUnitFailed, h.Name, sources[i].File, sources[i].Index, err)
			}
			succeeded.Add(1)
			return nil
		})
	}
	err = g.Wait()

	stats.Succeeded = int(succeeded.Load())
	stats.Failed = int(failed.Load())
	stats.Pending = int(pending.Load())
	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)

	log.Info(ctx, "run completed",
		logger.Int("jobs", stats.JobsLoaded),
		logger.Int("succeeded", stats.Succeeded),
		logger.Int("failed", stats.Failed),
		logger.Int("pending", stats.Pending),
		logger.Duration("duration", stats.Duration),
	)
	return stats, err
}
