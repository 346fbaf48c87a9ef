package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// PasscodeSweeper is the part of repository.PasscodeRepository the job uses.
type PasscodeSweeper interface {
	DeleteStale(ctx context.Context, usedBefore time.Time) (int64, error)
}

// CleanupJob periodically removes expired passcodes and used ones older than
// the retention window.
type CleanupJob struct {
	passcodes PasscodeSweeper
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	done      chan struct{}
	stopOnce  sync.Once
}

func NewCleanupJob(passcodes PasscodeSweeper, interval, retention time.Duration) *CleanupJob {
	return &CleanupJob{
		passcodes: passcodes,
		interval:  interval,
		retention: retention,
		now:       time.Now,
		done:      make(chan struct{}),
	}
}

func (j *CleanupJob) Start() {
	go j.run()
	log.Info().Dur("interval", j.interval).Dur("retention", j.retention).Msg("cleanup job started")
}

func (j *CleanupJob) Stop() {
	j.stopOnce.Do(func() {
		close(j.done)
		log.Info().Msg("cleanup job stopped")
	})
}

func (j *CleanupJob) run() {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.cleanup()

	for {
		select {
		case <-j.done:
			return
		case <-ticker.C:
			j.cleanup()
		}
	}
}

func (j *CleanupJob) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	usedBefore := j.now().Add(-j.retention)
	j.runCleanup(ctx, "passcodes", func(ctx context.Context) (int64, error) {
		return j.passcodes.DeleteStale(ctx, usedBefore)
	})
}

func (j *CleanupJob) runCleanup(ctx context.Context, name string, fn func(context.Context) (int64, error)) {
	count, err := fn(ctx)
	if err != nil {
		log.Error().Err(err).Msgf("failed to cleanup %s", name)
	} else if count > 0 {
		log.Info().Int64("count", count).Msgf("cleaned up %s", name)
	}
}
