package cleanup

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"posterd/internal/jobs"
	"posterd/internal/mapcache"
	"posterd/internal/storage"
)

// scheduleParser supports standard 5-field cron and descriptors like "@every 1h".
var scheduleParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Config drives when the janitor fires and what it considers stale.
type Config struct {
	Schedule  string
	Retention time.Duration // poster artifacts and terminal jobs older than this are removed
	CacheAge  time.Duration // map-data cache entries older than this are removed
}

// Janitor periodically deletes aged poster artifacts, prunes their terminal
// job records, and expires stale map-data cache entries.
type Janitor struct {
	schedule cron.Schedule
	cfg      Config
	store    *jobs.Store
	posters  *storage.FileStore
	cache    *mapcache.Cache
	logger   zerolog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New parses the schedule and wires a janitor. A zero CacheAge falls back to
// the cache's default expiry.
func New(cfg Config, store *jobs.Store, posters *storage.FileStore, cache *mapcache.Cache, logger zerolog.Logger) (*Janitor, error) {
	schedule, err := scheduleParser.Parse(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("parse cleanup schedule %q: %w", cfg.Schedule, err)
	}
	if cfg.CacheAge <= 0 {
		cfg.CacheAge = mapcache.DefaultExpiry
	}
	return &Janitor{
		schedule: schedule,
		cfg:      cfg,
		store:    store,
		posters:  posters,
		cache:    cache,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start launches the schedule loop.
func (j *Janitor) Start() {
	j.wg.Add(1)
	go j.loop()
	j.logger.Info().Str("schedule", j.cfg.Schedule).Dur("retention", j.cfg.Retention).Msg("cleanup: janitor started")
}

// Stop signals the loop to exit and waits for it.
func (j *Janitor) Stop() {
	close(j.stopCh)
	j.wg.Wait()
	j.logger.Info().Msg("cleanup: janitor stopped")
}

func (j *Janitor) loop() {
	defer j.wg.Done()

	for {
		next := j.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-j.stopCh:
			timer.Stop()
			return
		case <-timer.C:
			j.RunOnce(context.Background())
		}
	}
}

// RunOnce performs a single sweep. It is called by the schedule loop and by
// operators who want an immediate cleanup.
func (j *Janitor) RunOnce(ctx context.Context) {
	cutoff := time.Now().Add(-j.cfg.Retention)

	postersRemoved := 0
	if j.posters != nil {
		n, err := j.posters.SweepOlderThan(ctx, cutoff)
		if err != nil {
			j.logger.Warn().Err(err).Msg("cleanup: poster sweep failed")
		}
		postersRemoved = n
	}

	jobsPruned := 0
	if j.store != nil {
		for _, job := range j.store.List() {
			if !job.Status.Terminal() {
				continue
			}
			if job.CompletedAt == nil || !job.CompletedAt.Before(cutoff) {
				continue
			}
			if !j.store.Delete(job.ID) {
				continue
			}
			jobsPruned++
			if j.posters == nil {
				continue
			}
			// Failed renders can leave a partial artifact under the job id.
			key := job.ID + ".png"
			if job.ResultFile != "" {
				key = filepath.Base(job.ResultFile)
			}
			if err := j.posters.Remove(key); err != nil {
				j.logger.Warn().Err(err).Str("job_id", job.ID).Msg("cleanup: artifact removal failed")
			}
		}
	}

	cacheRemoved := 0
	if j.cache != nil {
		n, err := j.cache.SweepExpired(ctx, j.cfg.CacheAge)
		if err != nil {
			j.logger.Warn().Err(err).Msg("cleanup: cache sweep failed")
		}
		cacheRemoved = n
	}

	j.logger.Info().
		Int("posters_removed", postersRemoved).
		Int("jobs_pruned", jobsPruned).
		Int("cache_removed", cacheRemoved).
		Msg("cleanup: sweep complete")
}
