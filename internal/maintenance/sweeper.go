// Package maintenance runs the periodic housekeeping sweep: pruning
// per-project attachment caches and evicting idle rate-limit buckets.
package maintenance

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/adhocore/gronx"

	"github.com/discode-ai/discode/internal/state"
)

const (
	fileCacheKeep   = 100
	bucketIdleLimit = 10 * time.Minute
)

// BucketPruner evicts idle rate-limit buckets. The hook server implements
// it.
type BucketPruner interface {
	PruneRateBuckets(maxIdle time.Duration) int
}

// FilePruner trims one attachment cache directory. The bridge package
// implements it.
type FilePruner func(dir string, keep int)

// Sweeper schedules housekeeping on a cron expression.
type Sweeper struct {
	schedule string
	store    *state.Store
	buckets  BucketPruner
	files    FilePruner
}

// NewSweeper builds a sweeper. schedule is a five-field cron expression.
func NewSweeper(schedule string, store *state.Store, buckets BucketPruner, files FilePruner) *Sweeper {
	return &Sweeper{schedule: schedule, store: store, buckets: buckets, files: files}
}

// Run sweeps on schedule until ctx is cancelled. An unparsable schedule is
// an error; sweep failures are logged and the loop continues.
func (s *Sweeper) Run(ctx context.Context) error {
	if !gronx.New().IsValid(s.schedule) {
		slog.Error("invalid maintenance schedule, sweeper disabled", "schedule", s.schedule)
		<-ctx.Done()
		return nil
	}

	for {
		next, err := gronx.NextTickAfter(s.schedule, time.Now(), false)
		if err != nil {
			return err
		}
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	start := time.Now()

	for _, name := range s.store.ProjectNames() {
		project, ok := s.store.Project(name)
		if !ok || project.ProjectPath == "" {
			continue
		}
		s.files(filepath.Join(project.ProjectPath, ".discode", "files"), fileCacheKeep)
	}

	evicted := 0
	if s.buckets != nil {
		evicted = s.buckets.PruneRateBuckets(bucketIdleLimit)
	}

	slog.Debug("maintenance sweep done",
		"duration", time.Since(start), "buckets_evicted", evicted)
}
