// Package scheduler drives the off-peak repooling job: one cron expression,
// one job, rebuilding the pooled evidence base and publishing the result as
// the current version.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/periop/periop/internal/domain/pooling"
)

// runTimeout bounds one repooling pass. A pass that cannot finish inside it
// is aborted and retried at the next tick.
const runTimeout = 5 * time.Minute

// Pooler executes one pooling pass. *pooling.Service satisfies it.
type Pooler interface {
	Run(ctx context.Context) (*pooling.VersionInfo, error)
}

// Scheduler owns the cron loop. Overlapping ticks are skipped rather than
// stacked, so a slow pass never piles concurrent repools onto the database.
type Scheduler struct {
	cron   *cron.Cron
	pooler Pooler
	log    zerolog.Logger
}

func New(pooler Pooler, log zerolog.Logger) *Scheduler {
	slog := log.With().Str("component", "scheduler").Logger()
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLog{slog}))),
		pooler: pooler,
		log:    slog,
	}
}

// Schedule registers the repooling job under a standard five-field cron
// expression (descriptors like @daily work too).
func (s *Scheduler) Schedule(expr string) error {
	schedule, err := cron.ParseStandard(expr)
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	s.cron.Schedule(schedule, cron.FuncJob(s.repool))
	s.log.Info().Str("cron", expr).Msg("repooling scheduled")
	return nil
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the loop and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info().Msg("scheduler stopped")
}

func (s *Scheduler) repool() {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	start := time.Now()
	info, err := s.pooler.Run(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("scheduled repooling failed")
		return
	}
	s.log.Info().Str("version", info.Version).
		Dur("took", time.Since(start)).
		Msg("scheduled repooling published")
}

// cronLog adapts zerolog to the cron logger so skip decisions land in the
// service log.
type cronLog struct {
	log zerolog.Logger
}

func (l cronLog) Info(msg string, kv ...any) {
	l.log.Info().Fields(kv).Msg(msg)
}

func (l cronLog) Error(err error, msg string, kv ...any) {
	l.log.Error().Err(err).Fields(kv).Msg(msg)
}
