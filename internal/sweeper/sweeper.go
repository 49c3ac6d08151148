// Package sweeper periodically writes time-derived auction status back to
// storage and deletes idle sessions. Reads never depend on it: the engine
// derives status from the clock on every access.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jensholdgaard/auction-house/internal/clock"
	"github.com/jensholdgaard/auction-house/internal/config"
)

// Job names used in logs and metrics.
const (
	JobMaterialize = "materialize"
	JobPurge       = "purge_sessions"
)

// Materializer writes lifecycle transitions that are due at now.
type Materializer interface {
	Materialize(ctx context.Context, now time.Time) (started, ended int64, err error)
}

// SessionPurger deletes idle sessions.
type SessionPurger interface {
	PurgeIdle(ctx context.Context) (int64, error)
}

// Observer records job runs.
type Observer interface {
	ObserveSweep(job string, d time.Duration, err error)
}

// Sweeper runs both jobs on a cron schedule.
type Sweeper struct {
	auctions Materializer
	sessions SessionPurger
	observer Observer
	schedule string
	logger   *slog.Logger
	tracer   trace.Tracer
	clock    clock.Clock
}

// New returns a Sweeper. observer may be nil.
func New(cfg config.SweeperConfig, auctions Materializer, sessions SessionPurger, observer Observer, logger *slog.Logger, tp trace.TracerProvider, clk clock.Clock) *Sweeper {
	return &Sweeper{
		auctions: auctions,
		sessions: sessions,
		observer: observer,
		schedule: cfg.Schedule,
		logger:   logger,
		tracer:   tp.Tracer("github.com/jensholdgaard/auction-house/internal/sweeper"),
		clock:    clk,
	}
}

// RunOnce runs every job once. A failing job does not stop the others.
func (s *Sweeper) RunOnce(ctx context.Context) error {
	ctx, span := s.tracer.Start(ctx, "Sweeper.RunOnce")
	defer span.End()

	var errs []error
	err := s.observe(JobMaterialize, func() error {
		started, ended, err := s.auctions.Materialize(ctx, s.clock.Now().UTC())
		if err != nil {
			return err
		}
		span.SetAttributes(
			attribute.Int64("auctions.started", started),
			attribute.Int64("auctions.ended", ended),
		)
		if started > 0 || ended > 0 {
			s.logger.InfoContext(ctx, "auction status materialized",
				slog.Int64("started", started),
				slog.Int64("ended", ended),
			)
		}
		return nil
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", JobMaterialize, err))
	}

	err = s.observe(JobPurge, func() error {
		_, err := s.sessions.PurgeIdle(ctx)
		return err
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("%s: %w", JobPurge, err))
	}

	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		s.logger.ErrorContext(ctx, "sweep failed", slog.Any("error", err))
		return err
	}
	return nil
}

func (s *Sweeper) observe(job string, fn func() error) error {
	start := s.clock.Now()
	err := fn()
	if s.observer != nil {
		s.observer.ObserveSweep(job, s.clock.Now().Sub(start), err)
	}
	return err
}

// Run schedules RunOnce and blocks until ctx is done. Overlapping runs are
// skipped.
func (s *Sweeper) Run(ctx context.Context) error {
	log := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
	)
	if _, err := c.AddFunc(s.schedule, func() { _ = s.RunOnce(ctx) }); err != nil {
		return fmt.Errorf("scheduling sweeper %q: %w", s.schedule, err)
	}

	s.logger.InfoContext(ctx, "sweeper started", slog.String("schedule", s.schedule))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("sweeper stopped")
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, slog.Any("error", err))...)
}
