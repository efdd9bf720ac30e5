// Package jobs runs periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"dermalink-api/internal/handler"
	"dermalink-api/internal/model"
)

type Store interface {
	ExpirePending(ctx context.Context, day time.Time) ([]model.Appointment, error)
	PurgeRefreshTokens(ctx context.Context, cutoff time.Time) (int64, error)
}

type Importer interface {
	ImportAll(ctx context.Context) (int, error)
}

// tokenGrace keeps revoked refresh tokens around long enough for reuse
// detection.
const tokenGrace = 24 * time.Hour

type Scheduler struct {
	store    Store
	events   handler.Publisher
	importer Importer
	log      zerolog.Logger
	now      func() time.Time
	timeout  time.Duration

	cron *cron.Cron
}

type Option func(*Scheduler)

func WithImporter(i Importer) Option {
	return func(s *Scheduler) { s.importer = i }
}

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func New(st Store, events handler.Publisher, l zerolog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:   st,
		events:  events,
		log:     l.With().Str("component", "jobs").Logger(),
		now:     time.Now,
		timeout: 5 * time.Minute,
	}
	for _, o := range opts {
		o(s)
	}
	cl := cronLogger{s.log}
	s.cron = cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	return s
}

// Start registers the jobs and starts the cron loop. Feed import is only
// scheduled when an importer was given.
func (s *Scheduler) Start(sweep, feeds string) error {
	if _, err := s.cron.AddFunc(sweep, s.wrap("expire_appointments", s.ExpireAppointments)); err != nil {
		return fmt.Errorf("jobs: sweep schedule %q: %w", sweep, err)
	}
	if _, err := s.cron.AddFunc(sweep, s.wrap("purge_tokens", s.PurgeTokens)); err != nil {
		return fmt.Errorf("jobs: sweep schedule %q: %w", sweep, err)
	}
	if s.importer != nil {
		if _, err := s.cron.AddFunc(feeds, s.wrap("import_feeds", s.ImportFeeds)); err != nil {
			return fmt.Errorf("jobs: feed schedule %q: %w", feeds, err)
		}
	}
	s.cron.Start()
	return nil
}

// Stop waits for running jobs to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) wrap(name string, fn func(context.Context) error) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		start := time.Now()
		if err := fn(ctx); err != nil {
			s.log.Error().Err(err).Str("job", name).Msg("job failed")
			return
		}
		s.log.Debug().Str("job", name).Dur("duration", time.Since(start)).Msg("job done")
	}
}

// ExpireAppointments cancels pending appointments dated before today (UTC)
// and tells both parties.
func (s *Scheduler) ExpireAppointments(ctx context.Context) error {
	n := s.now().UTC()
	today := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)

	expired, err := s.store.ExpirePending(ctx, today)
	if err != nil {
		return fmt.Errorf("expire pending: %w", err)
	}
	for i := range expired {
		a := &expired[i]
		ev := handler.AppointmentEvent(a)
		for _, uid := range []string{a.UserID, a.ExpertID} {
			if err := s.events.Publish(ctx, uid, ev); err != nil {
				s.log.Warn().Err(err).Str("user_id", uid).Msg("publish failed")
			}
		}
	}
	if len(expired) > 0 {
		s.log.Info().Int("count", len(expired)).Msg("expired pending appointments")
	}
	return nil
}

func (s *Scheduler) PurgeTokens(ctx context.Context) error {
	n, err := s.store.PurgeRefreshTokens(ctx, s.now().Add(-tokenGrace))
	if err != nil {
		return fmt.Errorf("purge refresh tokens: %w", err)
	}
	if n > 0 {
		s.log.Info().Int64("count", n).Msg("purged refresh tokens")
	}
	return nil
}

func (s *Scheduler) ImportFeeds(ctx context.Context) error {
	if s.importer == nil {
		return nil
	}
	n, err := s.importer.ImportAll(ctx)
	if err != nil {
		return fmt.Errorf("import feeds: %w", err)
	}
	s.log.Info().Int("imported", n).Msg("feed import finished")
	return nil
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct{ l zerolog.Logger }

func (c cronLogger) Info(msg string, kv ...any) {
	c.l.Debug().Fields(kv).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, kv ...any) {
	c.l.Error().Err(err).Fields(kv).Msg(msg)
}
