// Package scheduler triggers the daily streak run on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/julianstephens/habitline/internal/constants"
	"github.com/julianstephens/habitline/internal/logger"
)

// Job is invoked on every tick with the tick time.
type Job func(ctx context.Context, now time.Time) error

type Scheduler struct {
	cron     *cron.Cron
	schedule cron.Schedule
	loc      *time.Location
}

// New parses spec (standard five-field cron) in loc. An empty spec means the
// default daily run shortly after midnight.
func New(spec string, loc *time.Location) (*Scheduler, error) {
	if spec == "" {
		spec = constants.DefaultStreakCron
	}
	if loc == nil {
		loc = time.Local
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	l := cronLogger{}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(l),
			cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
		),
		schedule: schedule,
		loc:      loc,
	}, nil
}

// Next returns the first tick strictly after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.loc))
}

// Run invokes job on every tick until ctx is done, then waits for an
// in-flight job to return.
func (s *Scheduler) Run(ctx context.Context, job Job) error {
	s.cron.Schedule(s.schedule, cron.FuncJob(func() {
		now := time.Now().In(s.loc)
		if err := job(ctx, now); err != nil {
			logger.Error("Scheduled job failed", "job", constants.StreakJobName, "error", err)
		}
	}))

	s.cron.Start()
	logger.Info("Scheduler started", "job", constants.StreakJobName, "next", s.Next(time.Now()))

	<-ctx.Done()
	<-s.cron.Stop().Done()
	logger.Info("Scheduler stopped", "job", constants.StreakJobName)
	return nil
}

// cronLogger routes cron's own logging through the application logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug(msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error(msg, append(keysAndValues, "error", err)...)
}
