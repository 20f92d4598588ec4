package streaks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/julianstephens/habitline/internal/cli"
	"github.com/julianstephens/habitline/internal/constants"
	"github.com/julianstephens/habitline/internal/keyring"
	"github.com/julianstephens/habitline/internal/logger"
	"github.com/julianstephens/habitline/internal/scheduler"
	"github.com/julianstephens/habitline/internal/streak"
	"github.com/julianstephens/habitline/internal/utils"
)

type StreakCmd struct {
	Start    StreakStartCmd    `cmd:"" help:"Start tracking your streak."`
	Show     StreakShowCmd     `cmd:"" help:"Show your current streak."`
	Run      StreakRunCmd      `cmd:"" help:"Evaluate yesterday for every user (daily batch)."`
	Schedule StreakScheduleCmd `cmd:"" help:"Run the daily batch on a cron schedule until interrupted."`
	Runs     StreakRunsCmd     `cmd:"" help:"Show your streak history."`
}

type StreakStartCmd struct{}

func (c *StreakStartCmd) Run(ctx *cli.Context) error {
	owner, err := ctx.RequireOwner()
	if err != nil {
		return err
	}
	engine, err := ctx.Streaks()
	if err != nil {
		return err
	}
	created, err := engine.Start(ctx.Context(), owner)
	if err != nil {
		return err
	}
	if created {
		ctx.Println("✓ Streak started at 0")
	} else {
		ctx.Println("Streak already started")
	}
	return nil
}

type StreakShowCmd struct{}

func (c *StreakShowCmd) Run(ctx *cli.Context) error {
	owner, err := ctx.RequireOwner()
	if err != nil {
		return err
	}
	engine, err := ctx.Streaks()
	if err != nil {
		return err
	}
	st, err := engine.Get(ctx.Context(), owner)
	if err != nil {
		return err
	}
	if !st.Initialized {
		ctx.Println("No streak yet. Run 'habitline streak start' to begin tracking.")
		return nil
	}
	ctx.Printf("🔥 %d day streak\n", st.Count)
	return nil
}

type StreakRunsCmd struct {
	Limit int `default:"14" help:"Number of days to show (0 for all)."`
}

func (c *StreakRunsCmd) Run(ctx *cli.Context) error {
	owner, err := ctx.RequireOwner()
	if err != nil {
		return err
	}
	engine, err := ctx.Streaks()
	if err != nil {
		return err
	}
	runs, err := engine.Runs(ctx.Context(), owner, c.Limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		ctx.Println("No streak changes recorded.")
		return nil
	}
	ctx.Println(cli.Header("Streak history"))
	for _, r := range runs {
		ctx.Printf("  %s  %-11s  %d → %d\n", r.RunDay, r.Outcome, r.Previous, r.Next)
	}
	return nil
}

type StreakRunCmd struct {
	At string `help:"Evaluate as if run at this local date (YYYY-MM-DD); the day before is evaluated."`
}

func (c *StreakRunCmd) Run(ctx *cli.Context) error {
	engine, metrics, cleanup, err := batchEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	now := ctx.Clock()
	if c.At != "" {
		loc, err := ctx.Location()
		if err != nil {
			return err
		}
		at, err := utils.ParseDateInLocation(c.At, loc)
		if err != nil {
			return fmt.Errorf("invalid --at date %q: expected YYYY-MM-DD", c.At)
		}
		now = at
	}

	report, err := runOnce(ctx, engine, metrics, now)
	if err != nil {
		return err
	}
	printReport(ctx, report)
	if report.Retryable > 0 {
		return fmt.Errorf("%d user(s) failed with retryable errors; run again to retry", report.Retryable)
	}
	return nil
}

type StreakScheduleCmd struct {
	Cron string `default:"${streak_cron}" help:"Cron expression in the reference timezone."`
}

func (c *StreakScheduleCmd) Run(ctx *cli.Context) error {
	engine, metrics, cleanup, err := batchEngine(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	loc, err := ctx.Location()
	if err != nil {
		return err
	}
	sched, err := scheduler.New(c.Cron, loc)
	if err != nil {
		return err
	}

	ctx.Printf("Streak runs scheduled (%s, %s). Next run: %s\n", c.Cron, loc, sched.Next(ctx.Clock()).Format(time.RFC1123))
	return sched.Run(ctx.Context(), func(_ context.Context, now time.Time) error {
		report, err := runOnce(ctx, engine, metrics, now)
		if err != nil {
			return err
		}
		printReport(ctx, report)
		return nil
	})
}

// batchEngine wires the optional redis lock and the metrics registry.
func batchEngine(ctx *cli.Context) (*streak.Engine, *streak.Metrics, func(), error) {
	metrics := streak.NewMetrics()
	opts := []streak.Option{streak.WithMetrics(metrics)}
	cleanup := func() {}

	if ctx.RedisAddr != "" {
		password, err := keyring.Get(keyring.RedisPassword)
		if err != nil && !errors.Is(err, keyring.ErrNotFound) {
			logger.Warn("Redis password unavailable from keyring", "error", err)
		}
		client, err := streak.DialRedis(ctx.Context(), ctx.RedisAddr, password)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", ctx.RedisAddr, err)
		}
		opts = append(opts, streak.WithLocker(streak.NewRedisLocker(client)))
		cleanup = func() { _ = client.Close() }
	}

	engine, err := ctx.Streaks(opts...)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return engine, metrics, cleanup, nil
}

func runOnce(ctx *cli.Context, engine *streak.Engine, metrics *streak.Metrics, now time.Time) (streak.Report, error) {
	report, err := engine.RunDaily(ctx.Context(), now)
	if err != nil {
		return report, err
	}
	if ctx.PushGateway != "" {
		pusher := streak.NewPusher(ctx.PushGateway, constants.StreakMetricsJob, map[string]string{"day": report.Day})
		if err := pusher.Push(ctx.Context(), metrics.Registry); err != nil {
			logger.Warn("Failed to push streak metrics", "endpoint", ctx.PushGateway, "error", err)
		}
	}
	return report, nil
}

func printReport(ctx *cli.Context, r streak.Report) {
	ctx.Printf("Streak run for %s (%s)\n", r.Day, r.RunID)
	ctx.Printf("  users: %d  incremented: %d  reset: %d  unchanged: %d\n", r.Owners, r.Incremented, r.Reset, r.Unchanged)
	ctx.Printf("  already run: %d  not started: %d  failed: %d (retryable %d)\n", r.AlreadyRun, r.Uninitialized, r.Failed, r.Retryable)
}
