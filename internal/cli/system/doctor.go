package system

import (
	"errors"
	"fmt"
	"time"

	"github.com/julianstephens/habitline/internal/cli"
	"github.com/julianstephens/habitline/internal/keyring"
	"github.com/julianstephens/habitline/internal/streak"
	"github.com/julianstephens/habitline/internal/utils"
	"github.com/julianstephens/habitline/internal/validation"
)

type DoctorCmd struct{}

type check struct {
	name string
	// needsDB checks are skipped when the database is unreachable
	needsDB bool
	warn    bool
	run     func(ctx *cli.Context) error
}

var checks = []check{
	{name: "Database reachable", run: checkDBReachable},
	{name: "Schema version", needsDB: true, run: checkSchemaVersion},
	{name: "Reference timezone", needsDB: true, run: checkTimezone},
	{name: "Habit integrity", needsDB: true, run: checkHabitsIntegrity},
	{name: "OS keyring", warn: true, run: checkKeyring},
	{name: "Redis lock", warn: true, run: checkRedis},
}

func (cmd *DoctorCmd) Run(ctx *cli.Context) error {
	ctx.Println("Running diagnostics...")
	ctx.Println()

	hasError := false
	dbReachable := true
	for i, c := range checks {
		if c.needsDB && !dbReachable {
			ctx.Printf("⊘ %s: SKIPPED (database not reachable)\n", c.name)
			continue
		}
		err := c.run(ctx)
		switch {
		case err == nil:
			ctx.Printf("✓ %s: OK\n", c.name)
		case c.warn:
			ctx.Printf("⚠ %s: WARNING\n", c.name)
			ctx.Printf("   %v\n", err)
		default:
			ctx.Printf("❌ %s: FAIL\n", c.name)
			ctx.Printf("   Error: %v\n", err)
			hasError = true
			if i == 0 {
				dbReachable = false
			}
		}
	}

	ctx.Println()
	if hasError {
		ctx.Println("Diagnostics completed with errors.")
		return fmt.Errorf("one or more health checks failed")
	}
	ctx.Println("All diagnostics passed!")
	return nil
}

func checkDBReachable(ctx *cli.Context) error {
	if err := ctx.Store.Load(ctx.Context()); err != nil {
		return fmt.Errorf("failed to load database: %w", err)
	}
	_, err := ctx.Store.GetSettings(ctx.Context())
	return err
}

func checkSchemaVersion(ctx *cli.Context) error {
	m, ok := ctx.Store.(migrator)
	if !ok {
		return nil
	}
	st, err := m.MigrationStatus(ctx.Context())
	if err != nil {
		return err
	}
	if st.Current > st.Latest {
		return fmt.Errorf("database schema version (%d) is newer than supported version (%d)", st.Current, st.Latest)
	}
	if len(st.Pending) > 0 {
		return fmt.Errorf("%d pending migration(s); run 'habitline migrate'", len(st.Pending))
	}
	return nil
}

func checkTimezone(ctx *cli.Context) error {
	loc, err := ctx.Location()
	if err != nil {
		return err
	}
	// a reference zone must yield sane day windows
	start, end := utils.DayWindow(time.Now(), loc)
	if d := end.Sub(start); d < 22*time.Hour || d > 26*time.Hour {
		return fmt.Errorf("day window in %s is %s long", loc, d)
	}
	return nil
}

func checkHabitsIntegrity(ctx *cli.Context) error {
	if ctx.Owner == "" {
		return nil
	}
	all, err := ctx.Store.QueryAll(ctx.Context(), ctx.Owner)
	if err != nil {
		return err
	}
	result := validation.New().ValidateHabits(all)
	if result.HasConflicts() {
		return fmt.Errorf("%d inconsistent record(s); run 'habitline validate' for details", len(result.Conflicts))
	}
	return nil
}

func checkKeyring(_ *cli.Context) error {
	if !keyring.IsAvailable() {
		return keyring.ErrKeyringUnavailable
	}
	return nil
}

func checkRedis(ctx *cli.Context) error {
	if ctx.RedisAddr == "" {
		return nil
	}
	password, err := keyring.Get(keyring.RedisPassword)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	client, err := streak.DialRedis(ctx.Context(), ctx.RedisAddr, password)
	if err != nil {
		return fmt.Errorf("cannot reach %s: %w", ctx.RedisAddr, err)
	}
	return client.Close()
}
