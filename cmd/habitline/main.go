package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/julianstephens/habitline/internal/cli"
	"github.com/julianstephens/habitline/internal/cli/habits"
	"github.com/julianstephens/habitline/internal/cli/settings"
	"github.com/julianstephens/habitline/internal/cli/stats"
	"github.com/julianstephens/habitline/internal/cli/streaks"
	"github.com/julianstephens/habitline/internal/cli/system"
	"github.com/julianstephens/habitline/internal/constants"
	apperrors "github.com/julianstephens/habitline/internal/errors"
	"github.com/julianstephens/habitline/internal/keyring"
	"github.com/julianstephens/habitline/internal/logger"
	"github.com/julianstephens/habitline/internal/storage"
	"github.com/julianstephens/habitline/internal/storage/postgres"
	"github.com/julianstephens/habitline/internal/storage/sqlite"
)

var CLI struct {
	Version     kong.VersionFlag
	Config      string `help:"SQLite file path or PostgreSQL connection string. PostgreSQL credentials must NOT be embedded; use .pgpass or the OS keyring instead." env:"HABITLINE_CONFIG"`
	User        string `short:"u" help:"User whose habits and streak to act on." env:"HABITLINE_USER"`
	Timezone    string `help:"Override the stored reference timezone for this invocation." env:"HABITLINE_TIMEZONE"`
	RedisAddr   string `help:"Redis address for the streak run lock (host:port). Disabled when empty." env:"HABITLINE_REDIS_ADDR"`
	PushGateway string `help:"Prometheus Pushgateway URL for streak run metrics." env:"HABITLINE_PUSHGATEWAY"`
	Debug       bool   `help:"Enable debug logging." env:"HABITLINE_DEBUG"`
	JSONLogs    bool   `name:"json-logs" help:"Write logs as JSON lines." env:"HABITLINE_JSON_LOGS"`

	Init     system.InitCmd       `cmd:"" help:"Initialize habitline storage."`
	Migrate  system.MigrateCmd    `cmd:"" help:"Run database migrations."`
	Doctor   system.DoctorCmd     `cmd:"" help:"Run health checks and diagnostics."`
	Validate system.ValidateCmd   `cmd:"" help:"Check your habit records for inconsistencies."`
	Habit    habits.HabitCmd      `cmd:"" help:"Manage habits."`
	Streak   streaks.StreakCmd    `cmd:"" help:"Track your daily streak."`
	Stats    stats.StatsCmd       `cmd:"" help:"Show completion history and timing."`
	Settings settings.SettingsCmd `cmd:"" help:"Manage application settings."`
	Keyring  system.KeyringCmd    `cmd:"" help:"Manage secrets stored in the OS keyring."`
}

func main() {
	// A missing .env file is fine
	_ = godotenv.Load()

	kctx := kong.Parse(&CLI,
		kong.Name(constants.AppName),
		kong.Description("Recurring habit tracker with daily streaks"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version":     constants.Version,
			"streak_cron": constants.DefaultStreakCron,
		},
	)

	configDir, err := defaultConfigDir()
	if err != nil {
		apperrors.Fatalf("failed to resolve config directory: %v", err)
	}
	if err := logger.Init(logger.Config{Debug: CLI.Debug, ConfigDir: configDir, JSON: CLI.JSONLogs}); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize logger: %v\n", err)
	}

	store, err := openStore(CLI.Config)
	if err != nil {
		apperrors.Fatal(err)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appCtx := &cli.Context{
		Ctx:         ctx,
		Store:       store,
		Owner:       CLI.User,
		Timezone:    CLI.Timezone,
		RedisAddr:   CLI.RedisAddr,
		PushGateway: CLI.PushGateway,
	}

	// init, doctor and keyring manage the store themselves
	switch strings.Fields(kctx.Command())[0] {
	case "init", "doctor", "keyring":
	default:
		if err := store.Load(ctx); err != nil {
			stop()
			apperrors.Fatal(err)
		}
	}

	logger.Debug("Running command", "command", kctx.Command(), "store", store.GetConfigPath())
	if err := kctx.Run(appCtx); err != nil {
		stop()
		_ = store.Close()
		apperrors.Fatal(err)
	}
}

// openStore picks the backend from the config value. With no config the
// keyring connection string wins over the default SQLite file.
func openStore(config string) (storage.Provider, error) {
	if config == "" {
		connStr, err := keyring.GetConnectionString()
		switch {
		case err == nil:
			logger.Debug("Using connection string from OS keyring")
			config = connStr
		case errors.Is(err, keyring.ErrNotFound), errors.Is(err, keyring.ErrKeyringUnavailable):
			config = constants.DefaultConfigPath
		default:
			return nil, err
		}
	}

	if isPostgres(config) {
		if _, err := postgres.ValidateConnString(config); err != nil {
			if errors.Is(err, postgres.ErrEmbeddedCredentials) && !fromKeyring(config) {
				return nil, fmt.Errorf("%w; store it with '%s keyring set' or use .pgpass", err, constants.AppName)
			}
			if !errors.Is(err, postgres.ErrEmbeddedCredentials) {
				return nil, err
			}
		}
		return postgres.New(config), nil
	}

	path, err := expandHome(config)
	if err != nil {
		return nil, err
	}
	return sqlite.NewStore(path), nil
}

func isPostgres(config string) bool {
	return strings.HasPrefix(config, "postgres://") ||
		strings.HasPrefix(config, "postgresql://") ||
		strings.Contains(config, "host=")
}

// fromKeyring reports whether config is the connection string held in the
// keyring, which may carry a password.
func fromKeyring(config string) bool {
	stored, err := keyring.GetConnectionString()
	return err == nil && stored == config
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

func defaultConfigDir() (string, error) {
	path, err := expandHome(constants.DefaultConfigPath)
	if err != nil {
		return "", err
	}
	return filepath.Dir(path), nil
}
