package system

import (
	"context"
	"fmt"

	"github.com/julianstephens/habitline/internal/cli"
	"github.com/julianstephens/habitline/internal/migration"
)

// migrator is implemented by both SQL stores.
type migrator interface {
	Migrate(ctx context.Context, logFn func(string)) (int, error)
	MigrationStatus(ctx context.Context) (migration.Status, error)
}

type MigrateCmd struct {
	Status bool `help:"Show the schema version and pending migrations without applying them."`
}

func (c *MigrateCmd) Run(ctx *cli.Context) error {
	m, ok := ctx.Store.(migrator)
	if !ok {
		return fmt.Errorf("storage backend does not support migrations")
	}

	if c.Status {
		st, err := m.MigrationStatus(ctx.Context())
		if err != nil {
			return fmt.Errorf("failed to read migration status: %w", err)
		}
		ctx.Printf("Current schema version: %d\n", st.Current)
		ctx.Printf("Latest schema version:  %d\n", st.Latest)
		for _, p := range st.Pending {
			ctx.Printf("  pending: %03d_%s\n", p.Version, p.Name)
		}
		return nil
	}

	count, err := m.Migrate(ctx.Context(), func(msg string) {
		ctx.Println(msg)
	})
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	if count == 0 {
		ctx.Println("No migrations to apply. Database is up to date.")
	} else {
		ctx.Printf("\nSuccessfully applied %d migration(s).\n", count)
	}
	return nil
}
