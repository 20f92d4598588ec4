package system

import (
	"fmt"
	"os"
	"strings"

	"github.com/julianstephens/habitline/internal/cli"
)

type InitCmd struct {
	Force bool `help:"Force reset by deleting existing database before initialization (SQLite only)."`
}

func (c *InitCmd) Run(ctx *cli.Context) error {
	if c.Force {
		dbPath := ctx.Store.GetConfigPath()
		if strings.HasPrefix(dbPath, "postgres") {
			return fmt.Errorf("--force is only supported for SQLite storage")
		}
		if _, err := os.Stat(dbPath); err == nil {
			// Close first to release the file lock
			if err := ctx.Store.Close(); err != nil {
				return fmt.Errorf("failed to close existing database: %w", err)
			}
			if err := os.Remove(dbPath); err != nil {
				return fmt.Errorf("failed to delete existing database: %w", err)
			}
			ctx.Printf("Deleted existing database at: %s\n", dbPath)
		} else if !os.IsNotExist(err) {
			return fmt.Errorf("failed to access existing database: %w", err)
		}
	}

	if err := ctx.Store.Init(ctx.Context()); err != nil {
		return err
	}
	ctx.Printf("Initialized habitline storage at: %s\n", ctx.Store.GetConfigPath())
	return nil
}
