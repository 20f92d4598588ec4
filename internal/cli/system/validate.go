package system

import (
	"fmt"

	"github.com/julianstephens/habitline/internal/cli"
	"github.com/julianstephens/habitline/internal/logger"
	"github.com/julianstephens/habitline/internal/validation"
)

type ValidateCmd struct{}

func (c *ValidateCmd) Run(ctx *cli.Context) error {
	owner, err := ctx.RequireOwner()
	if err != nil {
		return err
	}
	all, err := ctx.Store.QueryAll(ctx.Context(), owner)
	if err != nil {
		return fmt.Errorf("failed to load habits: %w", err)
	}

	result := validation.New().ValidateHabits(all)
	ctx.Printf("Checked %d habit record(s).\n", len(all))
	ctx.Printf("%s", result.FormatReport())
	if !result.HasConflicts() {
		ctx.Println()
		return nil
	}
	for _, c := range result.Conflicts {
		logger.Warn("Inconsistent habit record", "owner", owner, "id", c.HabitID, "parent", c.ParentID, "type", c.Type)
	}
	return fmt.Errorf("%d conflict(s) found", len(result.Conflicts))
}
