package settings

import (
	"fmt"
	"time"

	"github.com/julianstephens/habitline/internal/cli"
	apperrors "github.com/julianstephens/habitline/internal/errors"
	"github.com/julianstephens/habitline/internal/utils"
)

type SettingsCmd struct {
	Show        SettingsShowCmd        `cmd:"" help:"Show current settings." default:"1"`
	SetTimezone SettingsSetTimezoneCmd `cmd:"" help:"Set the reference timezone used for days, weeks and streaks."`
}

type SettingsShowCmd struct{}

func (c *SettingsShowCmd) Run(ctx *cli.Context) error {
	settings, err := ctx.Store.GetSettings(ctx.Context())
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}

	ctx.Println("Current Settings:")
	ctx.Printf("  Timezone:     %s\n", settings.Timezone)
	if ctx.Timezone != "" && ctx.Timezone != settings.Timezone {
		ctx.Printf("  (overridden:  %s)\n", ctx.Timezone)
	}
	if now, err := utils.NowInTimezone(settings.Timezone); err == nil {
		ctx.Printf("  Local time:   %s\n", now.Format(time.RFC1123))
	}
	ctx.Printf("  Storage:      %s\n", ctx.Store.GetConfigPath())
	return nil
}

type SettingsSetTimezoneCmd struct {
	Timezone string `arg:"" help:"IANA timezone name (e.g. America/New_York) or Local."`
}

func (c *SettingsSetTimezoneCmd) Run(ctx *cli.Context) error {
	if !utils.ValidateTimezone(c.Timezone) {
		return apperrors.Invalid("timezone", "unknown IANA zone "+c.Timezone)
	}

	settings, err := ctx.Store.GetSettings(ctx.Context())
	if err != nil {
		return fmt.Errorf("failed to get settings: %w", err)
	}
	settings.Timezone = c.Timezone
	if err := ctx.Store.SaveSettings(ctx.Context(), settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	ctx.Printf("Timezone set to %s\n", c.Timezone)
	return nil
}
