package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/julianstephens/habitline/internal/habits"
	"github.com/julianstephens/habitline/internal/history"
	"github.com/julianstephens/habitline/internal/storage"
	"github.com/julianstephens/habitline/internal/streak"
	"github.com/julianstephens/habitline/internal/utils"
)

// Context is bound into every command's Run method.
type Context struct {
	Ctx   context.Context
	Store storage.Provider
	// Owner scopes every habit and streak query.
	Owner string
	// Timezone overrides the stored reference zone when set.
	Timezone    string
	RedisAddr   string
	PushGateway string

	Out io.Writer
	Now func() time.Time
}

// Context returns the command's context, never nil.
func (c *Context) Context() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

// Clock returns the current time.
func (c *Context) Clock() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Context) writer() io.Writer {
	if c.Out == nil {
		return os.Stdout
	}
	return c.Out
}

func (c *Context) Printf(format string, args ...interface{}) {
	fmt.Fprintf(c.writer(), format, args...)
}

func (c *Context) Println(args ...interface{}) {
	fmt.Fprintln(c.writer(), args...)
}

// RequireOwner fails when no user was selected.
func (c *Context) RequireOwner() (string, error) {
	owner := strings.TrimSpace(c.Owner)
	if owner == "" {
		return "", errors.New("no user selected: pass --user or set HABITLINE_USER")
	}
	return owner, nil
}

// Location resolves the reference zone: the --timezone override, then the
// stored setting.
func (c *Context) Location() (*time.Location, error) {
	tz := c.Timezone
	if tz == "" {
		settings, err := c.Store.GetSettings(c.Context())
		if err != nil {
			return nil, fmt.Errorf("failed to get settings: %w", err)
		}
		tz = settings.Timezone
	}
	loc, err := utils.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", tz, err)
	}
	return loc, nil
}

// Habits builds the habit service in the reference zone.
func (c *Context) Habits() (*habits.Service, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	return habits.NewService(c.Store, loc), nil
}

// History builds the aggregator in the reference zone.
func (c *Context) History() (*history.Aggregator, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	return history.NewAggregator(c.Store, loc), nil
}

// Streaks builds the streak engine in the reference zone.
func (c *Context) Streaks(opts ...streak.Option) (*streak.Engine, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	return streak.NewEngine(c.Store, loc, opts...), nil
}
