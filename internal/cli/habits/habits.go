package habits

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"github.com/julianstephens/habitline/internal/cli"
	"github.com/julianstephens/habitline/internal/completion"
	"github.com/julianstephens/habitline/internal/constants"
	apperrors "github.com/julianstephens/habitline/internal/errors"
	"github.com/julianstephens/habitline/internal/recurrence"
)

type HabitCmd struct {
	Add      HabitAddCmd      `cmd:"" help:"Add a new habit."`
	List     HabitListCmd     `cmd:"" help:"List habits (one line per lineage)."`
	Today    HabitTodayCmd    `cmd:"" help:"Show habits due today."`
	Week     HabitWeekCmd     `cmd:"" help:"Show habits due this week."`
	Upcoming HabitUpcomingCmd `cmd:"" help:"Show upcoming habits by month."`
	Done     HabitDoneCmd     `cmd:"" help:"Mark a habit occurrence complete."`
	Undo     HabitUndoCmd     `cmd:"" help:"Clear a habit occurrence's completion."`
	Edit     HabitEditCmd     `cmd:"" help:"Edit a habit's title and description."`
	Delete   HabitDeleteCmd   `cmd:"" help:"Delete a habit or a single occurrence."`
}

type HabitAddCmd struct {
	Title       string `arg:"" optional:"" help:"Habit title. Prompts interactively when omitted."`
	Description string `short:"d" help:"Habit description."`
	Due         string `help:"Local due date-time (YYYY-MM-DDTHH:MM, or YYYY-MM-DD for 23:59)."`
	Timezone    string `help:"IANA timezone the due date is entered in. Defaults to the reference timezone."`
	Recurrence  string `short:"r" enum:"daily,weekly" default:"daily" help:"Recurrence (daily, weekly)."`
}

func (c *HabitAddCmd) Run(ctx *cli.Context) error {
	owner, err := ctx.RequireOwner()
	if err != nil {
		return err
	}
	svc, err := ctx.Habits()
	if err != nil {
		return err
	}

	if c.Timezone == "" {
		if c.Timezone, err = namedZone(svc.Location()); err != nil {
			return err
		}
	}
	if c.Title == "" {
		if !isTerminal() {
			return apperrors.Invalid("title", "must not be empty")
		}
		if err := c.prompt(); err != nil {
			return fmt.Errorf("interactive form error: %w", err)
		}
	}
	if c.Due == "" {
		c.Due = ctx.Clock().In(svc.Location()).Format(constants.DateFormat)
	}

	h, err := svc.Create(ctx.Context(), owner, recurrence.Request{
		Title:       c.Title,
		Description: c.Description,
		LocalDue:    c.Due,
		Timezone:    c.Timezone,
		Recurrence:  constants.RecurrenceType(c.Recurrence),
	})
	if err != nil {
		return err
	}

	ctx.Printf("Added habit: %s (%s)\n", h.Title, h.ID)
	ctx.Printf("  First due: %s, repeats %s\n", h.DueAt.In(svc.Location()).Format("Mon Jan 02 15:04 MST"), h.RecurrenceType)
	return nil
}

// namedZone returns an IANA name for loc. The process-local zone is
// resolved through TZ since "Local" is not portable between hosts.
func namedZone(loc *time.Location) (string, error) {
	if name := loc.String(); name != "Local" {
		return name, nil
	}
	tz := strings.TrimPrefix(os.Getenv("TZ"), ":")
	if tz != "" && tz != "Local" {
		if _, err := time.LoadLocation(tz); err == nil {
			return tz, nil
		}
	}
	return "", apperrors.Invalid("timezone",
		"reference timezone is Local; pass --timezone or run 'habitline settings set-timezone <zone>'")
}

func (c *HabitAddCmd) prompt() error {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				Value(&c.Title).
				Validate(nonEmpty),
			huh.NewInput().
				Title("Description").
				Value(&c.Description).
				Validate(nonEmpty),
			huh.NewInput().
				Title("Due (YYYY-MM-DDTHH:MM)").
				Placeholder("leave empty for today 23:59").
				Value(&c.Due),
			huh.NewSelect[string]().
				Title("Repeats").
				Options(
					huh.NewOption("Daily", string(constants.RecurrenceDaily)),
					huh.NewOption("Weekly", string(constants.RecurrenceWeekly)),
				).
				Value(&c.Recurrence),
		),
	).Run()
}

func nonEmpty(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("required")
	}
	return nil
}

func isTerminal() bool {
	info, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

type HabitListCmd struct{}

func (c *HabitListCmd) Run(ctx *cli.Context) error {
	owner, err := ctx.RequireOwner()
	if err != nil {
		return err
	}
	svc, err := ctx.Habits()
	if err != nil {
		return err
	}

	parents, err := svc.Parents(ctx.Context(), owner)
	if err != nil {
		return err
	}
	if len(parents) == 0 {
		ctx.Println("No habits found.")
		return nil
	}

	ctx.Println(cli.Header("Habits"))
	for _, p := range parents {
		ctx.Printf("%s  %-7s  since %s  %s\n", p.ID, p.RecurrenceType,
			p.DueAt.In(svc.Location()).Format(constants.DateFormat), p.Title)
		ctx.Printf("    %s\n", p.Description)
	}
	return nil
}

type HabitTodayCmd struct{}

func (c *HabitTodayCmd) Run(ctx *cli.Context) error {
	owner, err := ctx.RequireOwner()
	if err != nil {
		return err
	}
	svc, err := ctx.Habits()
	if err != nil {
		return err
	}

	l, err := svc.Today(ctx.Context(), owner, ctx.Clock())
	if err != nil {
		return err
	}
	ctx.Println(cli.Header("Today"))
	printHabits(ctx, l.Habits, svc.Location())
	warnFlagged(ctx, len(l.Flagged))
	return nil
}

type HabitWeekCmd struct {
	ByDay bool `help:"Group by weekday."`
}

func (c *HabitWeekCmd) Run(ctx *cli.Context) error {
	owner, err := ctx.RequireOwner()
	if err != nil {
		return err
	}
	svc, err := ctx.Habits()
	if err != nil {
		return err
	}

	if c.ByDay {
		groups, err := svc.ThisWeekByDay(ctx.Context(), owner, ctx.Clock())
		if err != nil {
			return err
		}
		for _, g := range groups {
			ctx.Println(cli.Header(g.Name))
			printHabits(ctx, g.Habits, svc.Location())
		}
		return nil
	}

	l, err := svc.Week(ctx.Context(), owner, ctx.Clock())
	if err != nil {
		return err
	}
	ctx.Println(cli.Header("This week"))
	printHabits(ctx, l.Habits, svc.Location())
	warnFlagged(ctx, len(l.Flagged))
	return nil
}

type HabitUpcomingCmd struct{}

func (c *HabitUpcomingCmd) Run(ctx *cli.Context) error {
	owner, err := ctx.RequireOwner()
	if err != nil {
		return err
	}
	svc, err := ctx.Habits()
	if err != nil {
		return err
	}

	groups, err := svc.Upcoming(ctx.Context(), owner, ctx.Clock())
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		ctx.Println("No upcoming habits.")
		return nil
	}
	for _, g := range groups {
		ctx.Println(cli.Header(g.Name))
		printHabits(ctx, g.Habits, svc.Location())
	}
	return nil
}

type HabitDoneCmd struct {
	ID string `arg:"" help:"Occurrence ID."`
}

func (c *HabitDoneCmd) Run(ctx *cli.Context) error {
	return setComplete(ctx, c.ID, true)
}

type HabitUndoCmd struct {
	ID string `arg:"" help:"Occurrence ID."`
}

func (c *HabitUndoCmd) Run(ctx *cli.Context) error {
	return setComplete(ctx, c.ID, false)
}

func setComplete(ctx *cli.Context, id string, done bool) error {
	owner, err := ctx.RequireOwner()
	if err != nil {
		return err
	}
	svc, err := ctx.Habits()
	if err != nil {
		return err
	}
	if err := svc.SetComplete(ctx.Context(), owner, id, done, ctx.Clock()); err != nil {
		return err
	}
	if done {
		ctx.Printf("Marked %s complete\n", id)
	} else {
		ctx.Printf("Cleared completion of %s\n", id)
	}
	return nil
}

type HabitEditCmd struct {
	ID          string `arg:"" help:"Habit or occurrence ID. Edits always apply to the whole habit."`
	Title       string `required:"" help:"New title."`
	Description string `required:"" short:"d" help:"New description."`
}

func (c *HabitEditCmd) Run(ctx *cli.Context) error {
	owner, err := ctx.RequireOwner()
	if err != nil {
		return err
	}
	svc, err := ctx.Habits()
	if err != nil {
		return err
	}
	parentID, err := svc.Edit(ctx.Context(), owner, c.ID, c.Title, c.Description)
	if err != nil {
		return err
	}
	ctx.Printf("Updated habit %s\n", parentID)
	return nil
}

type HabitDeleteCmd struct {
	ID string `arg:"" help:"Habit ID (removes every occurrence) or occurrence ID (removes just that one)."`
}

func (c *HabitDeleteCmd) Run(ctx *cli.Context) error {
	owner, err := ctx.RequireOwner()
	if err != nil {
		return err
	}
	svc, err := ctx.Habits()
	if err != nil {
		return err
	}
	cascade, err := svc.Delete(ctx.Context(), owner, c.ID)
	if err != nil {
		return err
	}
	if cascade {
		ctx.Printf("Deleted habit %s and all of its occurrences\n", c.ID)
	} else {
		ctx.Printf("Deleted occurrence %s\n", c.ID)
	}
	return nil
}

func printHabits(ctx *cli.Context, habits []completion.Classified, loc *time.Location) {
	if len(habits) == 0 {
		ctx.Println("  (none)")
		return
	}
	for _, h := range habits {
		ctx.Println("  " + cli.HabitLine(h, loc))
	}
}

func warnFlagged(ctx *cli.Context, n int) {
	if n > 0 {
		ctx.Printf("⚠ %d habit(s) hidden because their records are inconsistent; see the log for details\n", n)
	}
}
