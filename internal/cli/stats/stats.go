package stats

import (
	"github.com/julianstephens/habitline/internal/cli"
	"github.com/julianstephens/habitline/internal/completion"
)

type StatsCmd struct {
	History StatsHistoryCmd `cmd:"" help:"Show completions over the last 7 days." default:"1"`
	Rates   StatsRatesCmd   `cmd:"" help:"Show the all-time completion timing breakdown."`
}

type StatsHistoryCmd struct{}

func (c *StatsHistoryCmd) Run(ctx *cli.Context) error {
	owner, err := ctx.RequireOwner()
	if err != nil {
		return err
	}
	agg, err := ctx.History()
	if err != nil {
		return err
	}
	entries, err := agg.CompletionHistory(ctx.Context(), owner, ctx.Clock())
	if err != nil {
		return err
	}

	total := 0
	for _, e := range entries {
		total += e.Count
	}
	ctx.Println(cli.Header("Last 7 days"))
	ctx.Printf("%s", cli.BarChart(entries))
	ctx.Printf("%d completed\n", total)
	return nil
}

type StatsRatesCmd struct{}

func (c *StatsRatesCmd) Run(ctx *cli.Context) error {
	owner, err := ctx.RequireOwner()
	if err != nil {
		return err
	}
	agg, err := ctx.History()
	if err != nil {
		return err
	}
	s, err := agg.CompletionRateSummary(ctx.Context(), owner, ctx.Clock())
	if err != nil {
		return err
	}
	if s.Total == 0 {
		ctx.Println("No habits yet.")
		return nil
	}

	ctx.Println(cli.Header("Completion timing"))
	ctx.Printf("  %s %4d  (%.0f%%)\n", cli.Badge(completion.OnTime), s.OnTime, 100*s.OnTimeRate())
	ctx.Printf("  %s %4d  (%.0f%%)\n", cli.Badge(completion.Early), s.Early, 100*s.EarlyRate())
	ctx.Printf("  %s %4d\n", cli.Badge(completion.Late), s.Late)
	ctx.Printf("  %s %4d\n", cli.Badge(completion.Pending), s.Pending)
	ctx.Printf("  total     %4d\n", s.Total)
	return nil
}
