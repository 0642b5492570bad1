package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/google/subcommands"

	costbasis "github.com/darken51/costbasis"
)

type gainsCmd struct {
	owner string
	year  string
	from  string
	to    string
}

func (*gainsCmd) Name() string     { return "gains" }
func (*gainsCmd) Synopsis() string { return "realized gains and losses over a period" }
func (*gainsCmd) Usage() string {
	return `cnh gains -owner <id> [-year <yyyy> | -from <date> -to <date>]

  Sums the owner's committed disposals inside the period, grouped by token
  and split into short-term and long-term buckets. Defaults to the current
  calendar year.
`
}

func (p *gainsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.owner, "owner", "", "Owner id.")
	f.StringVar(&p.year, "year", "", "Calendar tax year.")
	f.StringVar(&p.from, "from", "", "Period start (YYYY-MM-DD).")
	f.StringVar(&p.to, "to", "", "Period end (YYYY-MM-DD).")
}

func (p *gainsCmd) period() (costbasis.Range, error) {
	switch {
	case p.year != "":
		y, err := strconv.Atoi(p.year)
		if err != nil {
			return costbasis.Range{}, fmt.Errorf("invalid year %q: %w", p.year, err)
		}
		return costbasis.Year(y), nil
	case p.from != "" || p.to != "":
		from, err := costbasis.ParseDate(p.from)
		if err != nil {
			return costbasis.Range{}, err
		}
		to, err := costbasis.ParseDate(p.to)
		if err != nil {
			return costbasis.Range{}, err
		}
		return costbasis.NewRange(from, to), nil
	default:
		return costbasis.Year(time.Now().Year()), nil
	}
}

func (p *gainsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	period, err := p.period()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	store, close, err := OpenStore()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer close()

	report, err := costbasis.RealizedGains(ctx, store, p.owner, period)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return printJSON(report)
}
