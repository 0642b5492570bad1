package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"

	costbasis "github.com/darken51/costbasis"
)

type summaryCmd struct {
	owner  string
	token  string
	chain  string
	prices string
	live   bool
	settingsFlags
}

func (*summaryCmd) Name() string     { return "summary" }
func (*summaryCmd) Synopsis() string { return "aggregate open lots by token and chain" }
func (*summaryCmd) Usage() string {
	return `cnh summary -owner <id> [-token <sym>] [-chain <name>] [-prices <file>] [-live]

  Prints cost basis, current value and unrealized gain/loss of the owner's
  open lots. Current prices come from a JSON file mapping token symbols to
  USD prices, or live from CoinGecko with -live; without either, holdings
  are valued at zero.
`
}

func (p *summaryCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.owner, "owner", "", "Owner id.")
	f.StringVar(&p.token, "token", "", "Restrict to one token.")
	f.StringVar(&p.chain, "chain", "", "Restrict to one chain.")
	f.StringVar(&p.prices, "prices", "", "JSON file of current USD prices per token.")
	f.BoolVar(&p.live, "live", false, "Fetch current prices from CoinGecko.")
	p.settingsFlags.SetFlags(f)
}

func (p *summaryCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	settings, err := p.Settings()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	var prices costbasis.PriceProvider
	if p.live {
		prices = costbasis.NewCoinGeckoPrices(slog.Default())
	}
	if p.prices != "" {
		raw, err := os.ReadFile(p.prices)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		table := make(map[string]decimal.Decimal)
		if err := json.Unmarshal(raw, &table); err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing prices file %q: %v\n", p.prices, err)
			return subcommands.ExitFailure
		}
		prices = costbasis.PriceFunc(func(_ context.Context, token string) (costbasis.Money, bool) {
			d, ok := table[token]
			return costbasis.M(d, costbasis.USD), ok
		})
	}

	store, close, err := OpenStore()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer close()

	// Reporting-currency mirrors only need a rate provider when the target
	// currency differs from USD.
	var rates costbasis.RateProvider
	if settings.ReportingCurrency != costbasis.USD {
		rates = costbasis.NewCachedRates(costbasis.NewFrankfurterRates(slog.Default()), 12*time.Hour)
	}

	summary, err := costbasis.NewSummarizer(store, prices, rates).
		PortfolioSummary(ctx, p.owner, costbasis.SummaryFilter{Token: p.token, Chain: p.chain}, settings)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return printJSON(summary)
}
