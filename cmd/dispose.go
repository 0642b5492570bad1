package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"
	"github.com/google/uuid"

	costbasis "github.com/darken51/costbasis"
)

type disposeCmd struct {
	owner  string
	token  string
	chain  string
	amount string
	price  string
	date   string
	lots   string
	txHash string
	settingsFlags
}

func (*disposeCmd) Name() string     { return "dispose" }
func (*disposeCmd) Synopsis() string { return "allocate a disposal against the owner's lots" }
func (*disposeCmd) Usage() string {
	return `cnh dispose -owner <id> -token <sym> -amount <qty> -price <usd> [-d <date>] [-m <method>] [-lots id,id,...]

  Allocates a sale/swap/withdrawal across the owner's acquisition lots and
  prints the resulting disposal records, gain/loss and warnings.
`
}

func (p *disposeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.owner, "owner", "", "Owner id.")
	f.StringVar(&p.token, "token", "", "Token symbol.")
	f.StringVar(&p.chain, "chain", "", "Chain name.")
	f.StringVar(&p.amount, "amount", "", "Amount to dispose.")
	f.StringVar(&p.price, "price", "", "Disposal unit price in USD.")
	f.StringVar(&p.date, "d", costbasis.Today().String(), "Disposal date.")
	f.StringVar(&p.lots, "lots", "", "Comma-separated lot ids for specific identification.")
	f.StringVar(&p.txHash, "tx", "", "Source transaction hash.")
	p.settingsFlags.SetFlags(f)
}

func (p *disposeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	settings, err := p.Settings()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	amount, err := costbasis.ParseQuantity(p.amount)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing amount: %v\n", err)
		return subcommands.ExitUsageError
	}
	price, err := costbasis.ParseMoney(p.price, costbasis.USD)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing price: %v\n", err)
		return subcommands.ExitUsageError
	}
	on, err := costbasis.ParseDate(p.date)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	var lotIDs []uuid.UUID
	if p.lots != "" {
		for _, s := range strings.Split(p.lots, ",") {
			id, err := uuid.Parse(strings.TrimSpace(s))
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error parsing lot id %q: %v\n", s, err)
				return subcommands.ExitUsageError
			}
			lotIDs = append(lotIDs, id)
		}
	}

	store, close, err := OpenStore()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer close()

	result, err := costbasis.NewAllocator(store).Dispose(ctx, costbasis.DisposalRequest{
		Owner:        p.owner,
		Asset:        costbasis.Asset{Token: p.token, Chain: p.chain},
		Amount:       amount,
		UnitPriceUSD: price,
		On:           on,
		LotIDs:       lotIDs,
		TxHash:       p.txHash,
	}, settings)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return printJSON(result)
}
