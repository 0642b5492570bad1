// Package cmd implements the cnh CLI to manage the cost-basis ledger.
package cmd

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/subcommands"

	costbasis "github.com/darken51/costbasis"
	"github.com/darken51/costbasis/sqlitestore"
)

// Register the subcommands.
// A main package will call Register() to allow subcommands, and Execute() on the user-selected one.
func Register(c *subcommands.Commander) {
	c.Register(&importCmd{}, "ledger")
	c.Register(&disposeCmd{}, "ledger")
	c.Register(&summaryCmd{}, "reports")
	c.Register(&gainsCmd{}, "reports")
	c.Register(&violationsCmd{}, "reports")
}

// as a CLI application, it has a very short lived lifecycle, so it is ok to use global variables.

var dbPath = flag.String("db", os.Getenv("CNH_DB"), "Path to the ledger database file. Empty runs fully in memory.")

// OpenStore opens the configured lot store: SQLite when -db is set, the
// in-memory store otherwise.
func OpenStore() (store costbasis.LotStore, close func(), err error) {
	if *dbPath == "" {
		return costbasis.NewMemoryStore(), func() {}, nil
	}
	s, err := sqlitestore.Open(*dbPath, slog.Default())
	if err != nil {
		return nil, nil, err
	}
	return s, func() { s.Close() }, nil
}

// settingsFlags are the per-owner policy knobs shared by the ledger
// subcommands.
type settingsFlags struct {
	method       string
	currency     string
	jurisdiction string
	washSale     bool
	window       int
	holding      int
}

func (s *settingsFlags) SetFlags(f *flag.FlagSet) {
	def := costbasis.DefaultSettings()
	if cur := os.Getenv("CNH_CURRENCY"); cur != "" {
		def.ReportingCurrency = cur
	}
	f.StringVar(&s.method, "m", def.Method.String(), "Default allocation method (fifo, lifo, hifo, average, specific).")
	f.StringVar(&s.currency, "currency", def.ReportingCurrency, "Reporting currency for local mirrors.")
	f.StringVar(&s.jurisdiction, "jurisdiction", def.Jurisdiction, "Jurisdiction code.")
	f.BoolVar(&s.washSale, "washsale", def.WashSaleEnabled, "Enable the wash-sale rule.")
	f.IntVar(&s.window, "washsale-window", def.WashSaleWindow, "Wash-sale window in days.")
	f.IntVar(&s.holding, "holding-days", def.HoldingPeriodDays, "Long-term holding threshold in days.")
}

func (s *settingsFlags) Settings() (costbasis.Settings, error) {
	method, err := costbasis.ParseAllocationMethod(s.method)
	if err != nil {
		return costbasis.Settings{}, err
	}
	return costbasis.Settings{
		Method:            method,
		Jurisdiction:      s.jurisdiction,
		WashSaleEnabled:   s.washSale,
		WashSaleWindow:    s.window,
		HoldingPeriodDays: s.holding,
		ReportingCurrency: s.currency,
	}, nil
}

// printJSON writes v to stdout, indented for humans.
func printJSON(v any) subcommands.ExitStatus {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
