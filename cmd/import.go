package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/subcommands"

	costbasis "github.com/darken51/costbasis"
)

type importCmd struct {
	file string
	settingsFlags
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "ingest a batch of normalized events" }
func (*importCmd) Usage() string {
	return `cnh import -f <events.jsonl>

  Reads normalized acquisition/disposal events, one JSON object per line,
  and applies them to the ledger. Replaying a file is safe: acquisitions
  are idempotent by source transaction hash. Malformed events are skipped
  and counted in the printed report.
`
}

func (p *importCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.file, "f", "-", "Events file (JSONL). \"-\" reads stdin.")
	p.settingsFlags.SetFlags(f)
}

func (p *importCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	settings, err := p.Settings()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	var in io.Reader = os.Stdin
	if p.file != "-" {
		file, err := os.Open(p.file)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		defer file.Close()
		in = file
	}

	var events []costbasis.IngestionEvent
	dec := json.NewDecoder(in)
	for {
		var ev costbasis.IngestionEvent
		if err := dec.Decode(&ev); err == io.EOF {
			break
		} else if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading events from %q: %v\n", p.file, err)
			return subcommands.ExitFailure
		}
		events = append(events, ev)
	}

	store, close, err := OpenStore()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer close()

	ingester := costbasis.NewIngester(store,
		costbasis.NewAllocator(store),
		costbasis.StaticSettings(settings),
		slog.Default())
	report, err := ingester.Process(ctx, events)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return printJSON(report)
}
