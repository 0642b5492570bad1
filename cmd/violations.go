package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
)

type violationsCmd struct {
	owner string
}

func (*violationsCmd) Name() string     { return "violations" }
func (*violationsCmd) Synopsis() string { return "list an owner's wash-sale violations" }
func (*violationsCmd) Usage() string {
	return `cnh violations -owner <id>

  Lists the wash-sale violations recorded for the owner, oldest first.
`
}

func (p *violationsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.owner, "owner", "", "Owner id.")
}

func (p *violationsCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	store, close, err := OpenStore()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer close()

	violations, err := store.Violations(ctx, p.owner)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return printJSON(violations)
}
