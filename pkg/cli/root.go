package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/voicequote/meterd/pkg/accounts"
	"github.com/voicequote/meterd/pkg/billing"
	"github.com/voicequote/meterd/pkg/observability"
	"github.com/voicequote/meterd/pkg/quota"
)

// Runtime carries what the admin commands operate on
type Runtime struct {
	Out       io.Writer
	Store     accounts.Store
	Tracker   *quota.Tracker
	Migrate   func(ctx context.Context) error
	Restorers map[billing.Provider]*billing.Restorer
	// Logger receives the audit trail of manual plan overrides. Nil discards it.
	Logger *observability.Logger
}

func (rt *Runtime) logger() *observability.Logger {
	if rt.Logger == nil {
		return observability.NewNopLogger()
	}
	return rt.Logger
}

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(ctx context.Context, args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet

	out io.Writer
}

// NewRootCommand creates the root command
func NewRootCommand(rt *Runtime) *Command {
	root := &Command{
		Name:        "meterctl",
		Description: "meterctl - account administration for meterd",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("meterctl", flag.ContinueOnError),
		out:         rt.Out,
	}

	root.Subcommands["migrate"] = newMigrateCommand(rt)
	root.Subcommands["account"] = newAccountCommand(rt)
	root.Subcommands["set-plan"] = newSetPlanCommand(rt)
	root.Subcommands["restore"] = newRestoreCommand(rt)

	return root
}

// Execute runs the subcommand named by args[0]
func (c *Command) Execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return c.usage()
	}

	switch strings.ToLower(args[0]) {
	case "-h", "--help", "help":
		return c.usage()
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(ctx, args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage() error {
	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintf(c.out, "Usage: %s <command> [args]\n\n", c.Name)
	fmt.Fprintf(c.out, "Commands:\n")
	for _, name := range names {
		fmt.Fprintf(c.out, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}
