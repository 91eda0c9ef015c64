package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/platinummonkey/warden/pkg/audit"
	"github.com/platinummonkey/warden/pkg/identitysync"
)

// Synchronizer is the identity sync surface the commands drive
type Synchronizer interface {
	Synchronize(ctx context.Context, identityID int64) (*identitysync.Result, error)
	SynchronizeAll(ctx context.Context) (*identitysync.Summary, error)
	ValidateIntegrity(ctx context.Context) (*identitysync.IntegrityReport, error)
}

// AuditMaintainer is the audit retention surface the commands drive
type AuditMaintainer interface {
	Cleanup(ctx context.Context, policy audit.RetentionPolicy) (int64, error)
	Archive(ctx context.Context, before time.Time) (int, error)
}

// DeadLetterReplayer moves spooled audit events back to the store
type DeadLetterReplayer interface {
	Replay(ctx context.Context, w audit.Writer) (int, error)
}

// Env is what a command runs against
type Env struct {
	Sync      Synchronizer
	Audit     AuditMaintainer
	Retention audit.RetentionPolicy

	// DeadLetter is nil when no spool is configured
	DeadLetter  DeadLetterReplayer
	AuditWriter audit.Writer

	// Close releases the environment; may be nil
	Close func(context.Context) error
}

// EnvFactory opens the environment. Commands call it only after their
// flags parsed, so usage errors never touch a database.
type EnvFactory func(ctx context.Context) (*Env, error)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Flags       *flag.FlagSet
	Run         func(ctx context.Context, env *Env, out io.Writer) error
	Subcommands map[string]*Command
}

// Root is the warden-admin command tree
type Root struct {
	Command
	open EnvFactory
	out  io.Writer
}

// NewRootCommand creates the root command writing results to out
func NewRootCommand(open EnvFactory, out io.Writer) *Root {
	root := &Root{
		Command: Command{
			Name:        "warden-admin",
			Description: "Warden maintenance commands",
			Subcommands: make(map[string]*Command),
		},
		open: open,
		out:  out,
	}

	for _, cmd := range []*Command{
		newSyncCommand(),
		newIntegrityCommand(),
		newAuditCleanupCommand(),
		newAuditArchiveCommand(),
		newAuditReplayCommand(),
	} {
		root.Subcommands[cmd.Name] = cmd
	}

	return root
}

// Execute runs the subcommand named by args[0]
func (r *Root) Execute(ctx context.Context, args []string) (err error) {
	if len(args) == 0 || isHelp(args[0]) {
		r.usage()
		return nil
	}

	cmd, ok := r.Subcommands[args[0]]
	if !ok {
		r.usage()
		return fmt.Errorf("unknown command: %s", args[0])
	}

	if err := cmd.Flags.Parse(args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}

	env, err := r.open(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize: %w", err)
	}
	if env.Close != nil {
		defer func() {
			if closeErr := env.Close(context.WithoutCancel(ctx)); closeErr != nil && err == nil {
				err = closeErr
			}
		}()
	}

	return cmd.Run(ctx, env, r.out)
}

func isHelp(arg string) bool {
	return strings.EqualFold(arg, "-h") || strings.EqualFold(arg, "--help") || arg == "help"
}

// usage prints the command usage
func (r *Root) usage() {
	fmt.Fprintf(r.out, "Usage: %s <command> [flags]\n\n", r.Name)
	fmt.Fprintf(r.out, "Commands:\n")

	names := make([]string, 0, len(r.Subcommands))
	for name := range r.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(r.out, "  %-15s %s\n", name, r.Subcommands[name].Description)
	}
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
