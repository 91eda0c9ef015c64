package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/platinummonkey/warden/pkg/identitysync"
)

func newSyncCommand() *Command {
	cmd := &Command{
		Name:        "sync",
		Description: "Reconcile profiles with identities (all, or one with --identity)",
		Flags:       newFlagSet("sync"),
	}
	identityID := cmd.Flags.Int64("identity", 0, "Synchronize a single identity by id")

	cmd.Run = func(ctx context.Context, env *Env, out io.Writer) error {
		if *identityID > 0 {
			result, err := env.Sync.Synchronize(ctx, *identityID)
			if err != nil {
				return fmt.Errorf("sync identity %d: %w", *identityID, err)
			}
			return writeJSON(out, result)
		}

		summary, err := env.Sync.SynchronizeAll(ctx)
		if err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		if err := writeJSON(out, summary); err != nil {
			return err
		}
		if summary.Failed > 0 {
			return fmt.Errorf("%d of %d identities failed to synchronize", summary.Failed, summary.Processed)
		}
		return nil
	}

	return cmd
}

func newIntegrityCommand() *Command {
	cmd := &Command{
		Name:        "integrity",
		Description: "Report identity/profile discrepancies without repairing them",
		Flags:       newFlagSet("integrity"),
	}
	strict := cmd.Flags.Bool("strict", false, "Exit with an error when discrepancies are found")

	cmd.Run = func(ctx context.Context, env *Env, out io.Writer) error {
		report, err := env.Sync.ValidateIntegrity(ctx)
		if err != nil {
			return fmt.Errorf("integrity: %w", err)
		}
		if err := writeJSON(out, report); err != nil {
			return err
		}
		if *strict && len(report.Discrepancies) > 0 {
			return fmt.Errorf("%d discrepancies (%d missing profiles, %d orphans, %d email mismatches, %d link conflicts)",
				len(report.Discrepancies),
				report.Count(identitysync.KindMissingProfile),
				report.Count(identitysync.KindOrphanProfile),
				report.Count(identitysync.KindEmailMismatch),
				report.Count(identitysync.KindLinkConflict))
		}
		return nil
	}

	return cmd
}
