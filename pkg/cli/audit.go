package cli

import (
	"context"
	"fmt"
	"io"
	"time"
)

func newAuditCleanupCommand() *Command {
	cmd := &Command{
		Name:        "audit-cleanup",
		Description: "Delete audit events past retention, archiving first when enabled",
		Flags:       newFlagSet("audit-cleanup"),
	}
	days := cmd.Flags.Int("days", 0, "Retention in days (default: configured retention)")
	archive := cmd.Flags.Bool("archive", false, "Archive expired events before deleting them")

	cmd.Run = func(ctx context.Context, env *Env, out io.Writer) error {
		policy := env.Retention
		if *days > 0 {
			policy.RetentionDays = *days
		}
		if *archive {
			policy.ArchiveEnabled = true
		}
		if policy.RetentionDays < 1 {
			return fmt.Errorf("retention must be at least one day")
		}

		deleted, err := env.Audit.Cleanup(ctx, policy)
		if err != nil {
			return fmt.Errorf("audit cleanup: %w", err)
		}
		return writeJSON(out, map[string]interface{}{
			"retention_days": policy.RetentionDays,
			"archived":       policy.ArchiveEnabled,
			"deleted":        deleted,
		})
	}

	return cmd
}

func newAuditArchiveCommand() *Command {
	cmd := &Command{
		Name:        "audit-archive",
		Description: "Upload audit events older than --before to the archive bucket",
		Flags:       newFlagSet("audit-archive"),
	}
	before := cmd.Flags.String("before", "", "Cutoff date, YYYY-MM-DD or RFC3339 (required)")

	cmd.Run = func(ctx context.Context, env *Env, out io.Writer) error {
		cutoff, err := parseCutoff(*before)
		if err != nil {
			return err
		}

		archived, err := env.Audit.Archive(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("audit archive: %w", err)
		}
		return writeJSON(out, map[string]interface{}{
			"before":   cutoff,
			"archived": archived,
		})
	}

	return cmd
}

func newAuditReplayCommand() *Command {
	cmd := &Command{
		Name:        "audit-replay",
		Description: "Write spooled dead-letter audit events back to the store",
		Flags:       newFlagSet("audit-replay"),
	}

	cmd.Run = func(ctx context.Context, env *Env, out io.Writer) error {
		if env.DeadLetter == nil {
			return fmt.Errorf("no dead-letter spool configured (WARDEN_AUDIT_DEAD_LETTER_DIR)")
		}
		replayed, err := env.DeadLetter.Replay(ctx, env.AuditWriter)
		if err != nil {
			return fmt.Errorf("audit replay stopped after %d events: %w", replayed, err)
		}
		return writeJSON(out, map[string]interface{}{"replayed": replayed})
	}

	return cmd
}

func parseCutoff(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("--before is required")
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --before %q: want YYYY-MM-DD or RFC3339", value)
	}
	return t.UTC(), nil
}
