package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/gpyt/internal/formatter"
	"github.com/desertthunder/gpyt/internal/shared"
	"github.com/urfave/cli/v3"
)

// LedgerShow prints the migrated items recorded in the ledger.
func (r *Runner) LedgerShow(ctx context.Context, cmd *cli.Command) error {
	l, release, err := r.openLedger(ctx, cmd)
	if err != nil {
		return err
	}
	defer release()

	data, err := formatter.FormatLedger(l.Records(), cmd.String("format"))
	if err != nil {
		return err
	}
	_, err = r.output.Write(data)
	return err
}

// LedgerExport writes the ledger to a file that [Runner.LedgerImport] can read back.
func (r *Runner) LedgerExport(ctx context.Context, cmd *cli.Command) error {
	l, release, err := r.openLedger(ctx, cmd)
	if err != nil {
		return err
	}
	defer release()

	path, err := formatter.WriteLedgerExport(l.Records(), cmd.String("format"), cmd.String("output"))
	if err != nil {
		return err
	}

	r.logger.Info("ledger exported", "path", path, "records", l.Len())
	r.writePlain("✓ Exported %d records to %s\n", l.Len(), path)
	return nil
}

// LedgerImport merges an export into the ledger, e.g. when switching backends.
func (r *Runner) LedgerImport(ctx context.Context, cmd *cli.Command) error {
	path := cmd.StringArg("path")
	if path == "" {
		return fmt.Errorf("%w: path", shared.ErrMissingArgument)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open ledger export: %w", err)
	}
	defer f.Close()

	entries, err := formatter.ParseLedger(f)
	if err != nil {
		return err
	}

	l, release, err := r.openLedger(ctx, cmd)
	if err != nil {
		return err
	}
	defer release()

	added, err := l.Merge(ctx, entries)
	if err != nil {
		return err
	}
	r.writePlain("✓ Imported %d of %d records (%d total)\n", added, len(entries), l.Len())
	return nil
}

// LedgerDelete forgets a migrated item so the next run uploads it again.
func (r *Runner) LedgerDelete(ctx context.Context, cmd *cli.Command) error {
	key := cmd.StringArg("key")
	if key == "" {
		return fmt.Errorf("%w: key", shared.ErrMissingArgument)
	}

	l, release, err := r.openLedger(ctx, cmd)
	if err != nil {
		return err
	}
	defer release()

	if err := l.Delete(ctx, key); err != nil {
		return err
	}
	r.writePlain("✓ Removed %s\n", key)
	return nil
}
