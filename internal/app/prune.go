package app

import (
	"context"
	"errors"
	"time"
)

// Prune deletes ratio samples and alerts older than the retention window.
func (a *App) Prune(ctx context.Context, opts PruneOptions) error {
	if opts.KeepFor <= 0 {
		return errors.New("--keep must be greater than zero")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; nothing to prune")
	}
	if closeStore != nil {
		defer closeStore()
	}

	cutoff := time.Now().UTC().Add(-opts.KeepFor)

	if err := store.DeleteSamplesBefore(ctx, cutoff); err != nil {
		return err
	}
	if err := store.DeleteAlertsBefore(ctx, cutoff); err != nil {
		return err
	}

	remaining, err := store.CountSamples(ctx)
	if err != nil {
		return err
	}

	a.Logger.Info().
		Time("cutoff", cutoff).
		Int64("samples_remaining", remaining).
		Msg("history pruned")
	return nil
}
