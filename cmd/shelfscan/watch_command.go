package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"shelfscan/internal/bridge"
	"shelfscan/internal/logging"
	"shelfscan/internal/session"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var count int

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print scan events as labels are shown to the camera",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := ctx.dialClient()
			if err != nil {
				return err
			}
			defer client.Close()
			client.SetWait(cfg.BridgeWait())

			runCtx := cmd.Context()
			cursor, err := client.Current(runCtx)
			if err != nil {
				return fmt.Errorf("attach to scan feed: %w", err)
			}
			if !asJSON {
				fmt.Fprintln(cmd.OutOrStdout(), "Waiting for scans (Ctrl+C to stop)...")
			}
			return watchScans(runCtx, client, cursor, watchOptions{
				limit:   count,
				backoff: cfg.PollBackoff(),
				logger:  ctx.cliLogger(),
				emit: func(update bridge.ScanUpdate) error {
					if asJSON {
						return writeJSON(cmd, update)
					}
					_, err := fmt.Fprintln(cmd.OutOrStdout(), formatScanEvent(update.Seq, update.Event))
					return err
				},
			})
		},
	}
	addJSONFlag(cmd, &asJSON)
	cmd.Flags().IntVarP(&count, "count", "n", 0, "Exit after this many scans (0 waits forever)")
	return cmd
}

type watchOptions struct {
	limit   int
	backoff time.Duration
	logger  *slog.Logger
	emit    func(bridge.ScanUpdate) error
}

// watchScans follows the feed from cursor. Feed errors are reported once per
// outage and retried after the backoff.
func watchScans(ctx context.Context, feed session.Feed, cursor bridge.Cursor, opts watchOptions) error {
	if opts.backoff <= 0 {
		opts.backoff = 500 * time.Millisecond
	}
	delivered := 0
	failing := false
	for {
		update, err := feed.Next(ctx, cursor)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !failing {
				logging.WarnWithContext(opts.logger, "scan feed unavailable; retrying", "scan_feed_unavailable",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check that the shelfscan daemon is running"),
				)
				failing = true
			}
			timer := time.NewTimer(opts.backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
			continue
		}
		failing = false
		cursor = bridge.Cursor{RunID: update.RunID, Seq: update.Seq}
		if err := opts.emit(update); err != nil {
			return err
		}
		delivered++
		if opts.limit > 0 && delivered >= opts.limit {
			return nil
		}
	}
}
