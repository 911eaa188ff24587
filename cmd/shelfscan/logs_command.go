package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"shelfscan/internal/ipc"
	"shelfscan/internal/logging"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display daemon logs",
		Long: "Display daemon logs from the running daemon. When the daemon is not\n" +
			"reachable, the log file in the configured log directory is read instead.",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ipc.Dial(ctx.socketPath())
			if err != nil {
				if !errors.Is(err, syscall.ENOENT) && !errors.Is(err, syscall.ECONNREFUSED) && !os.IsNotExist(err) {
					return wrapDialError(err, ctx.socketPath())
				}
				cfg, cfgErr := ctx.ensureConfig()
				if cfgErr != nil {
					return cfgErr
				}
				return tailLogFile(cmd, filepath.Join(cfg.Paths.LogDir, logging.DaemonLogName), lines, follow)
			}
			defer client.Close()
			return tailDaemonLogs(cmd, client, lines, follow)
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of recent lines to show (0 for all buffered)")
	return cmd
}

func tailDaemonLogs(cmd *cobra.Command, client *ipc.Client, lines int, follow bool) error {
	runCtx := cmd.Context()
	out := cmd.OutOrStdout()
	req := ipc.LogTailRequest{Limit: max(lines, 0)}
	printed := false
	for {
		resp, err := client.LogTail(runCtx, req)
		if err != nil {
			if runCtx.Err() != nil {
				return nil
			}
			return fmt.Errorf("tail logs: %w", err)
		}
		if resp == nil {
			return errors.New("log tail response missing")
		}
		for _, evt := range resp.Events {
			fmt.Fprintln(out, formatLogEvent(evt))
			printed = true
		}
		if !follow {
			if !printed {
				fmt.Fprintln(out, "No log entries available")
			}
			return nil
		}
		req = ipc.LogTailRequest{Since: resp.Next, Limit: 200, Follow: true, WaitMillis: 1000}
	}
}

func tailLogFile(cmd *cobra.Command, path string, lines int, follow bool) error {
	runCtx := cmd.Context()
	out := cmd.OutOrStdout()
	if lines <= 0 {
		lines = 1000
	}
	events, offset, err := logging.TailFile(path, lines)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Daemon not reachable; reading %s\n", path)
	for _, evt := range events {
		fmt.Fprintln(out, formatLogEvent(evt))
	}
	if !follow {
		if len(events) == 0 {
			fmt.Fprintln(out, "No log entries available")
		}
		return nil
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-runCtx.Done():
			return nil
		case <-ticker.C:
		}
		events, offset, err = logging.ReadFileFrom(path, offset)
		if err != nil {
			return err
		}
		for _, evt := range events {
			fmt.Fprintln(out, formatLogEvent(evt))
		}
	}
}
