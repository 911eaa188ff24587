package logging

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// archivePattern matches daemon logs set aside by RotateDaemonLog.
const archivePattern = "shelfscand-*.log"

// RotateDaemonLog renames the previous run's shelfscand.log in dir to a
// timestamped archive so each daemon run starts a fresh file. It returns the
// archive path, or "" when there was nothing to rotate.
func RotateDaemonLog(dir string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", nil
	}
	current := filepath.Join(dir, DaemonLogName)
	info, err := os.Stat(current)
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	stamp := info.ModTime().UTC().Format("20060102T150405.000Z")
	archived := filepath.Join(dir, "shelfscand-"+stamp+".log")
	if err := os.Rename(current, archived); err != nil {
		return "", fmt.Errorf("archive daemon log: %w", err)
	}
	return archived, nil
}

// PruneDaemonArchives deletes archived daemon logs in dir last modified more
// than retentionDays ago, sparing keep. Zero days disables pruning. It
// returns the number of files removed.
func PruneDaemonArchives(logger *slog.Logger, dir string, retentionDays int, keep string) int {
	if retentionDays <= 0 || strings.TrimSpace(dir) == "" {
		return 0
	}
	matches, err := filepath.Glob(filepath.Join(dir, archivePattern))
	if err != nil {
		return 0
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	keep = filepath.Clean(keep)

	removed := 0
	for _, path := range matches {
		if filepath.Clean(path) == keep {
			continue
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check file permissions and paths.log_dir ownership"),
				String(FieldImpact, "old log file remains on disk"),
			)
			continue
		}
		removed++
		if logger != nil {
			logger.Debug("archived daemon log pruned",
				String("path", path),
				String(FieldEventType, "log_pruned"),
			)
		}
	}
	return removed
}
