package logger

import (
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// PruneOldLogs removes the dated directories under <dir>/<bot> older than retention.
// Entries whose name is not a date are left alone.
func PruneOldLogs(dir, botName string, retention time.Duration, now time.Time, log *zap.Logger) int {
	root := filepath.Join(dir, botName)
	entries, err := os.ReadDir(root)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Error("Failed to read log directory for cleanup", zap.Error(err))
		}
		return 0
	}

	cutoff := now.Add(-retention)
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		date, err := time.Parse("2006-01-02", entry.Name())
		if err != nil {
			continue
		}
		// A day's directory holds logs up to its midnight.
		if date.AddDate(0, 0, 1).After(cutoff) {
			continue
		}
		fullPath := filepath.Join(root, entry.Name())
		if err := os.RemoveAll(fullPath); err != nil {
			log.Error("Failed to remove old log directory", zap.String("dir", fullPath), zap.Error(err))
			continue
		}
		log.Info("Removed old log directory", zap.String("dir", fullPath))
		removed++
	}
	return removed
}
