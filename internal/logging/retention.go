package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CleanupOldLogs removes .log files in dir older than retentionDays. A
// non-positive retention disables pruning.
func CleanupOldLogs(dir string, retentionDays int) error {
	if dir == "" || retentionDays <= 0 {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read log directory: %w", err)
	}

	cutoff := time.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	var firstErr error
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".log") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("remove old log %s: %w", entry.Name(), err)
		}
	}
	return firstErr
}
