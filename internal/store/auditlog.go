package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stokcerdas/replenish/pkg/types"
)

// AuditLog appends finalized reorder executions to daily JSONL files and
// removes files past the retention window. It supplements the execution
// repository with an operator-greppable trail.
type AuditLog struct {
	mu      sync.Mutex
	dir     string
	current *os.File
	day     string // YYYY-MM-DD of the open file
	logger  *logrus.Entry
}

// NewAuditLog creates the audit directory and returns the log.
func NewAuditLog(dataDir string) (*AuditLog, error) {
	dir := filepath.Join(dataDir, "executions")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit dir: %w", err)
	}
	return &AuditLog{
		dir:    dir,
		logger: logrus.WithField("component", "audit-log"),
	}, nil
}

// Append writes one execution record, rotating to a new file on day change.
func (a *AuditLog) Append(exec *types.ReorderExecution) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	day := exec.ExecutedAt.UTC().Format("2006-01-02")
	if a.current == nil || a.day != day {
		if err := a.rotate(day); err != nil {
			return err
		}
	}

	data, err := json.Marshal(exec)
	if err != nil {
		return fmt.Errorf("failed to marshal execution %s: %w", exec.ID, err)
	}
	data = append(data, '\n')
	if _, err := a.current.Write(data); err != nil {
		return fmt.Errorf("failed to append execution %s: %w", exec.ID, err)
	}
	return nil
}

func (a *AuditLog) rotate(day string) error {
	if a.current != nil {
		a.current.Close()
	}
	name := filepath.Join(a.dir, fmt.Sprintf("executions_%s.jsonl", day))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit file: %w", err)
	}
	a.current = f
	a.day = day
	return nil
}

// Cleanup deletes audit files older than retentionDays and returns how many
// were removed.
func (a *AuditLog) Cleanup(retentionDays int, now time.Time) (int, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := now.UTC().AddDate(0, 0, -retentionDays).Format("2006-01-02")

	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list audit dir: %w", err)
	}

	removed := 0
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "executions_") || !strings.HasSuffix(name, ".jsonl") {
			continue
		}
		day := strings.TrimSuffix(strings.TrimPrefix(name, "executions_"), ".jsonl")
		if day < cutoff {
			if err := os.Remove(filepath.Join(a.dir, name)); err != nil {
				a.logger.Errorf("failed to remove %s: %v", name, err)
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		a.logger.Infof("removed %d audit files older than %s", removed, cutoff)
	}
	return removed, nil
}

// Close flushes and closes the current file.
func (a *AuditLog) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current != nil {
		err := a.current.Close()
		a.current = nil
		return err
	}
	return nil
}
