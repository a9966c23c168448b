package parental

import (
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/minimind-os/minimind/internal/infrastructure/logging"
	"github.com/minimind-os/minimind/internal/providers/filesystem"
	"github.com/minimind-os/minimind/internal/shared/id"
)

const (
	activityPath = "/system/activity_log.json"
	maxEntries   = 1000
)

// ActivityEntry is one row of the parent-reviewable activity log.
type ActivityEntry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      string    `json:"type"`
	Details   string    `json:"details"`
	User      string    `json:"user"`
}

// activityLog keeps the last maxEntries events in memory and mirrors
// them to the sandbox as JSON after every write.
type activityLog struct {
	mu      sync.Mutex
	vfs     *filesystem.VFS
	logger  *logging.Logger
	entries []ActivityEntry
}

func newActivityLog(vfs *filesystem.VFS, logger *logging.Logger) *activityLog {
	l := &activityLog{vfs: vfs, logger: logger}
	l.load()
	return l
}

func (l *activityLog) record(eventType, details, user string) {
	entry := ActivityEntry{
		ID:        string(id.NewEventID()),
		Timestamp: time.Now(),
		Type:      eventType,
		Details:   details,
		User:      user,
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	if len(l.entries) > maxEntries {
		l.entries = l.entries[len(l.entries)-maxEntries:]
	}
	l.saveLocked()
	l.mu.Unlock()
}

// recent returns up to limit entries, newest first.
func (l *activityLog) recent(limit int) []ActivityEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]ActivityEntry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, l.entries[i])
	}
	return out
}

func (l *activityLog) clear() {
	l.mu.Lock()
	l.entries = nil
	l.saveLocked()
	l.mu.Unlock()
}

func (l *activityLog) saveLocked() {
	raw, err := sonic.MarshalIndent(l.entries, "", "  ")
	if err != nil {
		l.logger.Error("Encode activity log failed", zap.Error(err))
		return
	}
	if err := l.vfs.Write("parent", activityPath, raw); err != nil {
		l.logger.Error("Persist activity log failed", zap.Error(err))
	}
}

func (l *activityLog) load() {
	raw, err := l.vfs.Read("parent", activityPath)
	if err != nil {
		return
	}
	var entries []ActivityEntry
	if err := sonic.Unmarshal(raw, &entries); err != nil {
		l.logger.Warn("Corrupt activity log, starting fresh", zap.Error(err))
		return
	}
	l.entries = entries
}
