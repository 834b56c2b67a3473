package registry

import (
	"context"
	"sync"
)

// DefaultReportHistory is how many claims the in-memory audit log keeps.
const DefaultReportHistory = 256

// ReportLog stores an audit trail of captain claims.
type ReportLog interface {
	Record(ctx context.Context, rep Report) error
	// Recent returns up to n reports, newest first.
	Recent(ctx context.Context, n int) ([]Report, error)
}

// MemoryReportLog keeps the last few reports in process memory.
type MemoryReportLog struct {
	mu      sync.RWMutex
	reports []Report
	maxSize int
}

// NewMemoryReportLog creates a log holding at most maxSize reports.
func NewMemoryReportLog(maxSize int) *MemoryReportLog {
	return &MemoryReportLog{
		reports: make([]Report, 0, maxSize),
		maxSize: maxSize,
	}
}

func (l *MemoryReportLog) Record(_ context.Context, rep Report) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.reports = append(l.reports, rep)
	if len(l.reports) > l.maxSize {
		l.reports = l.reports[len(l.reports)-l.maxSize:]
	}
	return nil
}

func (l *MemoryReportLog) Recent(_ context.Context, n int) ([]Report, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n > len(l.reports) {
		n = len(l.reports)
	}
	out := make([]Report, 0, n)
	for i := len(l.reports) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, l.reports[i])
	}
	return out, nil
}
