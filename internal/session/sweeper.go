package session

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval bounds how long a submission can remain gradeable past
// its deadline.
const DefaultSweepInterval = 10 * time.Second

// Sweep scans in-progress submissions and drives any whose deadline has
// passed through AutoExpire. Returns the number of submissions expired.
func (m *Manager) Sweep() int {
	refs, err := m.store.ListInProgress()
	if err != nil {
		slog.Error("deadline sweep: list in-progress", "error", err)
		return 0
	}

	now := m.now()
	expired := 0
	for _, r := range refs {
		deadline := r.StartedAt.Add(time.Duration(r.DurationMinutes) * time.Minute)
		if now.Before(deadline) {
			continue
		}
		if err := m.AutoExpire(r.SubmissionID); err != nil {
			slog.Error("deadline sweep: auto-expire", "submission_id", r.SubmissionID, "error", err)
			continue
		}
		expired++
	}
	return expired
}

// RunSweeper loops Sweep on the given interval until the context is
// cancelled. A concurrent Finalize and sweep on the same submission race
// safely: whichever takes the per-submission lock first wins, the loser sees
// an already-finalized record and does nothing.
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("deadline sweeper running", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("deadline sweeper stopped")
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				slog.Info("deadline sweep expired submissions", "count", n)
			}
		}
	}
}
