package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	exitwal "matchbook/infra/wal/exit"
	"matchbook/snapshot"
)

// SnapshotJob periodically writes a snapshot, then drops the journal
// segments and acknowledged outbox entries the snapshot covers.
type SnapshotJob struct {
	svc      *OrderService
	writer   *snapshot.Writer
	outbox   *exitwal.Outbox
	interval time.Duration
	log      *zap.Logger
}

// DefaultSnapshotInterval applies when NewSnapshotJob gets interval <= 0.
const DefaultSnapshotInterval = 30 * time.Second

// NewSnapshotJob builds the job; outbox may be nil.
func (s *OrderService) NewSnapshotJob(
	dir string,
	interval time.Duration,
	outbox *exitwal.Outbox,
) *SnapshotJob {
	if interval <= 0 {
		interval = DefaultSnapshotInterval
	}
	return &SnapshotJob{
		svc:      s,
		writer:   &snapshot.Writer{Dir: dir},
		outbox:   outbox,
		interval: interval,
		log:      s.log.Named("snapshot"),
	}
}

func (j *SnapshotJob) Run(ctx context.Context) error {
	t := time.NewTicker(j.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := j.RunOnce(); err != nil {
				j.log.Error("snapshot failed", zap.Error(err))
			}
		}
	}
}

// RunOnce takes one snapshot and truncates behind it.
func (j *SnapshotJob) RunOnce() (*snapshot.Snapshot, error) {
	snap := j.svc.Snapshot()

	// Write snapshot
	if err := j.writer.Write(snap); err != nil {
		return nil, err
	}

	// Truncate journal after snapshot
	segments, err := j.svc.truncateJournal(snap.JournalSeq)
	if err != nil {
		return snap, err
	}

	// GC outbox (acked only)
	acked := 0
	if j.outbox != nil {
		if acked, err = j.outbox.TruncateAckedUpTo(snap.LastTradeID); err != nil {
			return snap, err
		}
	}

	j.log.Info("snapshot written",
		zap.Uint64("journal_seq", snap.JournalSeq),
		zap.Int("orders", len(snap.Orders)),
		zap.Int("segments_removed", segments),
		zap.Int("outbox_removed", acked))
	return snap, nil
}

func (s *OrderService) truncateJournal(seq uint64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return 0, nil
	}
	return s.journal.TruncateBefore(seq)
}
