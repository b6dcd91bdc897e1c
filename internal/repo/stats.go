// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries over the
// pending-operation log used by the sync status surfaces (HTTP and CLI).
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-inventory-sync/internal/domain"
)

// QueueStats summarises the pending-operation log.
type QueueStats struct {
	Pending       int64      `json:"pending"`
	Failed        int64      `json:"failed"`
	Completed     int64      `json:"completed"`
	OldestPending *time.Time `json:"oldest_pending,omitempty"`
}

// QueueStats returns per-status counts and the creation time of the oldest
// pending operation (nil when the queue is drained).
func (s *Store) QueueStats(ctx context.Context) (QueueStats, error) {
	var out QueueStats
	err := s.read(ctx, func(db *gorm.DB) error {
		var rows []struct {
			Status domain.OpStatus
			N      int64
		}
		if err := db.Model(&domain.PendingOperation{}).
			Select("status, COUNT(*) AS n").
			Group("status").
			Scan(&rows).Error; err != nil {
			return err
		}
		for _, r := range rows {
			switch r.Status {
			case domain.OpPending:
				out.Pending = r.N
			case domain.OpFailed:
				out.Failed = r.N
			case domain.OpCompleted:
				out.Completed = r.N
			}
		}
		if out.Pending == 0 {
			return nil
		}

		// Get oldest created_at (avoid MIN() -> TEXT in SQLite)
		var row struct {
			CreatedAt time.Time
		}
		if err := db.Model(&domain.PendingOperation{}).
			Where("status = ?", domain.OpPending).
			Select("created_at").
			Order("id ASC").
			Limit(1).
			Scan(&row).Error; err != nil {
			return err
		}
		out.OldestPending = &row.CreatedAt
		return nil
	})
	return out, err
}
