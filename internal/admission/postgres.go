package admission

import (
	"context"
	"fmt"
	"time"

	"prism/internal/infra"
	"prism/internal/sqlinline"
)

// PostgresStore shares admission state between processes through PostgreSQL.
// Window admission holds a per-client advisory lock for its transaction.
type PostgresStore struct {
	runner *infra.SQLRunner
}

// NewPostgresStore creates a store on top of the shared SQL runner.
func NewPostgresStore(runner *infra.SQLRunner) *PostgresStore {
	return &PostgresStore{runner: runner}
}

func (s *PostgresStore) AdmitWindow(ctx context.Context, clientID string, now time.Time, window time.Duration, limit int) (WindowResult, error) {
	var res WindowResult
	err := s.runner.WithTx(ctx, func(tx infra.SQLExecutor) error {
		if _, err := tx.Exec(ctx, sqlinline.QAdmissionLockClient, clientID); err != nil {
			return fmt.Errorf("lock client: %w", err)
		}
		if _, err := tx.Exec(ctx, sqlinline.QAdmissionPruneWindow, clientID, now.Add(-window)); err != nil {
			return fmt.Errorf("prune window: %w", err)
		}
		var (
			count  int
			oldest *time.Time
		)
		if err := tx.QueryRow(ctx, sqlinline.QAdmissionWindowStats, clientID).Scan(&count, &oldest); err != nil {
			return fmt.Errorf("window stats: %w", err)
		}
		res.Count = count
		if oldest != nil {
			res.Oldest = oldest.UTC()
		}
		if count >= limit {
			return nil
		}
		if _, err := tx.Exec(ctx, sqlinline.QAdmissionRecordRequest, clientID, now); err != nil {
			return fmt.Errorf("record request: %w", err)
		}
		res.Accepted = true
		res.Count = count + 1
		if oldest == nil {
			res.Oldest = now
		}
		return nil
	})
	if err != nil {
		return WindowResult{}, err
	}
	return res, nil
}

func (s *PostgresStore) Concurrency(ctx context.Context, clientID string) (int, error) {
	var cur int
	if err := s.runner.QueryRow(ctx, sqlinline.QAdmissionSelectConcurrency, clientID).Scan(&cur); err != nil {
		return 0, err
	}
	return cur, nil
}

func (s *PostgresStore) AcquireSlot(ctx context.Context, clientID string, max int) (int, bool, error) {
	var cur int
	err := s.runner.QueryRow(ctx, sqlinline.QAdmissionAcquireSlot, clientID, max).Scan(&cur)
	if err == nil {
		return cur, true, nil
	}
	if !infra.IsNoRows(err) {
		return 0, false, err
	}
	cur, err = s.Concurrency(ctx, clientID)
	return cur, false, err
}

func (s *PostgresStore) Increment(ctx context.Context, clientID string) (int, error) {
	var cur int
	if err := s.runner.QueryRow(ctx, sqlinline.QAdmissionIncrement, clientID).Scan(&cur); err != nil {
		return 0, err
	}
	return cur, nil
}

func (s *PostgresStore) Decrement(ctx context.Context, clientID string) (int, error) {
	var cur int
	err := s.runner.QueryRow(ctx, sqlinline.QAdmissionDecrement, clientID).Scan(&cur)
	if infra.IsNoRows(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return cur, nil
}

var _ CounterStore = (*PostgresStore)(nil)
