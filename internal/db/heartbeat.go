package db

import (
	"context"
	"fmt"
)

// UpsertHeartbeat records the outcome of the latest run of taskName. The table
// keeps a single row per task name.
func (s *Store) UpsertHeartbeat(ctx context.Context, taskName string, success bool, message string) error {
	ok := 0
	if success {
		ok = 1
	}

	err := s.withRetry(ctx, func() error {
		_, err := s.DB.ExecContext(ctx,
			`INSERT INTO `+timedTasksTable+`
			 (task_name, last_run_at, last_run_success, last_run_message)
			 VALUES (?, NOW(), ?, ?)
			 ON DUPLICATE KEY UPDATE
			     last_run_at = VALUES(last_run_at),
			     last_run_success = VALUES(last_run_success),
			     last_run_message = VALUES(last_run_message),
			     updated_at = NOW()`,
			taskName,
			ok,
			message,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("heartbeat %s: %w", taskName, err)
	}

	return nil
}
