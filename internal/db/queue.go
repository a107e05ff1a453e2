package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"MailDispatch/internal/models"
)

// GetPendingEntries returns every queue row that is pending, unlocked and not
// deleted, in whatever order the table yields them.
func (s *Store) GetPendingEntries(ctx context.Context) ([]models.QueueEntry, error) {
	var entries []models.QueueEntry

	err := s.withRetry(ctx, func() error {
		entries = entries[:0]

		rows, err := s.DB.QueryContext(ctx,
			`SELECT id, user_uuid, subject, body, status, deleted, locked, created_at, updated_at
			 FROM `+mailQueueTable+`
			 WHERE status = ? AND locked = ? AND deleted = ?`,
			models.StatusPending,
			flag(false),
			flag(false),
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var e models.QueueEntry
			var subject, body sql.NullString
			var deleted, locked string
			var createdAt, updatedAt sql.NullTime

			if err := rows.Scan(
				&e.ID,
				&e.UserUUID,
				&subject,
				&body,
				&e.Status,
				&deleted,
				&locked,
				&createdAt,
				&updatedAt,
			); err != nil {
				return err
			}

			e.Subject = subject.String
			e.Body = body.String
			e.Deleted = isSet(deleted)
			e.Locked = isSet(locked)
			e.CreatedAt = createdAt.Time
			e.UpdatedAt = updatedAt.Time

			entries = append(entries, e)
		}

		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("fetch pending mail: %w", err)
	}

	return entries, nil
}

// Claim flips locked to true only if the row is still claimable. It reports
// false when another worker got there first.
func (s *Store) Claim(ctx context.Context, id int64) (bool, error) {
	var affected int64

	err := s.withRetry(ctx, func() error {
		res, err := s.DB.ExecContext(ctx,
			`UPDATE `+mailQueueTable+`
			 SET locked = ?, updated_at = NOW()
			 WHERE id = ? AND status = ? AND locked = ? AND deleted = ?`,
			flag(true),
			id,
			models.StatusPending,
			flag(false),
			flag(false),
		)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return false, fmt.Errorf("claim mail %d: %w", id, err)
	}

	return affected == 1, nil
}

func (s *Store) SetLocked(ctx context.Context, id int64, locked bool) error {
	err := s.withRetry(ctx, func() error {
		_, err := s.DB.ExecContext(ctx,
			`UPDATE `+mailQueueTable+`
			 SET locked = ?, updated_at = NOW()
			 WHERE id = ?`,
			flag(locked),
			id,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("set locked on mail %d: %w", id, err)
	}

	return nil
}

func (s *Store) SetStatus(ctx context.Context, id int64, status models.MailStatus, locked bool) error {
	err := s.withRetry(ctx, func() error {
		_, err := s.DB.ExecContext(ctx,
			`UPDATE `+mailQueueTable+`
			 SET status = ?, locked = ?, updated_at = NOW()
			 WHERE id = ?`,
			status,
			flag(locked),
			id,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("set status %s on mail %d: %w", status, id, err)
	}

	return nil
}

// GetMailDetail looks the mail list row up by the queue entry's own id, not by
// the row's queue_id column. That is how the panel pairs them today.
func (s *Store) GetMailDetail(ctx context.Context, id int64) (*models.MailDetail, error) {
	d := &models.MailDetail{}
	var queueID sql.NullInt64
	var deleted, locked string
	var createdAt, updatedAt sql.NullTime

	err := s.withRetry(ctx, func() error {
		return s.DB.QueryRowContext(ctx,
			`SELECT id, queue_id, user_uuid, deleted, locked, created_at, updated_at
			 FROM `+mailListTable+`
			 WHERE id = ?
			 LIMIT 1`,
			id,
		).Scan(&d.ID, &queueID, &d.UserUUID, &deleted, &locked, &createdAt, &updatedAt)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read mail detail %d: %w", id, err)
	}

	d.QueueID = queueID.Int64
	d.Deleted = isSet(deleted)
	d.Locked = isSet(locked)
	d.CreatedAt = createdAt.Time
	d.UpdatedAt = updatedAt.Time

	return d, nil
}

func (s *Store) GetUser(ctx context.Context, uuid string) (*models.UserAccount, error) {
	u := &models.UserAccount{}
	var firstName, lastName, email sql.NullString

	err := s.withRetry(ctx, func() error {
		return s.DB.QueryRowContext(ctx,
			`SELECT id, username, first_name, last_name, email, uuid
			 FROM `+usersTable+`
			 WHERE uuid = ?
			 LIMIT 1`,
			uuid,
		).Scan(&u.ID, &u.Username, &firstName, &lastName, &email, &u.UUID)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read user %s: %w", uuid, err)
	}

	u.FirstName = firstName.String
	u.LastName = lastName.String
	u.Email = email.String

	return u, nil
}
