package email

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"MailDispatch/internal/metrics"
	"MailDispatch/internal/models"
)

// RetrySender wraps a Mailer with a fixed number of attempts and a constant
// pause between them. Every error is retried, including ones that will fail
// the same way each time.
type RetrySender struct {
	Mailer     Mailer
	MaxRetries int
	Delay      time.Duration
	Log        *zap.Logger
}

func (r *RetrySender) Send(
	ctx context.Context,
	settings models.SmtpSettings,
	entry models.QueueEntry,
	user models.UserAccount,
) error {

	// missing relay settings fail the entry without spending attempts
	if err := CheckSettings(settings); err != nil {
		return err
	}

	maxAttempts := r.MaxRetries
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}

	attempt := 0
	operation := func() error {
		attempt++
		log.Info("sending mail",
			zap.Int64("queue_id", entry.ID),
			zap.String("to", user.Email),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
		)

		err := r.Mailer.Send(ctx, settings, entry, user)
		if err != nil {
			metrics.DeliveryAttempts.WithLabelValues("failure").Inc()
			return err
		}
		metrics.DeliveryAttempts.WithLabelValues("success").Inc()
		return nil
	}

	notify := func(err error, wait time.Duration) {
		log.Warn("mail attempt failed, retrying",
			zap.Int64("queue_id", entry.ID),
			zap.Int("attempt", attempt),
			zap.Duration("retry_in", wait),
			zap.Error(err),
		)
	}

	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(r.Delay), uint64(maxAttempts-1))

	err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notify)
	if err == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("mail delivery interrupted after %d attempts: %w", attempt, ctxErr)
	}

	return fmt.Errorf("failed to send mail after %d attempts: %w", attempt, err)
}
