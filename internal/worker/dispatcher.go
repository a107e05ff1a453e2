package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"MailDispatch/internal/db"
	"MailDispatch/internal/email"
	"MailDispatch/internal/metrics"
	"MailDispatch/internal/models"
)

const (
	TaskName         = "mail-sender"
	HeartbeatMessage = "Mail sender heartbeat"
)

// Store is the slice of the database the dispatcher needs.
type Store interface {
	GetSetting(ctx context.Context, name string) (string, error)
	GetSmtpSettings(ctx context.Context) (models.SmtpSettings, error)
	GetPendingEntries(ctx context.Context) ([]models.QueueEntry, error)
	Claim(ctx context.Context, id int64) (bool, error)
	GetMailDetail(ctx context.Context, id int64) (*models.MailDetail, error)
	GetUser(ctx context.Context, uuid string) (*models.UserAccount, error)
	SetLocked(ctx context.Context, id int64, locked bool) error
	SetStatus(ctx context.Context, id int64, status models.MailStatus, locked bool) error
	UpsertHeartbeat(ctx context.Context, taskName string, success bool, message string) error
}

// CycleReport summarises one pass over the queue.
type CycleReport struct {
	TaskName  string    `json:"task_name"`
	LastRunAt time.Time `json:"last_run_at"`
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Processed int       `json:"processed"`
	Sent      int       `json:"sent"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
}

type Dispatcher struct {
	store    Store
	mailer   email.Mailer
	limiter  *rate.Limiter
	logger   *zap.Logger
	interval time.Duration

	mu   sync.RWMutex
	last *CycleReport
}

func NewDispatcher(
	store Store,
	mailer email.Mailer,
	limiter *rate.Limiter,
	logger *zap.Logger,
	interval time.Duration,
) *Dispatcher {

	if limiter == nil {
		limiter = rate.NewLimiter(rate.Inf, 1)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		store:    store,
		mailer:   mailer,
		limiter:  limiter,
		logger:   logger,
		interval: interval,
	}
}

// Run repeats cycles with a fixed pause between them until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("mail dispatcher started", zap.Duration("interval", d.interval))

	for {
		d.RunCycle(ctx)

		timer := time.NewTimer(d.interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			d.logger.Info("mail dispatcher shutting down")
			return
		case <-timer.C:
		}
	}
}

// RunCycle drains the queue once and records the heartbeat. Only store
// failures make the cycle unsuccessful; a mail that cannot be delivered is
// marked failed and the cycle carries on.
func (d *Dispatcher) RunCycle(ctx context.Context) CycleReport {
	start := time.Now()
	report := CycleReport{TaskName: TaskName}

	err := d.process(ctx, &report)

	report.LastRunAt = time.Now()
	report.Success = err == nil
	report.Message = HeartbeatMessage
	if err != nil {
		report.Message = err.Error()
		d.logger.Error("mail cycle failed", zap.Error(err))
		metrics.Cycles.WithLabelValues("failure").Inc()
	} else {
		metrics.Cycles.WithLabelValues("success").Inc()
	}

	// the heartbeat is written even when shutdown interrupted the cycle
	hbCtx := context.WithoutCancel(ctx)
	if hbErr := d.store.UpsertHeartbeat(hbCtx, TaskName, report.Success, report.Message); hbErr != nil {
		d.logger.Error("failed to record heartbeat", zap.String("task", TaskName), zap.Error(hbErr))
	}

	metrics.CycleDuration.Observe(time.Since(start).Seconds())
	d.logger.Info("mail cycle finished",
		zap.Bool("success", report.Success),
		zap.Int("processed", report.Processed),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Duration("elapsed", time.Since(start)),
	)

	d.mu.Lock()
	d.last = &report
	d.mu.Unlock()

	return report
}

// LastReport returns the outcome of the most recent cycle, if any ran.
func (d *Dispatcher) LastReport() (CycleReport, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.last == nil {
		return CycleReport{}, false
	}
	return *d.last, true
}

func (d *Dispatcher) process(ctx context.Context, report *CycleReport) error {
	enabled, err := d.store.GetSetting(ctx, db.SettingSmtpEnabled)
	if err != nil {
		return err
	}
	if enabled != "true" {
		d.logger.Info("mail is disabled, skipping mail sending", zap.String("smtp_enabled", enabled))
		return nil
	}

	entries, err := d.store.GetPendingEntries(ctx)
	if err != nil {
		return err
	}

	metrics.PendingEntries.Set(float64(len(entries)))
	d.logger.Info("processing mail queue", zap.Int("pending", len(entries)))

	if len(entries) == 0 {
		return nil
	}

	settings, err := d.store.GetSmtpSettings(ctx)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := d.processEntry(ctx, settings, entry, report); err != nil {
			return err
		}
	}

	return nil
}

func (d *Dispatcher) processEntry(
	ctx context.Context,
	settings models.SmtpSettings,
	entry models.QueueEntry,
	report *CycleReport,
) error {

	log := d.logger.With(
		zap.Int64("queue_id", entry.ID),
		zap.String("subject", subjectOf(entry)),
	)

	// ----------------------------
	// Claim
	// ----------------------------
	claimed, err := d.store.Claim(ctx, entry.ID)
	if err != nil {
		return err
	}
	if !claimed {
		log.Warn("mail already claimed elsewhere, skipping")
		report.Skipped++
		return nil
	}
	report.Processed++

	// ----------------------------
	// Resolve + Send
	// ----------------------------
	status, err := d.deliver(ctx, log, settings, entry)
	if err != nil {
		d.release(entry.ID, log)
		return err
	}

	// ----------------------------
	// Record outcome
	// ----------------------------
	// the outcome is recorded even if shutdown began during the send
	if err := d.store.SetStatus(context.WithoutCancel(ctx), entry.ID, status, false); err != nil {
		return err
	}

	if status == models.StatusSent {
		report.Sent++
	} else {
		report.Failed++
	}

	return nil
}

// deliver resolves the recipient and sends the mail. It returns the terminal
// status for the entry, or an error when the store failed or the dispatcher is
// shutting down, in which case no status should be written.
func (d *Dispatcher) deliver(
	ctx context.Context,
	log *zap.Logger,
	settings models.SmtpSettings,
	entry models.QueueEntry,
) (models.MailStatus, error) {

	detail, err := d.store.GetMailDetail(ctx, entry.ID)
	if errors.Is(err, db.ErrNotFound) {
		log.Error("mail list entry not found for queue id")
		metrics.EmailFailures.WithLabelValues("missing_detail").Inc()
		return models.StatusFailed, nil
	}
	if err != nil {
		return "", err
	}

	user, err := d.store.GetUser(ctx, detail.UserUUID)
	if errors.Is(err, db.ErrNotFound) {
		log.Error("invalid or missing user/email", zap.String("user_uuid", detail.UserUUID))
		metrics.EmailFailures.WithLabelValues("missing_user").Inc()
		return models.StatusFailed, nil
	}
	if err != nil {
		return "", err
	}

	if !email.ValidAddress(user.Email) {
		log.Error("invalid or missing user/email",
			zap.String("user_uuid", detail.UserUUID),
			zap.String("to", user.Email),
		)
		metrics.EmailFailures.WithLabelValues("invalid_email").Inc()
		return models.StatusFailed, nil
	}

	log = log.With(zap.String("to", user.Email))

	if err := d.limiter.Wait(ctx); err != nil {
		return "", err
	}

	if err := d.mailer.Send(ctx, settings, entry, *user); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		log.Error("email send failed", zap.Error(err))
		metrics.EmailFailures.WithLabelValues("delivery").Inc()
		return models.StatusFailed, nil
	}

	log.Info("email sent successfully")
	metrics.EmailsSent.Inc()
	return models.StatusSent, nil
}

// release hands a claimed entry back to the queue so the next cycle retries it.
func (d *Dispatcher) release(id int64, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := d.store.SetLocked(ctx, id, false); err != nil {
		log.Error("failed to release mail lock", zap.Error(err))
		return
	}
	log.Warn("released mail lock after interrupted processing")
}

func subjectOf(e models.QueueEntry) string {
	if e.Subject == "" {
		return "(no subject)"
	}
	return e.Subject
}
