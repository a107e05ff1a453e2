package worker

import (
	"context"
	"errors"
	"sync"

	"MailDispatch/internal/db"
	"MailDispatch/internal/models"
)

var errGateway = errors.New("database gone away")

// memStore is an in-memory Store. Failure hooks let a test break a single
// gateway call.
type memStore struct {
	mu sync.Mutex

	settings   map[string]string
	smtp       models.SmtpSettings
	entries    map[int64]*models.QueueEntry
	order      []int64
	details    map[int64]models.MailDetail
	users      map[string]models.UserAccount
	heartbeats map[string]models.Heartbeat

	fetchCalls    int
	smtpCalls     int
	heartbeatHist []models.Heartbeat

	failFetch    error
	failClaim    error
	failStatus   error
	failDetail   error
	stealOnClaim map[int64]bool
	onClaim      func(id int64)
}

func newMemStore() *memStore {
	return &memStore{
		settings:     map[string]string{db.SettingSmtpEnabled: "true"},
		entries:      map[int64]*models.QueueEntry{},
		details:      map[int64]models.MailDetail{},
		users:        map[string]models.UserAccount{},
		heartbeats:   map[string]models.Heartbeat{},
		stealOnClaim: map[int64]bool{},
	}
}

func (s *memStore) addMail(id int64, uuid, address string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[id] = &models.QueueEntry{
		ID:       id,
		UserUUID: uuid,
		Subject:  "Subject",
		Body:     "<p>Body</p>",
		Status:   models.StatusPending,
		Deleted:  false,
		Locked:   false,
	}
	s.order = append(s.order, id)
	s.details[id] = models.MailDetail{ID: id, QueueID: id, UserUUID: uuid}
	if address != "" {
		s.users[uuid] = models.UserAccount{UUID: uuid, Email: address}
	}
}

func (s *memStore) entry(id int64) models.QueueEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.entries[id]
}

func (s *memStore) heartbeat(name string) (models.Heartbeat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hb, ok := s.heartbeats[name]
	return hb, ok
}

func (s *memStore) GetSetting(_ context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.settings[name]
	if !ok {
		return "false", nil
	}
	return v, nil
}

func (s *memStore) GetSmtpSettings(_ context.Context) (models.SmtpSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.smtpCalls++
	return s.smtp, nil
}

func (s *memStore) GetPendingEntries(_ context.Context) ([]models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchCalls++
	if s.failFetch != nil {
		return nil, s.failFetch
	}

	var out []models.QueueEntry
	for _, id := range s.order {
		e := s.entries[id]
		if e.Status == models.StatusPending && !e.Locked && !e.Deleted {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (s *memStore) Claim(_ context.Context, id int64) (bool, error) {
	if s.onClaim != nil {
		s.onClaim(id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failClaim != nil {
		return false, s.failClaim
	}

	e := s.entries[id]
	if s.stealOnClaim[id] {
		e.Locked = true
	}
	if e.Locked || e.Status != models.StatusPending || e.Deleted {
		return false, nil
	}
	e.Locked = true
	return true, nil
}

func (s *memStore) GetMailDetail(_ context.Context, id int64) (*models.MailDetail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDetail != nil {
		return nil, s.failDetail
	}
	d, ok := s.details[id]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &d, nil
}

func (s *memStore) GetUser(_ context.Context, uuid string) (*models.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[uuid]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &u, nil
}

func (s *memStore) SetLocked(ctx context.Context, id int64, locked bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[id].Locked = locked
	return nil
}

// SetStatus fails on a finished context the way database/sql does.
func (s *memStore) SetStatus(ctx context.Context, id int64, status models.MailStatus, locked bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failStatus != nil {
		return s.failStatus
	}
	s.entries[id].Status = status
	s.entries[id].Locked = locked
	return nil
}

func (s *memStore) UpsertHeartbeat(_ context.Context, taskName string, success bool, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	hb := models.Heartbeat{TaskName: taskName, Success: success, Message: message}
	s.heartbeats[taskName] = hb
	s.heartbeatHist = append(s.heartbeatHist, hb)
	return nil
}
