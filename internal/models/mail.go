package models

import "time"

type MailStatus string

const (
	StatusPending MailStatus = "pending"
	StatusSent    MailStatus = "sent"
	StatusFailed  MailStatus = "failed"
)

// QueueEntry is one row of the outbound mail queue written by the panel.
type QueueEntry struct {
	ID       int64      `json:"id"`
	UserUUID string     `json:"user_uuid"`
	Subject  string     `json:"subject"`
	Body     string     `json:"body"`
	Status   MailStatus `json:"status"`
	Deleted  bool       `json:"deleted"`
	Locked   bool       `json:"locked"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MailDetail is the mail list record paired with a queue entry.
type MailDetail struct {
	ID       int64  `json:"id"`
	QueueID  int64  `json:"queue_id"`
	UserUUID string `json:"user_uuid"`
	Deleted  bool   `json:"deleted"`
	Locked   bool   `json:"locked"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type UserAccount struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	UUID      string `json:"uuid"`
}

// SmtpSettings is read from the settings table at the start of every cycle
// that has work to do.
type SmtpSettings struct {
	Host       string
	Port       string
	User       string
	Password   string
	From       string
	Encryption string
	AppName    string
}

type Heartbeat struct {
	TaskName  string    `json:"task_name"`
	LastRunAt time.Time `json:"last_run_at"`
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
}
