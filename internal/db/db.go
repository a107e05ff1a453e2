package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"

	"MailDispatch/internal/config"
)

const (
	settingsTable   = "featherpanel_settings"
	mailQueueTable  = "featherpanel_mail_queue"
	mailListTable   = "featherpanel_mail_list"
	usersTable      = "featherpanel_users"
	timedTasksTable = "featherpanel_timed_tasks"
)

const (
	maxAttempts = 4
	baseDelay   = 30 * time.Millisecond
	maxDelay    = 1 * time.Second
	pingTimeout = 10 * time.Second
)

var ErrNotFound = errors.New("not found")

// MySQL error numbers worth another try.
var retryableErrNos = map[uint16]bool{
	1205: true, // Lock wait timeout exceeded
	1213: true, // Deadlock found
	1040: true, // Too many connections
	1203: true, // Max user connections exceeded
}

type Store struct {
	DB *sql.DB
}

// New opens the MySQL pool described by cfg and verifies it answers.
func New(ctx context.Context, cfg *config.Config) (*Store, error) {
	mc := mysql.NewConfig()
	mc.User = cfg.DatabaseUser
	mc.Passwd = cfg.DatabasePassword
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.DatabaseHost, strconv.Itoa(cfg.DatabasePort))
	mc.DBName = cfg.DatabaseName
	mc.ParseTime = true

	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, err
	}

	pool := sql.OpenDB(connector)
	pool.SetMaxOpenConns(4)
	pool.SetConnMaxIdleTime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := pool.PingContext(pingCtx); err != nil {
		_ = pool.Close()
		return nil, err
	}

	return &Store{DB: pool}, nil
}

func NewWithDB(db *sql.DB) *Store {
	return &Store{DB: db}
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// withRetry runs op again on transient MySQL failures and hands every other
// error straight back.
func (s *Store) withRetry(ctx context.Context, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = baseDelay
	b.MaxInterval = maxDelay

	return backoff.Retry(func() error {
		err := op()
		if err != nil && !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(backoff.WithMaxRetries(b, maxAttempts-1), ctx))
}

func isTransient(err error) bool {
	if errors.Is(err, ErrNotFound) {
		return false
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return retryableErrNos[mysqlErr.Number]
	}

	return errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn)
}

// FeatherPanel stores booleans as 'true'/'false' strings.
func flag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func isSet(v string) bool {
	return v == "true"
}
