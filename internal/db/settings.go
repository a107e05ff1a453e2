package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"MailDispatch/internal/models"
)

const (
	SettingSmtpEnabled    = "smtp_enabled"
	SettingSmtpHost       = "smtp_host"
	SettingSmtpPort       = "smtp_port"
	SettingSmtpUser       = "smtp_user"
	SettingSmtpPass       = "smtp_pass"
	SettingSmtpFrom       = "smtp_from"
	SettingSmtpEncryption = "smtp_encryption"
	SettingAppName        = "app_name"
)

const (
	defaultFlagValue = "false"
	defaultAppName   = "FeatherPanel"
)

var smtpSettingNames = []string{
	SettingSmtpHost,
	SettingSmtpPort,
	SettingSmtpUser,
	SettingSmtpPass,
	SettingSmtpFrom,
	SettingSmtpEncryption,
	SettingAppName,
}

// GetSetting returns the stored value for name, or "false" when the key is
// absent. Callers cannot tell an unset flag from an explicit "false".
func (s *Store) GetSetting(ctx context.Context, name string) (string, error) {
	var value sql.NullString

	err := s.withRetry(ctx, func() error {
		return s.DB.QueryRowContext(ctx,
			`SELECT value FROM `+settingsTable+`
			 WHERE name = ?
			 LIMIT 1`,
			name,
		).Scan(&value)
	})

	if errors.Is(err, sql.ErrNoRows) || (err == nil && !value.Valid) {
		return defaultFlagValue, nil
	}
	if err != nil {
		return "", fmt.Errorf("read setting %s: %w", name, err)
	}

	return value.String, nil
}

func (s *Store) GetSmtpSettings(ctx context.Context) (models.SmtpSettings, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(smtpSettingNames)), ",")
	args := make([]any, len(smtpSettingNames))
	for i, name := range smtpSettingNames {
		args[i] = name
	}

	values := make(map[string]string, len(smtpSettingNames))

	err := s.withRetry(ctx, func() error {
		rows, err := s.DB.QueryContext(ctx,
			`SELECT name, value FROM `+settingsTable+`
			 WHERE name IN (`+placeholders+`)`,
			args...,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var name string
			var value sql.NullString
			if err := rows.Scan(&name, &value); err != nil {
				return err
			}
			if value.Valid {
				values[name] = value.String
			}
		}

		return rows.Err()
	})
	if err != nil {
		return models.SmtpSettings{}, fmt.Errorf("read smtp settings: %w", err)
	}

	appName, ok := values[SettingAppName]
	if !ok {
		appName = defaultAppName
	}

	return models.SmtpSettings{
		Host:       values[SettingSmtpHost],
		Port:       values[SettingSmtpPort],
		User:       values[SettingSmtpUser],
		Password:   values[SettingSmtpPass],
		From:       values[SettingSmtpFrom],
		Encryption: values[SettingSmtpEncryption],
		AppName:    appName,
	}, nil
}
