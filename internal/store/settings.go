package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/ayusman/kalimat/internal/config"
)

// Setting keys for the runtime parameters.
const (
	KeyThreshold   = "threshold"
	KeyCooldown    = "cooldown"
	KeyConsecutive = "consecutive"
	KeyMirror      = "mirror"
)

// SettingsRepository stores key-value settings.
type SettingsRepository struct {
	db *sql.DB
}

// Settings returns the settings repository for this store.
func (s *Store) Settings() *SettingsRepository {
	return &SettingsRepository{db: s.db}
}

// Get returns the value stored under key, or ErrNotFound.
func (r *SettingsRepository) Get(key string) (string, error) {
	var value string
	err := r.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

// Set stores value under key, replacing any previous value.
func (r *SettingsRepository) Set(key, value string) error {
	_, err := r.db.Exec(
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value,
	)
	return err
}

// All returns every stored setting.
func (r *SettingsRepository) All() (map[string]string, error) {
	rows, err := r.db.Query("SELECT key, value FROM settings")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		settings[key] = value
	}
	return settings, rows.Err()
}

// SaveRuntime stores all runtime parameters in one transaction.
func (r *SettingsRepository) SaveRuntime(snap config.Snapshot) error {
	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	values := map[string]string{
		KeyThreshold:   strconv.FormatFloat(snap.Threshold, 'g', -1, 64),
		KeyCooldown:    strconv.FormatFloat(snap.Cooldown, 'g', -1, 64),
		KeyConsecutive: strconv.Itoa(snap.Consecutive),
		KeyMirror:      strconv.FormatBool(snap.Mirror),
	}
	for key, value := range values {
		if _, err := tx.Exec(
			`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			key, value,
		); err != nil {
			return fmt.Errorf("save %s: %w", key, err)
		}
	}

	return tx.Commit()
}

// LoadRuntime applies stored runtime parameters to rt through its validated
// setters. Missing keys leave rt untouched; unparsable or out-of-range values
// are logged and skipped.
func (r *SettingsRepository) LoadRuntime(rt *config.Runtime) error {
	settings, err := r.All()
	if err != nil {
		return err
	}

	if v, ok := settings[KeyThreshold]; ok {
		apply(KeyThreshold, v, func() error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			return rt.SetThreshold(f)
		})
	}
	if v, ok := settings[KeyCooldown]; ok {
		apply(KeyCooldown, v, func() error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return err
			}
			return rt.SetCooldown(f)
		})
	}
	if v, ok := settings[KeyConsecutive]; ok {
		apply(KeyConsecutive, v, func() error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			return rt.SetRequiredConsecutive(n)
		})
	}
	if v, ok := settings[KeyMirror]; ok {
		apply(KeyMirror, v, func() error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			rt.SetMirror(b)
			return nil
		})
	}

	return nil
}

func apply(key, value string, fn func() error) {
	if err := fn(); err != nil {
		log.Printf("Ignoring stored setting %s=%q: %v", key, value, err)
	}
}
