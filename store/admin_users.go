package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type AdminUser struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}

func (db *DB) CreateAdminUser(email, name, passwordHash string) error {
	_, err := db.Exec(db.Q(`INSERT INTO admin_users (email, name, password_hash) VALUES (?, ?, ?)`), email, name, passwordHash)
	if err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	return nil
}

func (db *DB) GetAdminUser(email string) (*AdminUser, error) {
	var u AdminUser
	var createdAt any
	err := db.QueryRow(db.Q(`SELECT id, email, name, password_hash, created_at FROM admin_users WHERE email=?`), email).
		Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	u.CreatedAt = parseTime(createdAt)
	return &u, nil
}

func (db *DB) AdminUserExists() (bool, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM admin_users`).Scan(&count)
	return count > 0, err
}
