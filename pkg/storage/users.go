package storage

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// EnsureUser returns the id of the host user called username, creating the
// user on first use.
func (d *DB) EnsureUser(ctx context.Context, username string) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return 0, errors.New("empty username")
	}
	if _, err := d.sql.ExecContext(ctx, "INSERT OR IGNORE INTO users(username, created_at) VALUES(?, ?)", username, d.timestamp()); err != nil {
		return 0, err
	}
	var id int64
	err := d.sql.QueryRowContext(ctx, "SELECT id FROM users WHERE username = ?", username).Scan(&id)
	return id, err
}

// SetCredential stores the portal login of a user. passwordEnc must already
// be encrypted.
func (d *DB) SetCredential(ctx context.Context, userID int64, teeUsername, passwordEnc string) error {
	res, err := d.sql.ExecContext(ctx, "UPDATE users SET tee_username = ?, tee_password_enc = ? WHERE id = ?",
		nullIfEmpty(strings.TrimSpace(teeUsername)), nullIfEmpty(passwordEnc), userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (d *DB) GetCredential(ctx context.Context, userID int64) (UserCredential, error) {
	var user, enc sql.NullString
	err := d.sql.QueryRowContext(ctx, "SELECT tee_username, tee_password_enc FROM users WHERE id = ?", userID).Scan(&user, &enc)
	if errors.Is(err, sql.ErrNoRows) {
		return UserCredential{}, ErrUserNotFound
	}
	if err != nil {
		return UserCredential{}, err
	}
	return UserCredential{UserID: userID, TEEUsername: user.String, TEEPasswordEnc: enc.String}, nil
}
