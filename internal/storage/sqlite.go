// Package storage persists linked accounts in SQLite.
package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/openredstone/linkore/internal/domain"
)

//go:embed schema.sql
var schema string

var (
	// ErrNotFound is returned when no row matches a lookup.
	ErrNotFound = errors.New("not found")
	// ErrDiscordIDTaken is returned when an upsert would give two players
	// the same Discord account.
	ErrDiscordIDTaken = errors.New("discord id already linked")
)

// Store provides database access
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Linked user methods ---

// GetUserByUUID returns the link for a Minecraft account, or ErrNotFound.
func (s *Store) GetUserByUUID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_uuid, user_ign, user_discord_id FROM linkore_user WHERE user_uuid = ?
	`, id.String())
	return scanLinkedUser(row)
}

// GetUserByDiscordID returns the link for a Discord account, or ErrNotFound.
func (s *Store) GetUserByDiscordID(ctx context.Context, discordID int64) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT user_uuid, user_ign, user_discord_id FROM linkore_user WHERE user_discord_id = ?
	`, discordID)
	return scanLinkedUser(row)
}

// LinkUser inserts or replaces the link for the user's UUID. The unique index
// on user_discord_id rejects the write when a different UUID already owns that
// Discord account; that surfaces as ErrDiscordIDTaken.
func (s *Store) LinkUser(ctx context.Context, user domain.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO linkore_user (user_uuid, user_ign, user_discord_id)
		VALUES (?, ?, ?)
		ON CONFLICT(user_uuid) DO UPDATE SET
			user_ign = excluded.user_ign,
			user_discord_id = excluded.user_discord_id
	`, user.UUID.String(), user.Name, user.DiscordID)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return ErrDiscordIDTaken
		}
		return fmt.Errorf("linking user %s: %w", user.UUID, err)
	}
	return nil
}

// UnlinkUser removes the link for a Discord account. Deleting an absent row
// is a no-op.
func (s *Store) UnlinkUser(ctx context.Context, discordID int64) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM linkore_user WHERE user_discord_id = ?
	`, discordID)
	if err != nil {
		return fmt.Errorf("unlinking discord id %d: %w", discordID, err)
	}
	return nil
}

// UpdateUserName updates the stored in-game name after a rename.
func (s *Store) UpdateUserName(ctx context.Context, id uuid.UUID, name string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE linkore_user SET user_ign = ? WHERE user_uuid = ?
	`, name, id.String())
	if err != nil {
		return fmt.Errorf("renaming user %s: %w", id, err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUsers returns all linked users ordered by in-game name.
func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_uuid, user_ign, user_discord_id FROM linkore_user ORDER BY user_ign
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		var rawUUID string
		var u domain.User
		if err := rows.Scan(&rawUUID, &u.Name, &u.DiscordID); err != nil {
			return nil, err
		}
		if u.UUID, err = uuid.Parse(rawUUID); err != nil {
			return nil, fmt.Errorf("bad uuid %q in linkore_user: %w", rawUUID, err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanLinkedUser(row *sql.Row) (*domain.User, error) {
	var rawUUID string
	var u domain.User
	if err := row.Scan(&rawUUID, &u.Name, &u.DiscordID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	parsed, err := uuid.Parse(rawUUID)
	if err != nil {
		return nil, fmt.Errorf("bad uuid %q in linkore_user: %w", rawUUID, err)
	}
	u.UUID = parsed
	return &u, nil
}

// --- Account methods ---

// Account is an admin login for the HTTP API
type Account struct {
	ID           int64
	Username     string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
	LastLogin    *time.Time
}

// CreateAccount creates a new account
func (s *Store) CreateAccount(ctx context.Context, username, passwordHash string, isAdmin bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (username, password_hash, is_admin)
		VALUES (?, ?, ?)
	`, username, passwordHash, isAdmin)
	return err
}

// GetAccountByUsername retrieves an account by username
func (s *Store) GetAccountByUsername(ctx context.Context, username string) (*Account, error) {
	var a Account
	var lastLogin sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, is_admin, created_at, last_login
		FROM accounts WHERE username = ?
	`, username).Scan(&a.ID, &a.Username, &a.PasswordHash, &a.IsAdmin, &a.CreatedAt, &lastLogin)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if lastLogin.Valid {
		a.LastLogin = &lastLogin.Time
	}
	return &a, nil
}

// ListAccounts returns all accounts ordered by username
func (s *Store) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, password_hash, is_admin, created_at, last_login
		FROM accounts ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var a Account
		var lastLogin sql.NullTime
		if err := rows.Scan(&a.ID, &a.Username, &a.PasswordHash, &a.IsAdmin, &a.CreatedAt, &lastLogin); err != nil {
			return nil, err
		}
		if lastLogin.Valid {
			a.LastLogin = &lastLogin.Time
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// DeleteAccount removes an account by username, ErrNotFound if absent
func (s *Store) DeleteAccount(ctx context.Context, username string) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM accounts WHERE username = ?
	`, username)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateAccountPassword updates an account's password hash
func (s *Store) UpdateAccountPassword(ctx context.Context, id int64, passwordHash string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET password_hash = ? WHERE id = ?
	`, passwordHash, id)
	return err
}

// UpdateAccountLastLogin updates the last login timestamp
func (s *Store) UpdateAccountLastLogin(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts SET last_login = CURRENT_TIMESTAMP WHERE id = ?
	`, id)
	return err
}
