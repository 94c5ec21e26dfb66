package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStorage{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStorage) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		telegram_id INTEGER UNIQUE NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		is_admin INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id),
		telegram_id INTEGER NOT NULL,
		last_image_url TEXT,
		last_image_b64 TEXT,
		active INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_active ON sessions(telegram_id) WHERE active = 1;

	CREATE TABLE IF NOT EXISTS interactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		telegram_id INTEGER NOT NULL,
		session_id TEXT,
		type TEXT NOT NULL,
		prompt TEXT,
		input_image_b64 TEXT,
		output_image_url TEXT,
		output_image_b64 TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_interactions_user ON interactions(telegram_id, created_at);

	CREATE TABLE IF NOT EXISTS pending_actions (
		telegram_id INTEGER PRIMARY KEY,
		kind TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) GetUser(ctx context.Context, telegramID int64) (*User, error) {
	query := `
		SELECT id, telegram_id, is_active, is_admin, created_at, updated_at
		FROM users WHERE telegram_id = ?`

	row := s.db.QueryRowContext(ctx, query, telegramID)

	var user User
	var createdAt, updatedAt int64

	err := row.Scan(&user.ID, &user.TelegramID, &user.IsActive, &user.IsAdmin, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

func (s *SQLiteStorage) CreateUser(ctx context.Context, telegramID int64, isAdmin bool) (*User, error) {
	now := time.Now()
	user := &User{
		ID:         uuid.NewString(),
		TelegramID: telegramID,
		IsActive:   true,
		IsAdmin:    isAdmin,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	query := `
		INSERT INTO users (id, telegram_id, is_active, is_admin, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query, user.ID, telegramID, isAdmin, now.Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *SQLiteStorage) SetUserActive(ctx context.Context, telegramID int64, active bool) error {
	query := `UPDATE users SET is_active = ?, updated_at = ? WHERE telegram_id = ?`
	_, err := s.db.ExecContext(ctx, query, active, time.Now().Unix(), telegramID)
	if err != nil {
		return fmt.Errorf("update user status: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) EnsureAdminUser(ctx context.Context, telegramID int64) error {
	now := time.Now().Unix()
	query := `
		INSERT INTO users (id, telegram_id, is_active, is_admin, created_at, updated_at)
		VALUES (?, ?, 1, 1, ?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET
			is_active = 1,
			is_admin = 1,
			updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query, uuid.NewString(), telegramID, now, now)
	if err != nil {
		return fmt.Errorf("upsert admin user: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) ListUsers(ctx context.Context) ([]User, error) {
	query := `
		SELECT id, telegram_id, is_active, is_admin, created_at, updated_at
		FROM users ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var user User
		var createdAt, updatedAt int64
		if err := rows.Scan(&user.ID, &user.TelegramID, &user.IsActive, &user.IsAdmin, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		user.CreatedAt = time.Unix(createdAt, 0)
		user.UpdatedAt = time.Unix(updatedAt, 0)
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *SQLiteStorage) ActiveSession(ctx context.Context, telegramID int64) (*Session, error) {
	query := `
		SELECT id, user_id, telegram_id, last_image_url, last_image_b64, active, created_at, updated_at
		FROM sessions WHERE telegram_id = ? AND active = 1
		ORDER BY created_at DESC LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, telegramID)
	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return session, nil
}

// CreateSession deactivates any prior active session and inserts the new
// row inside one transaction, so two concurrent requests from the same
// user cannot both end up with an active session.
func (s *SQLiteStorage) CreateSession(ctx context.Context, telegramID int64, userID string) (*Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	_, err = tx.ExecContext(ctx,
		`UPDATE sessions SET active = 0, updated_at = ? WHERE telegram_id = ? AND active = 1`,
		now.Unix(), telegramID)
	if err != nil {
		return nil, fmt.Errorf("deactivate sessions: %w", err)
	}

	session := &Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		TelegramID: telegramID,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, telegram_id, active, created_at, updated_at)
		 VALUES (?, ?, ?, 1, ?, ?)`,
		session.ID, userID, telegramID, now.Unix(), now.Unix())
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit session: %w", err)
	}
	return session, nil
}

func (s *SQLiteStorage) UpdateSessionImage(ctx context.Context, telegramID int64, imageURL, imageB64 string) error {
	query := `
		UPDATE sessions SET last_image_url = ?, last_image_b64 = ?, updated_at = ?
		WHERE telegram_id = ? AND active = 1`

	_, err := s.db.ExecContext(ctx, query, imageURL, imageB64, time.Now().Unix(), telegramID)
	if err != nil {
		return fmt.Errorf("update session image: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) CancelSession(ctx context.Context, telegramID int64) error {
	query := `UPDATE sessions SET active = 0, updated_at = ? WHERE telegram_id = ? AND active = 1`
	_, err := s.db.ExecContext(ctx, query, time.Now().Unix(), telegramID)
	if err != nil {
		return fmt.Errorf("cancel session: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) AppendInteraction(ctx context.Context, in *Interaction) error {
	id := in.ID
	if id == "" {
		id = uuid.NewString()
	}
	createdAt := in.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `
		INSERT INTO interactions
		(id, user_id, telegram_id, session_id, type, prompt, input_image_b64, output_image_url, output_image_b64, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		id, in.UserID, in.TelegramID, in.SessionID, in.Type, in.Prompt,
		in.InputImageB64, in.OutputImageURL, in.OutputImageB64, createdAt.Unix())
	if err != nil {
		return fmt.Errorf("insert interaction: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) History(ctx context.Context, telegramID int64, limit int) ([]Interaction, error) {
	query := `
		SELECT id, user_id, telegram_id, session_id, type, prompt, input_image_b64, output_image_url, output_image_b64, created_at
		FROM interactions WHERE telegram_id = ?
		ORDER BY created_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, telegramID, limit)
	if err != nil {
		return nil, fmt.Errorf("query interactions: %w", err)
	}
	defer rows.Close()

	var history []Interaction
	for rows.Next() {
		var in Interaction
		var sessionID, prompt, inputB64, outputURL, outputB64 sql.NullString
		var createdAt int64
		err := rows.Scan(&in.ID, &in.UserID, &in.TelegramID, &sessionID, &in.Type,
			&prompt, &inputB64, &outputURL, &outputB64, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scan interaction row: %w", err)
		}
		in.SessionID = sessionID.String
		in.Prompt = prompt.String
		in.InputImageB64 = inputB64.String
		in.OutputImageURL = outputURL.String
		in.OutputImageB64 = outputB64.String
		in.CreatedAt = time.Unix(createdAt, 0)
		history = append(history, in)
	}
	return history, rows.Err()
}

func (s *SQLiteStorage) SetPendingAction(ctx context.Context, telegramID int64, kind string) error {
	query := `
		INSERT INTO pending_actions (telegram_id, kind, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(telegram_id) DO UPDATE SET kind = excluded.kind, created_at = excluded.created_at`

	_, err := s.db.ExecContext(ctx, query, telegramID, kind, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("set pending action: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) TakePendingAction(ctx context.Context, telegramID int64) (*PendingAction, error) {
	row := s.db.QueryRowContext(ctx,
		`DELETE FROM pending_actions WHERE telegram_id = ? RETURNING telegram_id, kind, created_at`,
		telegramID)

	var action PendingAction
	var createdAt int64
	err := row.Scan(&action.TelegramID, &action.Kind, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("take pending action: %w", err)
	}
	action.CreatedAt = time.Unix(createdAt, 0)
	return &action, nil
}

func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func scanSession(row *sql.Row) (*Session, error) {
	var session Session
	var imageURL, imageB64 sql.NullString
	var createdAt, updatedAt int64

	err := row.Scan(&session.ID, &session.UserID, &session.TelegramID,
		&imageURL, &imageB64, &session.Active, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	session.LastImageURL = imageURL.String
	session.LastImageB64 = imageB64.String
	session.CreatedAt = time.Unix(createdAt, 0)
	session.UpdatedAt = time.Unix(updatedAt, 0)

	return &session, nil
}
