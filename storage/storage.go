package storage

import (
	"context"
	"time"
)

const (
	InteractionGenerate = "generate"
	InteractionEdit     = "edit"

	ActionAddUser    = "add_user"
	ActionRemoveUser = "remove_user"
)

type User struct {
	ID         string    `bson:"_id"`
	TelegramID int64     `bson:"telegram_id"`
	IsActive   bool      `bson:"is_active"`
	IsAdmin    bool      `bson:"is_admin"`
	CreatedAt  time.Time `bson:"created_at"`
	UpdatedAt  time.Time `bson:"updated_at"`
}

// Session tracks the image a user is currently iterating on.
// At most one active session exists per telegram id.
type Session struct {
	ID           string    `bson:"_id"`
	UserID       string    `bson:"user_id"`
	TelegramID   int64     `bson:"telegram_id"`
	LastImageURL string    `bson:"last_image_url"`
	LastImageB64 string    `bson:"last_image_b64"`
	Active       bool      `bson:"active"`
	CreatedAt    time.Time `bson:"created_at"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

// Interaction is an append-only audit record of one successful
// generate or edit call. Never mutated after insertion.
type Interaction struct {
	ID             string    `bson:"_id"`
	UserID         string    `bson:"user_id"`
	TelegramID     int64     `bson:"telegram_id"`
	SessionID      string    `bson:"session_id"`
	Type           string    `bson:"type"`
	Prompt         string    `bson:"prompt"`
	InputImageB64  string    `bson:"input_image_b64"`
	OutputImageURL string    `bson:"output_image_url"`
	OutputImageB64 string    `bson:"output_image_b64"`
	CreatedAt      time.Time `bson:"created_at"`
}

// PendingAction marks an admin who was asked to send a user id
// for the add/remove flow. Cleared when the next message arrives.
type PendingAction struct {
	TelegramID int64     `bson:"telegram_id"`
	Kind       string    `bson:"kind"`
	CreatedAt  time.Time `bson:"created_at"`
}

type Storage interface {
	// GetUser returns nil without error when no row exists.
	GetUser(ctx context.Context, telegramID int64) (*User, error)
	CreateUser(ctx context.Context, telegramID int64, isAdmin bool) (*User, error)
	SetUserActive(ctx context.Context, telegramID int64, active bool) error
	// EnsureAdminUser upserts the user as active admin. Used to seed root admins.
	EnsureAdminUser(ctx context.Context, telegramID int64) error
	ListUsers(ctx context.Context) ([]User, error)

	// ActiveSession returns the active session for the id, or nil.
	ActiveSession(ctx context.Context, telegramID int64) (*Session, error)
	// CreateSession deactivates any prior active session and inserts
	// a new one in a single atomic step.
	CreateSession(ctx context.Context, telegramID int64, userID string) (*Session, error)
	UpdateSessionImage(ctx context.Context, telegramID int64, imageURL, imageB64 string) error
	// CancelSession deactivates the active session, if any. Idempotent.
	CancelSession(ctx context.Context, telegramID int64) error

	AppendInteraction(ctx context.Context, in *Interaction) error
	History(ctx context.Context, telegramID int64, limit int) ([]Interaction, error)

	SetPendingAction(ctx context.Context, telegramID int64, kind string) error
	// TakePendingAction returns and clears the pending action, or nil.
	TakePendingAction(ctx context.Context, telegramID int64) (*PendingAction, error)

	Ping(ctx context.Context) error
	Close() error
}
