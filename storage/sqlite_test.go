package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSQLite(t *testing.T) *SQLiteStorage {
	t.Helper()
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteUserLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLite(t)

	user, err := store.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, user)

	created, err := store.CreateUser(ctx, 1, false)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)

	user, err = store.GetUser(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, created.ID, user.ID)
	assert.True(t, user.IsActive)
	assert.False(t, user.IsAdmin)

	require.NoError(t, store.SetUserActive(ctx, 1, false))
	user, err = store.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.False(t, user.IsActive)

	require.NoError(t, store.EnsureAdminUser(ctx, 1))
	user, err = store.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.True(t, user.IsActive)
	assert.True(t, user.IsAdmin)

	users, err := store.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestSQLiteSingleActiveSession(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLite(t)

	user, err := store.CreateUser(ctx, 1, false)
	require.NoError(t, err)

	var lastID string
	for i := 0; i < 5; i++ {
		session, err := store.CreateSession(ctx, 1, user.ID)
		require.NoError(t, err)
		lastID = session.ID

		var count int
		row := store.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM sessions WHERE telegram_id = ? AND active = 1`, int64(1))
		require.NoError(t, row.Scan(&count))
		assert.Equal(t, 1, count)
	}

	active, err := store.ActiveSession(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, lastID, active.ID)

	require.NoError(t, store.CancelSession(ctx, 1))
	active, err = store.ActiveSession(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, active)

	// cancel with no active session is a no-op
	require.NoError(t, store.CancelSession(ctx, 1))
}

func TestSQLiteSessionImageAndHistory(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLite(t)

	user, err := store.CreateUser(ctx, 1, false)
	require.NoError(t, err)
	session, err := store.CreateSession(ctx, 1, user.ID)
	require.NoError(t, err)

	require.NoError(t, store.UpdateSessionImage(ctx, 1, "", "Zm9v"))
	active, err := store.ActiveSession(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Zm9v", active.LastImageB64)
	assert.Empty(t, active.LastImageURL)

	err = store.AppendInteraction(ctx, &Interaction{
		UserID:         user.ID,
		TelegramID:     1,
		SessionID:      session.ID,
		Type:           InteractionGenerate,
		Prompt:         "a red cat",
		OutputImageB64: "Zm9v",
	})
	require.NoError(t, err)

	history, err := store.History(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, InteractionGenerate, history[0].Type)
	assert.Equal(t, "a red cat", history[0].Prompt)
	assert.Equal(t, session.ID, history[0].SessionID)
}

func TestSQLitePendingAction(t *testing.T) {
	ctx := context.Background()
	store := newTestSQLite(t)

	require.NoError(t, store.SetPendingAction(ctx, 1, ActionAddUser))
	// setting again overwrites
	require.NoError(t, store.SetPendingAction(ctx, 1, ActionRemoveUser))

	action, err := store.TakePendingAction(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, action)
	assert.Equal(t, ActionRemoveUser, action.Kind)

	action, err = store.TakePendingAction(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, action)
}
