package access

import (
	"Painty/storage"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

type stubLookup struct {
	users map[int64]*storage.User
	err   error
}

func (s *stubLookup) GetUser(_ context.Context, telegramID int64) (*storage.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.users[telegramID], nil
}

func TestCheckDeniesUnknownUser(t *testing.T) {
	policy := NewPolicy(nil, &stubLookup{}, slog.Default())

	result := policy.Check(context.Background(), 42)

	assert.False(t, result.HasAccess)
	assert.False(t, result.IsRootAdmin)
	assert.False(t, result.IsAdmin)
}

func TestCheckActiveUser(t *testing.T) {
	lookup := &stubLookup{users: map[int64]*storage.User{
		42: {TelegramID: 42, IsActive: true},
		43: {TelegramID: 43, IsActive: false},
		44: {TelegramID: 44, IsActive: true, IsAdmin: true},
	}}
	policy := NewPolicy(nil, lookup, slog.Default())

	assert.True(t, policy.Check(context.Background(), 42).HasAccess)
	assert.False(t, policy.Check(context.Background(), 43).HasAccess)

	result := policy.Check(context.Background(), 44)
	assert.True(t, result.HasAccess)
	assert.True(t, result.IsAdmin)
	assert.False(t, result.IsRootAdmin)
}

// A root admin with no stored row at all still has full access.
func TestCheckRootAdminOverride(t *testing.T) {
	policy := NewPolicy([]int64{7}, &stubLookup{}, slog.Default())

	result := policy.Check(context.Background(), 7)

	assert.True(t, result.HasAccess)
	assert.True(t, result.IsRootAdmin)
}

// A storage outage must deny access, not propagate or grant.
func TestCheckFailsClosed(t *testing.T) {
	lookup := &stubLookup{err: errors.New("connection lost")}
	policy := NewPolicy([]int64{7}, lookup, slog.Default())

	for _, id := range []int64{7, 42} {
		result := policy.Check(context.Background(), id)
		assert.False(t, result.HasAccess)
		assert.False(t, result.IsRootAdmin)
		assert.False(t, result.IsAdmin)
	}
}
