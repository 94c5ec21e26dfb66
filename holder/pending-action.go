package holder

import (
	"Painty/lib/sl"
	"Painty/storage"
	"context"
	"log/slog"
)

// ActionManager tracks which admin was asked to send a user id for the
// add/remove flow. The record lives in storage keyed by the admin's id,
// created on menu action and cleared when the answer arrives.
type ActionManager struct {
	store storage.Storage
	log   *slog.Logger
}

func NewActionManager(store storage.Storage, log *slog.Logger) *ActionManager {
	return &ActionManager{
		store: store,
		log:   log.With(sl.Module("holder")),
	}
}

func (m *ActionManager) Set(ctx context.Context, telegramID int64, kind string) {
	if err := m.store.SetPendingAction(ctx, telegramID, kind); err != nil {
		m.log.Error("setting pending action", sl.User(telegramID), sl.Err(err))
	}
}

// Take returns the pending action and clears it, or nil when none exists.
func (m *ActionManager) Take(ctx context.Context, telegramID int64) *storage.PendingAction {
	action, err := m.store.TakePendingAction(ctx, telegramID)
	if err != nil {
		m.log.Error("taking pending action", sl.User(telegramID), sl.Err(err))
		return nil
	}
	return action
}

func (m *ActionManager) Clear(ctx context.Context, telegramID int64) {
	if _, err := m.store.TakePendingAction(ctx, telegramID); err != nil {
		m.log.Error("clearing pending action", sl.User(telegramID), sl.Err(err))
	}
}
