package storage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type MemoryStorage struct {
	users        map[int64]*User
	sessions     []*Session
	interactions []Interaction
	pending      map[int64]*PendingAction
	mutex        sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:   make(map[int64]*User),
		pending: make(map[int64]*PendingAction),
	}
}

func (m *MemoryStorage) GetUser(_ context.Context, telegramID int64) (*User, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	if u, ok := m.users[telegramID]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *MemoryStorage) CreateUser(_ context.Context, telegramID int64, isAdmin bool) (*User, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := time.Now()
	u := &User{
		ID:         uuid.NewString(),
		TelegramID: telegramID,
		IsActive:   true,
		IsAdmin:    isAdmin,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.users[telegramID] = u
	cp := *u
	return &cp, nil
}

func (m *MemoryStorage) SetUserActive(_ context.Context, telegramID int64, active bool) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if u, ok := m.users[telegramID]; ok {
		u.IsActive = active
		u.UpdatedAt = time.Now()
	}
	return nil
}

func (m *MemoryStorage) EnsureAdminUser(_ context.Context, telegramID int64) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := time.Now()
	if u, ok := m.users[telegramID]; ok {
		u.IsActive = true
		u.IsAdmin = true
		u.UpdatedAt = now
		return nil
	}
	m.users[telegramID] = &User{
		ID:         uuid.NewString(),
		TelegramID: telegramID,
		IsActive:   true,
		IsAdmin:    true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return nil
}

func (m *MemoryStorage) ListUsers(_ context.Context) ([]User, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	users := make([]User, 0, len(m.users))
	for _, u := range m.users {
		users = append(users, *u)
	}
	return users, nil
}

func (m *MemoryStorage) ActiveSession(_ context.Context, telegramID int64) (*Session, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	for _, s := range m.sessions {
		if s.TelegramID == telegramID && s.Active {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemoryStorage) CreateSession(_ context.Context, telegramID int64, userID string) (*Session, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	now := time.Now()
	for _, s := range m.sessions {
		if s.TelegramID == telegramID && s.Active {
			s.Active = false
			s.UpdatedAt = now
		}
	}
	session := &Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		TelegramID: telegramID,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.sessions = append(m.sessions, session)
	cp := *session
	return &cp, nil
}

func (m *MemoryStorage) UpdateSessionImage(_ context.Context, telegramID int64, imageURL, imageB64 string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, s := range m.sessions {
		if s.TelegramID == telegramID && s.Active {
			s.LastImageURL = imageURL
			s.LastImageB64 = imageB64
			s.UpdatedAt = time.Now()
		}
	}
	return nil
}

func (m *MemoryStorage) CancelSession(_ context.Context, telegramID int64) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, s := range m.sessions {
		if s.TelegramID == telegramID && s.Active {
			s.Active = false
			s.UpdatedAt = time.Now()
		}
	}
	return nil
}

func (m *MemoryStorage) AppendInteraction(_ context.Context, in *Interaction) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	record := *in
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	m.interactions = append(m.interactions, record)
	return nil
}

func (m *MemoryStorage) History(_ context.Context, telegramID int64, limit int) ([]Interaction, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var history []Interaction
	for i := len(m.interactions) - 1; i >= 0 && len(history) < limit; i-- {
		if m.interactions[i].TelegramID == telegramID {
			history = append(history, m.interactions[i])
		}
	}
	return history, nil
}

func (m *MemoryStorage) SetPendingAction(_ context.Context, telegramID int64, kind string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.pending[telegramID] = &PendingAction{
		TelegramID: telegramID,
		Kind:       kind,
		CreatedAt:  time.Now(),
	}
	return nil
}

func (m *MemoryStorage) TakePendingAction(_ context.Context, telegramID int64) (*PendingAction, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	action, ok := m.pending[telegramID]
	if !ok {
		return nil, nil
	}
	delete(m.pending, telegramID)
	return action, nil
}

func (m *MemoryStorage) Ping(_ context.Context) error {
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}
