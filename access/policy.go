package access

import (
	"Painty/lib/sl"
	"Painty/storage"
	"context"
	"log/slog"
)

// Result is the outcome of one access check.
type Result struct {
	HasAccess   bool
	IsRootAdmin bool
	IsAdmin     bool
}

// UserLookup is the slice of storage the policy needs.
type UserLookup interface {
	GetUser(ctx context.Context, telegramID int64) (*storage.User, error)
}

// Policy decides whether an identity may use the bot. Root admins come
// from static configuration and always pass regardless of stored state.
type Policy struct {
	rootAdmins map[int64]struct{}
	store      UserLookup
	log        *slog.Logger
}

func NewPolicy(rootAdmins []int64, store UserLookup, log *slog.Logger) *Policy {
	set := make(map[int64]struct{}, len(rootAdmins))
	for _, id := range rootAdmins {
		set[id] = struct{}{}
	}
	return &Policy{
		rootAdmins: set,
		store:      store,
		log:        log.With(sl.Module("access")),
	}
}

// IsRoot checks only the static root admin set.
func (p *Policy) IsRoot(telegramID int64) bool {
	_, ok := p.rootAdmins[telegramID]
	return ok
}

// Check resolves access for the id. A failing storage lookup denies
// access rather than propagating the error, so a storage outage can
// never grant access by accident.
func (p *Policy) Check(ctx context.Context, telegramID int64) Result {
	isRoot := p.IsRoot(telegramID)

	user, err := p.store.GetUser(ctx, telegramID)
	if err != nil {
		p.log.Error("access lookup failed", sl.User(telegramID), sl.Err(err))
		return Result{}
	}

	result := Result{IsRootAdmin: isRoot}
	if user != nil {
		result.IsAdmin = user.IsAdmin
		result.HasAccess = user.IsActive
	}
	if isRoot {
		result.HasAccess = true
	}
	return result
}
