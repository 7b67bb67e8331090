package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Agalaxie/shadesupport/internal/core"
	"github.com/Agalaxie/shadesupport/internal/store"
)

const (
	syncCooldown      = 5 * time.Second
	userCacheDuration = 5 * time.Minute
)

type cachedUser struct {
	user      *core.User
	timestamp time.Time
}

// UserStore is the slice of the relational store the syncer needs
type UserStore interface {
	GetUser(ctx context.Context, id string) (*core.User, error)
	UpsertUser(ctx context.Context, u *core.User) error
	UpdateUserRole(ctx context.Context, id, role string) error
}

// Syncer mirrors provider identities into the relational store. The
// cooldown and user cache are process-local, best-effort optimizations
// against repeated sync calls from polling clients, not correctness state.
type Syncer struct {
	store UserStore
	log   zerolog.Logger

	mu          sync.Mutex
	recentSyncs map[string]time.Time
	userCache   map[string]cachedUser
	now         func() time.Time
}

// NewSyncer creates a syncer over the given store
func NewSyncer(st UserStore, log zerolog.Logger) *Syncer {
	return &Syncer{
		store:       st,
		log:         log,
		recentSyncs: map[string]time.Time{},
		userCache:   map[string]cachedUser{},
		now:         time.Now,
	}
}

// Sync upserts the identity into the store and returns the stored user.
// Inside the cooldown window it serves the cached user when possible;
// cacheHit reports that case for the response header.
func (s *Syncer) Sync(ctx context.Context, id *Identity) (user *core.User, cacheHit bool, err error) {
	role := id.Role
	if role == "" {
		role = core.RoleClient
	}

	now := s.now()

	s.mu.Lock()
	last, recent := s.recentSyncs[id.UserID]
	if recent && now.Sub(last) < syncCooldown {
		if entry, ok := s.userCache[id.UserID]; ok && now.Sub(entry.timestamp) < userCacheDuration {
			s.mu.Unlock()
			return entry.user, true, nil
		}
		s.mu.Unlock()

		existing, err := s.store.GetUser(ctx, id.UserID)
		if err == nil {
			if existing.Role != role {
				if err := s.store.UpdateUserRole(ctx, id.UserID, role); err != nil {
					return nil, false, err
				}
				existing.Role = role
				s.log.Info().Str("user", id.UserID).Str("role", role).Msg("user role updated")
			}
			s.cache(existing, now)
			return existing, false, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, false, err
		}
		// Unknown user despite recent sync: fall through and create it.
		s.mu.Lock()
	}
	s.recentSyncs[id.UserID] = now
	s.mu.Unlock()

	existing, err := s.store.GetUser(ctx, id.UserID)
	switch {
	case err == nil:
		if existing.Role != role {
			if err := s.store.UpdateUserRole(ctx, id.UserID, role); err != nil {
				return nil, false, err
			}
			existing.Role = role
		}
		s.cache(existing, now)
		return existing, false, nil
	case errors.Is(err, store.ErrNotFound):
		u := &core.User{
			ID:        id.UserID,
			Email:     id.Email,
			FirstName: id.FirstName,
			LastName:  id.LastName,
			Role:      role,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if u.Email == "" {
			u.Email = id.UserID + "@example.com"
		}
		if err := s.store.UpsertUser(ctx, u); err != nil {
			return nil, false, err
		}
		s.log.Info().Str("user", id.UserID).Msg("user created from provider identity")
		s.cache(u, now)
		return u, false, nil
	default:
		return nil, false, err
	}
}

func (s *Syncer) cache(u *core.User, now time.Time) {
	s.mu.Lock()
	s.userCache[u.ID] = cachedUser{user: u, timestamp: now}
	s.mu.Unlock()
}
