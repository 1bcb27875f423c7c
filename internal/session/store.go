// Package session caches authenticated user records in a key-value store so
// that authenticated requests do not hit the database.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/lingke-net/Space.Tab/internal/model"
	"github.com/lingke-net/Space.Tab/pkg/common"
)

// KV is the subset of the cache client the session store needs.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, expiration time.Duration) error
	SetIfExists(ctx context.Context, key, value string) (bool, error)
	Del(ctx context.Context, keys ...string) error
}

// Store maps user ids to cached user records with a fixed TTL.
type Store struct {
	kv  KV
	ttl time.Duration
}

// NewStore returns a Store; ttl <= 0 falls back to 72h.
func NewStore(kv KV, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = common.DefaultSessionTTL
	}
	return &Store{kv: kv, ttl: ttl}
}

// Key returns the cache key for a user id.
func Key(userID int64) string {
	return common.SessionKeyPrefix + strconv.FormatInt(userID, 10)
}

// TTL is the lifetime given to new sessions.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Save writes a fresh session entry; the password hash is never serialized.
func (s *Store) Save(ctx context.Context, u *model.User) error {
	payload, err := encode(u)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, Key(u.ID), payload, s.ttl); err != nil {
		return fmt.Errorf("session save: %w", err)
	}
	return nil
}

// Load returns the cached user. A missing entry is common.ErrSessionExpired.
func (s *Store) Load(ctx context.Context, userID int64) (*model.User, error) {
	raw, err := s.kv.Get(ctx, Key(userID))
	if errors.Is(err, common.ErrCacheMiss) {
		return nil, common.ErrSessionExpired
	}
	if err != nil {
		return nil, fmt.Errorf("session load: %w", err)
	}

	var entry cachedUser
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("session decode: %w", err)
	}
	u := entry.toUser()
	return &u, nil
}

// Refresh overwrites an existing entry in place, keeping its TTL.
// It reports false when the user has no live session.
func (s *Store) Refresh(ctx context.Context, u *model.User) (bool, error) {
	payload, err := encode(u)
	if err != nil {
		return false, err
	}
	ok, err := s.kv.SetIfExists(ctx, Key(u.ID), payload)
	if err != nil {
		return false, fmt.Errorf("session refresh: %w", err)
	}
	return ok, nil
}

// Revoke deletes the session entry.
func (s *Store) Revoke(ctx context.Context, userID int64) error {
	if err := s.kv.Del(ctx, Key(userID)); err != nil {
		return fmt.Errorf("session revoke: %w", err)
	}
	return nil
}

// cachedUser mirrors model.User without the password hash.
type cachedUser struct {
	ID            int64      `json:"id"`
	Username      string     `json:"username"`
	Email         string     `json:"email"`
	IsBanned      bool       `json:"is_banned"`
	BanReason     *string    `json:"ban_reason"`
	BanExpiration *time.Time `json:"ban_expiration"`
	IsAdmin       bool       `json:"is_admin"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     *time.Time `json:"updated_at"`
	LastLogin     *time.Time `json:"last_login"`
	Avatar        *string    `json:"avatar"`
	QQNum         *string    `json:"qq_num"`
	EmailVerified bool       `json:"email_verified"`
}

func encode(u *model.User) (string, error) {
	b, err := json.Marshal(cachedUser{
		ID:            u.ID,
		Username:      u.Username,
		Email:         u.Email,
		IsBanned:      u.IsBanned,
		BanReason:     u.BanReason,
		BanExpiration: u.BanExpiration,
		IsAdmin:       u.IsAdmin,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
		LastLogin:     u.LastLogin,
		Avatar:        u.Avatar,
		QQNum:         u.QQNum,
		EmailVerified: u.EmailVerified,
	})
	if err != nil {
		return "", fmt.Errorf("session encode: %w", err)
	}
	return string(b), nil
}

func (c cachedUser) toUser() model.User {
	return model.User{
		ID:            c.ID,
		Username:      c.Username,
		Email:         c.Email,
		IsBanned:      c.IsBanned,
		BanReason:     c.BanReason,
		BanExpiration: c.BanExpiration,
		IsAdmin:       c.IsAdmin,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
		LastLogin:     c.LastLogin,
		Avatar:        c.Avatar,
		QQNum:         c.QQNum,
		EmailVerified: c.EmailVerified,
	}
}
