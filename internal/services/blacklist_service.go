package services

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brightpath/agency-portal/internal/config"
	"github.com/brightpath/agency-portal/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RevocationStore is the durable tier of the token blacklist.
type RevocationStore interface {
	Insert(ctx context.Context, entry *models.BlacklistEntry) error
	Exists(ctx context.Context, tokenHash string) (bool, error)
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type GormRevocationStore struct {
	db *gorm.DB
}

func NewGormRevocationStore(db *gorm.DB) *GormRevocationStore {
	return &GormRevocationStore{db: db}
}

func (s *GormRevocationStore) Insert(ctx context.Context, entry *models.BlacklistEntry) error {
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "token_hash"}}, DoNothing: true}).
		Create(entry).Error
}

func (s *GormRevocationStore) Exists(ctx context.Context, tokenHash string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.BlacklistEntry{}).
		Where("token_hash = ?", tokenHash).
		Count(&count).Error
	return count > 0, err
}

func (s *GormRevocationStore) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at < ?", before).Delete(&models.BlacklistEntry{})
	return result.RowsAffected, result.Error
}

// TokenBlacklist revokes session tokens in two tiers: an in-process set keyed
// by raw token for immediate effect, and a durable store keyed by token hash
// that survives restarts and is shared between instances.
//
// When the durable lookup fails or exceeds the timeout, failOpen decides the
// answer. Fail-open keeps authenticated traffic flowing during a storage
// outage at the cost of honouring revocations made on other instances only
// once storage recovers. Operators choose via BLACKLIST_FAIL_OPEN.
type TokenBlacklist struct {
	mu       sync.RWMutex
	memory   map[string]time.Time
	store    RevocationStore
	failOpen bool
	timeout  time.Duration
	now      func() time.Time
}

func NewTokenBlacklist(store RevocationStore, failOpen bool, timeout time.Duration) *TokenBlacklist {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &TokenBlacklist{
		memory:   make(map[string]time.Time),
		store:    store,
		failOpen: failOpen,
		timeout:  timeout,
		now:      time.Now,
	}
}

// Revoke blacklists token in both tiers. The durable row expires with the token.
func (b *TokenBlacklist) Revoke(ctx context.Context, token string, userID *uuid.UUID, reason string) error {
	if token == "" {
		return nil
	}

	expiresAt := b.now().Add(config.MaxTokenTTL)
	if claims, ok := UnverifiedClaims(token); ok {
		if claims.ExpiresAt != nil {
			expiresAt = claims.ExpiresAt.Time
		}
		if userID == nil {
			if id, err := uuid.Parse(claims.Subject); err == nil {
				userID = &id
			}
		}
	}

	b.mu.Lock()
	b.memory[token] = expiresAt
	b.mu.Unlock()

	entry := &models.BlacklistEntry{
		TokenHash: HashToken(token),
		UserID:    userID,
		Reason:    reason,
		ExpiresAt: expiresAt.UTC(),
	}
	if err := b.store.Insert(ctx, entry); err != nil {
		return fmt.Errorf("failed to persist revoked token: %w", err)
	}
	return nil
}

// IsRevoked reports whether token has been revoked in either tier.
func (b *TokenBlacklist) IsRevoked(ctx context.Context, token string) bool {
	b.mu.RLock()
	_, inMemory := b.memory[token]
	b.mu.RUnlock()
	if inMemory {
		return true
	}

	lookupCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	revoked, err := b.store.Exists(lookupCtx, HashToken(token))
	if err != nil {
		slog.Warn("token blacklist lookup failed",
			"error", err,
			"fail_open", b.failOpen,
			"action", "blacklist_lookup",
		)
		return !b.failOpen
	}
	return revoked
}

// PurgeExpired drops entries whose token has already expired from both tiers.
func (b *TokenBlacklist) PurgeExpired(ctx context.Context) (int64, error) {
	now := b.now()

	b.mu.Lock()
	for token, exp := range b.memory {
		if now.After(exp) {
			delete(b.memory, token)
		}
	}
	b.mu.Unlock()

	return b.store.DeleteExpired(ctx, now.UTC())
}

// HashToken returns the hex SHA-256 of a raw token.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return fmt.Sprintf("%x", h)
}
