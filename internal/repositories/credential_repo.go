package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prudhvinik1/storefront/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	credentialPrefix         = "credential:"
	accountCredentialsPrefix = "account:%s:credentials"
)

type RedisCredentialRepository struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisCredentialRepository(client *redis.Client, logger *zap.Logger) *RedisCredentialRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCredentialRepository{client: client, logger: logger}
}

// Create stores the credential session until its expiry and indexes it under
// the account so every credential of an account can be revoked at once.
func (r *RedisCredentialRepository) Create(ctx context.Context, session *models.Session) error {
	jsonData, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal credential: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return fmt.Errorf("credential %s already expired", session.ID)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, credentialKey(session.ID), jsonData, ttl)
		pipe.SAdd(ctx, accountCredentialsKey(session.AccountID), session.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store credential: %w", err)
	}
	return nil
}

func (r *RedisCredentialRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	jsonData, err := r.client.Get(ctx, credentialKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal([]byte(jsonData), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal credential: %w", err)
	}
	return &session, nil
}

// ListByAccountID returns the live credentials of an account and lazily
// drops expired ids from the account index.
func (r *RedisCredentialRepository) ListByAccountID(ctx context.Context, accountID uuid.UUID) ([]*models.Session, error) {
	accountKey := accountCredentialsKey(accountID)
	ids, err := r.client.SMembers(ctx, accountKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get account credentials: %w", err)
	}

	var sessions []*models.Session
	var expiredIDs []interface{}

	for _, id := range ids {
		session, err := r.GetByID(ctx, id)
		if errors.Is(err, ErrNotFound) {
			expiredIDs = append(expiredIDs, id)
			continue
		}
		if err != nil {
			r.logger.Warn("skipping unreadable credential", zap.String("credential_id", id), zap.Error(err))
			continue
		}
		sessions = append(sessions, session)
	}

	if len(expiredIDs) > 0 {
		if err := r.client.SRem(ctx, accountKey, expiredIDs...).Err(); err != nil {
			return nil, fmt.Errorf("failed to remove expired credentials: %w", err)
		}
	}
	return sessions, nil
}

// Delete revokes a credential. A credential that is already gone returns ErrNotFound.
func (r *RedisCredentialRepository) Delete(ctx context.Context, id string) error {
	session, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SRem(ctx, accountCredentialsKey(session.AccountID), id)
		pipe.Del(ctx, credentialKey(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	return nil
}

func (r *RedisCredentialRepository) DeleteAllForAccount(ctx context.Context, accountID uuid.UUID) error {
	accountKey := accountCredentialsKey(accountID)
	ids, err := r.client.SMembers(ctx, accountKey).Result()
	if err != nil {
		return fmt.Errorf("failed to get account credentials: %w", err)
	}

	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, credentialKey(id))
	}
	keys = append(keys, accountKey)

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete account credentials: %w", err)
	}
	return nil
}

func credentialKey(id string) string {
	return credentialPrefix + id
}

func accountCredentialsKey(accountID uuid.UUID) string {
	return fmt.Sprintf(accountCredentialsPrefix, accountID)
}
