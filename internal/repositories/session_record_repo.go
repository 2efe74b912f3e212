package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/prudhvinik1/storefront/internal/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	sessionRecordPrefix  = "session_record:"
	sessionRecordChannel = "session_record_events:"

	// deleteRetries bounds optimistic retries of DeleteIfCurrent.
	deleteRetries = 5
)

const (
	opPut    = "put"
	opDelete = "delete"
)

// ErrConflict is returned when a conditional write keeps losing to concurrent writers.
var ErrConflict = errors.New("conflict: record modified concurrently")

// sessionRecordEvent is the payload published on every change so subscribers
// receive the new snapshot without a second read.
type sessionRecordEvent struct {
	Op     string                `json:"op"`
	Record *models.SessionRecord `json:"record,omitempty"`
}

type RedisSessionRecordRepository struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisSessionRecordRepository(client *redis.Client, logger *zap.Logger) *RedisSessionRecordRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisSessionRecordRepository{client: client, logger: logger}
}

// Put replaces the whole record and publishes it in the same transaction.
// LastLoginAt comes from the Redis server clock, not the caller's.
func (r *RedisSessionRecordRepository) Put(ctx context.Context, record *models.SessionRecord) error {
	if record.UserID == "" {
		return errors.New("session record requires a user id")
	}

	now, err := r.client.Time(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to read server time: %w", err)
	}
	record.LastLoginAt = now.UTC()

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal session record: %w", err)
	}
	event, err := json.Marshal(sessionRecordEvent{Op: opPut, Record: record})
	if err != nil {
		return fmt.Errorf("failed to marshal session record event: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionRecordKey(record.UserID), data, 0)
		pipe.Publish(ctx, sessionRecordChannelName(record.UserID), event)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write session record: %w", err)
	}
	return nil
}

func (r *RedisSessionRecordRepository) Get(ctx context.Context, userID string) (*models.SessionRecord, error) {
	data, err := r.client.Get(ctx, sessionRecordKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session record: %w", err)
	}

	var record models.SessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session record: %w", err)
	}
	return &record, nil
}

// DeleteIfCurrent deletes the record only while it still names sessionID, so
// a device logging out never removes a newer session written by another
// device. A missing or superseded record is left alone without error.
func (r *RedisSessionRecordRepository) DeleteIfCurrent(ctx context.Context, userID, sessionID string) error {
	key := sessionRecordKey(userID)
	event, err := json.Marshal(sessionRecordEvent{Op: opDelete})
	if err != nil {
		return fmt.Errorf("failed to marshal session record event: %w", err)
	}

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}

		var record models.SessionRecord
		if err := json.Unmarshal(data, &record); err != nil {
			return fmt.Errorf("failed to unmarshal session record: %w", err)
		}
		if record.SessionID != sessionID {
			return nil
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.Publish(ctx, sessionRecordChannelName(userID), event)
			return nil
		})
		return err
	}

	for i := 0; i < deleteRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return fmt.Errorf("failed to delete session record: %w", err)
	}
	return ErrConflict
}

// Subscribe listens on the record's change channel. Once the subscription is
// confirmed the current record is delivered, followed by one delivery per
// change. The returned CancelFunc closes the subscription without waiting for
// the delivery goroutine. If ctx ends first, onError receives ctx's error.
func (r *RedisSessionRecordRepository) Subscribe(
	ctx context.Context,
	userID string,
	onNext func(*models.SessionRecord),
	onError func(error),
) CancelFunc {
	subCtx, cancel := context.WithCancel(ctx)
	pubsub := r.client.Subscribe(subCtx, sessionRecordChannelName(userID))

	// A blocked read only returns once the pubsub is closed, so closing it is
	// tied to subCtx rather than to stop.
	context.AfterFunc(subCtx, func() {
		if err := pubsub.Close(); err != nil {
			r.logger.Debug("closing session record subscription", zap.String("user_id", userID), zap.Error(err))
		}
	})

	var stopped atomic.Bool
	stop := func() {
		stopped.Store(true)
		cancel()
	}

	go func() {
		defer cancel()
		r.deliver(subCtx, pubsub, userID, onNext, func(err error) {
			if stopped.Load() {
				return
			}
			if ctxErr := subCtx.Err(); ctxErr != nil {
				err = fmt.Errorf("session record subscription ended: %w", ctxErr)
			}
			onError(err)
		})
	}()

	return stop
}

// deliver runs until the subscription fails or ctx ends. Every exit except
// a clean stop is reported through onError.
func (r *RedisSessionRecordRepository) deliver(
	ctx context.Context,
	pubsub *redis.PubSub,
	userID string,
	onNext func(*models.SessionRecord),
	onError func(error),
) {
	// Wait for the subscription confirmation so the initial read cannot miss a change.
	if _, err := pubsub.Receive(ctx); err != nil {
		onError(fmt.Errorf("failed to subscribe to session record: %w", err))
		return
	}

	record, err := r.Get(ctx, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		onNext(nil)
	case err != nil:
		onError(err)
		return
	default:
		onNext(record)
	}

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			onError(fmt.Errorf("session record subscription failed: %w", err))
			return
		}

		var event sessionRecordEvent
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			r.logger.Warn("dropping malformed session record event", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		if err := ctx.Err(); err != nil {
			onError(err)
			return
		}

		if event.Op == opDelete {
			onNext(nil)
			continue
		}
		onNext(event.Record)
	}
}

func sessionRecordKey(userID string) string {
	return sessionRecordPrefix + userID
}

func sessionRecordChannelName(userID string) string {
	return sessionRecordChannel + userID
}
