package repositories

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prudhvinik1/storefront/internal/database"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// getTestRedisClient returns a client on DB 1 of a local Redis, skipping the
// test when no server is reachable.
func getTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   1,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		t.Skipf("redis not available: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return client
}

// cleanupKeys removes every key matching the given patterns.
func cleanupKeys(t *testing.T, client *redis.Client, patterns ...string) {
	t.Helper()
	ctx := context.Background()

	for _, pattern := range patterns {
		keys, err := client.Keys(ctx, pattern).Result()
		if err != nil {
			t.Logf("Warning: failed to get keys for %s: %v", pattern, err)
			continue
		}
		if len(keys) > 0 {
			if err := client.Del(ctx, keys...).Err(); err != nil {
				t.Logf("Warning: failed to cleanup %s: %v", pattern, err)
			}
		}
	}
}

// getTestPostgresPool connects to TEST_DATABASE_URL and applies the schema,
// skipping the test when the variable is unset or the server is unreachable.
func getTestPostgresPool(t *testing.T) *pgxpool.Pool {
	t.Helper()

	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	pool, err := database.NewPostgresPool(context.Background(), databaseURL, 2, zap.NewNop())
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := database.Migrate(databaseURL, "up"); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return pool
}

// cleanupAccounts hard-deletes accounts created by a test, deleted or not.
func cleanupAccounts(t *testing.T, pool *pgxpool.Pool, emails ...string) {
	t.Helper()
	if _, err := pool.Exec(context.Background(), `DELETE FROM accounts WHERE email = ANY($1)`, emails); err != nil {
		t.Logf("Warning: failed to cleanup accounts: %v", err)
	}
}
