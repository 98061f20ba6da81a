package testing

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
)

// SkipIfShort skips container-backed tests under -short
func SkipIfShort(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
}

// MongoDatabase starts a MongoDB container for the test and returns a fresh
// database on it. The container is terminated when the test ends.
func MongoDatabase(t *testing.T, name string) (*mongo.Client, *mongo.Database) {
	t.Helper()
	SkipIfShort(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := NewMongoDBContainer(ctx)
	if err != nil {
		t.Fatalf("mongodb container: %v", err)
	}
	t.Cleanup(func() { _ = container.Close(context.Background()) })

	client, err := container.GetClient(ctx)
	if err != nil {
		t.Fatalf("mongodb client: %v", err)
	}
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	return client, client.Database(name)
}

// RedisAddr starts a Redis container for the test and returns its address
func RedisAddr(t *testing.T) string {
	t.Helper()
	SkipIfShort(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	container, err := NewRedisContainer(ctx)
	if err != nil {
		t.Fatalf("redis container: %v", err)
	}
	t.Cleanup(func() { _ = container.Close(context.Background()) })

	return container.Addr
}

// CreateTestContext creates a context with a timeout for tests
func CreateTestContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
