package testutil

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// SetupTestMongo returns a collection in a throwaway database that is dropped on cleanup.
// The instance is read from TEST_MONGO_URI (default mongodb://localhost:57017).
func SetupTestMongo(t testing.TB, collection string) *mongo.Collection {
	t.Helper()
	uri := envOr("TEST_MONGO_URI", "mongodb://localhost:57017")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetServerSelectionTimeout(2*time.Second))
	if err == nil {
		err = client.Ping(ctx, nil)
	}
	if err != nil {
		if client != nil {
			_ = client.Disconnect(context.Background())
		}
		unavailable(t, "MONGO", uri, err)
	}

	db := client.Database(uniqueName())
	t.Cleanup(func() {
		cctx, ccancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer ccancel()
		if err := db.Drop(cctx); err != nil {
			t.Logf("drop mongo database %s: %v", db.Name(), err)
		}
		if err := client.Disconnect(cctx); err != nil {
			t.Logf("disconnect mongo: %v", err)
		}
	})
	return db.Collection(collection)
}
