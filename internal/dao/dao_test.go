//go:build integration

package dao

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type testDoc struct {
	ID   string `bson:"_id"`
	Name string `bson:"name"`
}

func (d *testDoc) DocumentID() string { return d.ID }

func newTestDB(t *testing.T) (*mongo.Database, func()) {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "mongo:7",
		ExposedPorts: []string{"27017/tcp"},
		Cmd:          []string{"--replSet", "rs0"},
		WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "27017")
	require.NoError(t, err)

	uri := fmt.Sprintf("mongodb://%s:%s", host, port.Port())
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	require.NoError(t, err)

	dbName := fmt.Sprintf("testdb_%d", time.Now().UnixNano())
	cleanup := func() {
		_ = client.Disconnect(ctx)
		_ = container.Terminate(ctx)
	}

	return client.Database(dbName), cleanup
}

func TestUpsertAndGet(t *testing.T) {
	db, cleanup := newTestDB(t)
	defer cleanup()
	ctx := context.Background()

	d := New[testDoc](db.Collection("docs"))
	require.NoError(t, d.Upsert(ctx, "doc-1", &testDoc{ID: "doc-1", Name: "first"}))

	got, err := d.Get(ctx, "doc-1")
	require.NoError(t, err)
	require.Equal(t, "first", got.Name)

	// Upsert again replaces in place rather than duplicating.
	require.NoError(t, d.Upsert(ctx, "doc-1", &testDoc{ID: "doc-1", Name: "second"}))
	got, err = d.Get(ctx, "doc-1")
	require.NoError(t, err)
	require.Equal(t, "second", got.Name)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	db, cleanup := newTestDB(t)
	defer cleanup()
	ctx := context.Background()

	d := New[testDoc](db.Collection("docs"))
	_, err := d.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteIsIdempotent(t *testing.T) {
	db, cleanup := newTestDB(t)
	defer cleanup()
	ctx := context.Background()

	d := New[testDoc](db.Collection("docs"))
	require.NoError(t, d.Upsert(ctx, "doc-1", &testDoc{ID: "doc-1", Name: "x"}))
	require.NoError(t, d.Delete(ctx, "doc-1"))
	require.NoError(t, d.Delete(ctx, "doc-1"))
}

func TestIdempotenceStoreChecksThenInserts(t *testing.T) {
	db, cleanup := newTestDB(t)
	defer cleanup()
	ctx := context.Background()

	coll := db.Collection("idempotence")
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.M{"_id": 1},
	})
	require.NoError(t, err)

	store := NewIdempotenceStore(coll)

	first, err := store.CheckAndInsert(ctx, "corr-1", "file-1", "FileUploadValidationSuccess")
	require.NoError(t, err)
	require.True(t, first)

	second, err := store.CheckAndInsert(ctx, "corr-1", "file-1", "FileUploadValidationSuccess")
	require.NoError(t, err)
	require.False(t, second)
}

func TestOutboxPendingPublications(t *testing.T) {
	db, cleanup := newTestDB(t)
	defer cleanup()
	ctx := context.Background()

	d := New[PersistedEvent](db.Collection("outbox"))
	key := OutboxCompactionKey("file-uploads-received", "file-1")
	require.NoError(t, d.Upsert(ctx, key, &PersistedEvent{
		ID: key, Topic: "file-uploads-received", Key: "file-1",
		Type: "FileUploadReceived", Published: false,
	}))

	pending, err := PendingPublications(ctx, d)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, MarkPublished(ctx, d, key))
	pending, err = PendingPublications(ctx, d)
	require.NoError(t, err)
	require.Empty(t, pending)
}
