package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteBackend(t *testing.T) *SQLiteBackend {
	t.Helper()
	b, err := NewSQLiteBackend(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func TestSQLiteBackendRoundTrip(t *testing.T) {
	b := newSQLiteBackend(t)
	ctx := context.Background()

	rec := &Record{
		SessionKey:       "key-1",
		ProtectedPayload: "payload-1",
		ExpiresAt:        time.Now().Add(time.Hour),
	}
	require.NoError(t, b.Put(ctx, rec))

	got, err := b.Get(ctx, "key-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "payload-1", got.ProtectedPayload)

	// Upsert replaces in place.
	rec.ProtectedPayload = "payload-2"
	require.NoError(t, b.Put(ctx, rec))
	got, err = b.Get(ctx, "key-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "payload-2", got.ProtectedPayload)

	require.NoError(t, b.Delete(ctx, "key-1"))
	got, err = b.Get(ctx, "key-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteBackendMiss(t *testing.T) {
	b := newSQLiteBackend(t)

	got, err := b.Get(context.Background(), "absent")
	require.NoError(t, err)
	assert.Nil(t, got)

	// Deleting an absent key is not an error.
	assert.NoError(t, b.Delete(context.Background(), "absent"))
}

func TestSQLiteBackendExpiry(t *testing.T) {
	b := newSQLiteBackend(t)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx, &Record{
		SessionKey:       "stale",
		ProtectedPayload: "p",
		ExpiresAt:        time.Now().Add(-time.Minute),
	}))
	require.NoError(t, b.Put(ctx, &Record{
		SessionKey:       "fresh",
		ProtectedPayload: "p",
		ExpiresAt:        time.Now().Add(time.Hour),
	}))

	got, err := b.Get(ctx, "stale")
	require.NoError(t, err)
	assert.Nil(t, got)

	purged, err := b.PurgeExpired(ctx)
	require.NoError(t, err)
	// The stale row was already removed on read.
	assert.Equal(t, int64(0), purged)

	got, err = b.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.NotNil(t, got)
}
