package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssoware/cascade/pkg/identity"
)

func newTestStore(t *testing.T, backend *MemoryBackend) *TicketStore {
	t.Helper()
	codec, err := NewPayloadCodec([]byte("test-secret"))
	require.NoError(t, err)

	store, err := NewTicketStore(TicketStoreOptions{
		Codec:        codec,
		GetSession:   backend.Get,
		StoreSession: backend.Put,
		RemoveSession: func(ctx context.Context, key string) error {
			return backend.Delete(ctx, key)
		},
		RenewSession: backend.Put,
		TTL:          time.Hour,
	})
	require.NoError(t, err)
	return store
}

func testTicket(st string) *Ticket {
	return &Ticket{
		Principal:  identity.Principal{Name: "alice", AuthType: "CAS", Roles: []string{"users"}},
		Properties: map[string]string{PropServiceTicket: st},
		IssuedAt:   time.Now(),
	}
}

func TestNewTicketStoreValidatesOptions(t *testing.T) {
	codec, err := NewPayloadCodec([]byte("s"))
	require.NoError(t, err)
	backend := NewMemoryBackend()

	_, err = NewTicketStore(TicketStoreOptions{GetSession: backend.Get, StoreSession: backend.Put})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewTicketStore(TicketStoreOptions{Codec: codec, StoreSession: backend.Put})
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewTicketStore(TicketStoreOptions{Codec: codec, GetSession: backend.Get})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestTicketStoreRoundTrip(t *testing.T) {
	backend := NewMemoryBackend()
	store := newTestStore(t, backend)
	ctx := context.Background()

	tk := testTicket("ST-100")
	key, err := store.Store(ctx, tk)
	require.NoError(t, err)
	assert.Equal(t, SessionKey("ST-100"), key)

	got, err := store.Retrieve(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "alice", got.Principal.Name)
	assert.Equal(t, "ST-100", got.ServiceTicket())

	// Storing again overwrites the same record rather than minting another.
	_, err = store.Store(ctx, tk)
	require.NoError(t, err)
	assert.Equal(t, 1, backend.Len())
}

func TestTicketStoreRetrieveMiss(t *testing.T) {
	store := newTestStore(t, NewMemoryBackend())

	got, err := store.Retrieve(context.Background(), "no-such-key")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTicketStoreStoreWithoutServiceTicket(t *testing.T) {
	store := newTestStore(t, NewMemoryBackend())

	_, err := store.Store(context.Background(), &Ticket{
		Principal:  identity.Principal{Name: "alice"},
		Properties: map[string]string{},
	})
	assert.ErrorIs(t, err, ErrNoServiceTicket)
}

func TestTicketStoreRemove(t *testing.T) {
	backend := NewMemoryBackend()
	store := newTestStore(t, backend)
	ctx := context.Background()

	key, err := store.Store(ctx, testTicket("ST-200"))
	require.NoError(t, err)

	require.NoError(t, store.Remove(ctx, key))

	got, err := store.Retrieve(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestTicketStoreOptionalCallbacksDegradeToNoOps(t *testing.T) {
	codec, err := NewPayloadCodec([]byte("s"))
	require.NoError(t, err)
	backend := NewMemoryBackend()

	store, err := NewTicketStore(TicketStoreOptions{
		Codec:        codec,
		GetSession:   backend.Get,
		StoreSession: backend.Put,
	})
	require.NoError(t, err)

	ctx := context.Background()
	key, err := store.Store(ctx, testTicket("ST-300"))
	require.NoError(t, err)

	assert.NoError(t, store.Remove(ctx, key))
	assert.NoError(t, store.Renew(ctx, key, testTicket("ST-300")))

	// The record survives: no callback, no effect.
	got, err := store.Retrieve(ctx, key)
	require.NoError(t, err)
	assert.NotNil(t, got)
}

func TestTicketStoreAsyncFormsPreserveOrder(t *testing.T) {
	backend := NewMemoryBackend()
	store := newTestStore(t, backend)
	ctx := context.Background()

	tk := testTicket("ST-400")

	// Submit store, retrieve, remove, retrieve back to back without waiting.
	storeCh := store.StoreAsync(ctx, tk)
	firstGet := store.RetrieveAsync(ctx, SessionKey("ST-400"))
	removeCh := store.RemoveAsync(ctx, SessionKey("ST-400"))
	secondGet := store.RetrieveAsync(ctx, SessionKey("ST-400"))

	stored := <-storeCh
	require.NoError(t, stored.Err)
	assert.Equal(t, SessionKey("ST-400"), stored.Key)

	// The first retrieve ran after the store, so it hits.
	first := <-firstGet
	require.NoError(t, first.Err)
	require.NotNil(t, first.Ticket)
	assert.Equal(t, "alice", first.Ticket.Principal.Name)

	require.NoError(t, <-removeCh)

	// The second retrieve ran after the remove, so it misses.
	second := <-secondGet
	require.NoError(t, second.Err)
	assert.Nil(t, second.Ticket)
}

func TestMemoryBackendExpiry(t *testing.T) {
	backend := NewMemoryBackend()
	ctx := context.Background()

	require.NoError(t, backend.Put(ctx, &Record{
		SessionKey:       "k",
		ProtectedPayload: "payload",
		ExpiresAt:        time.Now().Add(-time.Minute),
	}))

	rec, err := backend.Get(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, 0, backend.Len())
}
