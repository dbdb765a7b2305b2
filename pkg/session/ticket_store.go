package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// TicketStoreOptions configures a TicketStore. GetSession and StoreSession
// are mandatory; Remove and Renew degrade to no-ops when their callbacks are
// unset.
type TicketStoreOptions struct {
	Codec *PayloadCodec

	GetSession    func(ctx context.Context, key string) (*Record, error)
	StoreSession  func(ctx context.Context, rec *Record) error
	RemoveSession func(ctx context.Context, key string) error
	RenewSession  func(ctx context.Context, rec *Record) error

	// TTL bounds records whose ticket carries no expiry of its own.
	TTL time.Duration
}

// TicketStore implements the Store contract over application-supplied
// backend callbacks, encoding tickets through a PayloadCodec on the way in
// and out.
type TicketStore struct {
	opts TicketStoreOptions

	// Chains the async forms so they execute one at a time in submission
	// order, matching the ordering of the blocking forms.
	asyncMu   sync.Mutex
	asyncTail chan struct{}
}

// NewTicketStore validates the options and builds a store. Missing mandatory
// callbacks surface here, not on first use.
func NewTicketStore(opts TicketStoreOptions) (*TicketStore, error) {
	if opts.Codec == nil {
		return nil, fmt.Errorf("%w: payload codec", ErrNotConfigured)
	}
	if opts.GetSession == nil {
		return nil, fmt.Errorf("%w: GetSession", ErrNotConfigured)
	}
	if opts.StoreSession == nil {
		return nil, fmt.Errorf("%w: StoreSession", ErrNotConfigured)
	}
	return &TicketStore{opts: opts}, nil
}

// Retrieve loads and decodes the ticket stored under key. A missing record
// is a cache miss, not an error.
func (s *TicketStore) Retrieve(ctx context.Context, key string) (*Ticket, error) {
	rec, err := s.opts.GetSession(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("session: retrieve %q: %w", key, err)
	}
	if rec == nil || rec.ProtectedPayload == "" {
		return nil, nil
	}

	t, err := s.opts.Codec.Decode(rec.ProtectedPayload)
	if err != nil {
		return nil, fmt.Errorf("session: retrieve %q: %w", key, err)
	}
	if t.ExpiresAt.IsZero() {
		t.ExpiresAt = rec.ExpiresAt
	}
	return t, nil
}

// Store persists the ticket under its deterministic session key and returns
// that key.
func (s *TicketStore) Store(ctx context.Context, t *Ticket) (string, error) {
	key, err := KeyFor(t)
	if err != nil {
		return "", err
	}

	payload, err := s.opts.Codec.Encode(t)
	if err != nil {
		return "", err
	}

	rec := &Record{
		SessionKey:       key,
		ProtectedPayload: payload,
		ExpiresAt:        ticketExpiry(t, s.opts.TTL, time.Now()),
	}
	if err := s.opts.StoreSession(ctx, rec); err != nil {
		return "", fmt.Errorf("session: store %q: %w", key, err)
	}
	return key, nil
}

// Remove deletes the record under key. A no-op when no removal callback is
// configured.
func (s *TicketStore) Remove(ctx context.Context, key string) error {
	if s.opts.RemoveSession == nil {
		return nil
	}
	if err := s.opts.RemoveSession(ctx, key); err != nil {
		return fmt.Errorf("session: remove %q: %w", key, err)
	}
	return nil
}

// Renew re-encodes the ticket and extends the record under key. A no-op when
// no renewal callback is configured.
func (s *TicketStore) Renew(ctx context.Context, key string, t *Ticket) error {
	if s.opts.RenewSession == nil {
		return nil
	}

	payload, err := s.opts.Codec.Encode(t)
	if err != nil {
		return err
	}
	rec := &Record{
		SessionKey:       key,
		ProtectedPayload: payload,
		ExpiresAt:        ticketExpiry(t, s.opts.TTL, time.Now()),
	}
	if err := s.opts.RenewSession(ctx, rec); err != nil {
		return fmt.Errorf("session: renew %q: %w", key, err)
	}
	return nil
}

// RetrieveResult carries the outcome of an async Retrieve.
type RetrieveResult struct {
	Ticket *Ticket
	Err    error
}

// StoreResult carries the outcome of an async Store.
type StoreResult struct {
	Key string
	Err error
}

// runAsync schedules fn to run after every previously submitted async
// operation, without blocking the submitter.
func (s *TicketStore) runAsync(fn func()) {
	s.asyncMu.Lock()
	prev := s.asyncTail
	done := make(chan struct{})
	s.asyncTail = done
	s.asyncMu.Unlock()

	go func() {
		defer close(done)
		if prev != nil {
			<-prev
		}
		fn()
	}()
}

// RetrieveAsync is a thin non-blocking form of Retrieve for callers that
// cannot block. Async operations run one at a time in submission order, so
// they observe the same ordering as the blocking forms.
func (s *TicketStore) RetrieveAsync(ctx context.Context, key string) <-chan RetrieveResult {
	out := make(chan RetrieveResult, 1)
	s.runAsync(func() {
		t, err := s.Retrieve(ctx, key)
		out <- RetrieveResult{Ticket: t, Err: err}
	})
	return out
}

// StoreAsync is the non-blocking form of Store.
func (s *TicketStore) StoreAsync(ctx context.Context, t *Ticket) <-chan StoreResult {
	out := make(chan StoreResult, 1)
	s.runAsync(func() {
		key, err := s.Store(ctx, t)
		out <- StoreResult{Key: key, Err: err}
	})
	return out
}

// RemoveAsync is the non-blocking form of Remove.
func (s *TicketStore) RemoveAsync(ctx context.Context, key string) <-chan error {
	out := make(chan error, 1)
	s.runAsync(func() { out <- s.Remove(ctx, key) })
	return out
}

// RenewAsync is the non-blocking form of Renew.
func (s *TicketStore) RenewAsync(ctx context.Context, key string, t *Ticket) <-chan error {
	out := make(chan error, 1)
	s.runAsync(func() { out <- s.Renew(ctx, key, t) })
	return out
}
