package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ssoware/cascade/pkg/identity"
)

// deferredOp is one queued session action awaiting the real backend.
type deferredOp struct {
	action Action
	key    string
	ticket *Ticket
}

// DeferredStoreOptions configures a DeferredStore.
type DeferredStoreOptions struct {
	// Holder carries the request's ambient user; flushing a Get resolves
	// the stub principal placed there into the real identity, or forces it
	// back to anonymous.
	Holder *identity.Holder

	// SignOut, when set, is invoked on forced logout so the host can clear
	// and invalidate whatever session transport it owns (cookies, server
	// session state).
	SignOut func(ctx context.Context)

	Logger *slog.Logger
}

// DeferredStore implements the Store contract for hosts whose real backend
// is not available at the moment authentication decisions are made. Every
// operation is queued and answered with a stub; RunDeferredActions replays
// the queue once the backend exists. One instance serves one request.
type DeferredStore struct {
	holder  *identity.Holder
	signOut func(ctx context.Context)
	logger  *slog.Logger

	mu    sync.Mutex
	queue []deferredOp
}

// NewDeferredStore builds a deferred store around the given ambient-user
// holder.
func NewDeferredStore(opts DeferredStoreOptions) *DeferredStore {
	holder := opts.Holder
	if holder == nil {
		holder = identity.NewHolder()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DeferredStore{
		holder:  holder,
		signOut: opts.SignOut,
		logger:  logger,
	}
}

// Holder returns the ambient-user holder this store resolves into.
func (d *DeferredStore) Holder() *identity.Holder {
	return d.holder
}

// Pending returns the number of queued operations.
func (d *DeferredStore) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

func (d *DeferredStore) enqueue(op deferredOp) {
	d.mu.Lock()
	d.queue = append(d.queue, op)
	d.mu.Unlock()
}

// Retrieve queues a Get and answers with a stub ticket: a placeholder
// principal named after the session key, tagged so it cannot be mistaken
// for a validated user.
func (d *DeferredStore) Retrieve(ctx context.Context, key string) (*Ticket, error) {
	d.enqueue(deferredOp{action: ActionGet, key: key})
	stub := &Ticket{
		Principal:  identity.Principal{Name: key, AuthType: StubAuthType},
		Properties: map[string]string{},
	}
	d.holder.Set(stub.Principal)
	return stub, nil
}

// Store queues the ticket and returns its deterministic key immediately.
func (d *DeferredStore) Store(ctx context.Context, t *Ticket) (string, error) {
	key, err := KeyFor(t)
	if err != nil {
		return "", err
	}
	d.enqueue(deferredOp{action: ActionStore, key: key, ticket: t})
	return key, nil
}

// Remove queues a removal.
func (d *DeferredStore) Remove(ctx context.Context, key string) error {
	d.enqueue(deferredOp{action: ActionRemove, key: key})
	return nil
}

// Renew queues a renewal.
func (d *DeferredStore) Renew(ctx context.Context, key string, t *Ticket) error {
	d.enqueue(deferredOp{action: ActionRenew, key: key, ticket: t})
	return nil
}

// opAt returns the queued operation at index i and whether one exists. The
// queue may grow while a flush is running, so the length is re-read every
// time.
func (d *DeferredStore) opAt(i int) (deferredOp, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.queue) {
		return deferredOp{}, false
	}
	return d.queue[i], true
}

// RunDeferredActions replays the queue against the now-available backend.
// Iteration is by index, not by snapshot: resolving a Get can enqueue
// further cleanup (an implicit logout), and those operations must complete
// in the same pass. The queue is cleared when the pass finishes.
func (d *DeferredStore) RunDeferredActions(ctx context.Context, backend Store) error {
	var firstErr error
	for i := 0; ; i++ {
		op, ok := d.opAt(i)
		if !ok {
			break
		}

		var err error
		switch op.action {
		case ActionGet:
			d.resolveGet(ctx, backend, op.key)
		case ActionStore:
			_, err = backend.Store(ctx, op.ticket)
		case ActionRemove:
			err = backend.Remove(ctx, op.key)
		case ActionRenew:
			err = backend.Renew(ctx, op.key, op.ticket)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	d.mu.Lock()
	d.queue = nil
	d.mu.Unlock()
	return firstErr
}

// resolveGet validates the stub left by Retrieve against the backend. Every
// failure mode resolves to a forced logout rather than an error: when the
// stub and the stored state disagree, de-authenticating is the safe default.
func (d *DeferredStore) resolveGet(ctx context.Context, backend Store, key string) {
	current := d.holder.Principal()

	// Some other mechanism already populated the user; leave it alone.
	if current.AuthType != StubAuthType {
		return
	}

	// A stub naming a different session key means the placeholder is stale
	// or has been tampered with.
	if current.Name != key {
		d.logger.Warn("deferred session stub mismatch, signing out",
			"expected", key, "stub", current.Name)
		d.forceLogout(ctx, key)
		return
	}

	t, err := backend.Retrieve(ctx, key)
	if err != nil || t == nil {
		d.forceLogout(ctx, key)
		return
	}
	if t.Expired(time.Now()) {
		d.forceLogout(ctx, key)
		return
	}

	others := d.secondaryIdentities(t)
	d.holder.Set(t.Principal, others...)
}

// secondaryIdentities decodes the identity list carried in the ticket's
// property bag, dropping the primary entry which the holder carries
// separately.
func (d *DeferredStore) secondaryIdentities(t *Ticket) []identity.Principal {
	serialized := t.Properties[PropIdentityList]
	if serialized == "" {
		return nil
	}
	list, err := identity.DecodeList(serialized)
	if err != nil {
		d.logger.Warn("ignoring undecodable identity list", "error", err)
		return nil
	}

	others := make([]identity.Principal, 0, len(list))
	for _, p := range list {
		if p.Name == t.Principal.Name && p.AuthType == t.Principal.AuthType {
			continue
		}
		others = append(others, p)
	}
	return others
}

// forceLogout enqueues backend cleanup (processed later in the same flush
// pass), notifies the host, and replaces the ambient user with the anonymous
// principal. No error reaches the caller; logout is the resolution.
func (d *DeferredStore) forceLogout(ctx context.Context, key string) {
	d.enqueue(deferredOp{action: ActionRemove, key: key})
	if d.signOut != nil {
		d.signOut(ctx)
	}
	d.holder.Clear()
}
