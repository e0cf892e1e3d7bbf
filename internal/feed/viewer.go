package feed

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-sitegen-backend/internal/domain"
)

// Lister reads the full, newest-first history of an owner.
type Lister interface {
	List(ctx context.Context, ownerID string) ([]domain.Generation, error)
}

// Viewer keeps one owner's in-memory history in step with the store. Every
// notification triggers a full re-read; incremental patches are never
// applied, so concurrent viewers converge on the same list.
type Viewer struct {
	lister   Lister
	owner    string
	onUpdate func([]domain.Generation)
	timeout  time.Duration

	sub    *Subscription
	ctx    context.Context
	cancel context.CancelFunc

	refreshMu sync.Mutex // serializes re-reads

	mu      sync.RWMutex
	items   []domain.Generation
	version uint64
}

// OpenViewer subscribes to b for ownerID and performs the initial read.
// onUpdate, if non-nil, receives a copy of the list after every successful
// read, including the initial one. Close must be called to release the
// subscription.
func OpenViewer(ctx context.Context, b *Broker, l Lister, ownerID string, onUpdate func([]domain.Generation)) (*Viewer, error) {
	vctx, cancel := context.WithCancel(context.Background())
	v := &Viewer{
		lister:   l,
		owner:    ownerID,
		onUpdate: onUpdate,
		timeout:  10 * time.Second,
		ctx:      vctx,
		cancel:   cancel,
	}

	// Subscribe before the first read so no change can slip in between.
	sub, err := b.Subscribe(ownerID, v.onChange)
	if err != nil {
		cancel()
		return nil, err
	}
	v.sub = sub
	// Broker.Close ends the subscription; the viewer follows it.
	context.AfterFunc(sub.ctx, cancel)

	if err := v.Refresh(ctx); err != nil {
		v.Close()
		return nil, err
	}
	return v, nil
}

// Refresh re-reads the history and publishes it to onUpdate. On error the
// previous snapshot is kept.
func (v *Viewer) Refresh(ctx context.Context) error {
	v.refreshMu.Lock()
	defer v.refreshMu.Unlock()

	items, err := v.lister.List(ctx, v.owner)
	if err != nil {
		return err
	}

	v.mu.Lock()
	v.items = items
	v.version++
	v.mu.Unlock()

	if v.onUpdate != nil {
		v.onUpdate(clone(items))
	}
	return nil
}

// Snapshot returns a copy of the current list.
func (v *Viewer) Snapshot() []domain.Generation {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return clone(v.items)
}

// Version counts successful re-reads.
func (v *Viewer) Version() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.version
}

// Done is closed once the viewer or its subscription has been closed.
func (v *Viewer) Done() <-chan struct{} { return v.ctx.Done() }

// Close releases the subscription. Safe to call more than once.
func (v *Viewer) Close() {
	v.cancel()
	if v.sub != nil {
		v.sub.Close()
	}
}

func (v *Viewer) onChange() {
	ctx, cancel := context.WithTimeout(v.ctx, v.timeout)
	defer cancel()
	if err := v.Refresh(ctx); err != nil && v.ctx.Err() == nil {
		log.Warn().Err(err).Str("owner", v.owner).Msg("feed: history refresh failed")
	}
}

func clone(in []domain.Generation) []domain.Generation {
	out := make([]domain.Generation, len(in))
	copy(out, in)
	return out
}
