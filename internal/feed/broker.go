// Package feed delivers change notifications for the history record store.
//
// A Broker fans out Events to Subscriptions. Notifications carry no payload
// guarantee: subscribers are expected to re-read the full history whenever
// their callback fires. Each subscription has its own delivery goroutine and
// a one-slot mailbox, so a burst of changes collapses into at most one
// pending callback and a slow subscriber never blocks publishers.
//
// Events are produced either in-process by GORM callbacks (callbacks.go) or
// by PostgreSQL LISTEN/NOTIFY (pglisten.go).
package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// Op is the kind of row change.
type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
	// OpResync asks every subscriber to re-read, e.g. after a listener
	// reconnect that may have missed notifications.
	OpResync Op = "resync"
)

// Event describes one change. An empty OwnerID reaches every subscriber.
type Event struct {
	Op      Op
	ID      string
	OwnerID string
}

var (
	ErrClosed      = errors.New("feed: broker closed")
	ErrNilCallback = errors.New("feed: nil callback")
)

// Options tunes delivery pacing per subscription. MaxRPS <= 0 means
// unlimited.
type Options struct {
	MaxRPS float64
	Burst  int
}

// Broker fans out change events. The zero value is not usable; call
// NewBroker.
type Broker struct {
	opts Options

	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

// NewBroker creates a Broker.
func NewBroker(opts Options) *Broker {
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	return &Broker{opts: opts, subs: make(map[*Subscription]struct{})}
}

// Subscribe registers onChange for changes visible to ownerID. An empty
// ownerID subscribes to every change on the table. The returned handle must
// be closed to release its goroutine.
func (b *Broker) Subscribe(ownerID string, onChange func()) (*Subscription, error) {
	if onChange == nil {
		return nil, ErrNilCallback
	}
	ctx, cancel := context.WithCancel(context.Background())
	lim := rate.NewLimiter(rate.Inf, b.opts.Burst)
	if b.opts.MaxRPS > 0 {
		lim = rate.NewLimiter(rate.Limit(b.opts.MaxRPS), b.opts.Burst)
	}
	s := &Subscription{
		broker:   b,
		owner:    ownerID,
		onChange: onChange,
		mailbox:  make(chan struct{}, 1),
		limiter:  lim,
		ctx:      ctx,
		cancel:   cancel,
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		cancel()
		return nil, ErrClosed
	}
	b.subs[s] = struct{}{}
	n := len(b.subs)
	b.mu.Unlock()

	feedSubscribers.Set(float64(n))
	go s.run()
	return s, nil
}

// Publish notifies every matching subscriber. It never blocks.
func (b *Broker) Publish(ev Event) {
	feedEvents.WithLabelValues(string(ev.Op)).Inc()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for s := range b.subs {
		if !s.matches(ev) {
			continue
		}
		select {
		case s.mailbox <- struct{}{}:
		default:
			feedCoalesced.Inc()
		}
	}
}

// Len returns the number of live subscriptions.
func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close stops every subscription and rejects new ones.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		s.Close()
	}
}

func (b *Broker) remove(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s)
	n := len(b.subs)
	b.mu.Unlock()
	feedSubscribers.Set(float64(n))
}

// Subscription is a live registration returned by Broker.Subscribe.
type Subscription struct {
	broker   *Broker
	owner    string
	onChange func()
	mailbox  chan struct{}
	limiter  *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// Close stops delivery and releases the subscription. It is safe to call
// more than once and from inside the callback. It does not wait for an
// in-flight callback to return.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.cancel()
		s.broker.remove(s)
	})
}

// Done is closed once the subscription has been closed.
func (s *Subscription) Done() <-chan struct{} { return s.ctx.Done() }

func (s *Subscription) matches(ev Event) bool {
	return s.owner == "" || ev.OwnerID == "" || s.owner == ev.OwnerID
}

func (s *Subscription) run() {
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.mailbox:
		}
		if err := s.limiter.Wait(s.ctx); err != nil {
			return
		}
		s.deliver()
	}
}

func (s *Subscription) deliver() {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("owner", s.owner).Msg("feed: subscriber callback panicked")
		}
	}()
	s.onChange()
}
