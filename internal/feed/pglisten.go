package feed

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

// Publisher receives decoded change events. *Broker implements it.
type Publisher interface {
	Publish(ev Event)
}

// notifyConn is the part of *pgx.Conn the listener uses.
type notifyConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

func pgxConnect(ctx context.Context, dsn string) (notifyConn, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Listener relays PostgreSQL NOTIFY payloads of the form "op:id:user_id"
// to a Broker.
type Listener struct {
	DSN     string
	Channel string
	Broker  Publisher

	// MinBackoff / MaxBackoff bound the reconnect delay.
	MinBackoff time.Duration
	MaxBackoff time.Duration

	connect func(ctx context.Context, dsn string) (notifyConn, error)
	after   func(time.Duration) <-chan time.Time
}

// Run listens until ctx is cancelled, reconnecting with exponential backoff.
// After every reconnect it publishes OpResync because notifications sent
// while disconnected are lost.
func (l *Listener) Run(ctx context.Context) error {
	minB, maxB := l.MinBackoff, l.MaxBackoff
	if minB <= 0 {
		minB = 500 * time.Millisecond
	}
	if maxB < minB {
		maxB = 30 * time.Second
	}
	after := l.after
	if after == nil {
		after = time.After
	}
	backoff := minB
	first := true
	for {
		err := l.listen(ctx, func() {
			backoff = minB
			if !first {
				l.Broker.Publish(Event{Op: OpResync})
			}
			first = false
		})
		if ctx.Err() != nil {
			return nil
		}
		log.Warn().Err(err).Dur("retry_in", backoff).Str("channel", l.Channel).Msg("feed: postgres listener disconnected")
		select {
		case <-ctx.Done():
			return nil
		case <-after(backoff):
		}
		backoff *= 2
		if backoff > maxB {
			backoff = maxB
		}
	}
}

func (l *Listener) listen(ctx context.Context, onReady func()) error {
	connect := l.connect
	if connect == nil {
		connect = pgxConnect
	}
	conn, err := connect(ctx, l.DSN)
	if err != nil {
		return err
	}
	defer conn.Close(context.Background())

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.Channel}.Sanitize()); err != nil {
		return err
	}
	onReady()
	log.Info().Str("channel", l.Channel).Msg("feed: listening for history changes")

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		ev, perr := ParsePayload(n.Payload)
		if perr != nil {
			log.Warn().Err(perr).Str("payload", n.Payload).Msg("feed: bad notification payload")
			ev = Event{Op: OpResync}
		}
		l.Broker.Publish(ev)
	}
}

// ParsePayload decodes "op:id:user_id". The owner part may itself contain
// colons.
func ParsePayload(s string) (Event, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return Event{}, fmt.Errorf("feed: payload %q: want op:id:user_id", s)
	}
	op := Op(strings.ToLower(parts[0]))
	switch op {
	case OpInsert, OpUpdate, OpDelete:
	default:
		return Event{}, errors.New("feed: unknown op " + parts[0])
	}
	if parts[1] == "" {
		return Event{}, fmt.Errorf("feed: payload %q: empty id", s)
	}
	return Event{Op: op, ID: parts[1], OwnerID: parts[2]}, nil
}
