// Package cache keeps in-process caches coherent across processes using
// PostgreSQL LISTEN/NOTIFY.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"docnum/pkg/logger"
)

const (
	reconnectDelay = time.Second
	waitTimeout    = 30 * time.Second
)

// InvalidationFunc receives the payload of one notification.
type InvalidationFunc func(payload string)

// Listener subscribes to one channel on a dedicated connection and fans
// notifications out to registered handlers.
type Listener struct {
	pool    *pgxpool.Pool
	channel string

	handlersMu sync.RWMutex
	handlers   []InvalidationFunc

	statsMu  sync.Mutex
	received int64
	lastAt   time.Time

	lifecycleMu sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	started     bool
}

// Stats reports listener activity.
type Stats struct {
	Channel  string
	Received int64
	LastAt   time.Time
}

// NewListener creates a listener for channel.
func NewListener(pool *pgxpool.Pool, channel string) *Listener {
	return &Listener{pool: pool, channel: channel}
}

// OnInvalidation registers fn. Handlers run on the listener goroutine.
func (l *Listener) OnInvalidation(fn InvalidationFunc) {
	l.handlersMu.Lock()
	defer l.handlersMu.Unlock()
	l.handlers = append(l.handlers, fn)
}

// Start begins listening in the background.
func (l *Listener) Start(ctx context.Context) {
	l.lifecycleMu.Lock()
	defer l.lifecycleMu.Unlock()
	if l.started {
		return
	}
	l.ctx, l.cancel = context.WithCancel(context.WithoutCancel(ctx))
	l.started = true

	l.wg.Add(1)
	go l.listenLoop()
}

// Stop cancels the listener and waits for it to exit.
func (l *Listener) Stop() {
	l.lifecycleMu.Lock()
	if !l.started {
		l.lifecycleMu.Unlock()
		return
	}
	cancel := l.cancel
	l.started = false
	l.cancel = nil
	l.lifecycleMu.Unlock()

	cancel()
	l.wg.Wait()
}

// Stats returns a snapshot of listener activity.
func (l *Listener) Stats() Stats {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	return Stats{Channel: l.channel, Received: l.received, LastAt: l.lastAt}
}

func (l *Listener) listenLoop() {
	defer l.wg.Done()

	for {
		if l.ctx.Err() != nil {
			return
		}

		conn, err := l.pool.Acquire(l.ctx)
		if err != nil {
			if l.ctx.Err() == nil {
				logger.Error(l.ctx, "failed to acquire connection for LISTEN", "channel", l.channel, "error", err)
				l.sleep()
			}
			continue
		}

		if _, err := conn.Exec(l.ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
			conn.Release()
			if l.ctx.Err() == nil {
				logger.Error(l.ctx, "failed to LISTEN", "channel", l.channel, "error", err)
				l.sleep()
			}
			continue
		}
		logger.Info(l.ctx, "listening for cache invalidations", "channel", l.channel)

		err = l.wait(conn.Conn())
		// A connection that saw an error may still be subscribed; do not reuse it.
		if err != nil {
			_ = conn.Conn().Close(context.Background())
		}
		conn.Release()
	}
}

// wait blocks on notifications until the context ends or the connection fails.
func (l *Listener) wait(conn *pgx.Conn) error {
	for {
		ctx, cancel := context.WithTimeout(l.ctx, waitTimeout)
		n, err := conn.WaitForNotification(ctx)
		cancel()

		if err != nil {
			if l.ctx.Err() != nil {
				return l.ctx.Err()
			}
			if pgconn.Timeout(err) {
				continue
			}
			logger.Warn(l.ctx, "lost LISTEN connection", "channel", l.channel, "error", err)
			return fmt.Errorf("wait for notification: %w", err)
		}
		l.dispatch(n)
	}
}

func (l *Listener) dispatch(n *pgconn.Notification) {
	if n.Channel != l.channel {
		return
	}
	logger.Debug(l.ctx, "received invalidation", "channel", n.Channel, "payload", n.Payload)

	l.statsMu.Lock()
	l.received++
	l.lastAt = time.Now()
	l.statsMu.Unlock()

	l.handlersMu.RLock()
	handlers := append([]InvalidationFunc(nil), l.handlers...)
	l.handlersMu.RUnlock()
	for _, fn := range handlers {
		fn(n.Payload)
	}
}

func (l *Listener) sleep() {
	select {
	case <-l.ctx.Done():
	case <-time.After(reconnectDelay):
	}
}
