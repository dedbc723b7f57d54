package limits

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"messenger-service/internal/observability"
)

// Config holds limiter configuration.
type Config struct {
	// MaxConnections is the number of concurrent connections allowed per user.
	MaxConnections int
	// Counter backs the connection counts. Defaults to a MemoryCounter.
	Counter Counter

	// MessageRate is the sustained inbound frames/sec per user; 0 disables the check.
	MessageRate  float64
	MessageBurst int
	// IdleTTL is how long an unused per-user bucket is kept (default 10 minutes).
	IdleTTL time.Duration

	Logger zerolog.Logger
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter bounds concurrent connections and inbound message rate per user.
type Limiter struct {
	counter        Counter
	maxConnections int64

	messageRate  rate.Limit
	messageBurst int
	idleTTL      time.Duration
	mu           sync.Mutex
	buckets      map[int64]*bucket

	log zerolog.Logger
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	if cfg.Counter == nil {
		cfg.Counter = NewMemoryCounter()
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = 10 * time.Minute
	}
	return &Limiter{
		counter:        cfg.Counter,
		maxConnections: int64(cfg.MaxConnections),
		messageRate:    rate.Limit(cfg.MessageRate),
		messageBurst:   cfg.MessageBurst,
		idleTTL:        cfg.IdleTTL,
		buckets:        make(map[int64]*bucket),
		log:            cfg.Logger.With().Str("component", "limiter").Logger(),
	}
}

func connKey(userID int64) string {
	return fmt.Sprintf("ws_conn_%d", userID)
}

// AdmitConnection reserves a connection slot for the user. It admits while the count
// after reservation is at most MaxConnections. A counter failure admits the connection.
func (l *Limiter) AdmitConnection(ctx context.Context, userID int64) bool {
	key := connKey(userID)
	n, err := l.counter.Incr(ctx, key)
	if err != nil {
		observability.IncLimiterError()
		l.log.Warn().Err(err).Int64("user_id", userID).Msg("connection counter unavailable, admitting")
		return true
	}
	if n > l.maxConnections {
		if _, err := l.counter.Decr(ctx, key); err != nil {
			observability.IncLimiterError()
			l.log.Warn().Err(err).Int64("user_id", userID).Msg("connection counter rollback failed")
		}
		observability.IncLimiterRejected("connection")
		l.log.Info().Int64("user_id", userID).Int64("max", l.maxConnections).Msg("connection limit reached")
		return false
	}
	return true
}

// Release returns a slot taken by AdmitConnection.
func (l *Limiter) Release(ctx context.Context, userID int64) {
	if _, err := l.counter.Decr(ctx, connKey(userID)); err != nil {
		observability.IncLimiterError()
		l.log.Warn().Err(err).Int64("user_id", userID).Msg("connection counter release failed")
	}
}

// AdmitMessage reports whether the user may send another frame now.
func (l *Limiter) AdmitMessage(userID int64) bool {
	if l.messageRate <= 0 {
		return true
	}

	l.mu.Lock()
	b, ok := l.buckets[userID]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.messageRate, l.messageBurst)}
		l.buckets[userID] = b
	}
	b.lastSeen = time.Now()
	l.mu.Unlock()

	if !b.limiter.Allow() {
		observability.IncLimiterRejected("message")
		return false
	}
	return true
}

// Sweep drops message buckets idle since before now-IdleTTL.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for id, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.idleTTL {
			delete(l.buckets, id)
			removed++
		}
	}
	return removed
}

// Run sweeps idle buckets until ctx is done.
func (l *Limiter) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := l.Sweep(now); n > 0 {
				l.log.Debug().Int("removed", n).Msg("swept idle message buckets")
			}
		}
	}
}
