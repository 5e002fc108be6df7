package transport

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DialOptions tunes the reconnect loop.
type DialOptions struct {
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	BackoffJitter  time.Duration
}

func (o DialOptions) withDefaults() DialOptions {
	res := o
	if res.BackoffInitial <= 0 {
		res.BackoffInitial = 500 * time.Millisecond
	}
	if res.BackoffMax <= 0 {
		res.BackoffMax = 30 * time.Second
	}
	return res
}

// DialLoop keeps one live connection to address, redialing with exponential
// backoff plus jitter. serve is called with each established connection and
// returns when the link is unusable; DialLoop then redials. Returns when ctx
// is cancelled.
func DialLoop(ctx context.Context, tr Transport, address string, opts DialOptions, serve func(context.Context, Conn)) {
	opts = opts.withDefaults()
	backoff := opts.BackoffInitial
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		conn, err := tr.Dial(ctx, address)
		if err != nil {
			zap.L().Warn("dial failed",
				zap.String("kind", tr.Kind().String()),
				zap.String("addr", address),
				zap.Error(err))
			if !sleepCtx(ctx, withJitter(backoff, opts.BackoffJitter)) {
				return
			}
			backoff = nextBackoff(backoff, opts.BackoffMax)
			continue
		}
		zap.L().Info("connected",
			zap.String("kind", tr.Kind().String()),
			zap.String("addr", address))
		backoff = opts.BackoffInitial

		serve(ctx, conn)
		_ = conn.Close()
		zap.L().Warn("link lost", zap.String("addr", address))
		if !sleepCtx(ctx, withJitter(backoff, opts.BackoffJitter)) {
			return
		}
		backoff = nextBackoff(backoff, opts.BackoffMax)
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	cur *= 2
	if cur > max {
		cur = max
	}
	return cur
}

func withJitter(d, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return d
	}
	n := time.Now().UnixNano()
	return d + time.Duration(n%int64(jitter))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
