package session

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Open builds the Store selected by opts.Driver. The memory store gets a
// janitor bound to ctx.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverMemory:
		m := NewMemoryStore(opts.TTL, opts.MaxEntries)
		m.StartJanitor(ctx, janitorInterval(opts.TTL))
		return m, nil
	case DriverRedis:
		return DialRedis(ctx, opts)
	default:
		return nil, fmt.Errorf("session: unknown driver %q", opts.Driver)
	}
}

func janitorInterval(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	interval := ttl / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	return interval
}
