package telegram

import (
	"testing"
	"time"

	coreconfig "github.com/m3rciful/songbot/core/config"
)

func TestDefaultMiddlewaresRateLimitToggle(t *testing.T) {
	names := func(mws []Middleware) []string {
		out := make([]string, 0, len(mws))
		for _, m := range mws {
			out = append(out, m.Name)
		}
		return out
	}

	if got := names(DefaultMiddlewares(nil, nil)); len(got) != 3 || got[0] != "recover" {
		t.Fatalf("without config = %v", got)
	}

	cfg := &coreconfig.Config{RateLimit: coreconfig.RateLimitConfig{
		IntervalMS:     1500,
		ExcludeUpdates: []string{" Callback "},
	}}
	got := names(DefaultMiddlewares(cfg, nil))
	if len(got) != 4 || got[1] != "rate_limit" {
		t.Fatalf("with rate limit = %v", got)
	}

	opts, ok := rateLimitOptions(cfg, nil)
	if !ok || opts.Interval != 1500*time.Millisecond {
		t.Fatalf("options = %+v %v", opts, ok)
	}
	if _, ok := opts.Exclude["callback"]; !ok {
		t.Fatalf("exclude = %v", opts.Exclude)
	}
}
