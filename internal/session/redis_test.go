package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/m3rciful/songbot/internal/catalog"

	tele "gopkg.in/telebot.v4"
)

func newRedisStore(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "", ttl), mr
}

func TestRedisStoreKey(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	store := NewRedisStore(client, "", time.Hour)
	if got := store.key(42); got != "songbot:session:42" {
		t.Fatalf("key = %s", got)
	}
	custom := NewRedisStore(client, "test:", time.Hour)
	if got := custom.key(-7); got != "test:-7" {
		t.Fatalf("key = %s", got)
	}
}

func TestRedisStoreSetGet(t *testing.T) {
	store, mr := newRedisStore(t, time.Hour)
	ctx := context.Background()

	if s, err := store.Get(ctx, 1); err != nil || s != nil {
		t.Fatalf("missing session: s=%+v err=%v", s, err)
	}

	want := Session{
		Language:      "French",
		Format:        catalog.FormatAudio,
		PendingStatus: &tele.StoredMessage{MessageID: "12", ChatID: 1},
	}
	if err := store.Set(ctx, 1, want); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := store.Get(ctx, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Language != "French" || got.Format != catalog.FormatAudio || got.State() != StateAwaitingQuery {
		t.Fatalf("unexpected session %+v", got)
	}
	if got.PendingStatus == nil || got.PendingStatus.MessageID != "12" {
		t.Fatalf("pending status lost: %+v", got.PendingStatus)
	}
	if got.UpdatedAt.IsZero() {
		t.Fatal("updated_at not stamped")
	}
	if ttl := mr.TTL(store.key(1)); ttl != time.Hour {
		t.Fatalf("ttl = %v", ttl)
	}
}

func TestRedisStoreSlidingTTL(t *testing.T) {
	store, mr := newRedisStore(t, time.Hour)
	ctx := context.Background()

	if err := store.Set(ctx, 5, Session{Language: "Thai"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	mr.FastForward(40 * time.Minute)
	if err := store.Set(ctx, 5, Session{Language: "Thai", Format: catalog.FormatVideo}); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	mr.FastForward(40 * time.Minute)
	if s, err := store.Get(ctx, 5); err != nil || s == nil || s.Format != catalog.FormatVideo {
		t.Fatalf("refreshed session expired: s=%+v err=%v", s, err)
	}

	mr.FastForward(time.Hour)
	if s, err := store.Get(ctx, 5); err != nil || s != nil {
		t.Fatalf("expected expiry: s=%+v err=%v", s, err)
	}
}

func TestRedisStoreClear(t *testing.T) {
	store, mr := newRedisStore(t, time.Hour)
	ctx := context.Background()

	if err := store.Set(ctx, 9, Session{Language: "Greek"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := store.Clear(ctx, 9); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if mr.Exists(store.key(9)) {
		t.Fatal("key still present")
	}
	if err := store.Clear(ctx, 9); err != nil {
		t.Fatalf("clear twice: %v", err)
	}
	if s, _ := store.Get(ctx, 9); s != nil {
		t.Fatalf("cleared session returned %+v", s)
	}
}

func TestRedisStoreCorruptValue(t *testing.T) {
	store, mr := newRedisStore(t, time.Hour)
	if err := mr.Set(store.key(3), "{"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := store.Get(context.Background(), 3); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestRedisStoreServerDown(t *testing.T) {
	store, mr := newRedisStore(t, time.Hour)
	mr.Close()
	if _, err := store.Get(context.Background(), 1); err == nil {
		t.Fatal("expected error from stopped server")
	}
}

func TestDialRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	store, err := DialRedis(context.Background(), Options{RedisAddr: mr.Addr(), RedisPrefix: "t:", TTL: time.Minute})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer store.Close()
	if err := store.Set(context.Background(), 2, Session{Language: "Dutch"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if !mr.Exists("t:2") {
		t.Fatalf("expected key t:2, have %v", mr.Keys())
	}

	addr := mr.Addr()
	mr.Close()
	if _, err := DialRedis(context.Background(), Options{RedisAddr: addr}); err == nil {
		t.Fatal("expected ping failure")
	}
}

func TestDecodeSession(t *testing.T) {
	s, err := decodeSession([]byte(`{"language":"French","format":"audio","pending_status":{"message_id":"5","chat_id":9}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if s.Language != "French" || s.Format != "audio" {
		t.Fatalf("unexpected session %+v", s)
	}
	if s.PendingStatus == nil || s.PendingStatus.MessageID != "5" || s.PendingStatus.ChatID != 9 {
		t.Fatalf("unexpected pending status %+v", s.PendingStatus)
	}
	if _, err := decodeSession([]byte("{")); err == nil {
		t.Fatal("expected decode error")
	}
}
