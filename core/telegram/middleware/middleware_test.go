package middleware

import (
	"errors"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"
)

type storeContext struct {
	tele.Context
	updateID int
	text     string
	user     *tele.User
	store    map[string]any
	sent     []any
}

func newStoreContext(userID int64) *storeContext {
	return &storeContext{updateID: 7, user: &tele.User{ID: userID}, store: map[string]any{}}
}

func (c *storeContext) Sender() *tele.User      { return c.user }
func (c *storeContext) Chat() *tele.Chat        { return &tele.Chat{ID: c.user.ID} }
func (c *storeContext) Text() string            { return c.text }
func (c *storeContext) Get(key string) any      { return c.store[key] }
func (c *storeContext) Set(key string, val any) { c.store[key] = val }

func (c *storeContext) Update() tele.Update {
	return tele.Update{ID: c.updateID, Message: &tele.Message{Text: c.text}}
}

func (c *storeContext) Send(what any, _ ...any) error {
	c.sent = append(c.sent, what)
	return nil
}

func TestAdminOnlyRejectsOthers(t *testing.T) {
	rejected := 0
	mw := AdminOnlyMiddleware(AdminOptions{
		AdminID: 42,
		OnReject: func(tele.Context) error {
			rejected++
			return nil
		},
	})
	handled := 0
	h := mw(func(tele.Context) error {
		handled++
		return nil
	})

	if err := h(newStoreContext(42)); err != nil {
		t.Fatalf("admin: %v", err)
	}
	if err := h(newStoreContext(7)); err != nil {
		t.Fatalf("other: %v", err)
	}
	if handled != 1 || rejected != 1 {
		t.Fatalf("handled=%d rejected=%d, want 1 and 1", handled, rejected)
	}
}

func TestAdminOnlyDisabledWithoutAdmin(t *testing.T) {
	called := false
	h := AdminOnlyMiddleware(AdminOptions{})(func(tele.Context) error {
		called = true
		return nil
	})
	if err := h(newStoreContext(7)); err != nil || !called {
		t.Fatalf("called=%v err=%v", called, err)
	}
}

func TestRecoverReturnsPanicError(t *testing.T) {
	h := RecoverMiddleware(func(tele.Context) error {
		panic("boom")
	})
	err := h(newStoreContext(1))
	var pe *PanicError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PanicError, got %v", err)
	}
	if pe.Value != "boom" || pe.Code() != "PANIC" {
		t.Fatalf("unexpected panic error: %+v", pe)
	}
}

func TestRecoverPassesThroughErrors(t *testing.T) {
	want := errors.New("plain")
	h := RecoverMiddleware(func(tele.Context) error { return want })
	if err := h(newStoreContext(1)); !errors.Is(err, want) {
		t.Fatalf("err = %v", err)
	}
}

func TestMessageMetricsCountsReplies(t *testing.T) {
	c := newStoreContext(1)
	h := MessageMetricsMiddleware(func(c tele.Context) error {
		if err := c.Send("plain"); err != nil {
			return err
		}
		return c.Send("menu", &tele.ReplyMarkup{})
	})
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	msgs, kb := GetCounters(c)
	if msgs != 2 || !kb {
		t.Fatalf("messages=%d kb=%v, want 2 and true", msgs, kb)
	}
	if len(c.sent) != 2 {
		t.Fatalf("sent %d messages", len(c.sent))
	}
}

func TestGetCountersDefaults(t *testing.T) {
	msgs, kb := GetCounters(newStoreContext(1))
	if msgs != 0 || kb {
		t.Fatalf("messages=%d kb=%v", msgs, kb)
	}
}

func TestSeenUpdatesExpires(t *testing.T) {
	s := &seenUpdates{ttl: time.Second, seen: map[int]time.Time{}}
	now := time.Unix(100, 0)
	if !s.first(1, now) {
		t.Fatal("first sighting should log")
	}
	if s.first(1, now.Add(500*time.Millisecond)) {
		t.Fatal("repeat within ttl should be skipped")
	}
	if !s.first(1, now.Add(2*time.Second)) {
		t.Fatal("entry should expire after ttl")
	}
}

func alwaysSample(t *testing.T) {
	t.Helper()
	prevSample, prevSeen := sampleDebug, received
	sampleDebug = func() bool { return true }
	received = &seenUpdates{ttl: 10 * time.Second, seen: map[int]time.Time{}}
	t.Cleanup(func() {
		sampleDebug, received = prevSample, prevSeen
	})
}

func TestLoggerMiddlewareStoresRID(t *testing.T) {
	alwaysSample(t)
	c := newStoreContext(5)
	c.updateID = 101
	c.text = "never gonna give you up"
	called := false
	h := LoggerMiddleware(func(tele.Context) error {
		called = true
		return nil
	})
	if err := h(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	rid, _ := c.Get("rid").(string)
	if rid == "" || !called {
		t.Fatalf("rid=%q called=%v", rid, called)
	}
	if received.first(101, time.Now()) {
		t.Fatal("receipt for update 101 was not recorded")
	}
}

func TestReceiptAttrsIncludeMessageText(t *testing.T) {
	c := newStoreContext(5)
	c.text = "song query"
	c.user.Username = "listener"
	got := map[string]string{}
	for _, a := range receiptAttrs(c) {
		got[a.Key] = a.Value.String()
	}
	if got["kind"] != UpdateKind(c.Update()) || got["payload"] != "song query" || got["username"] != "listener" {
		t.Fatalf("unexpected receipt attrs: %v", got)
	}
}
