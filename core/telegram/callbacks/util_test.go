package callbacks

import (
	"testing"

	tele "gopkg.in/telebot.v4"
)

type stubContext struct {
	tele.Context
	cb        *tele.Callback
	store     map[string]any
	responses []*tele.CallbackResponse
}

func newStub(cb *tele.Callback) *stubContext {
	return &stubContext{cb: cb, store: map[string]any{}}
}

func (s *stubContext) Callback() *tele.Callback { return s.cb }
func (s *stubContext) Get(key string) any       { return s.store[key] }
func (s *stubContext) Set(key string, v any)    { s.store[key] = v }

func (s *stubContext) Respond(resp ...*tele.CallbackResponse) error {
	var r *tele.CallbackResponse
	if len(resp) > 0 {
		r = resp[0]
	}
	s.responses = append(s.responses, r)
	return nil
}

func TestParseCallbackData(t *testing.T) {
	cases := []struct {
		name         string
		cb           *tele.Callback
		key, payload string
	}{
		{"nil", nil, "", ""},
		{"raw with payload", &tele.Callback{Data: "\flang|French"}, "lang", "French"},
		{"raw without payload", &tele.Callback{Data: "\flang"}, "lang", ""},
		{"payload keeps separators", &tele.Callback{Data: "\ffmt|a|b"}, "fmt", "a|b"},
		{"routed by telebot", &tele.Callback{Unique: "fmt", Data: "audio"}, "fmt", "audio"},
		{"plain data", &tele.Callback{Data: "cancel"}, "cancel", ""},
	}
	for _, tc := range cases {
		key, payload := ParseCallbackData(tc.cb)
		if key != tc.key || payload != tc.payload {
			t.Errorf("%s: got (%q, %q), want (%q, %q)", tc.name, key, payload, tc.key, tc.payload)
		}
	}
}

func TestCallbackPayload(t *testing.T) {
	c := newStub(&tele.Callback{Data: "\flang|cancel"})
	if got := CallbackPayload(c); got != "cancel" {
		t.Fatalf("payload = %q", got)
	}
}

func TestAnswerOnlyOnce(t *testing.T) {
	c := newStub(&tele.Callback{Data: "\ffmt|audio"})
	if Answered(c) {
		t.Fatal("fresh callback reported as answered")
	}
	if err := Alert(c, "session expired"); err != nil {
		t.Fatalf("alert: %v", err)
	}
	if err := Answer(c, nil); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if len(c.responses) != 1 {
		t.Fatalf("expected one response, got %d", len(c.responses))
	}
	if r := c.responses[0]; r == nil || !r.ShowAlert || r.Text != "session expired" {
		t.Fatalf("unexpected response %+v", r)
	}
	if !Answered(c) {
		t.Fatal("callback not marked answered")
	}
}

func TestAnswerWithoutCallback(t *testing.T) {
	c := newStub(nil)
	if err := Answer(c, nil); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if len(c.responses) != 0 {
		t.Fatal("responded to a non-callback update")
	}
}
