package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/m3rciful/songbot/internal/catalog"
	"github.com/m3rciful/songbot/internal/download"
	"github.com/m3rciful/songbot/internal/journal"
	"github.com/m3rciful/songbot/internal/session"

	tele "gopkg.in/telebot.v4"
)

const testUserID int64 = 42

// fakeContext captures replies made through the update context.
type fakeContext struct {
	tele.Context
	user  *tele.User
	chat  *tele.Chat
	text  string
	cb    *tele.Callback
	store map[string]any

	sent      []any
	sendOpts  [][]any
	edits     []any
	editOpts  [][]any
	responses []*tele.CallbackResponse
}

func newMessage(text string) *fakeContext {
	return &fakeContext{
		user:  &tele.User{ID: testUserID},
		chat:  &tele.Chat{ID: testUserID},
		text:  text,
		store: map[string]any{},
	}
}

func newCallback(unique, data string) *fakeContext {
	c := newMessage("")
	c.cb = &tele.Callback{Unique: unique, Data: data}
	return c
}

func (c *fakeContext) Update() tele.Update      { return tele.Update{ID: 1} }
func (c *fakeContext) Sender() *tele.User       { return c.user }
func (c *fakeContext) Chat() *tele.Chat         { return c.chat }
func (c *fakeContext) Text() string             { return c.text }
func (c *fakeContext) Callback() *tele.Callback { return c.cb }
func (c *fakeContext) Get(key string) any       { return c.store[key] }
func (c *fakeContext) Set(key string, v any)    { c.store[key] = v }

func (c *fakeContext) Send(what any, opts ...any) error {
	c.sent = append(c.sent, what)
	c.sendOpts = append(c.sendOpts, opts)
	return nil
}

func (c *fakeContext) Edit(what any, opts ...any) error {
	c.edits = append(c.edits, what)
	c.editOpts = append(c.editOpts, opts)
	return nil
}

func (c *fakeContext) Respond(resp ...*tele.CallbackResponse) error {
	var r *tele.CallbackResponse
	if len(resp) > 0 {
		r = resp[0]
	}
	c.responses = append(c.responses, r)
	return nil
}

func (c *fakeContext) lastEdit() any {
	if len(c.edits) == 0 {
		return nil
	}
	return c.edits[len(c.edits)-1]
}

// fakeOutbound records calls made outside of the update context, in order.
type fakeOutbound struct {
	mu      sync.Mutex
	nextID  int
	sent    []any
	edits   int
	deleted []tele.Editable
	events  []string
	sendErr func(what any) error
}

func (o *fakeOutbound) Send(_ tele.Recipient, what any, _ ...any) (*tele.Message, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sendErr != nil {
		if err := o.sendErr(what); err != nil {
			return nil, err
		}
	}
	o.nextID++
	o.sent = append(o.sent, what)
	if s, ok := what.(string); ok {
		o.events = append(o.events, "send "+s)
	} else {
		o.events = append(o.events, fmt.Sprintf("send %T", what))
	}
	return &tele.Message{ID: o.nextID}, nil
}

func (o *fakeOutbound) Edit(_ tele.Editable, _ any, _ ...any) (*tele.Message, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.edits++
	o.events = append(o.events, "edit")
	return &tele.Message{}, nil
}

func (o *fakeOutbound) Delete(msg tele.Editable) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deleted = append(o.deleted, msg)
	o.events = append(o.events, "delete")
	return nil
}

// mark appends a marker event, e.g. from inside a fetcher.
func (o *fakeOutbound) mark(ev string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, ev)
}

func (o *fakeOutbound) log() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.events)
}

func (o *fakeOutbound) Notify(tele.Recipient, tele.ChatAction) error { return nil }

func (o *fakeOutbound) texts() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []string
	for _, w := range o.sent {
		if s, ok := w.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (o *fakeOutbound) audios() []*tele.Audio {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []*tele.Audio
	for _, w := range o.sent {
		if a, ok := w.(*tele.Audio); ok {
			out = append(out, a)
		}
	}
	return out
}

type fetchFunc func(ctx context.Context, req download.FetchRequest) (string, error)

func (f fetchFunc) Fetch(ctx context.Context, req download.FetchRequest) (string, error) {
	return f(ctx, req)
}

// writeOutput mimics yt-dlp: the reported name carries the source extension,
// the file on disk carries the post-processed one.
func writeOutput(_ context.Context, req download.FetchRequest) (string, error) {
	path := strings.Replace(req.OutputTemplate, ".%(ext)s", ".mp3", 1)
	if err := os.WriteFile(path, []byte("ID3"), 0o644); err != nil {
		return "", err
	}
	return strings.Replace(req.OutputTemplate, ".%(ext)s", ".webm", 1), nil
}

type harness struct {
	ctrl      *Controller
	out       *fakeOutbound
	sessions  *session.MemoryStore
	journal   *journal.Memory
	dir       string
	cookies   string
	downloads *download.Orchestrator
}

func newHarness(t *testing.T, f fetchFunc, withCookies bool) *harness {
	t.Helper()
	dir := t.TempDir()
	cookies := filepath.Join(t.TempDir(), "cookies.txt")
	if withCookies {
		if err := os.WriteFile(cookies, []byte("# Netscape HTTP Cookie File\n"), 0o600); err != nil {
			t.Fatalf("write cookies: %v", err)
		}
	}
	j := journal.NewMemory(10)
	orch, err := download.New(f, j, download.Config{Dir: dir, CookiesFile: cookies, MaxParallel: 2})
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	sessions := session.NewMemoryStore(time.Hour, 100)
	ctrl := NewController(ControllerOptions{
		Sessions:         sessions,
		Downloads:        orch,
		Journal:          j,
		ProgressInterval: 5 * time.Millisecond,
	})
	out := &fakeOutbound{}
	ctrl.Attach(out)
	return &harness{
		ctrl:      ctrl,
		out:       out,
		sessions:  sessions,
		journal:   j,
		dir:       dir,
		cookies:   cookies,
		downloads: orch,
	}
}

func (h *harness) choose(t *testing.T, lang string, format catalog.Format) {
	t.Helper()
	if err := h.ctrl.OnLanguage(newCallback("lang", lang)); err != nil {
		t.Fatalf("language: %v", err)
	}
	if err := h.ctrl.OnFormat(newCallback("fmt", string(format))); err != nil {
		t.Fatalf("format: %v", err)
	}
}

func (h *harness) current(t *testing.T) *session.Session {
	t.Helper()
	s, err := h.sessions.Get(context.Background(), testUserID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	return s
}

func TestStartShowsLanguageMenuAndResetsSession(t *testing.T) {
	h := newHarness(t, writeOutput, true)
	h.choose(t, "French", catalog.FormatAudio)

	c := newMessage("/start")
	if err := h.ctrl.Start(c); err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(c.sent) != 1 || c.sent[0] != textChooseLanguage {
		t.Fatalf("unexpected replies: %#v", c.sent)
	}
	if len(c.sendOpts[0]) != 1 {
		t.Fatalf("expected menu markup, got %#v", c.sendOpts[0])
	}
	if _, ok := c.sendOpts[0][0].(*tele.ReplyMarkup); !ok {
		t.Fatalf("expected *tele.ReplyMarkup, got %T", c.sendOpts[0][0])
	}
	if s := h.current(t); s != nil {
		t.Fatalf("expected cleared session, got %+v", s)
	}
}

func TestFullFlowDeliversAudio(t *testing.T) {
	h := newHarness(t, writeOutput, true)

	lang := newCallback("lang", "French")
	if err := h.ctrl.OnLanguage(lang); err != nil {
		t.Fatalf("language: %v", err)
	}
	if got := lang.lastEdit(); got != "Language selected: French\nChoose format:" {
		t.Fatalf("language edit = %q", got)
	}
	if len(lang.editOpts[0]) != 1 {
		t.Fatalf("expected format menu on language edit")
	}

	format := newCallback("fmt", "audio")
	if err := h.ctrl.OnFormat(format); err != nil {
		t.Fatalf("format: %v", err)
	}
	want := "Format selected: Audio\nSend me the song name you want to download:"
	if got := format.lastEdit(); got != want {
		t.Fatalf("format edit = %q", got)
	}
	if !h.ctrl.InProgress(testUserID) {
		t.Fatalf("expected awaiting query after format")
	}

	msg := newMessage("Bohemian Rhapsody")
	if err := h.ctrl.ManagerHandler(msg); err != nil {
		t.Fatalf("download: %v", err)
	}

	texts := h.out.texts()
	if len(texts) == 0 || texts[0] != "Preparing to download 'Bohemian Rhapsody' as audio... 🎵" {
		t.Fatalf("unexpected status texts: %#v", texts)
	}
	for _, s := range texts {
		if strings.Contains(s, "Cookies") {
			t.Fatalf("unexpected cookies warning: %q", s)
		}
	}
	audios := h.out.audios()
	if len(audios) != 1 {
		t.Fatalf("expected one audio, got %d", len(audios))
	}
	a := audios[0]
	if filepath.Ext(a.FileName) != ".mp3" || a.Title != "Bohemian Rhapsody" {
		t.Fatalf("unexpected audio: %+v", a)
	}
	if !strings.HasPrefix(a.Caption, "Bohemian Rhapsody") {
		t.Fatalf("unexpected caption %q", a.Caption)
	}
	if len(h.out.deleted) != 1 {
		t.Fatalf("expected status message deleted, got %d", len(h.out.deleted))
	}
	if id, _ := h.out.deleted[0].MessageSig(); id != "1" {
		t.Fatalf("deleted message id = %q", id)
	}
	if entries, _ := os.ReadDir(h.dir); len(entries) != 0 {
		t.Fatalf("expected download dir empty, got %d entries", len(entries))
	}

	s := h.current(t)
	if s.State() != session.StateAwaitingQuery || s.Language != "French" {
		t.Fatalf("session not kept: %+v", s)
	}
	if s.PendingStatus != nil {
		t.Fatalf("pending status not cleared: %+v", s.PendingStatus)
	}
	recent, _ := h.journal.Recent(context.Background(), 1)
	if len(recent) != 1 || recent[0].State != journal.StateSucceeded || recent[0].UserID != testUserID {
		t.Fatalf("unexpected journal: %+v", recent)
	}
}

func TestDownloadFailureReportsAndSendsNoFile(t *testing.T) {
	h := newHarness(t, func(context.Context, download.FetchRequest) (string, error) {
		return "", download.ErrNoOutput
	}, true)
	h.choose(t, "English", catalog.FormatAudio)

	err := h.ctrl.ManagerHandler(newMessage("zzzz-no-such-song"))
	var fe *download.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
	texts := h.out.texts()
	if texts[len(texts)-1] != textFailed {
		t.Fatalf("expected failure notice, got %#v", texts)
	}
	if len(h.out.audios()) != 0 {
		t.Fatalf("no file should be sent")
	}
	if !h.ctrl.InProgress(testUserID) {
		t.Fatalf("selection must survive a failed download")
	}
}

func TestMissingCookiesWarnsAndContinues(t *testing.T) {
	h := newHarness(t, writeOutput, false)
	h.choose(t, "German", catalog.FormatAudio)

	if err := h.ctrl.ManagerHandler(newMessage("99 Luftballons")); err != nil {
		t.Fatalf("download: %v", err)
	}
	want := "⚠️ Cookies file not found at '" + h.cookies + "'."
	found := false
	for _, s := range h.out.texts() {
		if s == want {
			found = true
		}
	}
	if !found {
		t.Fatalf("missing cookies warning in %#v", h.out.texts())
	}
	if len(h.out.audios()) != 1 {
		t.Fatalf("download should still be delivered")
	}
}

func TestVideoIsDeliveredAsDocument(t *testing.T) {
	h := newHarness(t, func(_ context.Context, req download.FetchRequest) (string, error) {
		path := strings.Replace(req.OutputTemplate, ".%(ext)s", ".mp4", 1)
		return path, os.WriteFile(path, []byte("mp4"), 0o644)
	}, true)
	h.choose(t, "Japanese", catalog.FormatVideo)

	if err := h.ctrl.ManagerHandler(newMessage("Lemon")); err != nil {
		t.Fatalf("download: %v", err)
	}
	last := h.out.sent[len(h.out.sent)-1]
	doc, ok := last.(*tele.Document)
	if !ok {
		t.Fatalf("expected *tele.Document, got %T", last)
	}
	if filepath.Ext(doc.FileName) != ".mp4" {
		t.Fatalf("unexpected file name %q", doc.FileName)
	}
}

func TestDeliveryFailureRemovesFile(t *testing.T) {
	h := newHarness(t, writeOutput, true)
	h.out.sendErr = func(what any) error {
		if _, ok := what.(*tele.Audio); ok {
			return errors.New("request entity too large")
		}
		return nil
	}
	h.choose(t, "English", catalog.FormatAudio)

	err := h.ctrl.ManagerHandler(newMessage("Long Mix"))
	var de *DeliveryError
	if !errors.As(err, &de) {
		t.Fatalf("expected DeliveryError, got %v", err)
	}
	if de.Code() != "DELIVERY_FAILED" {
		t.Fatalf("code = %q", de.Code())
	}
	texts := h.out.texts()
	if texts[len(texts)-1] != textDeliveryFailed {
		t.Fatalf("expected delivery notice, got %#v", texts)
	}
	if _, err := os.Stat(de.Path); !os.IsNotExist(err) {
		t.Fatalf("file should be removed, stat err = %v", err)
	}
}

func TestTextBeforeFormatAsksToStart(t *testing.T) {
	h := newHarness(t, writeOutput, true)
	if err := h.ctrl.OnLanguage(newCallback("lang", "Spanish")); err != nil {
		t.Fatalf("language: %v", err)
	}
	if h.ctrl.InProgress(testUserID) {
		t.Fatalf("language only must not accept queries")
	}

	c := newMessage("Despacito")
	if err := h.ctrl.ManagerHandler(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(c.sent) != 1 || c.sent[0] != textStartFirst {
		t.Fatalf("unexpected replies %#v", c.sent)
	}
	if len(h.out.sent) != 0 {
		t.Fatalf("no download expected, got %#v", h.out.sent)
	}

	fb := newMessage("hello")
	if err := h.ctrl.UnknownText()(fb); err != nil {
		t.Fatalf("fallback: %v", err)
	}
	if fb.sent[0] != textStartFirst {
		t.Fatalf("fallback reply %#v", fb.sent)
	}
	if s := h.current(t); s.State() != session.StateAwaitingFormat {
		t.Fatalf("state changed: %s", s.State())
	}
}

func TestUnknownCommandWhileAwaitingQuery(t *testing.T) {
	h := newHarness(t, writeOutput, true)
	h.choose(t, "English", catalog.FormatAudio)

	c := newMessage("/foo")
	if err := h.ctrl.ManagerHandler(c); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(c.sent) != 1 || c.sent[0] != textUnknownCommand {
		t.Fatalf("unexpected replies %#v", c.sent)
	}
	if len(h.out.sent) != 0 {
		t.Fatalf("commands must not start downloads")
	}
}

func TestBackIsIdempotent(t *testing.T) {
	h := newHarness(t, writeOutput, true)
	h.choose(t, "Korean", catalog.FormatVideo)

	for i := 0; i < 2; i++ {
		c := newCallback("fmt", "back")
		if err := h.ctrl.OnFormat(c); err != nil {
			t.Fatalf("back #%d: %v", i, err)
		}
		if c.lastEdit() != textChooseLanguage {
			t.Fatalf("back #%d edit = %#v", i, c.lastEdit())
		}
		if s := h.current(t); s != nil {
			t.Fatalf("back #%d left session %+v", i, s)
		}
	}
}

func TestCancelKeepsSession(t *testing.T) {
	h := newHarness(t, writeOutput, true)
	h.choose(t, "Thai", catalog.FormatAudio)

	c := newCallback("lang", "cancel")
	if err := h.ctrl.OnLanguage(c); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if c.lastEdit() != textCanceled {
		t.Fatalf("cancel edit = %#v", c.lastEdit())
	}
	if !h.ctrl.InProgress(testUserID) {
		t.Fatalf("cancel must not clear the selection")
	}
}

func TestStaleFormatPressAlerts(t *testing.T) {
	h := newHarness(t, writeOutput, true)

	c := newCallback("fmt", "audio")
	if err := h.ctrl.OnFormat(c); err != nil {
		t.Fatalf("format: %v", err)
	}
	if len(c.responses) != 1 || c.responses[0].Text != textSessionExpired || !c.responses[0].ShowAlert {
		t.Fatalf("unexpected responses %#v", c.responses)
	}
	if s := h.current(t); s != nil {
		t.Fatalf("stale press created session %+v", s)
	}
}

func TestUnknownLanguageAndFormatAlert(t *testing.T) {
	h := newHarness(t, writeOutput, true)

	lang := newCallback("lang", "Klingon")
	if err := h.ctrl.OnLanguage(lang); err != nil {
		t.Fatalf("language: %v", err)
	}
	if len(lang.responses) != 1 || lang.responses[0].Text != textUnknownLanguage {
		t.Fatalf("language responses %#v", lang.responses)
	}

	_ = h.ctrl.OnLanguage(newCallback("lang", "Greek"))
	format := newCallback("fmt", "gif")
	if err := h.ctrl.OnFormat(format); err != nil {
		t.Fatalf("format: %v", err)
	}
	if len(format.responses) != 1 || format.responses[0].Text != textUnknownFormat {
		t.Fatalf("format responses %#v", format.responses)
	}
}

func TestSecondQueryWhileDownloadingIsRejected(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	h := newHarness(t, func(ctx context.Context, req download.FetchRequest) (string, error) {
		close(started)
		<-release
		return writeOutput(ctx, req)
	}, true)
	h.choose(t, "English", catalog.FormatAudio)

	errc := make(chan error, 1)
	go func() { errc <- h.ctrl.ManagerHandler(newMessage("first")) }()
	<-started

	second := newMessage("second")
	if err := h.ctrl.ManagerHandler(second); err != nil {
		t.Fatalf("second: %v", err)
	}
	if len(second.sent) != 1 || second.sent[0] != textBusy {
		t.Fatalf("expected busy reply, got %#v", second.sent)
	}

	close(release)
	if err := <-errc; err != nil {
		t.Fatalf("first: %v", err)
	}
	if len(h.out.audios()) != 1 {
		t.Fatalf("expected exactly one delivery, got %d", len(h.out.audios()))
	}
	if h.ctrl.inflight.len() != 0 {
		t.Fatalf("in-flight slot not released")
	}
}

func TestStartDuringDownloadIsNotRecreated(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	h := newHarness(t, func(ctx context.Context, req download.FetchRequest) (string, error) {
		close(started)
		<-release
		return writeOutput(ctx, req)
	}, true)
	h.choose(t, "English", catalog.FormatAudio)

	errc := make(chan error, 1)
	go func() { errc <- h.ctrl.ManagerHandler(newMessage("song")) }()
	<-started
	if err := h.ctrl.Start(newMessage("/start")); err != nil {
		t.Fatalf("start: %v", err)
	}
	close(release)
	if err := <-errc; err != nil {
		t.Fatalf("download: %v", err)
	}
	if s := h.current(t); s != nil {
		t.Fatalf("session recreated after /start: %+v", s)
	}
}

func TestDocumentAndUnknownCallbackFallbacks(t *testing.T) {
	h := newHarness(t, writeOutput, true)

	doc := newMessage("")
	if err := h.ctrl.UnknownDocument()(doc); err != nil {
		t.Fatalf("document: %v", err)
	}
	if doc.sent[0] != textSendText {
		t.Fatalf("document reply %#v", doc.sent)
	}

	cb := newCallback("old", "x")
	if err := h.ctrl.UnknownCallback()(cb); err != nil {
		t.Fatalf("callback: %v", err)
	}
	if len(cb.responses) != 1 || !cb.responses[0].ShowAlert {
		t.Fatalf("callback responses %#v", cb.responses)
	}
}

func TestRateLimitedRepliesByUpdateKind(t *testing.T) {
	h := newHarness(t, writeOutput, true)

	msg := newMessage("spam")
	if err := h.ctrl.RateLimited(msg); err != nil {
		t.Fatalf("message: %v", err)
	}
	if msg.sent[0] != textSlowDown {
		t.Fatalf("message reply %#v", msg.sent)
	}

	cb := newCallback("lang", "English")
	if err := h.ctrl.RateLimited(cb); err != nil {
		t.Fatalf("callback: %v", err)
	}
	if len(cb.sent) != 0 || cb.responses[0].Text != textSlowDown {
		t.Fatalf("callback must be answered with an alert: %#v %#v", cb.sent, cb.responses)
	}
}

func TestCookiesWarningPrecedesFetch(t *testing.T) {
	var h *harness
	h = newHarness(t, func(ctx context.Context, req download.FetchRequest) (string, error) {
		h.out.mark("fetch")
		return writeOutput(ctx, req)
	}, false)
	h.choose(t, "English", catalog.FormatAudio)

	if err := h.ctrl.ManagerHandler(newMessage("Halo")); err != nil {
		t.Fatalf("download: %v", err)
	}
	events := h.out.log()
	warning := slices.Index(events, "send "+fmt.Sprintf(textCookiesMissing, h.cookies))
	fetch := slices.Index(events, "fetch")
	if warning < 0 || fetch < 0 || warning > fetch {
		t.Fatalf("warning must be sent before the fetch starts: %q", events)
	}
	if events[0] != "send Preparing to download 'Halo' as audio... 🎵" {
		t.Fatalf("status must come first: %q", events)
	}
}

func TestNoStatusEditAfterDeleteOrDelivery(t *testing.T) {
	h := newHarness(t, func(ctx context.Context, req download.FetchRequest) (string, error) {
		time.Sleep(60 * time.Millisecond)
		return writeOutput(ctx, req)
	}, true)
	h.choose(t, "English", catalog.FormatAudio)

	if err := h.ctrl.ManagerHandler(newMessage("Slow Song")); err != nil {
		t.Fatalf("download: %v", err)
	}
	// Late edits from a leaked reporter would show up after the handler returns.
	time.Sleep(30 * time.Millisecond)

	events := h.out.log()
	lastEdit := -1
	for i, ev := range events {
		if ev == "edit" {
			lastEdit = i
		}
	}
	del := slices.Index(events, "delete")
	audio := slices.Index(events, "send *telebot.Audio")
	if lastEdit < 0 {
		t.Fatalf("expected status edits while fetching: %q", events)
	}
	if del < 0 || audio < 0 || !(lastEdit < del && del < audio) {
		t.Fatalf("want edits < delete < audio, got %q", events)
	}
}
