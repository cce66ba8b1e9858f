// Package bot drives the language, format and query conversation and wires
// it into the Telegram runtime.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/m3rciful/songbot/core/logger"
	"github.com/m3rciful/songbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/songbot/core/telegram/helpers"
	"github.com/m3rciful/songbot/internal/catalog"
	"github.com/m3rciful/songbot/internal/download"
	"github.com/m3rciful/songbot/internal/journal"
	"github.com/m3rciful/songbot/internal/menu"
	"github.com/m3rciful/songbot/internal/progress"
	"github.com/m3rciful/songbot/internal/session"

	tele "gopkg.in/telebot.v4"
)

// Controller implements the conversation state machine.
type Controller struct {
	sessions  session.Store
	downloads *download.Orchestrator
	journal   journal.Journal
	inflight  *inflight

	out      Outbound
	reporter *progress.Reporter
	interval time.Duration

	now func() time.Time
}

// ControllerOptions wires the controller dependencies.
type ControllerOptions struct {
	Sessions  session.Store
	Downloads *download.Orchestrator
	Journal   journal.Journal
	// ProgressInterval is the status animation cadence; 0 uses the default.
	ProgressInterval time.Duration
}

// NewController returns a controller; Attach must be called before updates arrive.
func NewController(opts ControllerOptions) *Controller {
	j := opts.Journal
	if j == nil {
		j = journal.Nop{}
	}
	return &Controller{
		sessions:  opts.Sessions,
		downloads: opts.Downloads,
		journal:   j,
		inflight:  newInflight(),
		interval:  opts.ProgressInterval,
		now:       time.Now,
	}
}

// Attach sets the outbound API used for status messages and delivery.
func (h *Controller) Attach(out Outbound) {
	h.out = out
	h.reporter = progress.New(out, h.interval)
}

// Start resets the user's selection and shows the language menu.
func (h *Controller) Start(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	if err := h.sessions.Clear(ctx, c.Sender().ID); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return c.Send(textChooseLanguage, menu.LanguageMenu())
}

// Help describes the flow.
func (h *Controller) Help(c tele.Context) error {
	return tghelpers.SendHTML(c, textHelp)
}

// OnLanguage handles presses on the language menu.
func (h *Controller) OnLanguage(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	payload := callbacks.CallbackPayload(c)
	if payload == menu.PayloadCancel {
		return c.Edit(textCanceled)
	}

	lang, ok := catalog.LookupLanguage(payload)
	if !ok {
		return callbacks.Alert(c, textUnknownLanguage)
	}

	userID := c.Sender().ID
	sess, err := h.sessions.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if sess == nil {
		sess = &session.Session{}
	}
	sess.Language = lang.Name
	sess.Format = ""
	sess.UpdatedAt = h.now()
	if err := h.sessions.Set(ctx, userID, *sess); err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	logger.Debug(ctx, "session", "language.selected",
		slog.Int64("user_id", userID),
		slog.String("language", lang.Name),
	)
	return c.Edit(fmt.Sprintf(textLanguageSelected, lang.Name), menu.FormatMenu(lang))
}

// OnFormat handles presses on the format menu.
func (h *Controller) OnFormat(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	userID := c.Sender().ID
	payload := callbacks.CallbackPayload(c)

	if payload == menu.PayloadBack {
		if err := h.sessions.Clear(ctx, userID); err != nil {
			return fmt.Errorf("clear session: %w", err)
		}
		return c.Edit(textChooseLanguage, menu.LanguageMenu())
	}

	format, ok := catalog.ParseFormat(payload)
	if !ok {
		return callbacks.Alert(c, textUnknownFormat)
	}
	sess, err := h.sessions.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if sess == nil || sess.Language == "" {
		return callbacks.Alert(c, textSessionExpired)
	}
	sess.Format = format
	sess.UpdatedAt = h.now()
	if err := h.sessions.Set(ctx, userID, *sess); err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	logger.Debug(ctx, "session", "format.selected",
		slog.Int64("user_id", userID),
		slog.String("language", sess.Language),
		slog.String("format", string(format)),
	)
	return c.Edit(fmt.Sprintf(textFormatSelected, format.Title()))
}

// InProgress reports whether text from the user is a download query.
func (h *Controller) InProgress(userID int64) bool {
	sess, err := h.sessions.Get(context.Background(), userID)
	if err != nil {
		logger.Warn(context.Background(), "session", "session.get",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
		return false
	}
	return sess.State() == session.StateAwaitingQuery
}

// ManagerHandler runs a download for a user with a complete selection.
func (h *Controller) ManagerHandler(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	query := strings.TrimSpace(c.Text())
	if query == "" {
		return tghelpers.SendText(c, textSendText)
	}
	if strings.HasPrefix(query, "/") {
		return tghelpers.SendText(c, textUnknownCommand)
	}

	userID := c.Sender().ID
	sess, err := h.sessions.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if sess.State() != session.StateAwaitingQuery {
		return tghelpers.SendText(c, textStartFirst)
	}

	release, ok := h.inflight.acquire(userID)
	if !ok {
		return tghelpers.SendText(c, textBusy)
	}
	defer release()

	return h.download(ctx, c.Chat(), userID, *sess, query)
}

// UnknownText answers text that is not a query or a command.
func (h *Controller) UnknownText() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendText(c, textStartFirst)
	}
}

// UnknownDocument answers files sent to the bot.
func (h *Controller) UnknownDocument() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendText(c, textSendText)
	}
}

// UnknownCallback answers presses on buttons the bot no longer knows.
func (h *Controller) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		return callbacks.Alert(c, textSessionExpired)
	}
}

// AdminRejected answers non-admins calling admin commands.
func (h *Controller) AdminRejected(c tele.Context) error {
	return tghelpers.SendText(c, textNotAllowed)
}

// RateLimited answers users that send updates too fast.
func (h *Controller) RateLimited(c tele.Context) error {
	if c.Callback() != nil {
		return callbacks.Alert(c, textSlowDown)
	}
	return tghelpers.SendText(c, textSlowDown)
}

func (h *Controller) download(ctx context.Context, chat *tele.Chat, userID int64, sess session.Session, query string) error {
	format := sess.Format
	status, err := h.out.Send(chat, fmt.Sprintf(textPreparing, query, format))
	if err != nil {
		return fmt.Errorf("send status: %w", err)
	}
	ref := &tele.StoredMessage{MessageID: strconv.Itoa(status.ID), ChatID: chat.ID}
	h.setPending(ctx, userID, ref)

	var credErr *download.CredentialsMissingError
	if _, err := h.downloads.Credentials(); errors.As(err, &credErr) {
		if _, err := h.out.Send(chat, fmt.Sprintf(textCookiesMissing, credErr.Path)); err != nil {
			logger.Warn(ctx, "tg", "cookies.warning",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}
	}

	job := h.downloads.Submit(ctx, download.Request{UserID: userID, Query: query, Format: format})

	reporterDone := make(chan struct{})
	go func() {
		defer close(reporterDone)
		h.reporter.Run(ctx, job.Done(), progress.Target{
			Chat:    chat,
			Message: ref,
			Render: func(dots int) string {
				return fmt.Sprintf(textDownloading, query, format) + progress.Dots(dots)
			},
		})
	}()

	path, fetchErr := job.Wait(ctx)
	<-reporterDone

	h.setPending(ctx, userID, nil)
	if err := h.out.Delete(ref); err != nil {
		logger.Warn(ctx, "tg", "status.delete",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}

	if fetchErr != nil {
		if _, err := h.out.Send(chat, textFailed); err != nil {
			return errors.Join(fetchErr, fmt.Errorf("send failure notice: %w", err))
		}
		return fetchErr
	}

	deliverErr := h.deliver(chat, job, path)
	if err := h.downloads.Remove(path); err != nil {
		logger.Warn(ctx, "download", "file.remove",
			slog.String("status", "fail"),
			slog.String("path", path),
			slog.String("err", err.Error()),
		)
	}
	if deliverErr != nil {
		if _, err := h.out.Send(chat, textDeliveryFailed); err != nil {
			logger.Warn(ctx, "tg", "delivery.notice",
				slog.String("status", "fail"),
				slog.String("err", err.Error()),
			)
		}
		return deliverErr
	}
	return nil
}

func (h *Controller) deliver(chat *tele.Chat, job *download.Job, path string) error {
	caption := job.Request.Query
	if size := job.Size(); size > 0 {
		caption += " · " + humanize.Bytes(uint64(size))
	}
	file := tele.FromDisk(path)
	name := filepath.Base(path)

	var what any = &tele.Document{File: file, Caption: caption, FileName: name}
	if job.Request.Format == catalog.FormatAudio {
		what = &tele.Audio{File: file, Caption: caption, Title: job.Request.Query, FileName: name}
	}
	if _, err := h.out.Send(chat, what); err != nil {
		return &DeliveryError{Path: path, Err: err}
	}
	return nil
}

// setPending records the status message on the session so a restart can find it.
// The session may have been cleared by /start meanwhile; it is not recreated.
func (h *Controller) setPending(ctx context.Context, userID int64, ref *tele.StoredMessage) {
	sess, err := h.sessions.Get(ctx, userID)
	if err == nil && sess != nil {
		sess.PendingStatus = ref
		sess.UpdatedAt = h.now()
		err = h.sessions.Set(ctx, userID, *sess)
	}
	if err != nil {
		logger.Warn(ctx, "session", "session.pending",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
	}
}
