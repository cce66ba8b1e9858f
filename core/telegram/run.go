package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	coreconfig "github.com/m3rciful/songbot/core/config"
	"github.com/m3rciful/songbot/core/logger"
	tghelpers "github.com/m3rciful/songbot/core/telegram/helpers"
	tgsender "github.com/m3rciful/songbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

// Middleware describes a global bot middleware to be registered via bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route declares a single bot handler bound to an arbitrary endpoint.
// Endpoint values are passed directly to tele.Bot.Handle.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry

	DispatcherOptions tgsender.Options
	Dispatcher        *tgsender.Dispatcher

	Middlewares []Middleware
	Routes      []Route

	// UploadTimeout bounds a single Telegram API request, including file uploads.
	UploadTimeout time.Duration

	DisableWebhookCleanup   bool
	DisableHelperDispatcher bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// RunTelegram composes and runs a Telegram bot until the provided context is done.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := opts.Config
	if cfg == nil {
		return errors.New("telegram: nil config provided")
	}
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}

	start := time.Now()
	poller := BuildPoller(PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		Webhook: WebhookOptions{
			URL:         cfg.Webhook.URL,
			SecretToken: cfg.Webhook.SecretToken,
		},
	})
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: poller,
		Client: BuildHTTPClient(HTTPClientOptions{
			LongPoll: longPollTimeout(cfg.Telegram.LongPollTimeoutSeconds),
			Upload:   opts.UploadTimeout,
		}),
		OnError: logBotError,
	})
	if err != nil {
		return fmt.Errorf("telegram: bot initialization failed: %w", err)
	}

	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = tgsender.NewDispatcher(opts.DispatcherOptions)
	}
	if !opts.DisableHelperDispatcher {
		tghelpers.SetDispatcher(dispatcher)
	}
	defer func() {
		dispatcher.Close()
		if !opts.DisableHelperDispatcher {
			tghelpers.SetDispatcher(nil)
		}
	}()

	addr, handler := listener(ctx, bot, poller, cfg, opts.DisableWebhookCleanup, logger.RoundMS(time.Since(start)))
	install(bot, opts)
	InitBotCommands(bot, reg)

	rt := Runtime{Bot: bot, Dispatcher: dispatcher, Registry: reg}
	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			return err
		}
	}

	runErr := serve(ctx, bot, addr, handler)
	if opts.OnStop != nil {
		if err := opts.OnStop(context.WithoutCancel(ctx), rt); err != nil {
			return err
		}
	}
	if errors.Is(runErr, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return runErr
}

// listener picks the inbound HTTP handler. Webhook mode serves updates and
// health; polling mode serves health only when a port is configured and
// clears any webhook left over from an earlier deployment.
func listener(ctx context.Context, bot *tele.Bot, poller tele.Poller, cfg *coreconfig.Config, keepWebhook bool, took time.Duration) (string, http.Handler) {
	if hook, ok := poller.(*tele.Webhook); ok {
		logger.TG.LogAttrs(ctx, slog.LevelInfo, "webhook mode",
			slog.String("event", "mode"),
			slog.String("mode", "webhook"),
			slog.String("listen", cfg.Webhook.Addr()),
			slog.String("path", cfg.Webhook.Path()),
			slog.String("public_url", hook.Endpoint.PublicURL),
			slog.Duration("duration", took),
		)
		return cfg.Webhook.Addr(), NewRouter(ServerOptions{WebhookPath: cfg.Webhook.Path(), Webhook: hook})
	}

	logger.TG.LogAttrs(ctx, slog.LevelInfo, "polling mode",
		slog.String("event", "mode"),
		slog.String("mode", "polling"),
		slog.Duration("timeout", longPollTimeout(cfg.Telegram.LongPollTimeoutSeconds)),
		slog.Duration("duration", took),
	)
	if !keepWebhook && cfg.Telegram.RunMode == coreconfig.RunModeLongpoll {
		if err := bot.RemoveWebhook(false); err != nil {
			logger.TG.Warn("failed to delete webhook",
				slog.String("event", "delete_webhook"),
				slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			)
		} else {
			logger.TG.Debug("webhook deleted", slog.String("event", "delete_webhook"))
		}
	}
	if cfg.Webhook.Port <= 0 {
		return "", nil
	}
	return cfg.Webhook.Addr(), NewRouter(ServerOptions{})
}

func install(bot *tele.Bot, opts RunOptions) {
	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	for _, route := range opts.Routes {
		if route.Endpoint != nil && route.Handler != nil {
			bot.Handle(route.Endpoint, route.Handler)
		}
	}
}

// serve runs the poller and the optional HTTP listener until ctx ends or
// either of them fails.
func serve(ctx context.Context, bot *tele.Bot, addr string, handler http.Handler) error {
	g, gctx := errgroup.WithContext(ctx)
	if handler != nil {
		g.Go(func() error { return Serve(gctx, addr, handler) })
	}
	g.Go(func() error {
		stopped := make(chan struct{})
		go func() {
			bot.Start()
			close(stopped)
		}()
		select {
		case <-gctx.Done():
			bot.Stop()
			<-stopped
			return gctx.Err()
		case <-stopped:
			return errors.New("telegram: poller stopped")
		}
	})
	return g.Wait()
}

func logBotError(err error, c tele.Context) {
	ctx := context.Background()
	if c != nil {
		ctx = tghelpers.BuildContext(c)
	}
	logger.Error(ctx, "tg", "bot.error",
		slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
		slog.String("err_code", errorCodeOf(err)),
	)
}

func errorCodeOf(err error) string {
	var flood tele.FloodError
	var apiErr *tele.Error
	switch {
	case errors.As(err, &flood):
		return "FLOOD"
	case errors.As(err, &apiErr):
		return fmt.Sprintf("TG_%d", apiErr.Code)
	}
	return "BOT_ERROR"
}
