package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/songbot/core/logger"
	coretelegram "github.com/m3rciful/songbot/core/telegram"
	"github.com/m3rciful/songbot/core/telegram/commands"
	"github.com/m3rciful/songbot/core/telegram/router"
	"github.com/m3rciful/songbot/core/telegram/ui"
	"github.com/m3rciful/songbot/internal/config"
	"github.com/m3rciful/songbot/internal/download"
	"github.com/m3rciful/songbot/internal/fetcher"
	"github.com/m3rciful/songbot/internal/journal"
	"github.com/m3rciful/songbot/internal/menu"
	"github.com/m3rciful/songbot/internal/session"

	tele "gopkg.in/telebot.v4"
)

var _ ui.FallbackProvider = (*Controller)(nil)

// App owns the song bot services for the lifetime of the process.
type App struct {
	cfg *config.Config

	sessions   session.Store
	journal    journal.Journal
	downloads  *download.Orchestrator
	controller *Controller
	registry   *coretelegram.Registry

	ctx    context.Context
	cancel context.CancelFunc
}

// New opens the stores and builds the controller. db is required only for
// the postgres journal.
func New(ctx context.Context, cfg *config.Config, db *sqlx.DB) (*App, error) {
	if cfg == nil {
		return nil, errors.New("bot: nil config")
	}
	ctx, cancel := context.WithCancel(ctx)
	a := &App{cfg: cfg, ctx: ctx, cancel: cancel}

	var err error
	a.sessions, err = session.Open(ctx, cfg.SessionOptions())
	if err != nil {
		cancel()
		return nil, err
	}
	logger.SVCSession.Info("session store ready",
		slog.String("event", "open"),
		slog.String("driver", cfg.Session.Driver),
		slog.Duration("ttl", cfg.Session.TTL),
	)

	a.journal, err = openJournal(ctx, cfg.Journal, db)
	if err != nil {
		a.close()
		return nil, err
	}

	a.downloads, err = download.New(fetcher.New(cfg.Download.YTDLPBinary), a.journal, download.Config{
		Dir:         cfg.Download.Dir,
		CookiesFile: cfg.Download.CookiesFile,
		MaxParallel: cfg.Download.MaxParallel,
		Timeout:     cfg.Download.Timeout,
	})
	if err != nil {
		a.close()
		return nil, err
	}

	a.controller = NewController(ControllerOptions{
		Sessions:         a.sessions,
		Downloads:        a.downloads,
		Journal:          a.journal,
		ProgressInterval: cfg.Download.ProgressInterval,
	})
	a.registry = a.buildRegistry()

	logger.Info(ctx, "app", "services.ready",
		slog.String("session_driver", cfg.Session.Driver),
		slog.String("journal_driver", cfg.Journal.Driver),
		slog.String("download_dir", a.downloads.Dir()),
		slog.Int("max_parallel", cfg.Download.MaxParallel),
	)
	return a, nil
}

func openJournal(ctx context.Context, cfg config.JournalConfig, db *sqlx.DB) (journal.Journal, error) {
	switch cfg.Driver {
	case journal.DriverPostgres:
		if db == nil {
			return nil, errors.New("bot: postgres journal requires a database")
		}
		return journal.NewPostgres(db), nil
	case journal.DriverMongo:
		m, err := journal.DialMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		return m, nil
	case journal.DriverNone:
		return journal.Nop{}, nil
	default:
		return journal.NewMemory(cfg.Keep), nil
	}
}

func (a *App) buildRegistry() *coretelegram.Registry {
	reg := coretelegram.NewRegistry()
	cmds := map[string]commands.Command{
		"/start": {
			Handler:     a.controller.Start,
			Description: "Choose language and format",
		},
		"/help": {
			Handler:     a.controller.Help,
			Description: "How to use the bot",
		},
		"/stats": {
			Handler:     a.controller.Stats,
			Description: "Recent downloads",
			AdminOnly:   true,
		},
	}
	for name, cmd := range cmds {
		if err := reg.RegisterCommand(name, cmd); err != nil {
			logger.TWire.Warn("register command failed", slog.String("name", name), slog.String("err", err.Error()))
		}
	}

	cbs := map[string]tele.HandlerFunc{
		menu.LanguageKey: a.controller.OnLanguage,
		menu.FormatKey:   a.controller.OnFormat,
	}
	for key, h := range cbs {
		if err := reg.RegisterCallback(key, h); err != nil {
			logger.TWire.Warn("register callback failed", slog.String("key", key), slog.String("err", err.Error()))
		}
	}
	reg.SetCallbackNotFound(a.controller.UnknownCallback())
	reg.SetTextFallback(a.controller.UnknownText())
	return reg
}

// Registry exposes the command and callback registry.
func (a *App) Registry() *coretelegram.Registry {
	return a.registry
}

// TelegramRunOptions assembles the runtime wiring for the Telegram bot.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	core := a.cfg.CoreConfig()

	routes := router.CommandRoutes(a.registry, router.CommandRouteOptions{
		AdminID:       core.Telegram.AdminID,
		OnAdminReject: a.controller.AdminRejected,
	})
	routes = append(routes, router.CallbackRoute(a.registry, router.CallbackOptions{
		NotFound: a.controller.UnknownCallback(),
	}))
	routes = append(routes, router.TextRoutes(a.controller, a.registry, router.TextOptions{
		UnknownText:     a.controller.UnknownText(),
		UnknownDocument: a.controller.UnknownDocument(),
	})...)

	return coretelegram.RunOptions{
		Config:        core,
		Registry:      a.registry,
		Middlewares:   coretelegram.DefaultMiddlewares(core, a.controller.RateLimited),
		Routes:        routes,
		UploadTimeout: a.cfg.Download.SendTimeout,
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			a.controller.Attach(NewOutbound(rt.Bot))
			a.downloads.StartJanitor(a.ctx, a.cfg.Download.JanitorInterval, a.cfg.Download.MaxFileAge)
			return nil
		},
		OnStop: func(ctx context.Context, rt coretelegram.Runtime) error {
			return a.close()
		},
	}, nil
}

func (a *App) close() error {
	a.cancel()
	var errs []error
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}
	if a.sessions != nil {
		if err := a.sessions.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close sessions: %w", err))
		}
	}
	return errors.Join(errs...)
}
