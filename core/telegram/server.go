package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/m3rciful/songbot/core/logger"
)

// HealthStatus is the body served on the root path.
const HealthStatus = "Bot is running ✅"

const shutdownTimeout = 5 * time.Second

// ServerOptions configures the inbound HTTP router.
type ServerOptions struct {
	// WebhookPath is where Telegram posts updates; ignored when Webhook is nil.
	WebhookPath string
	Webhook     http.Handler
}

// NewRouter mounts the health endpoints and, in webhook mode, the update endpoint.
func NewRouter(opts ServerOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(requestLogger)

	r.Get("/", health)
	r.Get("/healthz", health)
	if opts.Webhook != nil {
		path := opts.WebhookPath
		if path == "" {
			path = "/webhook"
		}
		r.Post(path, opts.Webhook.ServeHTTP)
	}
	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": HealthStatus})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.HTTP.LogAttrs(r.Context(), slog.LevelDebug, "http.request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("code", ww.Status()),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
		)
	})
}

// Serve runs an HTTP server on addr until ctx is done, then shuts it down gracefully.
func Serve(ctx context.Context, addr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.HTTP.Info("http listening",
			slog.String("event", "listen"),
			slog.String("addr", addr),
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
