// Package logger provides the process-wide structured logger: an slog handler
// with a stable key order, request and job metadata carried in context, an
// asynchronous writer and an optional rotating file sink.
package logger

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/m3rciful/songbot/core/buildinfo"
	coreconfig "github.com/m3rciful/songbot/core/config"
)

const writerBuffer = 64 * 1024

var (
	initOnce sync.Once

	sinkMu  sync.Mutex
	sink    *asyncWriter
	closers []io.Closer
	closed  bool

	levelVar slog.LevelVar

	debugSampler = newRatioSampler(1, 50)
	traceAll     bool

	// L is the root logger. Prefer the context-first helpers below.
	L *slog.Logger

	// DB logs database-related events.
	DB *slog.Logger
	// TG logs Telegram transport events.
	TG *slog.Logger
	// MIG logs database migration events.
	MIG *slog.Logger
	// TWire logs Telegram wiring steps.
	TWire *slog.Logger
	// HTTP logs inbound webhook and health endpoint traffic.
	HTTP *slog.Logger
	// SVCDownload logs download orchestration.
	SVCDownload *slog.Logger
	// SVCSession logs session store activity.
	SVCSession *slog.Logger
	// SVCJournal logs job journal writes.
	SVCJournal *slog.Logger
)

func init() {
	setRoot(slog.Default())
}

// settings is the logging configuration after defaults are applied.
type settings struct {
	format   logFormat
	keyOrder []string
	level    slog.Level
	num, den int
	profile  string
}

func settingsFrom(cfg *coreconfig.Config) settings {
	s := settings{
		format:   formatJSON,
		keyOrder: append([]string(nil), defaultKeyOrder...),
		level:    slog.LevelInfo,
		profile:  "prod",
	}
	s.num, s.den = parseDebugSample(cfg)
	if cfg == nil {
		return s
	}
	lc := cfg.Logging
	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		s.profile = p
	}
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		s.format = formatKV
	case "json":
	default:
		if s.profile == "debug" || s.profile == "dev" {
			s.format = formatKV
		}
	}
	if order := splitKeys(lc.KeysOrder); len(order) > 0 {
		s.keyOrder = order
	}
	s.level = parseLevel(lc.Level)
	return s
}

func splitKeys(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "default" {
		return nil
	}
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

func parseLevel(raw string) slog.Level {
	switch normalizeLevel(strings.TrimSpace(raw)) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError, LevelFatal:
		return slog.LevelError
	}
	return slog.LevelInfo
}

// InitLogger configures the global structured logger. Only the first call has
// an effect.
func InitLogger(cfg *coreconfig.Config) error {
	var initErr error
	initOnce.Do(func() {
		s := settingsFrom(cfg)
		levelVar.Set(s.level)
		debugSampler.Set(s.num, s.den)
		traceAll = isTruthy(os.Getenv("TRACE")) || isTruthy(os.Getenv("LOG_TRACE"))

		outputs, fileClosers, err := buildOutputs(cfg)
		if err != nil {
			initErr = err
			return
		}
		w := newAsyncWriter(outputs, writerBuffer)
		sinkMu.Lock()
		sink, closers = w, fileClosers
		sinkMu.Unlock()

		root := slog.New(newStructuredHandler(handlerConfig{
			level:    &levelVar,
			writer:   w,
			format:   s.format,
			keyOrder: s.keyOrder,
		}))
		slog.SetDefault(root)
		setRoot(root)

		L.LogAttrs(context.Background(), slog.LevelInfo, "startup",
			slog.String("component", "app"),
			slog.String("event", "startup"),
			slog.String("go_version", runtime.Version()),
			slog.String("build_version", buildinfo.Version),
			slog.String("build_commit", buildinfo.Commit),
			slog.String("build_time", buildinfo.Date),
			slog.String("cfg_profile", s.profile),
		)
	})
	return initErr
}

func setRoot(root *slog.Logger) {
	L = root
	DB = Component("db")
	TG = Component("tg")
	MIG = Component("db.migrate")
	TWire = Component("tg.wire")
	HTTP = Component("http")
	SVCDownload = Component("download")
	SVCSession = Component("session")
	SVCJournal = Component("journal")
}

// Shutdown flushes buffered log output and closes the sinks. Later calls are no-ops.
func Shutdown() error {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	if closed {
		return nil
	}
	closed = true

	var errs []error
	if sink != nil {
		errs = append(errs, sink.Flush(), sink.Close())
	}
	for _, c := range closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// buildOutputs returns stdout plus, when both dir and file are configured, a
// rotating file. A directory that cannot be created only disables the file.
func buildOutputs(cfg *coreconfig.Config) ([]io.Writer, []io.Closer, error) {
	writers := []io.Writer{os.Stdout}
	if cfg == nil {
		return writers, nil, nil
	}
	dir := strings.TrimSpace(cfg.Logging.Dir)
	file := strings.TrimSpace(cfg.Logging.BotFile)
	if dir == "" || file == "" {
		return writers, nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("logger: failed to create log dir %s: %v", dir, err)
		return writers, nil, nil
	}
	rotating := &lumberjack.Logger{
		Filename:   filepath.Join(dir, file),
		MaxSize:    cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	}
	return append(writers, rotating), []io.Closer{rotating}, nil
}

// Component returns the root logger scoped to a component.
func Component(name string) *slog.Logger {
	if L == nil {
		return nil
	}
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

// Event logs one event for component, picking up request metadata from ctx.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	logg := Component(component)
	if logg == nil {
		logg = FromContext(ctx)
	}
	logEvent(ctx, logg, level, event, attrs...)
}

func logEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !logg.Enabled(ctx, level) {
		return
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}

// Debug logs a debug-level event for the given component.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

// Info logs an info-level event for the given component.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

// Warn logs a warn-level event for the given component.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

// Error logs an error-level event for the given component.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}

// parseDebugSample reads the "n/m" debug sample ratio; "0/0" turns high-volume
// debug lines off and anything unparsable falls back to 1/50.
func parseDebugSample(cfg *coreconfig.Config) (int, int) {
	if cfg == nil || strings.TrimSpace(cfg.Logging.DebugSample) == "" {
		return 1, 50
	}
	num, den := parseRatioSpec(strings.TrimSpace(cfg.Logging.DebugSample))
	switch {
	case num == 0 && den == 0:
		return 0, 0
	case num <= 0 || den <= 0:
		return 1, 50
	}
	return num, den
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

// ShouldSampleDebug reports whether the next high-volume debug line should be
// written. TRACE=1 lets every line through.
func ShouldSampleDebug() bool {
	return traceAll || debugSampler.Allow()
}
