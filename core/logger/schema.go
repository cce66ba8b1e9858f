package logger

import "strings"

const (
	// LevelDebug represents the debug severity level name.
	LevelDebug = "DEBUG"
	// LevelInfo represents the info severity level name.
	LevelInfo = "INFO"
	// LevelWarn represents the warning severity level name.
	LevelWarn = "WARN"
	// LevelError represents the error severity level name.
	LevelError = "ERROR"
	// LevelFatal represents the fatal severity level name.
	LevelFatal = "FATAL"
)

var levelNames = map[string]string{
	"debug":   LevelDebug,
	"info":    LevelInfo,
	"warn":    LevelWarn,
	"warning": LevelWarn,
	"error":   LevelError,
	"fatal":   LevelFatal,
}

func normalizeLevel(level string) string {
	if level == "" {
		return LevelInfo
	}
	if mapped, ok := levelNames[strings.ToLower(level)]; ok {
		return mapped
	}
	return strings.ToUpper(level)
}

// enum restricts a field to known values. Unknown values are kept as
// lower-case text unless strict is set, in which case the field is dropped.
type enum struct {
	values map[string]struct{}
	strict bool
}

func newEnum(strict bool, values ...string) enum {
	e := enum{values: make(map[string]struct{}, len(values)), strict: strict}
	for _, v := range values {
		e.values[v] = struct{}{}
	}
	return e
}

var enumFields = map[string]enum{
	"status":  newEnum(false, "ok", "fail", "skip", "retry", "rate_limited", "cancelled"),
	"outcome": newEnum(true, "ok", "fail", "cancelled", "rate_limited"),
	"state":   newEnum(false, "pending", "running", "succeeded", "failed"),
	"format":  newEnum(false, "audio", "video"),
}

// normalizeEnum returns the canonical value and whether the field should be kept.
func normalizeEnum(key, value string) (string, bool) {
	e, ok := enumFields[key]
	if !ok {
		return value, true
	}
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "", false
	}
	if _, known := e.values[value]; known || !e.strict {
		return value, true
	}
	return "", false
}

var defaultKeyOrder = []string{
	"ts",
	"level",
	"component",
	"event",
	"status",
	"rid",
	"rid_full",
	"ts_unix_nano",
	"update_id",
	"user_id",
	"chat_id",
	"handler",
	"cb_key",
	"outcome",
	"duration_ms",
	"job_id",
	"state",
	"format",
	"language",
	"query",
	"path",
	"size_bytes",
	"size",
	"messages",
	"kb",
	"mode",
	"listen",
	"public_url",
	"method",
	"http_code",
	"driver",
	"host",
	"port",
	"err",
	"err_code",
	"retryable",
	"attempts",
	"backoff_ms",
	"removed",
}
