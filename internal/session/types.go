// Package session keeps each user's language and format selection between updates.
package session

import (
	"context"
	"time"

	"github.com/m3rciful/songbot/internal/catalog"

	tele "gopkg.in/telebot.v4"
)

// State identifies a step of the selection conversation.
type State string

const (
	// StateAwaitingLanguage is the initial state: no language chosen yet.
	StateAwaitingLanguage State = "awaiting_language"
	// StateAwaitingFormat means a language is chosen but no format.
	StateAwaitingFormat State = "awaiting_format"
	// StateAwaitingQuery means the user may send a song name.
	StateAwaitingQuery State = "awaiting_query"
	// StateDownloading is transient and only tracked by the in-flight guard.
	StateDownloading State = "downloading"
)

// Session stores the selection of a single user.
type Session struct {
	Language      string              `json:"language,omitempty"`
	Format        catalog.Format      `json:"format,omitempty"`
	PendingStatus *tele.StoredMessage `json:"pending_status,omitempty"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// State derives the conversation step from the stored fields.
// A format without a language is treated as no selection at all.
func (s *Session) State() State {
	if s == nil || s.Language == "" {
		return StateAwaitingLanguage
	}
	if s.Format == "" {
		return StateAwaitingFormat
	}
	return StateAwaitingQuery
}

// Store persists sessions keyed by Telegram user id.
// Get returns nil without error when the user has no session.
type Store interface {
	Get(ctx context.Context, userID int64) (*Session, error)
	Set(ctx context.Context, userID int64, s Session) error
	Clear(ctx context.Context, userID int64) error
	Close() error
}

const (
	// DriverMemory keeps sessions in process memory.
	DriverMemory = "memory"
	// DriverRedis keeps sessions in Redis with a TTL per key.
	DriverRedis = "redis"
)

// Options configures Open.
type Options struct {
	Driver     string
	TTL        time.Duration
	MaxEntries int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}
