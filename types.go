package cryptosync

import (
	"context"
	"io"
	"time"

	"github.com/JakobS1900/cryptosync/backend"
	"github.com/JakobS1900/cryptosync/internal/events"
)

// SessionMode is whether the current session is backed by a real account or
// an anonymous guest identity.
type SessionMode uint8

const (
	// ModeGuest is the safe default whenever authentication cannot be
	// established.
	ModeGuest SessionMode = iota
	// ModeAuthenticated marks a session with a live backend credential.
	ModeAuthenticated
)

// String returns the wire spelling used in events and reports.
func (m SessionMode) String() string {
	if m == ModeAuthenticated {
		return "authenticated"
	}
	return "guest"
}

// Token is an opaque backend credential with absolute expiry. Tokens are
// never mutated in place; renewal replaces the value wholesale.
type Token struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Valid reports whether the token may still be presented at the given
// instant. A token at or past expiry must be discarded, not flagged.
func (t *Token) Valid(now time.Time) bool {
	return t != nil && t.Value != "" && now.Before(t.ExpiresAt)
}

// Session is the resolved authentication state for this engine instance.
// It is recreated by every probe; login and logout replace it wholesale.
type Session struct {
	Mode  SessionMode
	User  *backend.User
	Guest *backend.GuestUser
	Token *Token

	// Assumed is set when the mode was inferred from cached local state
	// because the status endpoint was unreachable.
	Assumed bool
}

// Balance is the authoritative client-side balance value. The engine is its
// sole writer; everything else reads it through [Engine.Balance] or events.
type Balance struct {
	Amount       float64
	LastSyncedAt time.Time
	Mode         SessionMode
}

// Backend is the REST surface the engine reconciles against.
// [backend.Client] is the production implementation; tests substitute
// struct mocks.
type Backend interface {
	Status(ctx context.Context, token string) (*backend.StatusResponse, error)
	Guest(ctx context.Context) (*backend.GuestUser, error)
	Login(ctx context.Context, username, password string) (*backend.AuthResponse, error)
	Register(ctx context.Context, username, email, password string) (*backend.AuthResponse, error)
	RenewToken(ctx context.Context, token string) (*backend.AuthResponse, error)
	Logout(ctx context.Context, token string) error
	FetchBalance(ctx context.Context, token string) (*backend.BalanceData, error)
	PushBalance(ctx context.Context, token string, balance float64) error
	SyncBalance(ctx context.Context, token string, action backend.SyncAction, frontendBalance *float64) (*backend.BalanceData, error)
	CookieBalance() (float64, bool)
}

// EventType discriminates balance notifications.
type EventType = events.Type

const (
	// EventLoaded fires once, when the first balance resolves.
	EventLoaded = events.TypeLoaded
	// EventUpdated fires on every applied mutation, including cross-instance
	// fold-ins (source "storage").
	EventUpdated = events.TypeUpdated
	// EventRefreshed fires when a refresh completes against the backend.
	EventRefreshed = events.TypeRefreshed
	// EventError fires for locally recovered failures; it never accompanies
	// a state reset.
	EventError = events.TypeError
)

// Event is a balance notification delivered to subscribers and mirrored to
// the ambient [EventSink].
type Event = events.Event

// EventSink receives [Event] values from the engine's async dispatcher.
type EventSink = events.Sink

// NoOpSink is an [EventSink] that silently discards all events.
type NoOpSink = events.NoOpSink

// ChannelSink is a buffered channel-based [EventSink].
type ChannelSink = events.ChannelSink

// JSONWriterSink is an [EventSink] that writes JSON-encoded events to an
// [io.Writer], one object per line.
type JSONWriterSink = events.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return events.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return events.NewJSONWriterSink(w)
}
