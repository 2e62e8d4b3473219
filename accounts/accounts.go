// Package accounts holds the registered broadcaster/bot accounts and their
// credentials. The chat manager and the token refresh gateway consume the
// Store contract; the Postgres implementation lives in this package too.
package accounts

import (
	"context"
	"time"
)

// Account is one registered identity. Username is the stable key; uniqueness
// is enforced by the store.
type Account struct {
	Username string

	// ChatOAuth is the IRC chat credential.
	ChatOAuth string

	// APIToken is the Helix API credential; APIRefreshToken and APITokenExpiry
	// drive refresh. All three may be empty/zero for chat-only accounts.
	APIToken        string
	APIRefreshToken string
	APITokenExpiry  time.Time

	ClientID string
}

// Store persists accounts. Get returns (nil, nil) when the username is not
// registered; absence is not an error.
type Store interface {
	Get(ctx context.Context, username string) (*Account, error)
	Upsert(ctx context.Context, acct *Account) error
	List(ctx context.Context) ([]Account, error)
}
