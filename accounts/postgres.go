package accounts

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx postgres driver registered as 'pgx'
)

// Connect opens a Postgres connection for the given DSN.
func Connect(dsn string) (*sql.DB, error) {
	return sql.Open("pgx", dsn)
}

// Migrate applies idempotent schema changes for the accounts table.
func Migrate(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS accounts (
			username TEXT PRIMARY KEY,
			chat_oauth TEXT,
			api_token TEXT,
			api_refresh_token TEXT,
			api_token_expires_at TIMESTAMPTZ,
			client_id TEXT,
			created_at TIMESTAMPTZ DEFAULT NOW(),
			updated_at TIMESTAMPTZ
		)`,
	}
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("accounts migrate step %d failed: %w", i, err)
		}
	}
	return nil
}

// PostgresStore implements Store on top of the accounts table. Usernames are
// keyed case-insensitively.
type PostgresStore struct {
	DB *sql.DB
}

func (s *PostgresStore) Get(ctx context.Context, username string) (*Account, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT username, chat_oauth, api_token, api_refresh_token, api_token_expires_at, client_id
		 FROM accounts WHERE username = LOWER($1)`, username)
	acct, err := scanAccount(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return acct, nil
}

func (s *PostgresStore) Upsert(ctx context.Context, acct *Account) error {
	if acct == nil || acct.Username == "" {
		return fmt.Errorf("account username required")
	}
	var expiry sql.NullTime
	if !acct.APITokenExpiry.IsZero() {
		expiry = sql.NullTime{Time: acct.APITokenExpiry, Valid: true}
	}
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO accounts (username, chat_oauth, api_token, api_refresh_token, api_token_expires_at, client_id, updated_at)
		 VALUES (LOWER($1), $2, $3, $4, $5, $6, NOW())
		 ON CONFLICT (username) DO UPDATE SET
			chat_oauth=EXCLUDED.chat_oauth,
			api_token=EXCLUDED.api_token,
			api_refresh_token=EXCLUDED.api_refresh_token,
			api_token_expires_at=EXCLUDED.api_token_expires_at,
			client_id=EXCLUDED.client_id,
			updated_at=NOW()`,
		strings.TrimSpace(acct.Username), acct.ChatOAuth, acct.APIToken, acct.APIRefreshToken, expiry, acct.ClientID)
	return err
}

func (s *PostgresStore) List(ctx context.Context) ([]Account, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT username, chat_oauth, api_token, api_refresh_token, api_token_expires_at, client_id
		 FROM accounts ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *acct)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(row scanner) (*Account, error) {
	var acct Account
	var chatOAuth, apiToken, refresh, clientID sql.NullString
	var expiry sql.NullTime
	if err := row.Scan(&acct.Username, &chatOAuth, &apiToken, &refresh, &expiry, &clientID); err != nil {
		return nil, err
	}
	acct.ChatOAuth = chatOAuth.String
	acct.APIToken = apiToken.String
	acct.APIRefreshToken = refresh.String
	acct.ClientID = clientID.String
	if expiry.Valid {
		acct.APITokenExpiry = expiry.Time.UTC()
	} else {
		acct.APITokenExpiry = time.Time{}
	}
	return &acct, nil
}
