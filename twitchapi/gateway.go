package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/twitch"

	"github.com/onnwee/chat-tender/accounts"
	"github.com/onnwee/chat-tender/telemetry"
)

// ErrNoUsableToken means the account has no API credential that can be used or
// refreshed right now. Callers treat it as a soft failure and skip the account.
var ErrNoUsableToken = errors.New("no usable api token for account")

// refreshExpiryMargin is subtracted from the server-provided token lifetime so
// we refresh before the token actually dies mid-request.
const refreshExpiryMargin = 300 * time.Second

// TokenGateway hands out valid Helix access tokens for registered accounts,
// refreshing expired ones through either a token broker (BrokerURL set) or the
// Twitch token endpoint directly (client id/secret set). Refreshed credentials
// are persisted back to the account store; a failed refresh leaves the stored
// account untouched.
type TokenGateway struct {
	Store accounts.Store

	// BrokerURL is the base URL of a refresh broker exposing
	// POST {base}/oauth/refresh?refresh_token=... Preferred when set.
	BrokerURL string

	// ClientID/ClientSecret enable the direct refresh_token grant against
	// id.twitch.tv when no broker is configured.
	ClientID     string
	ClientSecret string

	HTTPClient *http.Client
}

type refreshed struct {
	access  string
	refresh string
	expiry  time.Time
}

// AccessToken returns a valid API token for the account, refreshing first when
// the stored one has expired and a refresh credential exists.
func (g *TokenGateway) AccessToken(ctx context.Context, username string) (string, error) {
	acct, err := g.Store.Get(ctx, username)
	if err != nil {
		return "", err
	}
	if acct == nil {
		return "", ErrNoUsableToken
	}
	expired := !acct.APITokenExpiry.IsZero() && !acct.APITokenExpiry.After(time.Now())
	if acct.APIToken != "" && !expired {
		return acct.APIToken, nil
	}
	if acct.APIRefreshToken == "" {
		return "", ErrNoUsableToken
	}

	ctx, span := otel.Tracer("twitchapi").Start(ctx, "token.refresh")
	span.SetAttributes(attribute.String("account", acct.Username))
	defer span.End()

	res, err := g.refresh(ctx, acct.APIRefreshToken)
	if err != nil {
		telemetry.IncTokenRefreshFailed()
		slog.Warn("token refresh failed", slog.String("account", acct.Username), slog.Any("err", err))
		return "", ErrNoUsableToken
	}
	telemetry.IncTokenRefreshed()

	acct.APIToken = res.access
	if res.refresh != "" {
		acct.APIRefreshToken = res.refresh
	}
	acct.APITokenExpiry = res.expiry
	if err := g.Store.Upsert(ctx, acct); err != nil {
		// The new token is still good for this call even if persistence failed.
		slog.Warn("token persist failed", slog.String("account", acct.Username), slog.Any("err", err))
	}
	return acct.APIToken, nil
}

func (g *TokenGateway) refresh(ctx context.Context, refreshToken string) (refreshed, error) {
	if g.BrokerURL != "" {
		return g.refreshViaBroker(ctx, refreshToken)
	}
	if g.ClientID != "" && g.ClientSecret != "" {
		return g.refreshDirect(ctx, refreshToken)
	}
	return refreshed{}, errors.New("no refresh path configured")
}

func (g *TokenGateway) refreshViaBroker(ctx context.Context, refreshToken string) (refreshed, error) {
	endpoint := fmt.Sprintf("%s/oauth/refresh?refresh_token=%s",
		strings.TrimRight(g.BrokerURL, "/"), url.QueryEscape(refreshToken))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(""))
	if err != nil {
		return refreshed{}, err
	}
	hc := g.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return refreshed{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return refreshed{}, fmt.Errorf("broker refresh failed: %s", resp.Status)
	}
	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return refreshed{}, err
	}
	if body.AccessToken == "" {
		return refreshed{}, errors.New("empty access_token in broker response")
	}
	return refreshed{
		access:  body.AccessToken,
		refresh: body.RefreshToken,
		expiry:  time.Now().Add(time.Duration(body.ExpiresIn)*time.Second - refreshExpiryMargin).UTC(),
	}, nil
}

func (g *TokenGateway) refreshDirect(ctx context.Context, refreshToken string) (refreshed, error) {
	if g.HTTPClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, g.HTTPClient)
	}
	conf := &oauth2.Config{
		ClientID:     g.ClientID,
		ClientSecret: g.ClientSecret,
		Endpoint:     twitch.Endpoint,
	}
	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return refreshed{}, err
	}
	expiry := tok.Expiry
	if !expiry.IsZero() {
		expiry = expiry.Add(-refreshExpiryMargin)
	}
	return refreshed{access: tok.AccessToken, refresh: tok.RefreshToken, expiry: expiry.UTC()}, nil
}
