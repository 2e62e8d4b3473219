package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// BotListClient queries a public registry of currently-online chat bots
// (twitchinsights-style: GET {base}/v1/bots/online).
type BotListClient struct {
	HTTPClient *http.Client
	// BaseURL defaults to https://api.twitchinsights.net.
	BaseURL string
}

func (c *BotListClient) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *BotListClient) base() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return "https://api.twitchinsights.net"
}

// OnlineBots returns the usernames of bots currently online across Twitch.
// The endpoint encodes each bot as a heterogeneous array whose first element
// is the username.
func (c *BotListClient) OnlineBots(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base()+"/v1/bots/online", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bot list request failed: %s", resp.Status)
	}
	var body struct {
		Bots [][]any `json:"bots"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(body.Bots))
	for _, entry := range body.Bots {
		if len(entry) == 0 {
			continue
		}
		if name, ok := entry[0].(string); ok && name != "" {
			out = append(out, name)
		}
	}
	return out, nil
}
