// Package emotes fetches third-party emote catalogs (BetterTTV, FrankerFaceZ)
// and caches them per channel for the lifetime of the process. Lookups are
// best effort: a failed fetch yields an empty set and is retried on the next
// miss rather than cached.
package emotes

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

type Catalog struct {
	HTTPClient *http.Client

	// BTTVBaseURL defaults to https://api.betterttv.net.
	BTTVBaseURL string
	// FFZBaseURL defaults to https://api.frankerfacez.com.
	FFZBaseURL string

	mu   sync.Mutex
	bttv map[string][]string
	ffz  map[string][]string
}

func (c *Catalog) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// BTTVEmotes returns the BetterTTV emote names enabled for a room (the
// numeric channel id), lowercased.
func (c *Catalog) BTTVEmotes(ctx context.Context, roomID string) []string {
	if roomID == "" {
		return nil
	}
	c.mu.Lock()
	if c.bttv == nil {
		c.bttv = make(map[string][]string)
	}
	if cached, ok := c.bttv[roomID]; ok {
		c.mu.Unlock()
		return cached
	}
	c.mu.Unlock()

	names, err := c.fetchBTTV(ctx, roomID)
	if err != nil {
		return nil
	}
	c.mu.Lock()
	c.bttv[roomID] = names
	c.mu.Unlock()
	return names
}

// FFZEmotes returns the FrankerFaceZ emote names for a channel, lowercased.
func (c *Catalog) FFZEmotes(ctx context.Context, channel string) []string {
	if channel == "" {
		return nil
	}
	c.mu.Lock()
	if c.ffz == nil {
		c.ffz = make(map[string][]string)
	}
	if cached, ok := c.ffz[channel]; ok {
		c.mu.Unlock()
		return cached
	}
	c.mu.Unlock()

	names, err := c.fetchFFZ(ctx, channel)
	if err != nil {
		return nil
	}
	c.mu.Lock()
	c.ffz[channel] = names
	c.mu.Unlock()
	return names
}

func (c *Catalog) fetchBTTV(ctx context.Context, roomID string) ([]string, error) {
	base := c.BTTVBaseURL
	if base == "" {
		base = "https://api.betterttv.net"
	}
	endpoint := fmt.Sprintf("%s/3/cached/users/twitch/%s", strings.TrimRight(base, "/"), url.PathEscape(roomID))
	var body struct {
		ChannelEmotes []struct {
			Code string `json:"code"`
		} `json:"channelEmotes"`
		SharedEmotes []struct {
			Code string `json:"code"`
		} `json:"sharedEmotes"`
	}
	if err := c.getJSON(ctx, endpoint, &body); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(body.ChannelEmotes)+len(body.SharedEmotes))
	for _, e := range body.ChannelEmotes {
		if e.Code != "" {
			names = append(names, strings.ToLower(e.Code))
		}
	}
	for _, e := range body.SharedEmotes {
		if e.Code != "" {
			names = append(names, strings.ToLower(e.Code))
		}
	}
	return names, nil
}

func (c *Catalog) fetchFFZ(ctx context.Context, channel string) ([]string, error) {
	base := c.FFZBaseURL
	if base == "" {
		base = "https://api.frankerfacez.com"
	}
	endpoint := fmt.Sprintf("%s/v1/room/%s", strings.TrimRight(base, "/"), url.PathEscape(channel))
	var body struct {
		Sets map[string]struct {
			Emoticons []struct {
				Name string `json:"name"`
			} `json:"emoticons"`
		} `json:"sets"`
	}
	if err := c.getJSON(ctx, endpoint, &body); err != nil {
		return nil, err
	}
	var names []string
	for _, set := range body.Sets {
		for _, e := range set.Emoticons {
			if e.Name != "" {
				names = append(names, strings.ToLower(e.Name))
			}
		}
	}
	return names, nil
}

func (c *Catalog) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("emote catalog request failed: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
