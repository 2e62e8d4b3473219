// Package twitchapi contains helpers to interact with the Twitch APIs the chat
// manager needs: presence (chatter lists), follower history for moderation,
// and OAuth token refresh. Base URLs are overridable for tests.
package twitchapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Client provides the minimal Helix and TMI surface used by this service.
type Client struct {
	ClientID   string
	HTTPClient *http.Client

	// HelixBaseURL defaults to https://api.twitch.tv/helix.
	HelixBaseURL string
	// TMIBaseURL defaults to https://tmi.twitch.tv (chatter list endpoint).
	TMIBaseURL string
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) helixBase() string {
	if c.HelixBaseURL != "" {
		return c.HelixBaseURL
	}
	return "https://api.twitch.tv/helix"
}

func (c *Client) tmiBase() string {
	if c.TMIBaseURL != "" {
		return c.TMIBaseURL
	}
	return "https://tmi.twitch.tv"
}

func (c *Client) helixGet(ctx context.Context, token, path string, query url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.helixBase()+path, nil)
	if err != nil {
		return err
	}
	req.URL.RawQuery = query.Encode()
	req.Header.Set("Client-Id", c.ClientID)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.http().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("helix %s failed: %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// UserID resolves a login name to its user ID.
func (c *Client) UserID(ctx context.Context, token, login string) (string, error) {
	if login == "" {
		return "", fmt.Errorf("login empty")
	}
	q := url.Values{}
	q.Set("login", login)
	var body struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := c.helixGet(ctx, token, "/users", q, &body); err != nil {
		return "", err
	}
	if len(body.Data) == 0 {
		return "", fmt.Errorf("user not found")
	}
	return body.Data[0].ID, nil
}

// Chatters lists the users currently present in a channel's chat.
func (c *Client) Chatters(ctx context.Context, channel string) ([]string, error) {
	if channel == "" {
		return nil, fmt.Errorf("channel empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/group/user/%s/chatters", c.tmiBase(), url.PathEscape(channel)), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chatters request failed: %s", resp.Status)
	}
	var body struct {
		Chatters struct {
			Broadcaster []string `json:"broadcaster"`
			VIPs        []string `json:"vips"`
			Moderators  []string `json:"moderators"`
			Viewers     []string `json:"viewers"`
		} `json:"chatters"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}
	out := make([]string, 0,
		len(body.Chatters.Broadcaster)+len(body.Chatters.VIPs)+len(body.Chatters.Moderators)+len(body.Chatters.Viewers))
	out = append(out, body.Chatters.Broadcaster...)
	out = append(out, body.Chatters.VIPs...)
	out = append(out, body.Chatters.Moderators...)
	out = append(out, body.Chatters.Viewers...)
	return out, nil
}

// Follower is one entry of a channel's follower list, joined with the
// follower's account metadata.
type Follower struct {
	UserID     string
	Login      string
	FollowedAt time.Time
	CreatedAt  time.Time
}

// ChannelFollowers returns the full follower list for a channel, newest follow
// first, with each follower's account creation time resolved.
func (c *Client) ChannelFollowers(ctx context.Context, token, channel string) ([]Follower, error) {
	broadcasterID, err := c.UserID(ctx, token, channel)
	if err != nil {
		return nil, err
	}
	var out []Follower
	cursor := ""
	for {
		q := url.Values{}
		q.Set("to_id", broadcasterID)
		q.Set("first", "100")
		if cursor != "" {
			q.Set("after", cursor)
		}
		var page struct {
			Data []struct {
				FromID     string    `json:"from_id"`
				FromLogin  string    `json:"from_login"`
				FollowedAt time.Time `json:"followed_at"`
			} `json:"data"`
			Pagination struct {
				Cursor string `json:"cursor"`
			} `json:"pagination"`
		}
		if err := c.helixGet(ctx, token, "/users/follows", q, &page); err != nil {
			return nil, err
		}
		if len(page.Data) == 0 {
			break
		}
		ids := make([]string, 0, len(page.Data))
		for _, f := range page.Data {
			ids = append(ids, f.FromID)
		}
		created, err := c.userCreationTimes(ctx, token, ids)
		if err != nil {
			return nil, err
		}
		for _, f := range page.Data {
			out = append(out, Follower{
				UserID:     f.FromID,
				Login:      f.FromLogin,
				FollowedAt: f.FollowedAt,
				CreatedAt:  created[f.FromID],
			})
		}
		if page.Pagination.Cursor == "" {
			break
		}
		cursor = page.Pagination.Cursor
	}
	return out, nil
}

func (c *Client) userCreationTimes(ctx context.Context, token string, ids []string) (map[string]time.Time, error) {
	q := url.Values{}
	for _, id := range ids {
		q.Add("id", id)
	}
	var body struct {
		Data []struct {
			ID        string    `json:"id"`
			CreatedAt time.Time `json:"created_at"`
		} `json:"data"`
	}
	if err := c.helixGet(ctx, token, "/users", q, &body); err != nil {
		return nil, err
	}
	out := make(map[string]time.Time, len(body.Data))
	for _, u := range body.Data {
		out[u.ID] = u.CreatedAt
	}
	return out, nil
}
