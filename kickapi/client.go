// Package kickapi contains minimal helpers to interact with the public Kick
// channel API for chatroom resolution, viewer-count refresh, and playback URL
// lookup. All endpoints are anonymous.
package kickapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultBaseURL = "https://kick.com"

// Client provides the channel lookups the recorder needs.
type Client struct {
	// BaseURL overrides the Kick API host (tests). Empty means kick.com.
	BaseURL string
	// ProxyBase, when set, routes channel resolution through a lookup proxy
	// exposing GET <ProxyBase>/channel?name=<channel>.
	ProxyBase  string
	HTTPClient *http.Client
	UserAgent  string
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) base() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return defaultBaseURL
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	ua := c.UserAgent
	if ua == "" {
		ua = "kick-pulse"
	}
	req.Header.Set("User-Agent", ua)
	resp, err := c.http().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: unexpected status %d", rawURL, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}

// channelPayload is the subset of the v2 channels response we read. Kick has
// shipped both snake_case and camelCase keys for the livestream fields, so
// both spellings are accepted.
type channelPayload struct {
	Chatroom *struct {
		ID int64 `json:"id"`
	} `json:"chatroom"`
	Livestream *struct {
		ViewerCount      *int   `json:"viewer_count"`
		ViewerCountCamel *int   `json:"viewerCount"`
		PlaybackURL      string `json:"playback_url"`
		PlaybackURLCamel string `json:"playbackUrl"`
		HLS              string `json:"hls"`
	} `json:"livestream"`
	PlaybackURL      string `json:"playback_url"`
	PlaybackURLCamel string `json:"playbackUrl"`
}

func (p *channelPayload) viewers() *int {
	if p.Livestream == nil {
		return nil
	}
	if p.Livestream.ViewerCount != nil {
		return p.Livestream.ViewerCount
	}
	return p.Livestream.ViewerCountCamel
}

func (c *Client) fetchChannel(ctx context.Context, channel string) (*channelPayload, error) {
	var body channelPayload
	u := fmt.Sprintf("%s/api/v2/channels/%s", c.base(), url.PathEscape(channel))
	if err := c.getJSON(ctx, u, &body); err != nil {
		return nil, err
	}
	return &body, nil
}

// ResolveChannel resolves a channel name to its chatroom id, plus the current
// viewer count when the channel is live. In proxy mode only the chatroom id is
// available.
func (c *Client) ResolveChannel(ctx context.Context, channel string) (int64, *int, error) {
	if channel == "" {
		return 0, nil, fmt.Errorf("channel empty")
	}
	if c.ProxyBase != "" {
		var body struct {
			ChatroomID int64 `json:"chatroomId"`
		}
		u := fmt.Sprintf("%s/channel?name=%s", strings.TrimRight(c.ProxyBase, "/"), url.QueryEscape(channel))
		if err := c.getJSON(ctx, u, &body); err != nil {
			return 0, nil, err
		}
		if body.ChatroomID == 0 {
			return 0, nil, fmt.Errorf("chatroom id not found for %q", channel)
		}
		return body.ChatroomID, nil, nil
	}
	body, err := c.fetchChannel(ctx, channel)
	if err != nil {
		return 0, nil, err
	}
	if body.Chatroom == nil || body.Chatroom.ID == 0 {
		return 0, nil, fmt.Errorf("chatroom id not found for %q", channel)
	}
	return body.Chatroom.ID, body.viewers(), nil
}

// ViewerCount returns the channel's current viewer count, or nil when the
// channel is offline or the count is absent.
func (c *Client) ViewerCount(ctx context.Context, channel string) (*int, error) {
	body, err := c.fetchChannel(ctx, channel)
	if err != nil {
		return nil, err
	}
	return body.viewers(), nil
}

// StreamURL returns the channel's HLS playback URL, or "" when none is
// advertised.
func (c *Client) StreamURL(ctx context.Context, channel string) (string, error) {
	body, err := c.fetchChannel(ctx, channel)
	if err != nil {
		return "", err
	}
	candidates := []string{}
	if body.Livestream != nil {
		candidates = append(candidates, body.Livestream.PlaybackURL, body.Livestream.PlaybackURLCamel, body.Livestream.HLS)
	}
	candidates = append(candidates, body.PlaybackURL, body.PlaybackURLCamel)
	for _, u := range candidates {
		if u != "" {
			return u, nil
		}
	}
	return "", nil
}
