package lib

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// DefaultBaseURL is the aggregator origin used when none is configured.
const DefaultBaseURL = "https://kemono.cr"

// APIError represents a remote API failure that is not a plain HTTP error,
// such as the service being in maintenance.
type APIError struct {
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// CreatorRecord is one entry of the remote creator roster.
type CreatorRecord struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Service Platform `json:"service"`
	Indexed float64  `json:"indexed"`
	Updated float64  `json:"updated"`
}

// URL returns the creator's page on the aggregator.
func (c CreatorRecord) URL(baseURL string) string {
	if c.Service == PlatformDiscord {
		return fmt.Sprintf("%s/%s/server/%s", baseURL, c.Service, c.ID)
	}
	return fmt.Sprintf("%s/%s/user/%s", baseURL, c.Service, c.ID)
}

// RawAttachment is an attachment reference as returned by the remote API.
type RawAttachment struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// RawPost is a post as returned by the remote API, before parsing and
// classification. The redundant top-level "file" field (a duplicate of the
// first attachment) is ignored; only the attachment list drives downloads.
type RawPost struct {
	ID          string          `json:"id"`
	User        string          `json:"user"`
	Service     Platform        `json:"service"`
	Title       string          `json:"title"`
	Content     string          `json:"content"`
	Published   string          `json:"published"`
	Attachments []RawAttachment `json:"attachments"`
}

// rawPostWrapper unwraps the single-post endpoint's envelope.
type rawPostWrapper struct {
	Post RawPost `json:"post"`
}

// DiscordChannel is one channel of an indexed Discord server.
type DiscordChannel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FavoriteCreator is one entry of the authenticated favorites listing. The
// favorites endpoints serialize timestamps as strings, unlike the roster.
type FavoriteCreator struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Service Platform `json:"service"`
	Indexed string   `json:"indexed"`
}

// Client is a minimal client for the aggregator's JSON API and its raw
// attachment storage.
type Client struct {
	BaseURL string
	fetcher *Fetcher
}

// NewClient creates a Client against the given origin. An empty baseURL
// selects DefaultBaseURL; a nil fetcher selects a default Fetcher.
func NewClient(baseURL string, f *Fetcher) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if f == nil {
		f = NewFetcher()
	}
	return &Client{BaseURL: strings.TrimRight(baseURL, "/"), fetcher: f}
}

// getJSON fetches an API URL and decodes its JSON body into v.
func (c *Client) getJSON(ctx context.Context, u string, v any) error {
	body, err := c.fetcher.FetchURL(ctx, u)
	if err != nil {
		if errors.Is(err, ErrMaintenance) {
			return &APIError{Message: ErrMaintenance.Error()}
		}
		return err
	}
	defer body.Close()
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", u, err)
	}
	return nil
}

// ListCreators downloads the full creator roster.
func (c *Client) ListCreators(ctx context.Context) ([]CreatorRecord, error) {
	var creators []CreatorRecord
	if err := c.getJSON(ctx, c.BaseURL+"/api/v1/creators.txt", &creators); err != nil {
		return nil, err
	}
	return creators, nil
}

// RosterSize returns the declared byte length of the roster resource,
// used as a cheap change fingerprint.
func (c *Client) RosterSize(ctx context.Context) (int64, error) {
	header, err := c.fetcher.Head(ctx, c.BaseURL+"/api/v1/creators.txt")
	if err != nil {
		return 0, err
	}
	size, err := strconv.ParseInt(header.Get("Content-Length"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("roster has no usable Content-Length: %w", err)
	}
	return size, nil
}

// ListPosts fetches one page of a creator's posts at the given offset.
// word and tag are optional server-side filters.
func (c *Client) ListPosts(ctx context.Context, platform Platform, creatorID string, offset int, word, tag string) ([]RawPost, error) {
	q := url.Values{}
	q.Set("o", strconv.Itoa(offset))
	if word != "" {
		q.Set("q", word)
	}
	if tag != "" {
		q.Set("tag", tag)
	}
	u := fmt.Sprintf("%s/api/v1/%s/user/%s/posts?%s", c.BaseURL, platform, url.PathEscape(creatorID), q.Encode())
	var posts []RawPost
	if err := c.getJSON(ctx, u, &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// GetPost fetches a single post. A missing post yields ErrNotFound.
func (c *Client) GetPost(ctx context.Context, platform Platform, creatorID, postID string) (*RawPost, error) {
	u := fmt.Sprintf("%s/api/v1/%s/user/%s/post/%s", c.BaseURL, platform, url.PathEscape(creatorID), url.PathEscape(postID))
	var wrapper rawPostWrapper
	if err := c.getJSON(ctx, u, &wrapper); err != nil {
		return nil, err
	}
	if wrapper.Post.ID == "" {
		return nil, ErrNotFound
	}
	return &wrapper.Post, nil
}

// ListChannels looks up the indexed channels of a Discord server.
func (c *Client) ListChannels(ctx context.Context, serverID string) ([]DiscordChannel, error) {
	u := fmt.Sprintf("%s/api/v1/discord/channel/lookup/%s", c.BaseURL, url.PathEscape(serverID))
	var channels []DiscordChannel
	if err := c.getJSON(ctx, u, &channels); err != nil {
		return nil, err
	}
	return channels, nil
}

// FavoriteCreators lists the logged-in account's favorite creators. Requires
// the session cookie on the underlying Fetcher.
func (c *Client) FavoriteCreators(ctx context.Context) ([]FavoriteCreator, error) {
	var favs []FavoriteCreator
	if err := c.getJSON(ctx, c.BaseURL+"/api/v1/account/favorites?type=artist", &favs); err != nil {
		return nil, err
	}
	return favs, nil
}

// FavoritePosts lists the logged-in account's favorite posts.
func (c *Client) FavoritePosts(ctx context.Context) ([]RawPost, error) {
	var posts []RawPost
	if err := c.getJSON(ctx, c.BaseURL+"/api/v1/account/favorites?type=post", &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

// AttachmentURL resolves a remote attachment path to its download URL.
func (c *Client) AttachmentURL(path string) string {
	return c.BaseURL + "/data/" + strings.TrimLeft(path, "/")
}

// FetchBytes opens a single-attempt byte stream for an attachment URL.
// Retrying is the download executor's responsibility.
func (c *Client) FetchBytes(ctx context.Context, u string) (io.ReadCloser, error) {
	return c.fetcher.Get(ctx, u, http.Header{"Accept": []string{"*/*"}})
}
