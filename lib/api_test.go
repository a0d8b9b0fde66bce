package lib

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(handler http.Handler) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := NewClient(server.URL, NewFetcher(WithRatePerSecond(1000)))
	return client, server
}

func TestListCreators(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/creators.txt", r.URL.Path)
		fmt.Fprint(w, `[
			{"id":"123","name":"alice","service":"fanbox","indexed":1611111111,"updated":1633333333},
			{"id":"456","name":"bob","service":"patreon","indexed":1622222222,"updated":1644444444}
		]`)
	}))
	defer server.Close()

	creators, err := client.ListCreators(context.Background())
	require.NoError(t, err)
	require.Len(t, creators, 2)
	assert.Equal(t, "alice", creators[0].Name)
	assert.Equal(t, PlatformFanbox, creators[0].Service)
	assert.Equal(t, float64(1622222222), creators[1].Indexed)
}

func TestRosterSize(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "98765")
	}))
	defer server.Close()

	size, err := client.RosterSize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(98765), size)
}

func TestListPosts(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/fanbox/user/123/posts", r.URL.Path)
		assert.Equal(t, "100", r.URL.Query().Get("o"))
		assert.Equal(t, "cats", r.URL.Query().Get("q"))
		fmt.Fprint(w, `[{"id":"p1","user":"123","service":"fanbox","title":"hello","attachments":[]}]`)
	}))
	defer server.Close()

	posts, err := client.ListPosts(context.Background(), PlatformFanbox, "123", 100, "cats", "")
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "p1", posts[0].ID)
	assert.Equal(t, "hello", posts[0].Title)
}

func TestGetPost(t *testing.T) {
	t.Run("Found", func(t *testing.T) {
		client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/v1/fanbox/user/123/post/p1", r.URL.Path)
			fmt.Fprint(w, `{"post":{"id":"p1","user":"123","service":"fanbox","title":"hello",
				"attachments":[{"name":"a.png","path":"/aa/bb/a.png"}]}}`)
		}))
		defer server.Close()

		post, err := client.GetPost(context.Background(), PlatformFanbox, "123", "p1")
		require.NoError(t, err)
		assert.Equal(t, "p1", post.ID)
		require.Len(t, post.Attachments, 1)
		assert.Equal(t, "/aa/bb/a.png", post.Attachments[0].Path)
	})

	t.Run("NotFoundBody", func(t *testing.T) {
		client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"error":"Not Found"}`)
		}))
		defer server.Close()

		_, err := client.GetPost(context.Background(), PlatformFanbox, "123", "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("NotFoundStatus", func(t *testing.T) {
		client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		_, err := client.GetPost(context.Background(), PlatformFanbox, "123", "nope")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMaintenanceBecomesAPIError(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := client.ListCreators(context.Background())
	var apiErr *APIError
	assert.ErrorAs(t, err, &apiErr)
}

func TestListChannels(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/discord/channel/lookup/455", r.URL.Path)
		fmt.Fprint(w, `[{"id":"1","name":"general"},{"id":"2","name":"art"}]`)
	}))
	defer server.Close()

	channels, err := client.ListChannels(context.Background(), "455")
	require.NoError(t, err)
	require.Len(t, channels, 2)
	assert.Equal(t, "general", channels[0].Name)
}

func TestFavorites(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/account/favorites", r.URL.Path)
		switch r.URL.Query().Get("type") {
		case "artist":
			fmt.Fprint(w, `[{"id":"123","name":"alice","service":"fanbox","indexed":"2021-01-01"}]`)
		case "post":
			fmt.Fprint(w, `[{"id":"p1","user":"123","service":"fanbox","title":"fav","attachments":[]}]`)
		}
	}))
	defer server.Close()

	creators, err := client.FavoriteCreators(context.Background())
	require.NoError(t, err)
	require.Len(t, creators, 1)
	assert.Equal(t, "alice", creators[0].Name)

	posts, err := client.FavoritePosts(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "fav", posts[0].Title)
}

func TestAttachmentURL(t *testing.T) {
	client := NewClient("https://kemono.cr", nil)
	assert.Equal(t, "https://kemono.cr/data/aa/bb/cc.png", client.AttachmentURL("/aa/bb/cc.png"))
	assert.Equal(t, "https://kemono.cr/data/aa/bb/cc.png", client.AttachmentURL("aa/bb/cc.png"))
}

func TestFetchBytes(t *testing.T) {
	client, server := newTestClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("attachment bytes"))
	}))
	defer server.Close()

	body, err := client.FetchBytes(context.Background(), server.URL+"/data/x.bin")
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "attachment bytes", string(data))
}
