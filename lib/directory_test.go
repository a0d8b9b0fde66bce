package lib

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rosterServer serves a fixed roster body and counts full downloads.
type rosterServer struct {
	body      string
	downloads int32
}

func (s *rosterServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(s.body)))
		if r.Method == http.MethodHead {
			return
		}
		atomic.AddInt32(&s.downloads, 1)
		fmt.Fprint(w, s.body)
	})
}

const rosterBody = `[
	{"id":"123","name":"Alice Atelier","service":"fanbox","indexed":100,"updated":200},
	{"id":"456","name":"bob","service":"patreon","indexed":50,"updated":60},
	{"id":"789","name":"alice crafts","service":"patreon","indexed":150,"updated":160}
]`

func TestDirectoryRefresh(t *testing.T) {
	roster := &rosterServer{body: rosterBody}
	server := httptest.NewServer(roster.handler())
	defer server.Close()

	cachePath := filepath.Join(t.TempDir(), "creators.json")
	client := NewClient(server.URL, NewFetcher(WithRatePerSecond(1000)))
	ctx := context.Background()

	t.Run("FirstRefreshDownloads", func(t *testing.T) {
		d := NewDirectory(client, cachePath)
		require.NoError(t, d.Refresh(ctx, false))
		assert.Equal(t, int32(1), atomic.LoadInt32(&roster.downloads))
		assert.Equal(t, 3, d.Len())

		_, err := os.Stat(cachePath)
		assert.NoError(t, err)
	})

	t.Run("UnchangedFingerprintSkipsDownload", func(t *testing.T) {
		d := NewDirectory(client, cachePath)
		require.NoError(t, d.Refresh(ctx, false))
		assert.Equal(t, int32(1), atomic.LoadInt32(&roster.downloads))
		assert.Equal(t, 3, d.Len())
	})

	t.Run("ChangedFingerprintRedownloads", func(t *testing.T) {
		roster.body = rosterBody + "  " // same content, new length
		d := NewDirectory(client, cachePath)
		require.NoError(t, d.Refresh(ctx, false))
		assert.Equal(t, int32(2), atomic.LoadInt32(&roster.downloads))
	})

	t.Run("ForceRedownloads", func(t *testing.T) {
		d := NewDirectory(client, cachePath)
		require.NoError(t, d.Refresh(ctx, true))
		assert.Equal(t, int32(3), atomic.LoadInt32(&roster.downloads))
	})
}

func TestDirectoryLoad(t *testing.T) {
	t.Run("MissingCache", func(t *testing.T) {
		d := NewDirectory(nil, filepath.Join(t.TempDir(), "nope.json"))
		err := d.Load()
		assert.True(t, os.IsNotExist(err))
		assert.Equal(t, 0, d.Len())
	})

	t.Run("CorruptCache", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "creators.json")
		require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
		d := NewDirectory(nil, path)
		assert.Error(t, d.Load())
	})
}

func TestDirectoryLookupAndSearch(t *testing.T) {
	roster := &rosterServer{body: rosterBody}
	server := httptest.NewServer(roster.handler())
	defer server.Close()

	d := NewDirectory(NewClient(server.URL, NewFetcher(WithRatePerSecond(1000))), filepath.Join(t.TempDir(), "creators.json"))
	require.NoError(t, d.Refresh(context.Background(), false))

	t.Run("LookupHit", func(t *testing.T) {
		c, ok := d.Lookup(PlatformFanbox, "123")
		require.True(t, ok)
		assert.Equal(t, "Alice Atelier", c.Name)
	})

	t.Run("LookupMissIsNotAnError", func(t *testing.T) {
		_, ok := d.Lookup(PlatformFanbox, "999")
		assert.False(t, ok)
	})

	t.Run("LookupIsPlatformScoped", func(t *testing.T) {
		_, ok := d.Lookup(PlatformPatreon, "123")
		assert.False(t, ok)
	})

	t.Run("SearchCaseInsensitive", func(t *testing.T) {
		matches := d.Search("ALICE", "")
		require.Len(t, matches, 2)
		// ordered by indexed time, not relevance
		assert.Equal(t, "123", matches[0].ID)
		assert.Equal(t, "789", matches[1].ID)
	})

	t.Run("SearchPlatformFilter", func(t *testing.T) {
		matches := d.Search("alice", PlatformPatreon)
		require.Len(t, matches, 1)
		assert.Equal(t, "789", matches[0].ID)
	})

	t.Run("SearchMissIsEmpty", func(t *testing.T) {
		assert.Empty(t, d.Search("nobody", ""))
	})
}
