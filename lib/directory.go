package lib

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Directory maintains the locally cached roster of known creators. The cache
// is a single JSON document replaced whole on refresh; the stored roster
// Content-Length acts as a change fingerprint so an unchanged remote roster
// costs one HEAD request.
type Directory struct {
	client    *Client
	cachePath string

	fingerprint int64
	creators    map[string]CreatorRecord // keyed by platform/creatorID
}

// rosterCache is the on-disk shape of the roster cache.
type rosterCache struct {
	Fingerprint int64                    `json:"fingerprint"`
	Creators    map[string]CreatorRecord `json:"creators"`
}

// NewDirectory creates a Directory backed by the given cache file.
func NewDirectory(client *Client, cachePath string) *Directory {
	return &Directory{
		client:    client,
		cachePath: cachePath,
		creators:  map[string]CreatorRecord{},
	}
}

func creatorKey(platform Platform, creatorID string) string {
	return string(platform) + "/" + creatorID
}

// Load reads the existing cache without touching the network. A missing
// cache file leaves the directory empty and returns os.ErrNotExist.
func (d *Directory) Load() error {
	data, err := os.ReadFile(d.cachePath)
	if err != nil {
		return err
	}
	var cache rosterCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return fmt.Errorf("parsing roster cache %s: %w", d.cachePath, err)
	}
	d.fingerprint = cache.Fingerprint
	d.creators = cache.Creators
	if d.creators == nil {
		d.creators = map[string]CreatorRecord{}
	}
	return nil
}

// Refresh brings the cache up to date. Unless force is set, a cache whose
// fingerprint matches the remote roster's declared byte length is reused
// without re-downloading.
func (d *Directory) Refresh(ctx context.Context, force bool) error {
	size, err := d.client.RosterSize(ctx)
	if err != nil {
		return fmt.Errorf("checking roster size: %w", err)
	}

	if !force {
		if err := d.Load(); err == nil && size == d.fingerprint {
			return nil
		} else if err != nil && !os.IsNotExist(err) {
			return err
		}
	}

	creators, err := d.client.ListCreators(ctx)
	if err != nil {
		return fmt.Errorf("downloading roster: %w", err)
	}
	d.fingerprint = size
	d.creators = make(map[string]CreatorRecord, len(creators))
	for _, c := range creators {
		d.creators[creatorKey(c.Service, c.ID)] = c
	}
	return d.save()
}

func (d *Directory) save() error {
	data, err := json.Marshal(rosterCache{Fingerprint: d.fingerprint, Creators: d.creators})
	if err != nil {
		return err
	}
	return writeFileAtomic(d.cachePath, data)
}

// Len returns the number of cached creators.
func (d *Directory) Len() int {
	return len(d.creators)
}

// Lookup returns the cached record for (platform, creatorID). A miss returns
// ok=false, never an error.
func (d *Directory) Lookup(platform Platform, creatorID string) (CreatorRecord, bool) {
	c, ok := d.creators[creatorKey(platform, creatorID)]
	return c, ok
}

// Search returns creators whose display name contains word
// (case-insensitively), optionally restricted to one platform. Results are
// ordered by the time the creator was indexed, not by relevance.
func (d *Directory) Search(word string, platform Platform) []CreatorRecord {
	word = strings.ToLower(word)
	var matches []CreatorRecord
	for _, c := range d.creators {
		if platform != "" && c.Service != platform {
			continue
		}
		if strings.Contains(strings.ToLower(c.Name), word) {
			matches = append(matches, c)
		}
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Indexed != matches[j].Indexed {
			return matches[i].Indexed < matches[j].Indexed
		}
		return matches[i].ID < matches[j].ID
	})
	return matches
}
