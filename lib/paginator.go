package lib

import (
	"context"
	"fmt"
)

// PageSize is the number of posts the remote API returns per page.
const PageSize = 50

// PageOptions narrows which posts a pagination walk visits.
type PageOptions struct {
	// Page selects a single 1-based page instead of walking to the end.
	Page int
	// Word and Tag are forwarded to the API as server-side filters.
	Word string
	Tag  string
}

// Paginator walks a creator's posts (or a single post) into raw post values.
type Paginator struct {
	client *Client
}

// NewPaginator creates a Paginator over the given client.
func NewPaginator(client *Client) *Paginator {
	return &Paginator{client: client}
}

// Posts fetches the raw posts of the resource. For a whole-creator resource
// it pages at offsets 0, 50, 100, ... until a page comes back shorter than
// PageSize; an empty page stops the walk the same way a short one does. When
// opts.Page is set, exactly that page is fetched. For a single-post resource
// exactly one post is fetched.
func (p *Paginator) Posts(ctx context.Context, res CanonicalResource, opts PageOptions) ([]RawPost, error) {
	if res.PostID != "" {
		post, err := p.client.GetPost(ctx, res.Platform, res.CreatorID, res.PostID)
		if err != nil {
			return nil, err
		}
		return []RawPost{*post}, nil
	}

	offset := 0
	if opts.Page > 0 {
		offset = (opts.Page - 1) * PageSize
	}

	var all []RawPost
	for {
		page, err := p.client.ListPosts(ctx, res.Platform, res.CreatorID, offset, opts.Word, opts.Tag)
		if err != nil {
			return nil, fmt.Errorf("listing posts at offset %d: %w", offset, err)
		}
		all = append(all, page...)
		if len(page) < PageSize || opts.Page > 0 {
			return all, nil
		}
		offset += PageSize
	}
}
