package lib

import (
	"fmt"
	"path"
	"strings"
)

// AttachmentRecord is one downloadable file of a post after classification.
type AttachmentRecord struct {
	// Name is the local display name, already renamed for images.
	Name string `json:"name"`
	// Path is the remote source path within the attachment store.
	Path string      `json:"path"`
	Kind ContentKind `json:"kind"`
}

// PostRecord is a normalized post ready for the download queue.
type PostRecord struct {
	ID          string             `json:"id"`
	CreatorID   string             `json:"creator_id"`
	CreatorName string             `json:"creator_name"`
	Platform    Platform           `json:"platform"`
	Title       string             `json:"title"`
	Content     string             `json:"content,omitempty"`
	Attachments []AttachmentRecord `json:"attachments"`
}

// LedgerKey returns the post's composite ledger key.
func (p *PostRecord) LedgerKey() string {
	return LedgerKey(p.Platform, p.CreatorID, p.ID)
}

// ParseOptions configures post parsing and attachment filtering.
type ParseOptions struct {
	// BlockWord skips any post whose title contains it, case-insensitively.
	BlockWord string
	// Kinds drops attachments whose kind it does not allow.
	Kinds KindFilter
	// Table overrides the extension-to-kind table; nil means the default.
	Table KindTable
}

// Parser turns raw API posts into queueable post records, consulting the
// directory for creator display names and the ledger to skip posts already
// materialized in an earlier run.
type Parser struct {
	opts   ParseOptions
	dir    *Directory
	ledger *Ledger
}

// NewParser creates a Parser. dir and ledger may be nil, disabling name
// lookup and ledger skipping respectively.
func NewParser(opts ParseOptions, dir *Directory, ledger *Ledger) *Parser {
	if opts.Table == nil {
		opts.Table = DefaultKindTable()
	}
	return &Parser{opts: opts, dir: dir, ledger: ledger}
}

// Parse normalizes raw into a PostRecord. It returns ok=false when the post
// is skipped: no attachments, a blocked title, already in the ledger, or
// every attachment dropped by the kind filter.
func (p *Parser) Parse(raw RawPost) (*PostRecord, bool) {
	if len(raw.Attachments) == 0 {
		return nil, false
	}
	if bw := p.opts.BlockWord; bw != "" &&
		strings.Contains(strings.ToLower(raw.Title), strings.ToLower(bw)) {
		return nil, false
	}
	if p.ledger != nil && p.ledger.Has(LedgerKey(raw.Service, raw.User, raw.ID)) {
		return nil, false
	}

	creatorName := raw.User
	if p.dir != nil {
		if c, ok := p.dir.Lookup(raw.Service, raw.User); ok {
			creatorName = c.Name
		}
	}

	var attachments []AttachmentRecord
	page := 0
	for _, a := range raw.Attachments {
		name := a.Name
		if name == "" {
			name = path.Base(a.Path)
		}
		kind := p.opts.Table.Classify(name)
		if !p.opts.Kinds.Allows(kind) {
			continue
		}
		// Images get deterministic, collision-free local names regardless of
		// the remote name, preserving their order within the post.
		if kind == KindImage {
			name = fmt.Sprintf("%s_p%d%s", raw.ID, page, strings.ToLower(path.Ext(name)))
			page++
		}
		attachments = append(attachments, AttachmentRecord{Name: name, Path: a.Path, Kind: kind})
	}
	if len(attachments) == 0 {
		return nil, false
	}

	return &PostRecord{
		ID:          raw.ID,
		CreatorID:   raw.User,
		CreatorName: creatorName,
		Platform:    raw.Service,
		Title:       raw.Title,
		Content:     raw.Content,
		Attachments: attachments,
	}, true
}
