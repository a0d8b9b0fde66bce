package lib

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawPostWith(attachments ...RawAttachment) RawPost {
	return RawPost{
		ID:          "p1",
		User:        "123",
		Service:     PlatformFanbox,
		Title:       "Monthly rewards",
		Attachments: attachments,
	}
}

func TestParseSkips(t *testing.T) {
	t.Run("NoAttachments", func(t *testing.T) {
		p := NewParser(ParseOptions{}, nil, nil)
		_, ok := p.Parse(rawPostWith())
		assert.False(t, ok)
	})

	t.Run("BlockWordCaseInsensitive", func(t *testing.T) {
		p := NewParser(ParseOptions{BlockWord: "REWARD"}, nil, nil)
		_, ok := p.Parse(rawPostWith(RawAttachment{Name: "a.png", Path: "/a.png"}))
		assert.False(t, ok)
	})

	t.Run("AlreadyInLedger", func(t *testing.T) {
		ledger, err := OpenLedger(filepath.Join(t.TempDir(), "ledger.txt"))
		require.NoError(t, err)
		require.NoError(t, ledger.Add(LedgerKey(PlatformFanbox, "123", "p1")))

		p := NewParser(ParseOptions{}, nil, ledger)
		_, ok := p.Parse(rawPostWith(RawAttachment{Name: "a.png", Path: "/a.png"}))
		assert.False(t, ok)
	})

	t.Run("AllAttachmentsFiltered", func(t *testing.T) {
		p := NewParser(ParseOptions{Kinds: KindFilter{KindArchive: true}}, nil, nil)
		_, ok := p.Parse(rawPostWith(
			RawAttachment{Name: "a.png", Path: "/a.png"},
			RawAttachment{Name: "b.mp4", Path: "/b.mp4"},
		))
		assert.False(t, ok)
	})
}

func TestParseFiltersIndividually(t *testing.T) {
	p := NewParser(ParseOptions{Kinds: KindFilter{KindArchive: true}}, nil, nil)
	post, ok := p.Parse(rawPostWith(
		RawAttachment{Name: "a.png", Path: "/a.png"},
		RawAttachment{Name: "pack.zip", Path: "/pack.zip"},
	))
	require.True(t, ok)
	require.Len(t, post.Attachments, 1)
	assert.Equal(t, "pack.zip", post.Attachments[0].Name)
	assert.Equal(t, KindArchive, post.Attachments[0].Kind)
}

func TestParseRenamesImages(t *testing.T) {
	p := NewParser(ParseOptions{}, nil, nil)
	post, ok := p.Parse(rawPostWith(
		RawAttachment{Name: "a1b2c3d4-e5f6-7890-abcd-ef1234567890.png", Path: "/x/a.png"},
		RawAttachment{Name: "notes.pdf", Path: "/x/notes.pdf"},
		RawAttachment{Name: "ffffffff-0000-1111-2222-333333333333.JPG", Path: "/x/b.jpg"},
	))
	require.True(t, ok)
	require.Len(t, post.Attachments, 3)

	// Sequentially numbered image names regardless of the remote name; the
	// index only advances for images.
	assert.Equal(t, "p1_p0.png", post.Attachments[0].Name)
	assert.Equal(t, "notes.pdf", post.Attachments[1].Name)
	assert.Equal(t, "p1_p1.jpg", post.Attachments[2].Name)
}

func TestParseNameFallsBackToPath(t *testing.T) {
	p := NewParser(ParseOptions{}, nil, nil)
	post, ok := p.Parse(rawPostWith(RawAttachment{Name: "", Path: "/ab/cd/archive.zip"}))
	require.True(t, ok)
	assert.Equal(t, "archive.zip", post.Attachments[0].Name)
}

func TestParsePopulatesRecord(t *testing.T) {
	p := NewParser(ParseOptions{}, nil, nil)
	raw := rawPostWith(RawAttachment{Name: "a.png", Path: "/a.png"})
	raw.Content = "<p>hello</p>"
	post, ok := p.Parse(raw)
	require.True(t, ok)
	assert.Equal(t, "p1", post.ID)
	assert.Equal(t, "123", post.CreatorID)
	assert.Equal(t, PlatformFanbox, post.Platform)
	assert.Equal(t, "Monthly rewards", post.Title)
	assert.Equal(t, "<p>hello</p>", post.Content)
	// without a directory the creator id stands in for the name
	assert.Equal(t, "123", post.CreatorName)
	assert.Equal(t, "p1@fanbox[123]", post.LedgerKey())
}
