package lib

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ContentKind is the coarse classification of an attachment, used for
// filtering and type-specific verification.
type ContentKind string

const (
	KindImage    ContentKind = "image"
	KindArchive  ContentKind = "archive"
	KindVideo    ContentKind = "video"
	KindAudio    ContentKind = "audio"
	KindDocument ContentKind = "document"
	KindUnknown  ContentKind = "unknown"
)

// ContentKinds lists every kind except unknown.
var ContentKinds = []ContentKind{KindImage, KindArchive, KindVideo, KindAudio, KindDocument}

// KindTable maps a lowercase file extension (without the dot) to its kind.
type KindTable map[string]ContentKind

// DefaultKindTable returns the built-in extension table.
func DefaultKindTable() KindTable {
	table := KindTable{}
	for kind, exts := range map[ContentKind][]string{
		KindImage:    {"jpg", "jpeg", "jpe", "png", "gif"},
		KindArchive:  {"zip", "rar", "7z", "zipmod"},
		KindVideo:    {"mp4", "mov", "mkv"},
		KindAudio:    {"mp3", "m4a", "ogg", "flac", "wav"},
		KindDocument: {"psd", "pdf"},
	} {
		for _, ext := range exts {
			table[ext] = kind
		}
	}
	return table
}

// LoadKindTable reads a YAML file mapping kinds to extension lists and
// merges it over the default table, so a config file can reassign or add
// extensions without code changes. The expected shape is:
//
//	image: [jpg, png]
//	archive: [zip, cbz]
func LoadKindTable(path string) (KindTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var override map[ContentKind][]string
	if err := yaml.Unmarshal(data, &override); err != nil {
		return nil, fmt.Errorf("parsing kind table %s: %w", path, err)
	}
	table := DefaultKindTable()
	for kind, exts := range override {
		switch kind {
		case KindImage, KindArchive, KindVideo, KindAudio, KindDocument:
		default:
			return nil, fmt.Errorf("kind table %s: unknown kind %q", path, kind)
		}
		for _, ext := range exts {
			table[strings.ToLower(strings.TrimPrefix(ext, "."))] = kind
		}
	}
	return table, nil
}

// Classify derives the content kind of a filename from its extension.
func (t KindTable) Classify(filename string) ContentKind {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if kind, ok := t[ext]; ok {
		return kind
	}
	return KindUnknown
}

// KindFilter is the set of kinds selected for download. An empty filter
// allows everything.
type KindFilter map[ContentKind]bool

// Allows reports whether attachments of kind k pass the filter.
func (f KindFilter) Allows(k ContentKind) bool {
	return len(f) == 0 || f[k]
}
