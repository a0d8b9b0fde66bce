package lib

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	table := DefaultKindTable()
	tests := []struct {
		filename string
		want     ContentKind
	}{
		{"photo.jpg", KindImage},
		{"PHOTO.JPG", KindImage},
		{"anim.gif", KindImage},
		{"pack.zip", KindArchive},
		{"pack.zipmod", KindArchive},
		{"clip.mp4", KindVideo},
		{"voice.flac", KindAudio},
		{"layers.psd", KindDocument},
		{"scan.pdf", KindDocument},
		{"mystery.xyz", KindUnknown},
		{"noextension", KindUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			assert.Equal(t, tt.want, table.Classify(tt.filename))
		})
	}
}

func TestLoadKindTable(t *testing.T) {
	t.Run("MergesOverDefaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "types.yml")
		require.NoError(t, os.WriteFile(path, []byte("archive: [cbz, .CBR]\nimage: [webp]\n"), 0644))

		table, err := LoadKindTable(path)
		require.NoError(t, err)
		assert.Equal(t, KindArchive, table.Classify("vol1.cbz"))
		assert.Equal(t, KindArchive, table.Classify("vol2.cbr"))
		assert.Equal(t, KindImage, table.Classify("pic.webp"))
		// defaults survive the merge
		assert.Equal(t, KindImage, table.Classify("pic.png"))
		assert.Equal(t, KindArchive, table.Classify("pack.zip"))
	})

	t.Run("UnknownKindRejected", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "types.yml")
		require.NoError(t, os.WriteFile(path, []byte("hologram: [holo]\n"), 0644))
		_, err := LoadKindTable(path)
		assert.Error(t, err)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := LoadKindTable(filepath.Join(t.TempDir(), "nope.yml"))
		assert.Error(t, err)
	})
}

func TestKindFilter(t *testing.T) {
	t.Run("EmptyAllowsEverything", func(t *testing.T) {
		var f KindFilter
		assert.True(t, f.Allows(KindImage))
		assert.True(t, f.Allows(KindUnknown))
	})

	t.Run("SelectedKindsOnly", func(t *testing.T) {
		f := KindFilter{KindImage: true, KindArchive: true}
		assert.True(t, f.Allows(KindImage))
		assert.True(t, f.Allows(KindArchive))
		assert.False(t, f.Allows(KindVideo))
		assert.False(t, f.Allows(KindUnknown))
	})
}
