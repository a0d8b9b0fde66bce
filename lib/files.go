package lib

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
)

// segmentSanitizer substitutes filesystem-illegal characters with visually
// similar full-width equivalents, so titles survive as path segments without
// changing meaning.
var segmentSanitizer = strings.NewReplacer(
	"　", " ",
	"\\", "＼",
	"/", "／",
	":", "：",
	"*", "＊",
	"?", "？",
	"\"", "”",
	"<", "＜",
	">", "＞",
	"|", "｜",
)

// SanitizeSegment makes name safe to use as a single path segment.
func SanitizeSegment(name string) string {
	safe := strings.Trim(segmentSanitizer.Replace(name), " .")
	if safe == "" {
		safe = "untitled"
	}
	return safe
}

// Layout decides where a post's attachments are materialized on disk.
type Layout struct {
	Root string
	// Flat skips the per-post directory level.
	Flat bool
}

// CreatorDir returns the directory for a creator's downloads:
// <root>/<platform>/[<creator_id>] <creator_name>.
func (l Layout) CreatorDir(post *PostRecord) string {
	return filepath.Join(
		l.Root,
		string(post.Platform),
		SanitizeSegment(fmt.Sprintf("[%s] %s", post.CreatorID, post.CreatorName)),
	)
}

// PostDir returns the directory a post's attachments are written into.
func (l Layout) PostDir(post *PostRecord) string {
	if l.Flat {
		return l.CreatorDir(post)
	}
	return filepath.Join(
		l.CreatorDir(post),
		SanitizeSegment(fmt.Sprintf("[%s] %s", post.ID, post.Title)),
	)
}

// writeFileAtomic writes data to path via a temporary file in the same
// directory followed by a rename, so readers never observe a partial write.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// HumanSize formats a byte count using binary units.
func HumanSize(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	units := []string{"B", "KB", "MB", "GB", "TB", "PB", "EB"}
	i := int(math.Log(float64(n)) / math.Log(1024))
	if i >= len(units) {
		i = len(units) - 1
	}
	if i == 0 {
		return fmt.Sprintf("%d B", n)
	}
	return fmt.Sprintf("%.2f %s", float64(n)/math.Pow(1024, float64(i)), units[i])
}
