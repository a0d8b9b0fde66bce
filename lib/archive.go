package lib

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/japanese"
)

// ErrEncryptedArchive is returned when an archive requires a password. The
// archive file is left in place in that case.
var ErrEncryptedArchive = errors.New("archive is encrypted")

// zipFlagEncrypted is the general-purpose bit flag marking encrypted entries.
const zipFlagEncrypted = 0x1

// ExtractArchive expands the zip archive at archivePath into a sibling
// directory named after the archive's base name and removes the archive on
// success. Entry names stored in a legacy 8-bit encoding are re-decoded into
// UTF-8 (Shift_JIS first, then statistical detection). An encrypted archive
// yields ErrEncryptedArchive without extracting or deleting anything; an
// unreadable archive yields the underlying error so the caller can treat it
// as a corrupt download.
func ExtractArchive(archivePath string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		if r != nil {
			r.Close()
		}
		return fmt.Errorf("opening archive: %w", err)
	}

	for _, f := range r.File {
		if f.Flags&zipFlagEncrypted != 0 {
			r.Close()
			return ErrEncryptedArchive
		}
	}

	destDir := strings.TrimSuffix(archivePath, filepath.Ext(archivePath))
	for _, f := range r.File {
		if err := extractEntry(f, destDir); err != nil {
			r.Close()
			return err
		}
	}
	if err := r.Close(); err != nil {
		return err
	}
	return os.Remove(archivePath)
}

func extractEntry(f *zip.File, destDir string) error {
	name := decodeZipName(f)
	// Reject entries that would escape the destination directory.
	dest := filepath.Join(destDir, filepath.FromSlash(name))
	if !strings.HasPrefix(dest, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return fmt.Errorf("archive entry escapes destination: %q", f.Name)
	}

	if f.FileInfo().IsDir() {
		return os.MkdirAll(dest, 0755)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("reading archive entry %q: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		os.Remove(dest)
		return fmt.Errorf("extracting %q: %w", f.Name, err)
	}
	return out.Close()
}

// decodeZipName recovers an entry name stored in a legacy 8-bit encoding.
// Names flagged as UTF-8 pass through; everything else is decoded as
// Shift_JIS, falling back to statistical charset detection when that leaves
// replacement runes behind. Undecodable names are kept as-is.
func decodeZipName(f *zip.File) string {
	if !f.NonUTF8 && utf8.ValidString(f.Name) {
		return f.Name
	}
	raw := []byte(f.Name)

	if decoded, err := japanese.ShiftJIS.NewDecoder().Bytes(raw); err == nil {
		if s := string(decoded); utf8.ValidString(s) && !strings.ContainsRune(s, utf8.RuneError) {
			return s
		}
	}

	result, err := chardet.NewTextDetector().DetectBest(raw)
	if err != nil {
		return f.Name
	}
	enc, err := ianaindex.IANA.Encoding(result.Charset)
	if err != nil || enc == nil {
		return f.Name
	}
	decoded, err := enc.NewDecoder().Bytes(raw)
	if err != nil {
		return f.Name
	}
	return string(decoded)
}
