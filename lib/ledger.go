package lib

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
)

// ledgerHeader is the version line of the ledger file. The format is an
// explicit contract: one header line, then one completed post key per line.
// A per-attachment v2 would be needed to retry partially-failed posts.
const ledgerHeader = "kmn-dl ledger v1"

// LedgerKey builds the composite key identifying a post across runs.
func LedgerKey(platform Platform, creatorID, postID string) string {
	return fmt.Sprintf("%s@%s[%s]", postID, platform, creatorID)
}

// Ledger is the persisted set of posts whose attachments have all been
// resolved. It makes downloads idempotent across runs: a post present here
// is never re-fetched and never re-verified.
type Ledger struct {
	path  string
	keys  map[string]struct{}
	order []string
}

// OpenLedger loads the ledger at path, creating an empty one in memory when
// the file does not exist yet. A file with an unknown header is rejected
// rather than silently rewritten.
func OpenLedger(path string) (*Ledger, error) {
	l := &Ledger{path: path, keys: map[string]struct{}{}}

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return l, nil // empty file, treat as fresh
	}
	if header := strings.TrimSpace(scanner.Text()); header != ledgerHeader {
		return nil, fmt.Errorf("unsupported ledger format in %s: %q", path, header)
	}
	for scanner.Scan() {
		key := strings.TrimSpace(scanner.Text())
		if key == "" {
			continue
		}
		if _, ok := l.keys[key]; !ok {
			l.keys[key] = struct{}{}
			l.order = append(l.order, key)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return l, nil
}

// Has reports whether the post key is already recorded.
func (l *Ledger) Has(key string) bool {
	_, ok := l.keys[key]
	return ok
}

// Len returns the number of recorded keys.
func (l *Ledger) Len() int {
	return len(l.keys)
}

// Add records key and persists the whole ledger immediately via
// write-then-rename, so a crash never leaves the file truncated. Adding an
// already-present key is a no-op.
func (l *Ledger) Add(key string) error {
	if l.Has(key) {
		return nil
	}
	l.keys[key] = struct{}{}
	l.order = append(l.order, key)

	var buf bytes.Buffer
	buf.WriteString(ledgerHeader + "\n")
	for _, k := range l.order {
		buf.WriteString(k + "\n")
	}
	return writeFileAtomic(l.path, buf.Bytes())
}
