package lib

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	// Decoders for the image corruption check.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/cenkalti/backoff/v4"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// ErrDiskFull aborts the whole run: the remaining queue has been persisted
// and the process should terminate after user acknowledgement.
var ErrDiskFull = errors.New("no space left on device")

// errCorruptDownload marks a fetched file that failed verification and was
// deleted; the fetch is retried within the same attempt bound.
var errCorruptDownload = errors.New("downloaded file is corrupt")

// Swappable in tests to inject storage failures.
var (
	createDest     = os.Create
	extractArchive = ExtractArchive
)

// AttachmentState is one step of the per-attachment download state machine.
type AttachmentState int

const (
	StatePending AttachmentState = iota
	StateFetching
	StateVerifying
	StateExtracting
	StateDone
	StateSkipped
	StateFailed
)

func (s AttachmentState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateFetching:
		return "fetching"
	case StateVerifying:
		return "verifying"
	case StateExtracting:
		return "extracting"
	case StateDone:
		return "done"
	case StateSkipped:
		return "skipped"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("AttachmentState(%d)", int(s))
	}
}

// RetryPolicy bounds the retry behavior of a single attachment download:
// at most MaxAttempts attempts with a fixed Backoff delay between them.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
}

// DefaultRetryPolicy mirrors the historical behavior: up to 10 attempts,
// 10 seconds apart.
var DefaultRetryPolicy = RetryPolicy{MaxAttempts: 10, Backoff: 10 * time.Second}

// newBackOff builds the bounded constant backoff for one attachment.
func (p RetryPolicy) newBackOff() backoff.BackOff {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Backoff), uint64(attempts-1))
}

// ExecutorOptions configures a download Executor.
type ExecutorOptions struct {
	Layout Layout
	Retry  RetryPolicy
	// ExtractArchives expands downloaded archives next to themselves.
	ExtractArchives bool
	// ContentFormat materializes post bodies ("md", "txt" or "html");
	// empty disables.
	ContentFormat string
	// QueuePath is where the unprocessed queue is persisted on a fatal
	// storage error, and reloaded from by LoadQueue.
	QueuePath string
	// Progress draws queue and attachment progress bars.
	Progress bool
	Logger   *zap.Logger
}

// RunSummary reports what a queue drain accomplished.
type RunSummary struct {
	Posts   int
	Files   int
	Bytes   int64
	Skipped int
	Failed  int
}

// Executor drains the queue of normalized posts strictly sequentially:
// posts in order, attachments within a post in order, one fetch at a time.
// Sequential execution keeps the ledger single-writer and preserves the
// deterministic image numbering.
type Executor struct {
	client *Client
	ledger *Ledger
	opts   ExecutorOptions
	queue  []*PostRecord
}

// NewExecutor creates an Executor recording completions in ledger.
func NewExecutor(client *Client, ledger *Ledger, opts ExecutorOptions) *Executor {
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = DefaultRetryPolicy
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Executor{client: client, ledger: ledger, opts: opts}
}

// Enqueue appends a post to the download queue.
func (e *Executor) Enqueue(post *PostRecord) {
	e.queue = append(e.queue, post)
}

// Queue exposes the pending posts, in order.
func (e *Executor) Queue() []*PostRecord {
	return e.queue
}

// LoadQueue reloads a queue persisted by an earlier disk-full abort and
// removes the file. Absent file means nothing to resume.
func (e *Executor) LoadQueue() (int, error) {
	data, err := os.ReadFile(e.opts.QueuePath)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var posts []*PostRecord
	if err := json.Unmarshal(data, &posts); err != nil {
		return 0, fmt.Errorf("parsing persisted queue %s: %w", e.opts.QueuePath, err)
	}
	e.queue = append(e.queue, posts...)
	if err := os.Remove(e.opts.QueuePath); err != nil {
		return 0, err
	}
	return len(posts), nil
}

// persistQueue saves the posts that have not been fully processed yet.
func (e *Executor) persistQueue(remaining []*PostRecord) error {
	data, err := json.Marshal(remaining)
	if err != nil {
		return err
	}
	return writeFileAtomic(e.opts.QueuePath, data)
}

// Run drains the queue. Each post's attachments go through the state
// machine; once all of them are resolved (done, skipped or failed) the
// post's ledger key is written and persisted immediately, so a crash loses
// at most the in-flight post. A disk-full error persists the remaining
// queue and returns ErrDiskFull; a canceled context stops cleanly after the
// current attachment.
func (e *Executor) Run(ctx context.Context) (RunSummary, error) {
	var summary RunSummary

	var queueBar *progressbar.ProgressBar
	if e.opts.Progress && len(e.queue) > 1 {
		queueBar = progressbar.Default(int64(len(e.queue)), "queue")
	}

	for i, post := range e.queue {
		if err := ctx.Err(); err != nil {
			e.queue = e.queue[i:]
			return summary, err
		}

		dir := e.opts.Layout.PostDir(post)
		if err := os.MkdirAll(dir, 0755); err != nil {
			if isDiskFull(err) {
				return summary, e.abortFull(i)
			}
			return summary, err
		}
		if e.opts.ContentFormat != "" {
			if err := post.WriteBody(dir, e.opts.ContentFormat); err != nil {
				if isDiskFull(err) {
					return summary, e.abortFull(i)
				}
				e.opts.Logger.Warn("writing post body failed",
					zap.String("post", post.LedgerKey()), zap.Error(err))
			}
		}

		for _, att := range post.Attachments {
			state, n, err := e.processAttachment(ctx, post, att, dir)
			if err != nil {
				// Run-aborting errors are not attachment failures.
				if errors.Is(err, ErrDiskFull) {
					return summary, e.abortFull(i)
				}
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					e.queue = e.queue[i:]
					return summary, err
				}
			}
			switch state {
			case StateDone:
				summary.Files++
				summary.Bytes += n
			case StateSkipped:
				summary.Skipped++
			case StateFailed:
				summary.Failed++
				e.opts.Logger.Warn("attachment failed",
					zap.String("post", post.LedgerKey()),
					zap.String("name", att.Name),
					zap.Error(err))
			}
		}

		// All attachments resolved: record completion, even when some of
		// them failed, so the post is never re-attempted forever.
		if err := e.ledger.Add(post.LedgerKey()); err != nil {
			if isDiskFull(err) {
				return summary, e.abortFull(i)
			}
			return summary, fmt.Errorf("recording post in ledger: %w", err)
		}
		summary.Posts++
		if queueBar != nil {
			queueBar.Add(1)
		}
	}
	e.queue = nil
	return summary, nil
}

// abortFull persists everything from index i on and reports ErrDiskFull.
func (e *Executor) abortFull(i int) error {
	remaining := e.queue[i:]
	e.queue = remaining
	if err := e.persistQueue(remaining); err != nil {
		e.opts.Logger.Error("persisting queue failed", zap.Error(err))
		return fmt.Errorf("%w (queue could not be persisted: %v)", ErrDiskFull, err)
	}
	return fmt.Errorf("%w (queue persisted to %s)", ErrDiskFull, e.opts.QueuePath)
}

// processAttachment runs one attachment through
// Pending -> Fetching -> Verifying -> (Extracting) -> Done|Skipped|Failed.
// Transient errors re-enter Fetching under the retry policy; verification
// failures delete the file first and count against the same bound.
func (e *Executor) processAttachment(ctx context.Context, post *PostRecord, att AttachmentRecord, dir string) (AttachmentState, int64, error) {
	dest := filepath.Join(dir, SanitizeSegment(att.Name))
	if _, err := os.Stat(dest); err == nil {
		return StateSkipped, 0, nil
	}

	state := StatePending
	var written int64

	operation := func() error {
		state = StateFetching
		n, err := e.fetchFile(ctx, e.client.AttachmentURL(att.Path), dest, att.Name)
		if err != nil {
			os.Remove(dest)
			return classifyError(ctx, err)
		}
		written = n

		if att.Kind == KindImage {
			state = StateVerifying
			if err := verifyImage(dest); err != nil {
				os.Remove(dest)
				return fmt.Errorf("%w: %w", errCorruptDownload, err)
			}
		}

		if att.Kind == KindArchive && e.opts.ExtractArchives {
			state = StateExtracting
			if err := extractArchive(dest); err != nil {
				if errors.Is(err, ErrEncryptedArchive) {
					// Keep the archive for manual handling.
					e.opts.Logger.Info("archive is encrypted, left in place",
						zap.String("file", dest))
					return nil
				}
				if isDiskFull(err) {
					// Keep the archive: re-fetching it cannot free space.
					return backoff.Permanent(fmt.Errorf("%w: %v", ErrDiskFull, err))
				}
				os.Remove(dest)
				return classifyError(ctx, fmt.Errorf("%w: %w", errCorruptDownload, err))
			}
		}
		return nil
	}

	err := backoff.Retry(operation, e.opts.Retry.newBackOff())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return StateSkipped, 0, nil
		}
		return StateFailed, 0, fmt.Errorf("%s: %w", state, err)
	}
	return StateDone, written, nil
}

// fetchFile streams url into dest.
func (e *Executor) fetchFile(ctx context.Context, url, dest, name string) (int64, error) {
	body, err := e.client.FetchBytes(ctx, url)
	if err != nil {
		return 0, err
	}
	defer body.Close()

	out, err := createDest(dest)
	if err != nil {
		return 0, err
	}

	var w io.Writer = out
	var bar *progressbar.ProgressBar
	if e.opts.Progress {
		bar = progressbar.DefaultBytes(-1, name)
		w = io.MultiWriter(out, bar)
	}

	n, err := io.Copy(w, body)
	if bar != nil {
		bar.Close()
	}
	if err != nil {
		out.Close()
		return n, err
	}
	return n, out.Close()
}

// classifyError wraps errors that must not be retried as permanent.
func classifyError(ctx context.Context, err error) error {
	switch {
	case isDiskFull(err):
		return backoff.Permanent(fmt.Errorf("%w: %v", ErrDiskFull, err))
	case ctx.Err() != nil:
		return backoff.Permanent(ctx.Err())
	case errors.Is(err, ErrNotFound):
		return backoff.Permanent(err)
	default:
		return err
	}
}

// isDiskFull reports whether err is a storage exhaustion error.
func isDiskFull(err error) bool {
	return errors.Is(err, syscall.ENOSPC) || errors.Is(err, ErrDiskFull)
}

// verifyImage decodes the file to detect truncated or corrupt downloads.
func verifyImage(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, _, err = image.Decode(f)
	return err
}
