// Package indexer crawls file system roots and mail stores into the index.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wesm/livefind/internal/store"
)

const (
	defaultBatchSize       = 500
	defaultWorkers         = 4
	defaultMaxContentBytes = 1 << 20
)

// Options configures an Indexer.
type Options struct {
	// Roots are the directories to crawl.
	Roots []string

	// Mail enables parsing .mbox, .eml and .emlx files into mail items.
	Mail bool

	// MaxContentBytes bounds how much of a text file or message body is
	// stored for content search. Zero uses 1 MiB; negative disables content.
	MaxContentBytes int64

	// Workers is the number of roots crawled concurrently. Zero uses 4.
	Workers int

	// BatchSize is the number of items written per transaction.
	BatchSize int

	// Logger is optional; defaults to slog.Default().
	Logger *slog.Logger

	// Now overrides the clock for rank computation and gather times.
	Now func() time.Time
}

// RootSummary reports the outcome of crawling one root.
type RootSummary struct {
	Root     string
	Folders  int64
	Files    int64
	Mail     int64
	Skipped  int64 // unreadable entries and unparseable messages
	Removed  int64 // stale items deleted after the crawl
	Duration time.Duration
	Err      error
}

// Summary reports a whole indexing run.
type Summary struct {
	Roots    []RootSummary
	Duration time.Duration
}

// Items returns the number of items written across all roots.
func (s *Summary) Items() int64 {
	var n int64
	for _, r := range s.Roots {
		n += r.Folders + r.Files + r.Mail
	}
	return n
}

// Indexer writes crawl results into a store.
type Indexer struct {
	st   *store.Store
	opts Options
	log  *slog.Logger

	mu      sync.Mutex
	running bool
}

// New creates an indexer.
func New(st *store.Store, opts Options) *Indexer {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxContentBytes == 0 {
		opts.MaxContentBytes = defaultMaxContentBytes
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Indexer{st: st, opts: opts, log: log}
}

// ErrAlreadyRunning is returned when Run is called while a run is active.
var ErrAlreadyRunning = errors.New("indexing already in progress")

// Run crawls every root, Workers at a time. A root that cannot be crawled
// is reported in its RootSummary and does not stop the others; the
// returned error is non-nil only when ctx ends or every root failed.
func (ix *Indexer) Run(ctx context.Context) (*Summary, error) {
	ix.mu.Lock()
	if ix.running {
		ix.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	ix.running = true
	ix.mu.Unlock()
	defer func() {
		ix.mu.Lock()
		ix.running = false
		ix.mu.Unlock()
	}()

	start := time.Now()
	summary := &Summary{Roots: make([]RootSummary, len(ix.opts.Roots))}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.opts.Workers)
	for i, root := range ix.opts.Roots {
		g.Go(func() error {
			rs, err := ix.IndexRoot(gctx, root)
			if err != nil {
				rs.Err = err
				if gctx.Err() != nil {
					summary.Roots[i] = rs
					return err
				}
				ix.log.Warn("root crawl failed", "root", root, "error", err)
			}
			summary.Roots[i] = rs
			return nil
		})
	}
	err := g.Wait()
	summary.Duration = time.Since(start)
	if err != nil {
		return summary, err
	}

	failed := 0
	for _, r := range summary.Roots {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 && failed == len(summary.Roots) {
		return summary, fmt.Errorf("all %d roots failed: %w", failed, summary.Roots[0].Err)
	}
	return summary, nil
}

// IndexRoot crawls a single root and deletes the items it no longer has.
func (ix *Indexer) IndexRoot(ctx context.Context, root string) (RootSummary, error) {
	start := time.Now()
	rs := RootSummary{Root: root}

	abs, err := filepath.Abs(root)
	if err != nil {
		return rs, fmt.Errorf("abs path: %w", err)
	}
	rs.Root = abs
	info, err := os.Stat(abs)
	if err != nil {
		return rs, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return rs, fmt.Errorf("root %s is not a directory", abs)
	}

	// Gather times have second resolution; items written by this crawl
	// carry gatheredAt and everything older is stale afterwards.
	now := ix.opts.Now()
	gatheredAt := now.Truncate(time.Second)
	w := &batchWriter{st: ix.st, size: ix.opts.BatchSize, gathered: gatheredAt}

	walkErr := filepath.WalkDir(abs, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			rs.Skipped++
			ix.log.Debug("skipping unreadable entry", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if path == abs {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			rs.Skipped++
			return nil
		}
		rel, _ := filepath.Rel(abs, path)
		depth := strings.Count(filepath.ToSlash(rel), "/")

		it := fileItem(abs, path, fi, depth, now)
		if d.IsDir() {
			rs.Folders++
		} else {
			rs.Files++
			it.Content, err = readContent(path, it.Kind, ix.opts.MaxContentBytes)
			if err != nil {
				ix.log.Debug("content not read", "path", path, "error", err)
			}
		}
		if err := w.add(it); err != nil {
			return err
		}

		if ix.opts.Mail && !d.IsDir() && it.Kind == MailKind {
			n, skipped, err := ix.indexMail(ctx, abs, path, fi, w)
			rs.Mail += n
			rs.Skipped += skipped
			if err != nil {
				return err
			}
		}
		return nil
	})
	if walkErr == nil {
		walkErr = w.flush()
	}
	if walkErr != nil {
		rs.Duration = time.Since(start)
		return rs, walkErr
	}

	removed, err := ix.st.DeleteStale(abs, gatheredAt)
	if err != nil {
		return rs, err
	}
	rs.Removed = removed
	rs.Duration = time.Since(start)

	ix.log.Info("root indexed",
		"root", abs,
		"folders", rs.Folders,
		"files", rs.Files,
		"mail", rs.Mail,
		"skipped", rs.Skipped,
		"removed", rs.Removed,
		"duration", rs.Duration)
	return rs, nil
}

// indexMail adds the messages stored in a mail file. Parse failures are
// counted as skipped; only write errors abort the crawl.
func (ix *Indexer) indexMail(ctx context.Context, root, path string, fi fs.FileInfo, w *batchWriter) (added, skipped int64, err error) {
	mailbox := mailboxName(path)
	add := func(raw []byte, sent time.Time) error {
		m, err := parseMessage(raw)
		if err != nil {
			skipped++
			ix.log.Debug("skipping unparseable message", "path", path, "error", err)
			return nil
		}
		if m.Date.IsZero() {
			m.Date = sent
		}
		it := m.item(mailbox, root, fi.ModTime(), ix.opts.MaxContentBytes)
		it.Rank = rank(0, it.DateModified, ix.opts.Now(), false)
		added++
		return w.add(it)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".mbox":
		f, err := os.Open(path)
		if err != nil {
			return 0, 1, nil
		}
		defer f.Close()
		n, err := readMbox(f, func(raw []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return add(raw, time.Time{})
		})
		skipped += int64(n)
		return added, skipped, err
	case ".emlx":
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, 1, nil
		}
		raw, sent, err := parseEmlx(data)
		if err != nil {
			ix.log.Debug("skipping malformed emlx", "path", path, "error", err)
			return 0, 1, nil
		}
		return added, skipped, add(raw, sent)
	default:
		data, err := os.ReadFile(path)
		if err != nil {
			return 0, 1, nil
		}
		return added, skipped, add(data, time.Time{})
	}
}

// batchWriter buffers items and writes them in transactions.
type batchWriter struct {
	st       *store.Store
	size     int
	gathered time.Time
	pending  []store.Item
}

func (w *batchWriter) add(it store.Item) error {
	it.GatherTime = w.gathered
	w.pending = append(w.pending, it)
	if len(w.pending) >= w.size {
		return w.flush()
	}
	return nil
}

func (w *batchWriter) flush() error {
	if len(w.pending) == 0 {
		return nil
	}
	if err := w.st.UpsertItems(w.pending); err != nil {
		return err
	}
	w.pending = w.pending[:0]
	return nil
}
