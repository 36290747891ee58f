// Package reader implements the tail-aware line producer described in
// spec.md §4.1. It opens a file read-only, emits one Line event per
// newline-terminated record (chunked reading, grounded on the teacher's
// internal/io/fs/chunkedreader.go), and watches the filesystem for
// modification, truncation and removal via fsnotify, falling back to a
// polling ticker for filesystems where inotify-style events are
// unreliable.
package reader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/snonux/otail/internal/otail/dlog"
	"github.com/snonux/otail/internal/otail/ferrors"
)

// ChunkSize is the fixed read granularity, matching the teacher's default
// chunk size for ChunkedReader.
const ChunkSize = 64 * 1024

// PollInterval is the fallback poll period backing up fsnotify.
const PollInterval = 500 * time.Millisecond

// Event is the sum type of messages the Reader emits: Line, Stats,
// Truncated, Gone, Error.
type Event interface {
	isEvent()
}

// Line is one complete newline-terminated record.
type Line struct {
	Text   string
	Offset int64
	Length int
}

func (Line) isEvent() {}

// Stats reports the cumulative (line count, byte count, end-complete)
// state after a batch of Lines.
type Stats struct {
	LineCount   uint64
	ByteCount   int64
	EndComplete bool
}

func (Stats) isEvent() {}

// Truncated signals the file shrank; the Reader has reset to offset 0.
type Truncated struct{}

func (Truncated) isEvent() {}

// Gone signals the file was removed or renamed away; the Reader has
// terminated.
type Gone struct{}

func (Gone) isEvent() {}

// Err carries an unrecoverable I/O error; the Reader has terminated.
type Err struct {
	Err error
}

func (Err) isEvent() {}

// Reader tails a single file, owning its read handle for the lifetime of
// the session (spec.md §3 Lifecycle: recreation on Gone is not attempted).
type Reader struct {
	path   string
	events chan Event

	file      *os.File
	watcher   *fsnotify.Watcher
	offset    int64
	residual  []byte
	lineCount uint64
	byteCount int64
}

// New opens path and starts tailing it in a background goroutine. Events
// are delivered on the channel returned by Events until ctx is cancelled,
// the file is removed, or an unrecoverable read error occurs.
func New(ctx context.Context, path string) (*Reader, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ferrors.ErrFileNotFound, path)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ferrors.ErrNotRegularFile, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, ferrors.Wrap(err, "opening "+path)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		f.Close()
		return nil, ferrors.Wrap(err, "creating watcher")
	}
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		f.Close()
		watcher.Close()
		return nil, ferrors.Wrap(err, "watching "+dir)
	}

	r := &Reader{
		path:    path,
		events:  make(chan Event, 4),
		file:    f,
		watcher: watcher,
	}

	go r.run(ctx)
	return r, nil
}

// Events returns the channel Line/Stats/Truncated/Gone/Err events are
// delivered on. The channel is closed when the Reader terminates.
func (r *Reader) Events() <-chan Event {
	return r.events
}

func (r *Reader) run(ctx context.Context) {
	defer close(r.events)
	defer r.watcher.Close()
	defer r.file.Close()

	// Drain whatever already exists in the file before waiting on events.
	if done := r.drain(ctx); done {
		return
	}

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if done := r.handleFSEvent(ctx, ev); done {
				return
			}

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			dlog.Warn("reader watcher error", err)

		case <-ticker.C:
			if done := r.checkGrowthOrGone(ctx); done {
				return
			}
		}
	}
}

func (r *Reader) handleFSEvent(ctx context.Context, ev fsnotify.Event) (done bool) {
	if filepath.Clean(ev.Name) != filepath.Clean(r.path) {
		return false
	}
	switch {
	case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		return r.emitGone(ctx)
	case ev.Op&(fsnotify.Write|fsnotify.Chmod) != 0:
		return r.checkGrowthOrGone(ctx)
	default:
		return false
	}
}

// checkGrowthOrGone stats the file, and depending on how size compares to
// our last known position, resumes reading, emits Truncated, or emits Gone.
func (r *Reader) checkGrowthOrGone(ctx context.Context) (done bool) {
	info, err := os.Stat(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return r.emitGone(ctx)
		}
		return r.emitErr(ctx, err)
	}

	size := info.Size()
	switch {
	case size > r.offset:
		return r.drain(ctx)
	case size < r.offset:
		return r.emitTruncated(ctx)
	default:
		return false
	}
}

// drain reads and emits all complete lines currently available, following
// the teacher's ChunkedReader loop: fixed-size reads, residual carried
// across reads, a single bounded send per event.
func (r *Reader) drain(ctx context.Context) (done bool) {
	buf := make([]byte, ChunkSize)
	any := false

	for {
		n, err := r.file.Read(buf)
		if n > 0 {
			any = true
			r.offset += int64(n)
			if done := r.extractLines(ctx, buf[:n]); done {
				return true
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return r.emitErr(ctx, err)
		}
		if n == 0 {
			break
		}
	}

	if any {
		return r.emitStats(ctx)
	}
	return false
}

func (r *Reader) extractLines(ctx context.Context, chunk []byte) (done bool) {
	data := chunk
	if len(r.residual) > 0 {
		data = append(append([]byte(nil), r.residual...), chunk...)
		r.residual = nil
	}

	start := 0
	for i, b := range data {
		if b != '\n' {
			continue
		}
		lineBytes := data[start:i]
		text := string(lineBytes)
		lineOffset := r.currentLineStartOffset(len(data), start)
		r.lineCount++
		r.byteCount += int64(i - start + 1)
		select {
		case r.events <- Line{Text: text, Offset: lineOffset, Length: i - start}:
		case <-ctx.Done():
			return true
		}
		start = i + 1
	}

	if start < len(data) {
		r.residual = append([]byte(nil), data[start:]...)
	}
	return false
}

// currentLineStartOffset computes the absolute file offset of the line
// starting at position start within a buffer of length bufLen, given that
// r.offset already reflects the end of that buffer.
func (r *Reader) currentLineStartOffset(bufLen, start int) int64 {
	return r.offset - int64(bufLen-start)
}

func (r *Reader) emitStats(ctx context.Context) (done bool) {
	stats := Stats{
		LineCount:   r.lineCount,
		ByteCount:   r.byteCount,
		EndComplete: len(r.residual) == 0,
	}
	select {
	case r.events <- stats:
		return false
	case <-ctx.Done():
		return true
	}
}

func (r *Reader) emitTruncated(ctx context.Context) (done bool) {
	r.residual = nil
	r.lineCount = 0
	r.byteCount = 0
	r.offset = 0
	if _, err := r.file.Seek(0, io.SeekStart); err != nil {
		return r.emitErr(ctx, err)
	}
	select {
	case r.events <- Truncated{}:
	case <-ctx.Done():
		return true
	}
	return r.drain(ctx)
}

func (r *Reader) emitGone(ctx context.Context) (done bool) {
	select {
	case r.events <- Gone{}:
	case <-ctx.Done():
	}
	return true
}

func (r *Reader) emitErr(ctx context.Context, err error) (done bool) {
	select {
	case r.events <- Err{Err: err}:
	case <-ctx.Done():
	}
	return true
}
