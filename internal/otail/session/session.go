// Package session wires the Indexer, Filter Projector and the two View
// caches together (spec.md §2 "Orchestration / message routing") and
// implements the Sync and Auto-sync operations of spec.md §4.5. It is the
// thinnest possible glue between the core and a TUI: it owns no rendering
// logic, only a coalesced "redraw needed" signal driven by a fixed-rate
// ticker (spec.md §5 "Render coalescing").
package session

import (
	"context"
	"sync"
	"time"

	"github.com/snonux/otail/internal/otail/filter"
	"github.com/snonux/otail/internal/otail/filterspec"
	"github.com/snonux/otail/internal/otail/indexer"
	"github.com/snonux/otail/internal/otail/linesvc"
	"github.com/snonux/otail/internal/otail/view"
)

// DefaultFrameInterval is 30Hz, matching spec.md §5's render clock.
const DefaultFrameInterval = time.Second / 30

// Session owns one file's full pipeline: Reader (inside Indexer) ->
// Indexer -> Filter Projector -> two Views.
type Session struct {
	ix   *indexer.Indexer
	proj *filter.Projector

	Raw      *view.View
	Filtered *view.View

	mu       sync.Mutex
	autoSync bool
	progress filter.ScanProgress

	redraw chan struct{}
	closed chan struct{}
}

// Open starts indexing path and returns a fully wired Session. frameInterval
// of 0 uses DefaultFrameInterval.
func Open(ctx context.Context, path string, frameInterval time.Duration) (*Session, error) {
	if frameInterval <= 0 {
		frameInterval = DefaultFrameInterval
	}

	ix, err := indexer.New(ctx, path)
	if err != nil {
		return nil, err
	}
	proj := filter.New(ctx, ix, filterspec.DisabledSpec())

	rawID, rawStats, rawEvents := ix.Register()
	filteredID, filteredStats, filteredEvents, filteredProgress := proj.RegisterWithProgress()

	s := &Session{
		ix:       ix,
		proj:     proj,
		Raw:      view.New(ix, rawID),
		Filtered: view.New(proj, filteredID),
		redraw:   make(chan struct{}, 1),
		closed:   make(chan struct{}),
	}

	go s.pumpStats(rawStats, s.Raw)
	go s.pumpEvents(rawEvents, s.Raw)
	go s.pumpStats(filteredStats, s.Filtered)
	go s.pumpEvents(filteredEvents, s.Filtered)
	go s.pumpProgress(filteredProgress)
	go s.renderLoop(ctx, frameInterval)

	return s, nil
}

func (s *Session) pumpStats(ch <-chan linesvc.Stats, v *view.View) {
	for {
		select {
		case st, ok := <-ch:
			if !ok {
				return
			}
			v.HandleStats(st)
		case <-s.closed:
			return
		}
	}
}

func (s *Session) pumpEvents(ch <-chan linesvc.Event, v *view.View) {
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return
			}
			v.HandleEvent(ev)
		case <-s.closed:
			return
		}
	}
}

func (s *Session) pumpProgress(ch <-chan filter.ScanProgress) {
	for {
		select {
		case p, ok := <-ch:
			if !ok {
				return
			}
			s.mu.Lock()
			s.progress = p
			s.mu.Unlock()
		case <-s.closed:
			return
		}
	}
}

func (s *Session) renderLoop(ctx context.Context, frameInterval time.Duration) {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closed:
			return
		case <-ticker.C:
			if s.Raw.Dirty() || s.Filtered.Dirty() {
				select {
				case s.redraw <- struct{}{}:
				default:
				}
			}
		}
	}
}

// Redraw signals (coalesced, latest-pending-wins) that at least one view
// changed since the last tick. The TUI task should drain this channel and
// repaint.
func (s *Session) Redraw() <-chan struct{} {
	return s.redraw
}

// Progress returns the most recently reported filter scan progress.
func (s *Session) Progress() filter.ScanProgress {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.progress
}

// SetFilter installs a new filter spec on the Filter Projector.
func (s *Session) SetFilter(spec filterspec.Spec) {
	s.proj.SetFilter(spec)
}

// SetAutoSync enables or disables automatic raw-view centering on every
// filtered-selection change (spec.md §4.5).
func (s *Session) SetAutoSync(enabled bool) {
	s.mu.Lock()
	s.autoSync = enabled
	s.mu.Unlock()
}

// AutoSync reports whether auto-sync is enabled.
func (s *Session) AutoSync() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoSync
}

// SyncToFiltered centers the raw view on the source line that filtered
// line k maps to, and disables the raw view's tailing, implementing the
// Sync operation (spec.md §4.5). Returns false if k is out of range.
func (s *Session) SyncToFiltered(k uint64) bool {
	srcLine, ok := s.proj.SourceLine(k)
	if !ok {
		return false
	}
	s.Raw.SetTailing(false)
	s.Raw.Center(srcLine)
	return true
}

// NotifyFilteredSelection should be called whenever the user's selected
// filtered line changes; if auto-sync is on, it performs the Sync
// operation immediately.
func (s *Session) NotifyFilteredSelection(k uint64) {
	if s.AutoSync() {
		s.SyncToFiltered(k)
	}
}

// Close tears down the Projector and Indexer. The Reader inside the
// Indexer is not stopped by Close; it runs until the context passed to
// Open is cancelled.
func (s *Session) Close() {
	close(s.closed)
	s.proj.Close()
	s.ix.Close()
}
