// Package view implements the bounded sliding-window line cache described
// in spec.md §4.4: for a given viewport, lines are either present and
// returnable synchronously, or pending (rendered as a placeholder by the
// caller) until the upstream linesvc.Service answers.
package view

import (
	"sync"

	"github.com/snonux/otail/internal/otail/linesvc"
)

// Margin is the number of extra lines kept cached above and below the
// visible window, so small scrolls don't re-request already-seen lines.
const Margin = 50

// Window describes the current viewport: first_visible, height and a
// horizontal (column) scroll offset.
type Window struct {
	FirstVisible uint64
	Height       int
	HOffset      int
}

// lastVisible returns the last line number covered by the window.
func (w Window) lastVisible() uint64 {
	if w.Height <= 0 {
		return w.FirstVisible
	}
	return w.FirstVisible + uint64(w.Height) - 1
}

// View is a single pane's cache: a bounded map of line content plus the
// set of lines requested but not yet delivered. One View exists per pane
// (raw and filtered). Its state is updated from several goroutines (the
// caller, the session's event pumps and one awaitLine goroutine per
// request), all serialized by mu.
type View struct {
	svc linesvc.Service
	id  linesvc.SubscriberID

	mu sync.Mutex // guards the fields below; content may be read by a
	// render goroutine distinct from the one dispatching upstream events

	window  Window
	content map[uint64]string
	pending map[uint64]struct{}

	lineCount uint64
	tailing   bool

	dirty bool
}

// New creates a View bound to svc under the already-registered subscriber
// id; it does not register with svc itself.
func New(svc linesvc.Service, id linesvc.SubscriberID) *View {
	return &View{
		svc:     svc,
		id:      id,
		content: make(map[uint64]string),
		pending: make(map[uint64]struct{}),
	}
}

// SetWindow updates the viewport, evicting lines outside window+margin and
// cancelling their outstanding requests, then issuing requests for any
// newly visible lines not already cached.
func (v *View) SetWindow(w Window) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.window = w
	v.evictOutOfRange()
	v.requestMissing()
}

// Center implements the Center(line) operation: first_visible = line -
// height/2, clamped to [1, lastLine-height+1].
func (v *View) Center(line uint64) {
	v.mu.Lock()
	height := v.window.Height
	lastLine := v.lineCount
	v.mu.Unlock()

	half := uint64(height / 2)
	var first uint64
	if line > half {
		first = line - half
	} else {
		first = 1
	}
	if height > 0 && lastLine > uint64(height) {
		maxFirst := lastLine - uint64(height) + 1
		if first > maxFirst {
			first = maxFirst
		}
	}
	if first < 1 {
		first = 1
	}

	v.mu.Lock()
	v.window.FirstVisible = first
	v.evictOutOfRange()
	v.requestMissing()
	v.mu.Unlock()
}

// SetTailing enables or disables tailing. User-initiated window movement
// (SetWindow/Center) should call SetTailing(false) to cancel it, per
// spec.md §4.4.
func (v *View) SetTailing(enabled bool) {
	v.mu.Lock()
	v.tailing = enabled
	v.mu.Unlock()
	v.svc.SetTailing(v.id, enabled)
}

// Tailing reports whether tailing is currently enabled.
func (v *View) Tailing() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.tailing
}

// Line returns the content for line number n if cached, and whether it is
// pending (requested but not yet delivered). Lines outside the current
// window+margin are neither cached nor pending.
func (v *View) Line(n uint64) (text string, ok bool, pending bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if s, ok := v.content[n]; ok {
		return s, true, false
	}
	_, pend := v.pending[n]
	return "", false, pend
}

// Window returns the current viewport.
func (v *View) Window() Window {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.window
}

// Dirty reports and clears whether the view has received updates since the
// last call, for the render-coalescing tick (spec.md §5).
func (v *View) Dirty() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	d := v.dirty
	v.dirty = false
	return d
}

func (v *View) markDirty() {
	v.dirty = true
}

// evictOutOfRange drops cached/pending lines outside [lo,hi] and cancels
// their outstanding requests. Caller must hold v.mu.
func (v *View) evictOutOfRange() {
	lo, hi := v.rangeWithMargin()
	for n := range v.content {
		if n < lo || n > hi {
			delete(v.content, n)
		}
	}
	for n := range v.pending {
		if n < lo || n > hi {
			v.svc.Cancel(v.id, n)
			delete(v.pending, n)
		}
	}
}

// requestMissing issues Request for every visible-with-margin line not
// already cached or pending. Caller must hold v.mu.
func (v *View) requestMissing() {
	lo, hi := v.rangeWithMargin()
	for n := lo; n <= hi; n++ {
		if _, ok := v.content[n]; ok {
			continue
		}
		if _, ok := v.pending[n]; ok {
			continue
		}
		v.pending[n] = struct{}{}
		ch := v.svc.Request(v.id, n)
		go v.awaitLine(n, ch)
	}
}

func (v *View) rangeWithMargin() (lo, hi uint64) {
	if v.window.FirstVisible > Margin {
		lo = v.window.FirstVisible - Margin
	} else {
		lo = 1
	}
	hi = v.window.lastVisible() + Margin
	return lo, hi
}

func (v *View) awaitLine(n uint64, ch <-chan linesvc.LineContent) {
	lc, ok := <-ch
	if !ok {
		return
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, stillPending := v.pending[n]; !stillPending {
		return // cancelled or superseded by a window change
	}
	delete(v.pending, n)
	if lc.Truncated {
		return // Invariant 3: answered, not cached; a fresh request follows reset
	}
	lo, hi := v.rangeWithMargin()
	if n < lo || n > hi {
		return // window moved again before this arrived
	}
	v.content[n] = lc.Text
	v.markDirty()
}

// HandleEvent applies an out-of-band Event (Tail/Truncated/FilterReset/
// Error) from the bound service to the view's state.
func (v *View) HandleEvent(ev linesvc.Event) {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch e := ev.(type) {
	case linesvc.Tail:
		v.lineCount = e.Line
		if v.tailing {
			v.content[e.Line] = e.Text
			if v.window.Height > 0 {
				v.window.FirstVisible = lastFirstVisible(e.Line, v.window.Height)
			}
		}
		v.evictOutOfRange()
		v.requestMissing()
		v.markDirty()

	case linesvc.Truncated:
		v.content = make(map[uint64]string)
		v.pending = make(map[uint64]struct{})
		v.lineCount = 0
		v.tailing = false
		v.window.FirstVisible = 1
		v.markDirty()

	case linesvc.FilterReset:
		v.content = make(map[uint64]string)
		v.pending = make(map[uint64]struct{})
		v.lineCount = 0
		v.window.FirstVisible = 1
		v.markDirty()

	case linesvc.Error:
		v.markDirty()
	}
}

// HandleStats applies a Stats update (line count growth) to the view.
func (v *View) HandleStats(s linesvc.Stats) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lineCount = s.LineCount
	v.markDirty()
}

// LineCount returns the most recently known line count for this view.
func (v *View) LineCount() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lineCount
}

func lastFirstVisible(lastLine uint64, height int) uint64 {
	if uint64(height) >= lastLine {
		return 1
	}
	return lastLine - uint64(height) + 1
}

// RenderLine returns the slice of text visible at the view's current
// horizontal offset, or the empty string for a line that is not cached
// (pending or missing). Horizontal scrolling is purely a rendering concern (spec.md §4.4):
// the cache stores full line text and slices it here.
func (v *View) RenderLine(n uint64) string {
	text, ok, _ := v.Line(n)
	if !ok {
		return ""
	}
	off := v.Window().HOffset
	if off <= 0 {
		return text
	}
	if off >= len(text) {
		return ""
	}
	return text[off:]
}
