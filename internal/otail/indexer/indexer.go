// Package indexer implements the Indexer (IFile) described in spec.md
// §4.2: a byte-offset index over a Reader's line stream, serving random
// access line content on demand rather than storing it.
package indexer

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/snonux/otail/internal/otail/dlog"
	"github.com/snonux/otail/internal/otail/ferrors"
	"github.com/snonux/otail/internal/otail/linesvc"
	"github.com/snonux/otail/internal/otail/reader"
)

// TabWidth is the fixed number of spaces a tab is expanded to (spec.md §1
// Non-goals: no tab-expansion *rendering* is done by the TUI, so the core
// performs the substitution once up front).
const TabWidth = 8

// TickInterval bounds how often Stats is pushed to subscribers.
const TickInterval = 33 * time.Millisecond

type offsetEntry struct {
	off    int64
	length int
}

type subscriber struct {
	id      linesvc.SubscriberID
	stats   chan linesvc.Stats
	events  chan linesvc.Event
	tailing bool

	// tail delivery accounting, mirroring the teacher's line.Line
	// TransmittedPerc field: a slow subscriber gets its Tail events
	// dropped rather than stalling the indexer.
	tailSent    uint64
	tailDropped uint64
}

// Indexer maintains the offset index for a single file and answers line
// requests by seeking into a pooled read handle.
type Indexer struct {
	path    string
	handles *handlePool
	rd      *reader.Reader

	cmds   chan any
	done   chan struct{}
	closed sync.Once

	// run-loop-owned state below; only the run goroutine touches it.
	offsets     []offsetEntry
	byteCount   int64
	endComplete bool
	terminal    bool

	subs    map[linesvc.SubscriberID]*subscriber
	pending map[uint64]map[linesvc.SubscriberID]chan linesvc.LineContent

	statsDirty bool
}

type cmdRegister struct {
	resp chan registerResult
}

type registerResult struct {
	id     linesvc.SubscriberID
	stats  chan linesvc.Stats
	events chan linesvc.Event
}

type cmdUnregister struct {
	id linesvc.SubscriberID
}

type cmdRequest struct {
	id   linesvc.SubscriberID
	line uint64
	resp chan linesvc.LineContent
}

type cmdCancel struct {
	id   linesvc.SubscriberID
	line uint64
}

type cmdTailing struct {
	id      linesvc.SubscriberID
	enabled bool
}

// New starts indexing path: a Reader is opened internally and consumed by
// a background goroutine that owns all index state.
func New(ctx context.Context, path string) (*Indexer, error) {
	rd, err := reader.New(ctx, path)
	if err != nil {
		return nil, err
	}
	ix := &Indexer{
		path:    path,
		handles: newHandlePool(path),
		rd:      rd,
		cmds:    make(chan any, 32),
		done:    make(chan struct{}),
		subs:    make(map[linesvc.SubscriberID]*subscriber),
		pending: make(map[uint64]map[linesvc.SubscriberID]chan linesvc.LineContent),
	}
	go ix.run(ctx)
	return ix, nil
}

var _ linesvc.Service = (*Indexer)(nil)

// Register implements linesvc.Service.
func (ix *Indexer) Register() (linesvc.SubscriberID, <-chan linesvc.Stats, <-chan linesvc.Event) {
	resp := make(chan registerResult, 1)
	select {
	case ix.cmds <- cmdRegister{resp: resp}:
	case <-ix.done:
		return linesvc.SubscriberID{}, closedStatsCh(), closedEventsCh()
	}
	r := <-resp
	return r.id, r.stats, r.events
}

// Unregister implements linesvc.Service.
func (ix *Indexer) Unregister(id linesvc.SubscriberID) {
	select {
	case ix.cmds <- cmdUnregister{id: id}:
	case <-ix.done:
	}
}

// Request implements linesvc.Service.
func (ix *Indexer) Request(id linesvc.SubscriberID, line uint64) <-chan linesvc.LineContent {
	resp := make(chan linesvc.LineContent, 1)
	select {
	case ix.cmds <- cmdRequest{id: id, line: line, resp: resp}:
	case <-ix.done:
		resp <- linesvc.LineContent{Line: line, Truncated: true}
	}
	return resp
}

// Cancel implements linesvc.Service.
func (ix *Indexer) Cancel(id linesvc.SubscriberID, line uint64) {
	select {
	case ix.cmds <- cmdCancel{id: id, line: line}:
	case <-ix.done:
	}
}

// SetTailing implements linesvc.Service.
func (ix *Indexer) SetTailing(id linesvc.SubscriberID, enabled bool) {
	select {
	case ix.cmds <- cmdTailing{id: id, enabled: enabled}:
	case <-ix.done:
	}
}

// Close implements linesvc.Service.
func (ix *Indexer) Close() {
	ix.closed.Do(func() {
		close(ix.done)
	})
}

func (ix *Indexer) run(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	defer ix.handles.closeAll()
	defer ix.shutdownSubs()

	readerEvents := ix.rd.Events()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ix.done:
			return

		case cmd := <-ix.cmds:
			ix.handleCmd(cmd)

		case ev, ok := <-readerEvents:
			if !ok {
				readerEvents = nil
				continue
			}
			ix.handleReaderEvent(ev)

		case <-ticker.C:
			if ix.statsDirty {
				ix.broadcastStats()
				ix.statsDirty = false
			}
		}
	}
}

func (ix *Indexer) handleCmd(cmd any) {
	switch c := cmd.(type) {
	case cmdRegister:
		id := linesvc.NewSubscriberID()
		sub := &subscriber{
			id:     id,
			stats:  make(chan linesvc.Stats, 1),
			events: make(chan linesvc.Event, 64),
		}
		ix.subs[id] = sub
		c.resp <- registerResult{id: id, stats: sub.stats, events: sub.events}
		trySendStats(sub.stats, ix.currentStats())

	case cmdUnregister:
		ix.removeSub(c.id)

	case cmdRequest:
		ix.handleRequest(c.id, c.line, c.resp)

	case cmdCancel:
		if m, ok := ix.pending[c.line]; ok {
			delete(m, c.id)
			if len(m) == 0 {
				delete(ix.pending, c.line)
			}
		}

	case cmdTailing:
		if sub, ok := ix.subs[c.id]; ok {
			sub.tailing = c.enabled
		}
	}
}

func (ix *Indexer) removeSub(id linesvc.SubscriberID) {
	sub, ok := ix.subs[id]
	if !ok {
		return
	}
	delete(ix.subs, id)
	for line, m := range ix.pending {
		delete(m, id)
		if len(m) == 0 {
			delete(ix.pending, line)
		}
	}
	close(sub.stats)
	close(sub.events)
}

func (ix *Indexer) shutdownSubs() {
	for id := range ix.subs {
		ix.removeSub(id)
	}
}

func (ix *Indexer) handleRequest(id linesvc.SubscriberID, line uint64, resp chan linesvc.LineContent) {
	if ix.terminal {
		resp <- linesvc.LineContent{Line: line, Truncated: true}
		return
	}
	if line == 0 || line > uint64(len(ix.offsets)) {
		if ix.pending[line] == nil {
			ix.pending[line] = make(map[linesvc.SubscriberID]chan linesvc.LineContent)
		}
		ix.pending[line][id] = resp
		return
	}
	text, err := ix.readLine(ix.offsets[line-1])
	if err != nil {
		dlog.Warn("indexer: read line", line, err)
		resp <- linesvc.LineContent{Line: line, Truncated: true}
		return
	}
	resp <- linesvc.LineContent{Line: line, Text: text}
}

func (ix *Indexer) handleReaderEvent(ev reader.Event) {
	switch e := ev.(type) {
	case reader.Line:
		ix.offsets = append(ix.offsets, offsetEntry{off: e.Offset, length: e.Length})
		line := uint64(len(ix.offsets))
		ix.fulfillPending(line)
		ix.notifyTail(line, e.Text)
		ix.statsDirty = true

	case reader.Stats:
		ix.byteCount = e.ByteCount
		ix.endComplete = e.EndComplete
		ix.statsDirty = true

	case reader.Truncated:
		ix.handleTruncated()

	case reader.Gone:
		ix.terminal = true
		ix.flushAllPending()
		ix.broadcastEvent(linesvc.Error{Err: ferrors.ErrFileGone})

	case reader.Err:
		ix.terminal = true
		ix.flushAllPending()
		ix.broadcastEvent(linesvc.Error{Err: e.Err})
	}
}

func (ix *Indexer) handleTruncated() {
	ix.offsets = nil
	ix.byteCount = 0
	ix.endComplete = true
	ix.flushAllPending()
	for _, sub := range ix.subs {
		sub.tailing = false
	}
	ix.broadcastEvent(linesvc.Truncated{})
	ix.broadcastStats()
	ix.statsDirty = false
}

func (ix *Indexer) flushAllPending() {
	for line, m := range ix.pending {
		for _, resp := range m {
			resp <- linesvc.LineContent{Line: line, Truncated: true}
		}
	}
	ix.pending = make(map[uint64]map[linesvc.SubscriberID]chan linesvc.LineContent)
}

func (ix *Indexer) fulfillPending(line uint64) {
	m, ok := ix.pending[line]
	if !ok {
		return
	}
	delete(ix.pending, line)
	text, err := ix.readLine(ix.offsets[line-1])
	for _, resp := range m {
		if err != nil {
			resp <- linesvc.LineContent{Line: line, Truncated: true}
			continue
		}
		resp <- linesvc.LineContent{Line: line, Text: text}
	}
}

func (ix *Indexer) notifyTail(line uint64, text string) {
	for _, sub := range ix.subs {
		if !sub.tailing {
			continue
		}
		select {
		case sub.events <- linesvc.Tail{Line: line, Text: decodeLine([]byte(text))}:
			sub.tailSent++
		default:
			sub.tailDropped++
			dlog.Warn("indexer: dropping tail line for slow subscriber", sub.id)
		}
	}
}

func (ix *Indexer) broadcastEvent(ev linesvc.Event) {
	for _, sub := range ix.subs {
		select {
		case sub.events <- ev:
		default:
			dlog.Warn("indexer: dropping event for slow subscriber", sub.id)
		}
	}
}

func (ix *Indexer) broadcastStats() {
	s := ix.currentStats()
	for _, sub := range ix.subs {
		trySendStats(sub.stats, s)
	}
}

func (ix *Indexer) currentStats() linesvc.Stats {
	return linesvc.Stats{
		LineCount:   uint64(len(ix.offsets)),
		ByteCount:   ix.byteCount,
		EndComplete: ix.endComplete,
	}
}

func (ix *Indexer) readLine(e offsetEntry) (string, error) {
	f, err := ix.handles.get()
	if err != nil {
		return "", err
	}
	defer ix.handles.put(f)

	buf := make([]byte, e.length)
	if e.length > 0 {
		if _, err := f.ReadAt(buf, e.off); err != nil {
			return "", err
		}
	}
	return decodeLine(buf), nil
}

// decodeLine replaces invalid UTF-8 with the replacement rune (lossy,
// never dropped — spec.md §3) and expands tabs to TabWidth spaces.
func decodeLine(b []byte) string {
	s := strings.ToValidUTF8(string(b), "�")
	if !strings.Contains(s, "\t") {
		return s
	}
	return strings.ReplaceAll(s, "\t", strings.Repeat(" ", TabWidth))
}

// trySendStats implements the "latest value wins" coalescing channel: if a
// Stats message is already enqueued but undelivered, it is replaced rather
// than blocking the sender (spec.md §5 backpressure).
func trySendStats(ch chan linesvc.Stats, s linesvc.Stats) {
	for {
		select {
		case ch <- s:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}

func closedStatsCh() chan linesvc.Stats {
	ch := make(chan linesvc.Stats)
	close(ch)
	return ch
}

func closedEventsCh() chan linesvc.Event {
	ch := make(chan linesvc.Event)
	close(ch)
	return ch
}
