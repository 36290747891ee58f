// Package filter implements the Filter Projector (FFile) described in
// spec.md §4.3: a second line service whose input is an Indexer, maintaining
// a sparse "filtered line N -> source line M" mapping under a filter
// specification, and reporting scan progress as it catches up to the
// source.
package filter

import (
	"context"
	"sync"
	"time"

	"github.com/snonux/otail/internal/otail/dlog"
	"github.com/snonux/otail/internal/otail/ferrors"
	"github.com/snonux/otail/internal/otail/filterspec"
	"github.com/snonux/otail/internal/otail/linesvc"
)

// TickInterval bounds how often scan-progress stats are pushed.
const TickInterval = 33 * time.Millisecond

// ScanProgress is the FStats(matches, scanned, source_total) telemetry
// described in spec.md §4.3.
type ScanProgress struct {
	Matches     uint64
	Scanned     uint64
	SourceTotal uint64
}

// Percent returns the scan completion percentage at the moment this
// ScanProgress was captured.
func (p ScanProgress) Percent() int {
	if p.SourceTotal == 0 {
		return 100
	}
	return int(p.Scanned * 100 / p.SourceTotal)
}

type subscriber struct {
	id       linesvc.SubscriberID
	stats    chan linesvc.Stats
	events   chan linesvc.Event
	progress chan ScanProgress
	tailing  bool
}

type contentFetch struct {
	id   linesvc.SubscriberID
	k    uint64
	resp chan linesvc.LineContent
}

type tokenResult struct {
	token uint64
	lc    linesvc.LineContent
}

type scanResult struct {
	generation uint64
	lc         linesvc.LineContent
}

// Projector presents the linesvc.Service contract over a filtered
// projection of a source linesvc.Service.
type Projector struct {
	source      linesvc.Service
	sourceID    linesvc.SubscriberID
	boundStats  <-chan linesvc.Stats
	boundEvents <-chan linesvc.Event

	cmds chan any
	done chan struct{}
	closed sync.Once

	contentResultCh chan tokenResult
	scanResultCh    chan scanResult

	// run-loop-owned state.
	spec    filterspec.Spec
	matcher filterspec.Matcher

	filterMap   []uint64 // source line numbers (1-based), in match order
	cursor      uint64   // next source line to test (1-based)
	sourceTotal uint64
	sourceEnd   bool
	terminal    bool
	generation  uint64

	scanInFlight bool
	scanLine     uint64

	nextToken uint64
	inFlight  map[uint64]contentFetch

	subs    map[linesvc.SubscriberID]*subscriber
	pending map[uint64]map[linesvc.SubscriberID]chan linesvc.LineContent

	statsDirty    bool
	progressDirty bool
}

type cmdRegister struct {
	resp chan registerResult
}

type registerResult struct {
	id       linesvc.SubscriberID
	stats    chan linesvc.Stats
	events   chan linesvc.Event
	progress chan ScanProgress
}

type cmdUnregister struct{ id linesvc.SubscriberID }

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

type cmdSetFilter struct {
	spec filterspec.Spec
}

type cmdSourceLine struct {
	k    uint64
	resp chan uint64
}

// New creates a Projector over source, starting with initial filter spec.
func New(ctx context.Context, source linesvc.Service, initial filterspec.Spec) *Projector {
	p := &Projector{
		source:          source,
		cmds:            make(chan any, 32),
		done:            make(chan struct{}),
		contentResultCh: make(chan tokenResult, 32),
		scanResultCh:    make(chan scanResult, 4),
		cursor:          1,
		inFlight:        make(map[uint64]contentFetch),
		subs:            make(map[linesvc.SubscriberID]*subscriber),
		pending:         make(map[uint64]map[linesvc.SubscriberID]chan linesvc.LineContent),
	}
	p.sourceID, p.boundStats, p.boundEvents = source.Register()
	if m, err := filterspec.Compile(initial); err == nil {
		p.spec = initial
		p.matcher = m
	} else {
		p.spec = filterspec.DisabledSpec()
		p.matcher, _ = filterspec.Compile(p.spec)
	}
	go p.run(ctx)
	return p
}

var _ linesvc.Service = (*Projector)(nil)

// Register implements linesvc.Service.
func (p *Projector) Register() (linesvc.SubscriberID, <-chan linesvc.Stats, <-chan linesvc.Event) {
	resp := make(chan registerResult, 1)
	select {
	case p.cmds <- cmdRegister{resp: resp}:
	case <-p.done:
		return linesvc.SubscriberID{}, closedStatsCh(), closedEventsCh()
	}
	r := <-resp
	return r.id, r.stats, r.events
}

// RegisterWithProgress is like Register but also returns the scan-progress
// telemetry channel (spec.md §4.3), not part of the generic linesvc.Service
// contract since the plain Indexer has no notion of scan progress.
func (p *Projector) RegisterWithProgress() (linesvc.SubscriberID, <-chan linesvc.Stats, <-chan linesvc.Event, <-chan ScanProgress) {
	resp := make(chan registerResult, 1)
	select {
	case p.cmds <- cmdRegister{resp: resp}:
	case <-p.done:
		return linesvc.SubscriberID{}, closedStatsCh(), closedEventsCh(), closedProgressCh()
	}
	r := <-resp
	return r.id, r.stats, r.events, r.progress
}

// Unregister implements linesvc.Service.
func (p *Projector) Unregister(id linesvc.SubscriberID) {
	select {
	case p.cmds <- cmdUnregister{id: id}:
	case <-p.done:
	}
}

// Request implements linesvc.Service. line is a filtered line number.
func (p *Projector) Request(id linesvc.SubscriberID, line uint64) <-chan linesvc.LineContent {
	resp := make(chan linesvc.LineContent, 1)
	select {
	case p.cmds <- cmdRequest{id: id, line: line, resp: resp}:
	case <-p.done:
		resp <- linesvc.LineContent{Line: line, Truncated: true}
	}
	return resp
}

// Cancel implements linesvc.Service.
func (p *Projector) Cancel(id linesvc.SubscriberID, line uint64) {
	select {
	case p.cmds <- cmdCancel{id: id, line: line}:
	case <-p.done:
	}
}

// SetTailing implements linesvc.Service.
func (p *Projector) SetTailing(id linesvc.SubscriberID, enabled bool) {
	select {
	case p.cmds <- cmdTailing{id: id, enabled: enabled}:
	case <-p.done:
	}
}

// SetFilter installs a new filter spec. A spec equal to the current one is
// a no-op (idempotence, spec.md §4.3 "Filter change").
func (p *Projector) SetFilter(spec filterspec.Spec) {
	select {
	case p.cmds <- cmdSetFilter{spec: spec}:
	case <-p.done:
	}
}

// SourceLine translates filtered line k back to its source line number,
// for the Sync operation (spec.md §4.5). Returns (0, false) if k is out of
// range.
func (p *Projector) SourceLine(k uint64) (uint64, bool) {
	resp := make(chan uint64, 1)
	select {
	case p.cmds <- cmdSourceLine{k: k, resp: resp}:
	case <-p.done:
		return 0, false
	}
	v := <-resp
	return v, v != 0
}

// Close implements linesvc.Service.
func (p *Projector) Close() {
	p.closed.Do(func() {
		close(p.done)
	})
}

func (p *Projector) run(ctx context.Context) {
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()
	defer p.source.Unregister(p.sourceID)
	defer p.shutdownSubs()

	sourceStats, sourceEvents := p.boundStats, p.boundEvents
	p.maybeStartScan()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.done:
			return

		case cmd := <-p.cmds:
			p.handleCmd(cmd)
			p.maybeStartScan()

		case st, ok := <-sourceStats:
			if !ok {
				sourceStats = nil
				continue
			}
			p.sourceTotal = st.LineCount
			p.sourceEnd = st.EndComplete
			p.statsDirty = true
			p.maybeStartScan()

		case ev, ok := <-sourceEvents:
			if !ok {
				sourceEvents = nil
				continue
			}
			p.handleSourceEvent(ev)

		case tr := <-p.contentResultCh:
			p.handleContentResult(tr)

		case sr := <-p.scanResultCh:
			p.handleScanResult(sr)
			p.maybeStartScan()

		case <-ticker.C:
			if p.statsDirty {
				p.broadcastStats()
				p.statsDirty = false
			}
			if p.progressDirty {
				p.broadcastProgress()
				p.progressDirty = false
			}
		}
	}
}

func (p *Projector) handleCmd(cmd any) {
	switch c := cmd.(type) {
	case cmdRegister:
		id := linesvc.NewSubscriberID()
		sub := &subscriber{
			id:       id,
			stats:    make(chan linesvc.Stats, 1),
			events:   make(chan linesvc.Event, 64),
			progress: make(chan ScanProgress, 1),
		}
		p.subs[id] = sub
		c.resp <- registerResult{id: id, stats: sub.stats, events: sub.events, progress: sub.progress}
		trySend(sub.stats, p.currentStats())
		trySendProgress(sub.progress, p.currentProgress())

	case cmdUnregister:
		p.removeSub(c.id)

	case cmdRequest:
		p.handleRequest(c.id, c.line, c.resp)

	case cmdCancel:
		p.handleCancel(c.id, c.line)

	case cmdTailing:
		if sub, ok := p.subs[c.id]; ok {
			sub.tailing = c.enabled
		}

	case cmdSetFilter:
		p.handleSetFilter(c.spec)

	case cmdSourceLine:
		if c.k == 0 || c.k > uint64(len(p.filterMap)) {
			c.resp <- 0
		} else {
			c.resp <- p.filterMap[c.k-1]
		}
	}
}

func (p *Projector) removeSub(id linesvc.SubscriberID) {
	sub, ok := p.subs[id]
	if !ok {
		return
	}
	delete(p.subs, id)
	for line, m := range p.pending {
		delete(m, id)
		if len(m) == 0 {
			delete(p.pending, line)
		}
	}
	close(sub.stats)
	close(sub.events)
	close(sub.progress)
}

func (p *Projector) shutdownSubs() {
	for id := range p.subs {
		p.removeSub(id)
	}
}

func (p *Projector) handleRequest(id linesvc.SubscriberID, k uint64, resp chan linesvc.LineContent) {
	if p.terminal {
		resp <- linesvc.LineContent{Line: k, Truncated: true}
		return
	}
	if k == 0 || k > uint64(len(p.filterMap)) {
		if p.pending[k] == nil {
			p.pending[k] = make(map[linesvc.SubscriberID]chan linesvc.LineContent)
		}
		p.pending[k][id] = resp
		return
	}
	p.fetchContent(id, k, p.filterMap[k-1], resp)
}

func (p *Projector) handleCancel(id linesvc.SubscriberID, k uint64) {
	if m, ok := p.pending[k]; ok {
		delete(m, id)
		if len(m) == 0 {
			delete(p.pending, k)
		}
	}
	for token, cf := range p.inFlight {
		if cf.id == id && cf.k == k {
			delete(p.inFlight, token)
		}
	}
}

func (p *Projector) fetchContent(id linesvc.SubscriberID, k, sourceLine uint64, resp chan linesvc.LineContent) {
	token := p.nextToken
	p.nextToken++
	p.inFlight[token] = contentFetch{id: id, k: k, resp: resp}

	srcResp := p.source.Request(p.sourceID, sourceLine)
	done := p.done
	go func() {
		lc := <-srcResp
		select {
		case p.contentResultCh <- tokenResult{token: token, lc: lc}:
		case <-done:
		}
	}()
}

func (p *Projector) handleContentResult(tr tokenResult) {
	cf, ok := p.inFlight[tr.token]
	if !ok {
		return // cancelled or superseded by a filter change
	}
	delete(p.inFlight, tr.token)
	if tr.lc.Truncated {
		cf.resp <- linesvc.LineContent{Line: cf.k, Truncated: true}
		return
	}
	cf.resp <- linesvc.LineContent{Line: cf.k, Text: tr.lc.Text}
}

func (p *Projector) fulfillPending(k uint64) {
	m, ok := p.pending[k]
	if !ok {
		return
	}
	delete(p.pending, k)
	srcLine := p.filterMap[k-1]
	for id, resp := range m {
		p.fetchContent(id, k, srcLine, resp)
	}
}

func (p *Projector) maybeStartScan() {
	if p.terminal || p.scanInFlight {
		return
	}
	if p.cursor > p.sourceTotal {
		return
	}
	p.scanInFlight = true
	p.scanLine = p.cursor
	gen := p.generation
	srcResp := p.source.Request(p.sourceID, p.cursor)
	done := p.done
	ch := p.scanResultCh
	go func() {
		lc := <-srcResp
		select {
		case ch <- scanResult{generation: gen, lc: lc}:
		case <-done:
		}
	}()
}

func (p *Projector) handleScanResult(sr scanResult) {
	if sr.generation != p.generation {
		return // stale, superseded by a filter change
	}
	p.scanInFlight = false
	if sr.lc.Truncated {
		return // a Truncated source event will reset scan state separately
	}
	if p.matcher.MatchString(sr.lc.Text) {
		p.filterMap = append(p.filterMap, p.cursor)
		k := uint64(len(p.filterMap))
		p.fulfillPending(k)
		p.notifyTail(k, sr.lc.Text)
	}
	p.cursor++
	p.statsDirty = true
	p.progressDirty = true
}

func (p *Projector) handleSetFilter(spec filterspec.Spec) {
	if spec.Equal(p.spec) {
		return // idempotent
	}
	matcher, err := filterspec.Compile(spec)
	if err != nil {
		p.broadcastEvent(linesvc.Error{Err: ferrors.Wrap(err, "filter")})
		return // keep the prior valid spec in effect, per spec.md §7
	}

	if p.scanInFlight {
		p.source.Cancel(p.sourceID, p.scanLine)
		p.scanInFlight = false
	}
	p.generation++

	for token, cf := range p.inFlight {
		cf.resp <- linesvc.LineContent{Line: cf.k, Truncated: true}
		delete(p.inFlight, token)
	}
	for k, m := range p.pending {
		for _, resp := range m {
			resp <- linesvc.LineContent{Line: k, Truncated: true}
		}
		delete(p.pending, k)
	}

	p.filterMap = nil
	p.cursor = 1
	p.spec = spec
	p.matcher = matcher
	p.broadcastEvent(linesvc.FilterReset{})
	p.statsDirty = true
	p.progressDirty = true
}

func (p *Projector) handleSourceEvent(ev linesvc.Event) {
	switch e := ev.(type) {
	case linesvc.Truncated:
		p.handleSourceTruncated()
	case linesvc.Error:
		p.terminal = true
		p.flushAllPending(true)
		p.broadcastEvent(linesvc.Error{Err: e.Err})
	case linesvc.FilterReset:
		_ = e
	case linesvc.Tail:
		// The Projector drives scanning from Stats, not source Tail
		// events; ignore (the projector never enables source tailing).
	}
}

func (p *Projector) handleSourceTruncated() {
	if p.scanInFlight {
		p.source.Cancel(p.sourceID, p.scanLine)
		p.scanInFlight = false
	}
	p.generation++
	p.flushAllPending(true)
	p.filterMap = nil
	p.cursor = 1
	p.sourceTotal = 0
	p.sourceEnd = true
	for _, sub := range p.subs {
		sub.tailing = false
	}
	p.broadcastEvent(linesvc.Truncated{})
	p.statsDirty = true
	p.progressDirty = true
	p.broadcastStats()
	p.broadcastProgress()
	p.statsDirty = false
	p.progressDirty = false
}

func (p *Projector) flushAllPending(truncated bool) {
	for token, cf := range p.inFlight {
		cf.resp <- linesvc.LineContent{Line: cf.k, Truncated: truncated}
		delete(p.inFlight, token)
	}
	for k, m := range p.pending {
		for _, resp := range m {
			resp <- linesvc.LineContent{Line: k, Truncated: truncated}
		}
		delete(p.pending, k)
	}
}

func (p *Projector) notifyTail(k uint64, text string) {
	for _, sub := range p.subs {
		if !sub.tailing {
			continue
		}
		select {
		case sub.events <- linesvc.Tail{Line: k, Text: text}:
		default:
			dlog.Warn("filter: dropping tail line for slow subscriber", sub.id)
		}
	}
}

func (p *Projector) broadcastEvent(ev linesvc.Event) {
	for _, sub := range p.subs {
		select {
		case sub.events <- ev:
		default:
			dlog.Warn("filter: dropping event for slow subscriber", sub.id)
		}
	}
}

func (p *Projector) broadcastStats() {
	s := p.currentStats()
	for _, sub := range p.subs {
		trySend(sub.stats, s)
	}
}

func (p *Projector) broadcastProgress() {
	pr := p.currentProgress()
	for _, sub := range p.subs {
		trySendProgress(sub.progress, pr)
	}
}

func (p *Projector) currentStats() linesvc.Stats {
	return linesvc.Stats{
		LineCount:   uint64(len(p.filterMap)),
		ByteCount:   0,
		EndComplete: p.sourceEnd,
	}
}

func (p *Projector) currentProgress() ScanProgress {
	scanned := p.cursor - 1
	return ScanProgress{
		Matches:     uint64(len(p.filterMap)),
		Scanned:     scanned,
		SourceTotal: p.sourceTotal,
	}
}

func trySend(ch chan linesvc.Stats, s linesvc.Stats) {
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

func trySendProgress(ch chan ScanProgress, pr ScanProgress) {
	for {
		select {
		case ch <- pr:
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

func closedProgressCh() chan ScanProgress {
	ch := make(chan ScanProgress)
	close(ch)
	return ch
}
