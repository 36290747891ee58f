package view

import (
	"sync"
	"testing"
	"time"

	"github.com/snonux/otail/internal/otail/linesvc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeService is a minimal synchronous linesvc.Service stand-in: Request
// answers immediately with a deterministic line of text, and Cancel/
// SetTailing just record their calls for assertions.
type fakeService struct {
	mu        sync.Mutex
	cancelled map[uint64]int
	tailing   map[linesvc.SubscriberID]bool
	lineCount uint64
}

func newFakeService(lineCount uint64) *fakeService {
	return &fakeService{
		cancelled: make(map[uint64]int),
		tailing:   make(map[linesvc.SubscriberID]bool),
		lineCount: lineCount,
	}
}

func (f *fakeService) Register() (linesvc.SubscriberID, <-chan linesvc.Stats, <-chan linesvc.Event) {
	return linesvc.NewSubscriberID(), make(chan linesvc.Stats), make(chan linesvc.Event)
}

func (f *fakeService) Unregister(linesvc.SubscriberID) {}

func (f *fakeService) Request(id linesvc.SubscriberID, line uint64) <-chan linesvc.LineContent {
	ch := make(chan linesvc.LineContent, 1)
	if line == 0 || line > f.lineCount {
		ch <- linesvc.LineContent{Line: line, Truncated: true}
		return ch
	}
	ch <- linesvc.LineContent{Line: line, Text: "line content"}
	return ch
}

func (f *fakeService) Cancel(id linesvc.SubscriberID, line uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled[line]++
}

func (f *fakeService) SetTailing(id linesvc.SubscriberID, enabled bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tailing[id] = enabled
}

func (f *fakeService) Close() {}

func TestViewRequestsVisibleLinesOnSetWindow(t *testing.T) {
	svc := newFakeService(100)
	id := linesvc.NewSubscriberID()
	v := New(svc, id)

	v.SetWindow(Window{FirstVisible: 10, Height: 5})

	require.Eventually(t, func() bool {
		text, ok, _ := v.Line(10)
		return ok && text == "line content"
	}, 200*time.Millisecond, time.Millisecond)
}

func TestViewCenterClampsToValidRange(t *testing.T) {
	svc := newFakeService(20)
	v := New(svc, linesvc.NewSubscriberID())
	v.SetWindow(Window{FirstVisible: 1, Height: 10})
	v.HandleStats(linesvc.Stats{LineCount: 20})

	v.Center(1)
	assert.Equal(t, uint64(1), v.Window().FirstVisible)

	v.Center(20)
	assert.Equal(t, uint64(11), v.Window().FirstVisible)
}

func TestViewEvictsOutOfRangeLines(t *testing.T) {
	svc := newFakeService(1000)
	id := linesvc.NewSubscriberID()
	v := New(svc, id)

	v.SetWindow(Window{FirstVisible: 1, Height: 5})
	require.Eventually(t, func() bool {
		_, ok, _ := v.Line(1)
		return ok
	}, 200*time.Millisecond, time.Millisecond)

	v.SetWindow(Window{FirstVisible: 500, Height: 5})
	_, ok, _ := v.Line(1)
	assert.False(t, ok)
}

func TestViewTruncatedResetsState(t *testing.T) {
	svc := newFakeService(10)
	id := linesvc.NewSubscriberID()
	v := New(svc, id)
	v.SetWindow(Window{FirstVisible: 1, Height: 5})
	v.SetTailing(true)

	v.HandleEvent(linesvc.Truncated{})

	assert.False(t, v.Tailing())
	assert.Equal(t, uint64(0), v.LineCount())
	assert.Equal(t, uint64(1), v.Window().FirstVisible)
}

func TestViewFilterResetPreservesTailingFlag(t *testing.T) {
	svc := newFakeService(10)
	id := linesvc.NewSubscriberID()
	v := New(svc, id)
	v.SetWindow(Window{FirstVisible: 1, Height: 5})
	v.SetTailing(true)

	v.HandleEvent(linesvc.FilterReset{})

	assert.True(t, v.Tailing())
	assert.Equal(t, uint64(0), v.LineCount())
}

func TestViewTailEventSlidesWindowWhenTailing(t *testing.T) {
	svc := newFakeService(1000)
	id := linesvc.NewSubscriberID()
	v := New(svc, id)
	v.SetWindow(Window{FirstVisible: 1, Height: 5})
	v.SetTailing(true)

	v.HandleEvent(linesvc.Tail{Line: 100, Text: "newest"})

	assert.Equal(t, uint64(96), v.Window().FirstVisible)
	text, ok, _ := v.Line(100)
	assert.True(t, ok)
	assert.Equal(t, "newest", text)
}

func TestRenderLineHonoursHorizontalOffset(t *testing.T) {
	svc := newFakeService(10)
	id := linesvc.NewSubscriberID()
	v := New(svc, id)
	v.SetWindow(Window{FirstVisible: 1, Height: 5, HOffset: 5})

	require.Eventually(t, func() bool {
		_, ok, _ := v.Line(1)
		return ok
	}, 200*time.Millisecond, time.Millisecond)

	assert.Equal(t, "content", v.RenderLine(1))
}

func TestRenderLineEmptyForMissingLine(t *testing.T) {
	svc := newFakeService(0)
	v := New(svc, linesvc.NewSubscriberID())
	assert.Equal(t, "", v.RenderLine(5))
}
