// Package linesvc defines the subscriber-facing contract shared by the
// Indexer and the Filter Projector (internal/otail/indexer,
// internal/otail/filter). Both present the same Register/Request/Cancel/
// SetTailing shape to the View cache; the interface mirrors the teacher
// repo's FileReader abstraction (multiple concrete strategies behind one
// contract), generalized here to a push/pull line service.
package linesvc

import (
	"github.com/google/uuid"
)

// SubscriberID identifies a caller registered with a Service. It is the
// key used for the pending-request table and for tailing opt-in/opt-out.
type SubscriberID = uuid.UUID

// NewSubscriberID mints a fresh subscriber identity.
func NewSubscriberID() SubscriberID {
	return uuid.New()
}

// Stats is the coalesced (line count, byte count, end-line-complete)
// triple described by spec.md §3 "File stats".
type Stats struct {
	LineCount   uint64
	ByteCount   int64
	EndComplete bool
}

// Event is the sum type of out-of-band notifications a Service pushes to
// its subscribers outside of line-content responses: Tail, Truncated,
// FilterReset (filter-change specific) and Error.
type Event interface {
	isEvent()
}

// Tail is pushed for every newly available line when a subscriber has
// tailing enabled.
type Tail struct {
	Line uint64
	Text string
}

func (Tail) isEvent() {}

// Truncated is forwarded whenever the underlying file (or, for a
// Projector, its source) resets to empty.
type Truncated struct{}

func (Truncated) isEvent() {}

// FilterReset is delivered by a Filter Projector to its subscribers when
// SetFilter discards the prior scan; it is distinct from Truncated because
// the source file itself did not change.
type FilterReset struct{}

func (FilterReset) isEvent() {}

// Error is forwarded on unrecoverable I/O failure; the Service ceases
// afterwards.
type Error struct {
	Err error
}

func (Error) isEvent() {}

// LineContent answers a line Request. Truncated is set, and Text left
// empty, when the request was in flight during a Truncated/FilterReset
// event (Invariant 3: pending requests are answered, not silently
// dropped).
type LineContent struct {
	Line      uint64
	Text      string
	Truncated bool
}

// Service is the operation set exposed by both the Indexer and the Filter
// Projector.
type Service interface {
	// Register subscribes the caller to Stats/Tail/Truncated/Error
	// notifications, returning its identity and the two channels it will
	// receive on: coalesced stats, and all other events.
	Register() (id SubscriberID, stats <-chan Stats, events <-chan Event)

	// Unregister deregisters id; its channels are closed afterwards and no
	// further notifications are delivered.
	Unregister(id SubscriberID)

	// Request asks for the content of line (1-based). The response is
	// delivered on the returned channel at most once; a request that is
	// cancelled, or whose subscriber unregisters, before it is answered
	// receives no response.
	Request(id SubscriberID, line uint64) <-chan LineContent

	// Cancel removes a pending request for line by id. Safe to call for an
	// already-answered or never-requested pair.
	Cancel(id SubscriberID, line uint64)

	// SetTailing toggles whether id receives Tail events as new lines
	// become available.
	SetTailing(id SubscriberID, enabled bool)

	// Close terminates the service and releases its resources.
	Close()
}
