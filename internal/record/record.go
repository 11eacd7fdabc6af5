// Package record implements the proxy's line-record data model: the
// LineRecord that flows between the mud socket, client sockets, and the
// plugin layer, and the RecordContainer that groups lines for one pipeline
// pass. Every mutation appends to an append-only update log so a
// post-mortem can reconstruct how a delivered (or dropped) line reached
// its final form.
package record

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"bastproxy/internal/colorcode"
)

// Origin identifies which side of the proxy produced a LineRecord. It never
// changes after creation.
type Origin string

const (
	OriginMud      Origin = "mud"
	OriginClient   Origin = "client"
	OriginInternal Origin = "internal"
)

// Kind distinguishes ordinary text from telnet negotiation frames, which
// skip the modify event entirely.
type Kind string

const (
	KindIO            Kind = "io"
	KindTelnetCommand Kind = "telnet-command"
)

// UpdateEntry is one append-only entry in a LineRecord's or
// RecordContainer's history.
type UpdateEntry struct {
	Kind         string
	Action       string
	Actor        string
	CallStack    []string
	EventStack   []string
	Timestamp    time.Time
	DataSnapshot string
}

// LineRecord is one line of network data moving through the pipeline.
type LineRecord struct {
	ID uuid.UUID

	Origin Origin
	Kind   Kind

	current  string
	original string

	Send           bool
	IsPrompt       bool
	Preamble       bool
	Prelogin       bool
	HadLineEndings bool
	Color          string
	WasSent        bool

	// ClientID identifies the originating client for a client-authored
	// line; empty for mud- or internal-origin lines. Modify callbacks
	// that must reply to one client only (the command engine's dispatch,
	// namely) read this rather than threading the id through the bus.
	ClientID string

	mu      sync.Mutex
	locked  bool
	history []UpdateEntry
}

// New creates a LineRecord for text, recording its origin and whether the
// raw bytes already carried a line terminator.
func New(text string, origin Origin, kind Kind, hadLineEndings bool) *LineRecord {
	return &LineRecord{
		ID:             uuid.New(),
		Origin:         origin,
		Kind:           kind,
		current:        text,
		original:       text,
		Send:           true,
		HadLineEndings: hadLineEndings,
	}
}

// Text returns the current (possibly mutated) line text.
func (r *LineRecord) Text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Original returns the text frozen at creation time, before any mutation.
func (r *LineRecord) Original() string {
	return r.original
}

// SetText mutates the line's current text, recording the attempt. If the
// record is locked, the mutation is recorded but not applied.
func (r *LineRecord) SetText(actor string, callStack, eventStack []string, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry := UpdateEntry{
		Kind:       "text",
		Action:     "set",
		Actor:      actor,
		CallStack:  append([]string(nil), callStack...),
		EventStack: append([]string(nil), eventStack...),
		Timestamp:  time.Now(),
	}
	if r.locked {
		entry.Action = "set-rejected-locked"
		r.history = append(r.history, entry)
		return
	}
	r.current = text
	entry.DataSnapshot = text
	r.history = append(r.history, entry)
}

// Lock freezes the record. Any later mutation attempt is recorded in the
// update log but never changes state, per the locked-before-write
// invariant.
func (r *LineRecord) Lock(actor string, callStack, eventStack []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.locked {
		return
	}
	r.locked = true
	r.history = append(r.history, UpdateEntry{
		Kind:       "lifecycle",
		Action:     "lock",
		Actor:      actor,
		CallStack:  append([]string(nil), callStack...),
		EventStack: append([]string(nil), eventStack...),
		Timestamp:  time.Now(),
	})
}

// Locked reports whether Lock has been called.
func (r *LineRecord) Locked() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.locked
}

// MarkSent records that the line was handed to its target socket.
func (r *LineRecord) MarkSent(actor string, callStack, eventStack []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.WasSent = true
	r.history = append(r.history, UpdateEntry{
		Kind:       "lifecycle",
		Action:     "sent",
		Actor:      actor,
		CallStack:  append([]string(nil), callStack...),
		EventStack: append([]string(nil), eventStack...),
		Timestamp:  time.Now(),
	})
}

// RecordDrop appends an entry noting that the line was dropped (send
// cleared, or filtered for a given recipient) without changing Send
// itself — callers clear Send separately so the decision is explicit.
func (r *LineRecord) RecordDrop(actor, reason string, callStack, eventStack []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, UpdateEntry{
		Kind:         "lifecycle",
		Action:       "drop",
		Actor:        actor,
		CallStack:    append([]string(nil), callStack...),
		EventStack:   append([]string(nil), eventStack...),
		Timestamp:    time.Now(),
		DataSnapshot: reason,
	})
}

// History returns a copy of the update log.
func (r *LineRecord) History() []UpdateEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]UpdateEntry, len(r.history))
	copy(out, r.history)
	return out
}

// NoANSI returns the color-stripped derived view of the current text.
func (r *LineRecord) NoANSI() string {
	return colorcode.StripANSI(r.Text())
}

// ColorCoded returns the ANSI-to-internal-code derived view of the current
// text.
func (r *LineRecord) ColorCoded() string {
	return colorcode.ToInternal(r.Text())
}

// Format applies preamble (for internal-origin lines), the Color prefix if
// set, and appends a line ending if the original bytes had none. It does
// not mutate the record; it is called by the Send* processing stage once
// the container is locked.
func (r *LineRecord) Format(preambleText string) string {
	text := r.Text()
	if r.Preamble && r.Origin == OriginInternal && preambleText != "" {
		text = preambleText + text
	}
	if r.Color != "" {
		text = colorcode.ToANSI(r.Color) + text
	}
	if !r.HadLineEndings {
		text += "\r\n"
	}
	return text
}
