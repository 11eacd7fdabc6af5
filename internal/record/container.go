package record

import (
	"sync"
	"time"
)

// Container is an ordered sequence of LineRecord with automatic coercion
// of raw strings, typed append/replace operations, and its own update
// log (distinct from each line's own history — this one tracks structural
// changes to the sequence itself).
type Container struct {
	mu      sync.Mutex
	lines   []*LineRecord
	history []UpdateEntry
}

// NewContainer builds a container from a mix of strings and *LineRecord;
// bare strings are coerced into internal-origin io LineRecords.
func NewContainer(items ...interface{}) *Container {
	c := &Container{}
	for _, it := range items {
		c.Append("container", nil, nil, it)
	}
	return c
}

// coerce converts a raw string into a LineRecord, or passes through an
// existing one unchanged.
func coerce(item interface{}) *LineRecord {
	switch v := item.(type) {
	case *LineRecord:
		return v
	case string:
		return New(v, OriginInternal, KindIO, false)
	default:
		return nil
	}
}

// Append adds one item (string or *LineRecord) to the end of the sequence.
func (c *Container) Append(actor string, callStack, eventStack []string, item interface{}) *LineRecord {
	lr := coerce(item)
	if lr == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = append(c.lines, lr)
	c.history = append(c.history, UpdateEntry{
		Kind:       "container",
		Action:     "append",
		Actor:      actor,
		CallStack:  append([]string(nil), callStack...),
		EventStack: append([]string(nil), eventStack...),
		Timestamp:  time.Now(),
	})
	return lr
}

// Replace swaps the line at index i for a new one built from item.
func (c *Container) Replace(actor string, callStack, eventStack []string, i int, item interface{}) bool {
	lr := coerce(item)
	if lr == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if i < 0 || i >= len(c.lines) {
		return false
	}
	c.lines[i] = lr
	c.history = append(c.history, UpdateEntry{
		Kind:       "container",
		Action:     "replace",
		Actor:      actor,
		CallStack:  append([]string(nil), callStack...),
		EventStack: append([]string(nil), eventStack...),
		Timestamp:  time.Now(),
	})
	return true
}

// Lines returns a snapshot slice of the current sequence.
func (c *Container) Lines() []*LineRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*LineRecord, len(c.lines))
	copy(out, c.lines)
	return out
}

// Len returns the number of lines currently in the container.
func (c *Container) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.lines)
}

// Select returns the subset of lines matching pred, preserving order —
// used by the pipeline to pick the origin/kind subset eligible for the
// modify event.
func (c *Container) Select(pred func(*LineRecord) bool) []*LineRecord {
	var out []*LineRecord
	for _, lr := range c.Lines() {
		if pred(lr) {
			out = append(out, lr)
		}
	}
	return out
}

// Lock locks every line in the container, recording the lock attempt
// against the container's own history too.
func (c *Container) Lock(actor string, callStack, eventStack []string) {
	for _, lr := range c.Lines() {
		lr.Lock(actor, callStack, eventStack)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, UpdateEntry{
		Kind:       "container",
		Action:     "lock",
		Actor:      actor,
		CallStack:  append([]string(nil), callStack...),
		EventStack: append([]string(nil), eventStack...),
		Timestamp:  time.Now(),
	})
}

// History returns a copy of the container's structural update log.
func (c *Container) History() []UpdateEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]UpdateEntry, len(c.history))
	copy(out, c.history)
	return out
}
