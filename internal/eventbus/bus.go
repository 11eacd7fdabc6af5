package eventbus

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"bastproxy/internal/fatal"
	"bastproxy/internal/logging"
)

// eventState holds one registered event's callbacks and history.
type eventState struct {
	def      Definition
	buckets  map[int][]*callbackEntry
	history  []*Invocation
	histSize int
	raises   uint64
}

// Bus dispatches events to registered callbacks in ascending priority
// order, restarting its scan whenever a pass invokes anything, until a
// full scan produces no invocations. Exactly one raise is in flight on a
// stack slot at a time; raises are re-entrant (a callback may raise the
// same or a different event, which stacks on top).
type Bus struct {
	mu       sync.Mutex
	events   map[string]*eventState
	stack    []*Invocation
	nextSeq  uint64
	histSize int
}

// New creates an empty bus. histSize, if zero, defaults to
// DefaultHistorySize.
func New(histSize int) *Bus {
	if histSize <= 0 {
		histSize = DefaultHistorySize
	}
	return &Bus{
		events:   make(map[string]*eventState),
		histSize: histSize,
	}
}

// RegisterEvent creates a new named event. Fails if the name already
// exists, per the registry's one-definition-per-name rule.
func (b *Bus) RegisterEvent(def Definition) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.events[def.Name]; ok {
		return fmt.Errorf("eventbus: event %q already registered", def.Name)
	}
	b.events[def.Name] = &eventState{
		def:      def,
		buckets:  make(map[int][]*callbackEntry),
		histSize: b.histSize,
	}
	return nil
}

// EnsureEvent registers def if it does not already exist; unlike
// RegisterEvent it is not an error for the event to already be present.
// The settings store uses it to declare each setting's change event.
func (b *Bus) EnsureEvent(def Definition) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.events[def.Name]; ok {
		return
	}
	b.events[def.Name] = &eventState{
		def:      def,
		buckets:  make(map[int][]*callbackEntry),
		histSize: b.histSize,
	}
}

// RegisterCallback attaches fn to eventName at the given priority. It is
// idempotent per (eventName, owner+name): calling it twice for the same
// id returns added=false without duplicating the registration.
func (b *Bus) RegisterCallback(eventName, owner, name string, priority int, fn Callback) (added bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.events[eventName]
	if !ok {
		st = &eventState{
			def:      Definition{Name: eventName},
			buckets:  make(map[int][]*callbackEntry),
			histSize: b.histSize,
		}
		b.events[eventName] = st
	}

	id := owner + ":" + name
	for _, entries := range st.buckets {
		for _, e := range entries {
			if e.id == id {
				return false, nil
			}
		}
	}

	b.nextSeq++
	st.buckets[priority] = append(st.buckets[priority], &callbackEntry{
		id:       id,
		owner:    owner,
		priority: priority,
		seq:      b.nextSeq,
		fn:       fn,
	})
	return true, nil
}

// UnregisterCallback removes a previously registered (eventName, owner,
// name) triple. Returns whether anything was removed.
func (b *Bus) UnregisterCallback(eventName, owner, name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	st, ok := b.events[eventName]
	if !ok {
		return false
	}
	id := owner + ":" + name
	for p, entries := range st.buckets {
		for i, e := range entries {
			if e.id == id {
				st.buckets[p] = append(entries[:i], entries[i+1:]...)
				return true
			}
		}
	}
	return false
}

// UnregisterOwner removes every callback owned by owner, across every
// event. Used at plugin unload.
func (b *Bus) UnregisterOwner(owner string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	removed := 0
	for _, st := range b.events {
		for p, entries := range st.buckets {
			kept := entries[:0]
			for _, e := range entries {
				if e.owner == owner {
					removed++
					continue
				}
				kept = append(kept, e)
			}
			st.buckets[p] = kept
		}
	}
	return removed
}

// Raise dispatches one event. If dataList and keyName are both non-empty,
// the full dispatch below runs once per element of dataList, with data[keyName]
// set to that element each time — letting one raise fan out over many lines.
func (b *Bus) Raise(ctx context.Context, eventName string, data Data, actor string, dataList []interface{}, keyName string) (*Invocation, error) {
	if data == nil {
		data = Data{}
	}

	if len(dataList) > 0 && keyName != "" {
		var last *Invocation
		for _, elem := range dataList {
			d := data.Clone()
			d[keyName] = elem
			inv, err := b.raiseOnce(ctx, eventName, d, actor)
			if err != nil {
				return inv, err
			}
			last = inv
		}
		return last, nil
	}

	return b.raiseOnce(ctx, eventName, data, actor)
}

func (b *Bus) raiseOnce(ctx context.Context, eventName string, data Data, actor string) (*Invocation, error) {
	inv := &Invocation{
		Event:    eventName,
		Data:     data,
		Actor:    actor,
		executed: make(map[string]bool),
	}

	b.mu.Lock()
	b.stack = append(b.stack, inv)
	st, ok := b.events[eventName]
	if !ok {
		st = &eventState{
			def:      Definition{Name: eventName},
			buckets:  make(map[int][]*callbackEntry),
			histSize: b.histSize,
		}
		b.events[eventName] = st
	}
	st.raises++
	b.mu.Unlock()

	defer b.popAndRecord(st, inv)

	for {
		if err := ctx.Err(); err != nil {
			return inv, err
		}

		ranAny, err := b.runOnePass(ctx, st, inv)
		if err != nil {
			return inv, err
		}
		inv.Passes++
		if !ranAny {
			break
		}
	}

	if inv.Passes > 2 {
		logging.Warnf("eventbus", "event %q took %d dispatch passes (callbacks registered during dispatch?)", eventName, inv.Passes)
	}
	return inv, nil
}

// runOnePass scans priority buckets ascending and calls every callback not
// yet marked executed in this invocation. It snapshots the bucket list
// before iterating so a callback that registers a new callback mid-pass
// does not cause that new callback to run in the same pass (it is picked
// up, if still unexecuted, on the next restarted scan).
func (b *Bus) runOnePass(ctx context.Context, st *eventState, inv *Invocation) (ranAny bool, err error) {
	b.mu.Lock()
	priorities := make([]int, 0, len(st.buckets))
	for p := range st.buckets {
		priorities = append(priorities, p)
	}
	sort.Ints(priorities)

	type toCall struct {
		entry *callbackEntry
	}
	var plan []toCall
	for _, p := range priorities {
		entries := append([]*callbackEntry(nil), st.buckets[p]...)
		sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
		for _, e := range entries {
			if !inv.executed[e.id] {
				plan = append(plan, toCall{e})
			}
		}
	}
	b.mu.Unlock()

	for _, c := range plan {
		if err := ctx.Err(); err != nil {
			return ranAny, err
		}
		inv.executed[c.entry.id] = true
		if cbErr := c.entry.fn(ctx, inv.Data); cbErr != nil {
			logging.Fault("eventbus", c.entry.owner, inv.Event, cbErr)
		}
		ranAny = true
	}
	return ranAny, nil
}

func (b *Bus) popAndRecord(st *eventState, inv *Invocation) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.stack)
	switch {
	case n > 0 && b.stack[n-1] == inv:
		b.stack = b.stack[:n-1]
	case n == 0:
		fatal.Crash("eventbus: popped %s with an empty stack", inv.Event)
	default:
		fatal.Crash("eventbus: popped %s but it was not the top-of-stack frame", inv.Event)
	}
	st.history = append(st.history, inv)
	if over := len(st.history) - st.histSize; over > 0 {
		st.history = st.history[over:]
	}
}

// CurrentEventRecord returns the innermost active raise (its Data field
// holds that raise's record), or nil if no raise is in flight.
func (b *Bus) CurrentEventRecord() *Invocation {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.stack) == 0 {
		return nil
	}
	return b.stack[len(b.stack)-1]
}

// EventStack returns active raises outer to inner.
func (b *Bus) EventStack() []*Invocation {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Invocation, len(b.stack))
	copy(out, b.stack)
	return out
}

// History returns the bounded history ring for eventName, oldest first.
func (b *Bus) History(eventName string) []*Invocation {
	b.mu.Lock()
	defer b.mu.Unlock()
	st, ok := b.events[eventName]
	if !ok {
		return nil
	}
	out := make([]*Invocation, len(st.history))
	copy(out, st.history)
	return out
}

// RaiseCount returns how many times eventName has been raised.
func (b *Bus) RaiseCount(eventName string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if st, ok := b.events[eventName]; ok {
		return st.raises
	}
	return 0
}

// HasEvent reports whether eventName has been registered (explicitly or
// implicitly, by a first RegisterCallback/Raise).
func (b *Bus) HasEvent(eventName string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.events[eventName]
	return ok
}

// Events lists every known event name.
func (b *Bus) Events() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for name := range b.events {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
