// Package trigger implements the proxy's regex trigger engine: plugins
// register patterns against mud output, and on every line delivered to
// clients the engine determines which triggers match and raises each
// one's event with its named-group values.
package trigger

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"sync"
)

// ArgType coerces one named-group capture into a typed value.
type ArgType string

const (
	ArgStr ArgType = "str"
	ArgInt ArgType = "int"
)

// Spec describes one registered trigger.
type Spec struct {
	Name           string
	Owner          string
	Pattern        string
	Priority       int
	Enabled        bool
	GroupLabel     string
	ArgTypes       map[string]ArgType
	MatchWithColor bool
	Omit           bool
	StopEvaluating bool
	EventName      string // defaults to "trigger_<name>" if empty

	compiled *regexp.Regexp
}

func (s *Spec) eventName() string {
	return s.ResolvedEventName()
}

// ResolvedEventName returns the event this trigger raises on match:
// EventName if set, otherwise "trigger_<name>".
func (s *Spec) ResolvedEventName() string {
	if s.EventName != "" {
		return s.EventName
	}
	return "trigger_" + s.Name
}

func (s *Spec) id() string { return s.Owner + ":" + s.Name }

// Match is one fired trigger and its captured, coerced groups.
type Match struct {
	Trigger *Spec
	Groups  map[string]interface{}
	Line    string
}

// Engine holds the registered triggers and the lazily-rebuilt per-surface
// pattern-dedup groups used to test each distinct pattern once.
type Engine struct {
	mu      sync.Mutex
	specs   map[string]*Spec // keyed by id()
	plain   *unionRegex
	colored *unionRegex
	dirty   bool
}

type unionRegex struct {
	ids [][]string // ids[i] is the set of trigger ids sharing identical pattern text at index i
}

// New returns an empty trigger engine.
func New() *Engine {
	return &Engine{specs: make(map[string]*Spec)}
}

// Register adds spec. Duplicate (owner, name) pairs are rejected; an
// identical pattern already registered under a different id is allowed
// and grouped with it so the pattern is tested once per line, but both
// still fire independently, since they are different triggers.
func (e *Engine) Register(spec Spec) error {
	compiled, err := regexp.Compile(spec.Pattern)
	if err != nil {
		return fmt.Errorf("trigger: compiling pattern for %q: %w", spec.Name, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	id := spec.id()
	if _, exists := e.specs[id]; exists {
		return fmt.Errorf("trigger: %q already registered for owner %q", spec.Name, spec.Owner)
	}

	cp := spec
	cp.compiled = compiled
	e.specs[id] = &cp
	e.dirty = true
	return nil
}

// Unregister removes one (owner, name) trigger.
func (e *Engine) Unregister(owner, name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := owner + ":" + name
	if _, ok := e.specs[id]; !ok {
		return false
	}
	delete(e.specs, id)
	e.dirty = true
	return true
}

// UnloadOwner removes every trigger owned by owner.
func (e *Engine) UnloadOwner(owner string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	removed := 0
	for id, sp := range e.specs {
		if sp.Owner == owner {
			delete(e.specs, id)
			removed++
		}
	}
	if removed > 0 {
		e.dirty = true
	}
	return removed
}

// Enable toggles a trigger without removing its registration.
func (e *Engine) Enable(owner, name string, enabled bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	sp, ok := e.specs[owner+":"+name]
	if !ok {
		return false
	}
	sp.Enabled = enabled
	e.dirty = true
	return true
}

// rebuildLocked regroups the current spec set into per-surface id groups,
// one group per distinct pattern text, so matchSurface can test each
// pattern exactly once even when several triggers share it. Must be
// called with e.mu held.
func (e *Engine) rebuildLocked() {
	var plainIDs, colorIDs [][]string
	plainGroupOf := make(map[string]int) // pattern text -> group index, for dedup
	colorGroupOf := make(map[string]int)

	// Deterministic order so group indices are stable across rebuilds
	// within one process lifetime (not required for correctness, but
	// makes debugging output reproducible).
	ids := make([]string, 0, len(e.specs))
	for id := range e.specs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		sp := e.specs[id]
		if !sp.Enabled {
			continue
		}
		groupIDs := &plainIDs
		groupOf := plainGroupOf
		if sp.MatchWithColor {
			groupIDs, groupOf = &colorIDs, colorGroupOf
		}

		if idx, dup := groupOf[sp.Pattern]; dup {
			(*groupIDs)[idx] = append((*groupIDs)[idx], id)
			continue
		}
		groupOf[sp.Pattern] = len(*groupIDs)
		*groupIDs = append(*groupIDs, []string{id})
	}

	e.plain = &unionRegex{ids: plainIDs}
	e.colored = &unionRegex{ids: colorIDs}
	e.dirty = false
}

// MatchLine runs every enabled trigger against the line, returning every
// trigger that matches, sorted by priority. The caller passes both forms
// of the line: plain-surface triggers are matched against plainLine (the
// color-stripped text) and MatchWithColor triggers against colorLine;
// this engine tracks both surfaces separately because a line is evaluated
// once per surface that has interested triggers.
func (e *Engine) MatchLine(plainLine, colorLine string) []Match {
	e.mu.Lock()
	if e.dirty {
		e.rebuildLocked()
	}
	plain, colored := e.plain, e.colored
	e.mu.Unlock()

	var matches []Match
	matches = append(matches, matchSurface(plain, plainLine, e)...)
	matches = append(matches, matchSurface(colored, colorLine, e)...)

	sort.Slice(matches, func(i, j int) bool { return matches[i].Trigger.Priority < matches[j].Trigger.Priority })
	return matches
}

// matchSurface tests every distinct pattern registered for this surface
// against line directly, firing every trigger id that shares a pattern
// which matches. Patterns are tested independently rather than joined
// into one alternation: RE2 alternation reports only the leftmost
// overall match, so a combined regex would silently drop any trigger
// whose own match is shadowed by another pattern matching earlier in
// the line, even when both patterns truly match the line on their own.
func matchSurface(u *unionRegex, line string, e *Engine) []Match {
	if u == nil {
		return nil
	}
	var out []Match
	for _, ids := range u.ids {
		if len(ids) == 0 {
			continue
		}
		e.mu.Lock()
		first, ok := e.specs[ids[0]]
		e.mu.Unlock()
		if !ok {
			continue
		}
		groupMatch := first.compiled.FindStringSubmatch(line)
		if groupMatch == nil {
			continue
		}
		for _, id := range ids {
			e.mu.Lock()
			sp, ok := e.specs[id]
			e.mu.Unlock()
			if !ok {
				continue
			}
			out = append(out, Match{Trigger: sp, Groups: coerceGroups(sp, groupMatch), Line: line})
		}
	}
	return out
}

func coerceGroups(sp *Spec, submatch []string) map[string]interface{} {
	out := make(map[string]interface{})
	if submatch == nil {
		return out
	}
	names := sp.compiled.SubexpNames()
	for i, name := range names {
		if name == "" || i >= len(submatch) {
			continue
		}
		raw := submatch[i]
		if t, ok := sp.ArgTypes[name]; ok && t == ArgInt {
			if n, err := strconv.Atoi(raw); err == nil {
				out[name] = n
				continue
			}
		}
		out[name] = raw
	}
	return out
}
