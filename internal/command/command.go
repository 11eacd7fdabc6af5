// Package command implements the proxy's command engine: parsing lines
// starting with a configurable prefix into <plugin>.<command> invocations,
// resolving plugin/command names by fuzzy match, dispatching through
// registered command functions, and keeping a bounded rerun history.
package command

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"bastproxy/internal/colorcode"
)

// DefaultPreamble is prepended to a command's reported messages when its
// Spec carries Preamble, so a client can tell a proxy-generated line from
// mud output at a glance.
const DefaultPreamble = "#BP: "

// Arg describes one positional or flagged argument a command accepts.
type Arg struct {
	Name    string
	Type    string // "str", "int", "bool"
	Default string
	Choices []string
	NArgs   string // "1" (default), "*", "+", "?"
}

// Result is what a command function returns: whether it succeeded, and
// the lines to report back to the originating client.
type Result struct {
	Success  bool
	Messages []string
}

// Func is a command's implementation.
type Func func(callerClientID string, args map[string]string) Result

// Spec describes one registered command.
type Spec struct {
	PluginID      string
	Name          string
	Description   string
	Args          []Arg
	Group         string
	ShowInHistory bool
	// Preamble prepends DefaultPreamble to every reported message.
	Preamble bool
	// Format converts this command's internal `@x` color codes to ANSI
	// before the messages reach the client.
	Format bool
	Fn     Func
}

func (s Spec) fullID() string { return s.PluginID + "." + s.Name }

// HistoryEntry is one past command invocation, for the "!"/"!N" rerun
// surface.
type HistoryEntry struct {
	Line   string
	Client string
}

// Engine owns registered commands and dispatches parsed command lines.
type Engine struct {
	mu      sync.RWMutex
	prefix  string
	specs   map[string]*Spec // keyed by "<pluginID>.<name>"
	history []HistoryEntry
	histCap int
}

// DefaultHistoryCap bounds the rerun history ring.
const DefaultHistoryCap = 200

// New creates an engine using prefix (e.g. "#bp") as the command marker.
func New(prefix string) *Engine {
	return &Engine{
		prefix:  prefix,
		specs:   make(map[string]*Spec),
		histCap: DefaultHistoryCap,
	}
}

// SetPrefix changes the command prefix (e.g. after a settings change).
func (e *Engine) SetPrefix(prefix string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.prefix = prefix
}

// Prefix returns the currently configured command prefix.
func (e *Engine) Prefix() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.prefix
}

// Register adds spec. Duplicate (pluginID, name) pairs are rejected.
func (e *Engine) Register(spec Spec) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	full := spec.fullID()
	if _, exists := e.specs[full]; exists {
		return fmt.Errorf("command: %q already registered", full)
	}
	cp := spec
	e.specs[full] = &cp
	return nil
}

// UnloadOwner removes every command owned by pluginID.
func (e *Engine) UnloadOwner(pluginID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	removed := 0
	prefix := pluginID + "."
	for full := range e.specs {
		if strings.HasPrefix(full, prefix) {
			delete(e.specs, full)
			removed++
		}
	}
	return removed
}

// IsCommandLine reports whether line begins with the configured prefix.
func (e *Engine) IsCommandLine(line string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return strings.HasPrefix(strings.TrimSpace(line), e.prefix)
}

// Dispatch parses and runs a command line on behalf of callerClientID. The
// returned bool reports whether the line was recognized as (and consumed
// as) a command at all — callers should still forward non-command lines.
func (e *Engine) Dispatch(callerClientID, line string) (handled bool, result Result) {
	e.mu.RLock()
	prefix := e.prefix
	e.mu.RUnlock()

	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, prefix) {
		return false, Result{}
	}
	rest := strings.TrimSpace(strings.TrimPrefix(trimmed, prefix))
	rest = strings.TrimPrefix(rest, ".")

	if rest == "!" || strings.HasPrefix(rest, "!") {
		return true, e.rerun(callerClientID, rest)
	}

	fields := strings.Fields(rest)
	if len(fields) == 0 {
		return true, Result{Success: false, Messages: []string{"no command given"}}
	}

	pathParts := strings.SplitN(fields[0], ".", 2)
	if len(pathParts) != 2 {
		return true, Result{Success: false, Messages: []string{"usage: " + prefix + ".<plugin>.<command> [args]"}}
	}
	pluginAbbrev, cmdAbbrev := pathParts[0], pathParts[1]
	args := fields[1:]

	spec, err := e.resolve(pluginAbbrev, cmdAbbrev)
	if err != nil {
		return true, Result{Success: false, Messages: []string{err.Error()}}
	}

	parsedArgs, err := parseArgs(spec.Args, args)
	if err != nil {
		return true, Result{Success: false, Messages: []string{"usage error: " + err.Error()}}
	}

	res := spec.Fn(callerClientID, parsedArgs)
	res.Messages = formatMessages(res.Messages, spec.Preamble, spec.Format)

	if spec.ShowInHistory {
		e.mu.Lock()
		e.history = append(e.history, HistoryEntry{Line: trimmed, Client: callerClientID})
		if over := len(e.history) - e.histCap; over > 0 {
			e.history = e.history[over:]
		}
		e.mu.Unlock()
	}

	return true, res
}

// formatMessages applies a command's Preamble/Format flags to its reported
// messages: Format converts embedded `@x` color codes to ANSI, Preamble
// prepends DefaultPreamble. Order matches spec: color conversion first so
// the preamble text itself is never mistaken for part of the colored span.
func formatMessages(messages []string, preamble, format bool) []string {
	if !preamble && !format {
		return messages
	}
	out := make([]string, len(messages))
	for i, m := range messages {
		if format {
			m = colorcode.ToANSI(m)
		}
		if preamble {
			m = DefaultPreamble + m
		}
		out[i] = m
	}
	return out
}

func (e *Engine) rerun(callerClientID, rest string) Result {
	offset := 1
	if len(rest) > 1 {
		n, err := strconv.Atoi(rest[1:])
		if err != nil {
			return Result{Success: false, Messages: []string{"usage: " + e.prefix + ".! or " + e.prefix + ".!N"}}
		}
		offset = n
	}

	e.mu.RLock()
	n := len(e.history)
	idx := n - offset
	var entry HistoryEntry
	ok := idx >= 0 && idx < n
	if ok {
		entry = e.history[idx]
	}
	e.mu.RUnlock()

	if !ok {
		return Result{Success: false, Messages: []string{"no such history entry"}}
	}
	_, res := e.Dispatch(callerClientID, entry.Line)
	return res
}

// resolve fuzzy-matches pluginAbbrev/cmdAbbrev against registered
// commands: an exact-prefix match wins outright; otherwise a substring
// match is attempted; ambiguous abbreviations return a disambiguation
// listing.
func (e *Engine) resolve(pluginAbbrev, cmdAbbrev string) (*Spec, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var candidates []candidate

	for _, sp := range e.specs {
		if !fuzzyMatches(sp.PluginID, pluginAbbrev) || !fuzzyMatches(sp.Name, cmdAbbrev) {
			continue
		}
		candidates = append(candidates, candidate{
			spec:      sp,
			prefixHit: strings.HasPrefix(sp.PluginID, pluginAbbrev) && strings.HasPrefix(sp.Name, cmdAbbrev),
		})
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("no command matches %q.%q", pluginAbbrev, cmdAbbrev)
	}

	var prefixMatches []candidate
	for _, c := range candidates {
		if c.prefixHit {
			prefixMatches = append(prefixMatches, c)
		}
	}
	if len(prefixMatches) == 1 {
		return prefixMatches[0].spec, nil
	}
	if len(prefixMatches) > 1 {
		return nil, ambiguousErr(prefixMatches)
	}
	if len(candidates) == 1 {
		return candidates[0].spec, nil
	}
	return nil, ambiguousErr(candidates)
}

// candidate is one registered command matched by resolve's abbreviations.
type candidate struct {
	spec      *Spec
	prefixHit bool
}

func ambiguousErr(cands []candidate) error {
	names := make([]string, len(cands))
	for i, c := range cands {
		names[i] = c.spec.fullID()
	}
	sort.Strings(names)
	return fmt.Errorf("ambiguous command, could mean: %s", strings.Join(names, ", "))
}

func fuzzyMatches(full, abbrev string) bool {
	if abbrev == "" {
		return true
	}
	return strings.HasPrefix(full, abbrev) || strings.Contains(full, abbrev)
}

func parseArgs(specs []Arg, tokens []string) (map[string]string, error) {
	out := make(map[string]string)
	i := 0
	for _, a := range specs {
		if i >= len(tokens) {
			if a.Default != "" {
				out[a.Name] = a.Default
				continue
			}
			if a.NArgs == "?" || a.NArgs == "*" {
				continue
			}
			return nil, fmt.Errorf("missing required argument %q", a.Name)
		}

		switch a.NArgs {
		case "*", "+":
			out[a.Name] = strings.Join(tokens[i:], " ")
			i = len(tokens)
		default:
			val := tokens[i]
			i++
			if len(a.Choices) > 0 && !contains(a.Choices, val) {
				return nil, fmt.Errorf("argument %q must be one of %v", a.Name, a.Choices)
			}
			if a.Type == "int" {
				if _, err := strconv.Atoi(val); err != nil {
					return nil, fmt.Errorf("argument %q must be an integer", a.Name)
				}
			}
			out[a.Name] = val
		}
	}
	return out, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// List returns every registered command's full id, optionally restricted
// to one plugin (pass "" for all), sorted.
func (e *Engine) List(pluginID string) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []string
	for full, sp := range e.specs {
		if pluginID == "" || sp.PluginID == pluginID {
			out = append(out, full)
		}
	}
	sort.Strings(out)
	return out
}

// Detail returns a copy of the Spec for "<pluginID>.<name>", or nil.
func (e *Engine) Detail(fullID string) *Spec {
	e.mu.RLock()
	defer e.mu.RUnlock()
	sp, ok := e.specs[fullID]
	if !ok {
		return nil
	}
	cp := *sp
	return &cp
}

// History returns a copy of the rerun history, oldest first.
func (e *Engine) History() []HistoryEntry {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]HistoryEntry, len(e.history))
	copy(out, e.history)
	return out
}

// ClearHistory empties the rerun history ring.
func (e *Engine) ClearHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.history = nil
}
