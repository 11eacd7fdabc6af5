// Package pipeline implements the record pipeline: ProcessClientToMud,
// SendClientToMud, ProcessMudToClient, and SendMudToClient, the four
// callable units of work that move LineRecords between the mud and
// clients through the event bus's modify/read interception points.
package pipeline

import (
	"context"
	"strings"

	"bastproxy/internal/capability"
	"bastproxy/internal/eventbus"
	"bastproxy/internal/record"
	"bastproxy/internal/trigger"
)

const (
	EventToMudModify    = "ev_to_mud_data_modify"
	EventToMudRead      = "ev_to_mud_data_read"
	EventToClientModify = "ev_to_client_data_modify"
	EventToClientRead   = "ev_to_client_data_read"
)

// DefaultCommandSeparator splits one client-typed line into several mud
// commands, per the user-configurable separator (kept a constant default
// here; settings.Store carries the configurable value).
const DefaultCommandSeparator = "|"

// Recipient is one downstream client as the pipeline sees it: just
// enough to apply the client-filtering rules, decoupled from netshim so
// this package doesn't need to import the network layer.
type Recipient struct {
	ID       string
	ViewOnly bool
	LoggedIn bool
	Excluded bool
}

// Sink is how a fully-formatted, locked line actually leaves the
// process — implemented by netshim.MudShim.Send / netshim.ClientConn.Send
// and swapped for a recording fake in tests.
type Sink func(recipientID, formatted string) error

// Pipeline wires the bus, trigger engine and capability registry used by
// every Process*/Send* invocation.
type Pipeline struct {
	Bus          *eventbus.Bus
	Triggers     *trigger.Engine
	Capabilities *capability.Registry

	// CommandSeparator splits one client→mud line into several; empty
	// disables splitting.
	CommandSeparator string

	// SendToMud delivers one formatted line to the single upstream mud
	// connection.
	SendToMud Sink

	// SendToClient delivers one formatted line to recipientID.
	SendToClient Sink

	// Recipients returns the current downstream client roster, evaluated
	// fresh for every ProcessMudToClient/SendMudToClient call.
	Recipients func() []Recipient
}

// ProcessClientToMud splits text on the command separator, builds a
// container of client-origin io lines, raises the modify event per line,
// then runs SendClientToMud on the result.
func (p *Pipeline) ProcessClientToMud(ctx context.Context, actor, text string) error {
	segments := []string{text}
	if p.CommandSeparator != "" {
		segments = strings.Split(text, p.CommandSeparator)
	}

	c := record.NewContainer()
	for _, seg := range segments {
		lr := record.New(seg, record.OriginClient, record.KindIO, true)
		lr.ClientID = actor
		c.Append(actor, nil, nil, lr)
	}

	if err := p.raiseModifyPerLine(ctx, c, EventToMudModify, actor); err != nil {
		return err
	}
	return p.SendClientToMud(ctx, c)
}

// SendClientToMud locks the container, formats and sends every line
// whose send flag survived modification to the mud, then raises the
// read event.
func (p *Pipeline) SendClientToMud(ctx context.Context, c *record.Container) error {
	c.Lock("pipeline", nil, nil)

	for _, line := range c.Lines() {
		if !line.Send {
			continue
		}
		formatted := line.Format("")
		line.MarkSent("pipeline", nil, nil)
		if p.SendToMud != nil {
			if err := p.SendToMud("mud", formatted); err != nil {
				return err
			}
		}
	}

	if p.Bus != nil {
		_, err := p.Bus.Raise(ctx, EventToMudRead, map[string]interface{}{"lines": c.Lines()}, "pipeline", nil, "")
		return err
	}
	return nil
}

// ProcessMudToClient wraps text as a single mud-origin io line, raises
// the modify event, then runs SendMudToClient.
func (p *Pipeline) ProcessMudToClient(ctx context.Context, actor, text string) error {
	c := record.NewContainer()
	c.Append(actor, nil, nil, record.New(text, record.OriginMud, record.KindIO, true))

	if p.Triggers != nil {
		p.fireTriggers(ctx, c)
	}

	if err := p.raiseModifyPerLine(ctx, c, EventToClientModify, actor); err != nil {
		return err
	}
	return p.SendMudToClient(ctx, c)
}

// SendMudToClient locks the container, formats and fans each surviving
// line out to every eligible recipient per the client-filtering rules,
// then raises the read event.
func (p *Pipeline) SendMudToClient(ctx context.Context, c *record.Container) error {
	c.Lock("pipeline", nil, nil)

	recipients := []Recipient{}
	if p.Recipients != nil {
		recipients = p.Recipients()
	}

	for _, line := range c.Lines() {
		if !line.Send {
			continue
		}
		formatted := line.Format("")
		line.MarkSent("pipeline", nil, nil)

		for _, r := range recipients {
			if !eligible(line, r) {
				continue
			}
			if p.SendToClient != nil {
				if err := p.SendToClient(r.ID, formatted); err != nil {
					return err
				}
			}
		}
	}

	if p.Bus != nil {
		_, err := p.Bus.Raise(ctx, EventToClientRead, map[string]interface{}{"lines": c.Lines()}, "pipeline", nil, "")
		return err
	}
	return nil
}

// eligible applies the client-filtering rules in priority order:
// explicit exclude, internal-origin+view-only, not-logged-in without
// prelogin eligibility.
func eligible(line *record.LineRecord, r Recipient) bool {
	if r.Excluded {
		return false
	}
	if line.Origin == record.OriginInternal && r.ViewOnly {
		return false
	}
	if !r.LoggedIn && !line.Prelogin {
		return false
	}
	return true
}

// raiseModifyPerLine raises eventName once per io line in the container,
// binding the line under the key "line" so each callback's current-event
// record sees exactly one line, per spec.
func (p *Pipeline) raiseModifyPerLine(ctx context.Context, c *record.Container, eventName, actor string) error {
	if p.Bus == nil {
		return nil
	}
	lines := c.Select(func(l *record.LineRecord) bool { return l.Kind == record.KindIO })
	items := make([]interface{}, len(lines))
	for i, l := range lines {
		items[i] = l
	}
	_, err := p.Bus.Raise(ctx, eventName, eventbus.Data{}, actor, items, "line")
	return err
}

// fireTriggers runs the trigger engine over every io line in the
// container before the modify event (so trigger pseudo-events and omit
// flags are visible to modify callbacks), raising each matched trigger's
// event and honoring Omit by clearing send.
func (p *Pipeline) fireTriggers(ctx context.Context, c *record.Container) {
	for _, line := range c.Select(func(l *record.LineRecord) bool { return l.Kind == record.KindIO }) {
		plain := line.NoANSI()
		colored := line.ColorCoded()

		if trigger.IsEmptyLine(plain) {
			_, _ = p.Bus.Raise(ctx, trigger.EventEmptyLine, map[string]interface{}{"line": line}, "trigger-engine", nil, "")
		}
		_, _ = p.Bus.Raise(ctx, trigger.EventBeAll, map[string]interface{}{"line": line}, "trigger-engine", nil, "")

		for _, m := range p.Triggers.MatchLine(plain, colored) {
			data := map[string]interface{}{"line": line}
			for k, v := range m.Groups {
				data[k] = v
			}
			_, _ = p.Bus.Raise(ctx, m.Trigger.ResolvedEventName(), data, "trigger-engine", nil, "")
			if m.Trigger.Omit {
				line.Send = false
			}
			if m.Trigger.StopEvaluating {
				break
			}
		}

		_, _ = p.Bus.Raise(ctx, trigger.EventAll, map[string]interface{}{"line": line}, "trigger-engine", nil, "")
	}
}
