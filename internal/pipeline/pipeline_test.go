package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"bastproxy/internal/eventbus"
	"bastproxy/internal/record"
	"bastproxy/internal/trigger"
)

func TestProcessClientToMudSplitsOnSeparatorAndSends(t *testing.T) {
	var sent []string
	p := &Pipeline{
		Bus:              eventbus.New(100),
		CommandSeparator: "|",
		SendToMud:        func(_, formatted string) error { sent = append(sent, formatted); return nil },
	}

	require.NoError(t, p.ProcessClientToMud(context.Background(), "client1", "look|inventory"))
	require.Len(t, sent, 2)
	require.Contains(t, sent[0], "look")
	require.Contains(t, sent[1], "inventory")
}

func TestModifyCallbackCanSuppressLine(t *testing.T) {
	bus := eventbus.New(100)
	_, err := bus.RegisterCallback(EventToMudModify, "antispam", "gag", 50,
		func(ctx context.Context, data eventbus.Data) error {
			line := data["line"].(*record.LineRecord)
			line.Send = false
			return nil
		})
	require.NoError(t, err)

	var sent []string
	p := &Pipeline{
		Bus:       bus,
		SendToMud: func(_, formatted string) error { sent = append(sent, formatted); return nil },
	}
	require.NoError(t, p.ProcessClientToMud(context.Background(), "client1", "look"))
	require.Empty(t, sent)
}

func TestModifyCallbackRewritesLineText(t *testing.T) {
	bus := eventbus.New(100)
	aliases := map[string]string{"gg": "get gold from corpse"}
	_, err := bus.RegisterCallback(EventToMudModify, "aliases", "expand", 50,
		func(ctx context.Context, data eventbus.Data) error {
			line := data["line"].(*record.LineRecord)
			if expanded, ok := aliases[line.Text()]; ok {
				line.SetText("aliases", nil, nil, expanded)
			}
			return nil
		})
	require.NoError(t, err)

	var sent []string
	p := &Pipeline{
		Bus:       bus,
		SendToMud: func(_, formatted string) error { sent = append(sent, formatted); return nil },
	}
	require.NoError(t, p.ProcessClientToMud(context.Background(), "client1", "gg"))
	require.Len(t, sent, 1)
	require.Contains(t, sent[0], "get gold from corpse")
}

func TestProcessMudToClientDeliversToLoggedInRecipient(t *testing.T) {
	var delivered []string
	p := &Pipeline{
		Bus: eventbus.New(100),
		Recipients: func() []Recipient {
			return []Recipient{{ID: "client1", LoggedIn: true}}
		},
		SendToClient: func(id, formatted string) error { delivered = append(delivered, id+":"+formatted); return nil },
	}

	require.NoError(t, p.ProcessMudToClient(context.Background(), "mud", "you see a room"))
	require.Len(t, delivered, 1)
	require.Contains(t, delivered[0], "client1:")
}

func TestProcessMudToClientDropsForExcludedRecipient(t *testing.T) {
	var delivered []string
	p := &Pipeline{
		Bus: eventbus.New(100),
		Recipients: func() []Recipient {
			return []Recipient{{ID: "client1", LoggedIn: true, Excluded: true}}
		},
		SendToClient: func(id, formatted string) error { delivered = append(delivered, id); return nil },
	}

	require.NoError(t, p.ProcessMudToClient(context.Background(), "mud", "secret"))
	require.Empty(t, delivered)
}

func TestProcessMudToClientDropsNonPreloginLineForUnauthenticated(t *testing.T) {
	var delivered []string
	p := &Pipeline{
		Bus: eventbus.New(100),
		Recipients: func() []Recipient {
			return []Recipient{{ID: "client1", LoggedIn: false}}
		},
		SendToClient: func(id, formatted string) error { delivered = append(delivered, id); return nil },
	}

	require.NoError(t, p.ProcessMudToClient(context.Background(), "mud", "you see a room"))
	require.Empty(t, delivered)
}

func TestFireTriggersRaisesMatchedTriggerEvent(t *testing.T) {
	bus := eventbus.New(100)
	te := trigger.New()
	require.NoError(t, te.Register(trigger.Spec{Name: "hp", Owner: "tracker", Pattern: `hp`, Enabled: true}))

	fired := false
	_, err := bus.RegisterCallback("trigger_hp", "tracker", "track", 50,
		func(ctx context.Context, data eventbus.Data) error { fired = true; return nil })
	require.NoError(t, err)

	p := &Pipeline{Bus: bus, Triggers: te}
	require.NoError(t, p.ProcessMudToClient(context.Background(), "mud", "you have 10 hp"))
	require.True(t, fired)
}

func TestFireTriggersOmitSuppressesDelivery(t *testing.T) {
	bus := eventbus.New(100)
	te := trigger.New()
	require.NoError(t, te.Register(trigger.Spec{Name: "gag", Owner: "antispam", Pattern: `^SPAM`, Enabled: true, Omit: true}))

	var delivered []string
	p := &Pipeline{
		Bus:      bus,
		Triggers: te,
		Recipients: func() []Recipient {
			return []Recipient{{ID: "client1", LoggedIn: true}}
		},
		SendToClient: func(id, formatted string) error { delivered = append(delivered, formatted); return nil },
	}

	require.NoError(t, p.ProcessMudToClient(context.Background(), "mud", "SPAM buy gold"))
	require.Empty(t, delivered)
}
