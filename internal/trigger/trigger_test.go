package trigger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterDuplicateFails(t *testing.T) {
	e := New()
	spec := Spec{Name: "gag_spam", Owner: "antispam", Pattern: `^\[SPAM\]`, Enabled: true}
	require.NoError(t, e.Register(spec))
	require.Error(t, e.Register(spec))
}

func TestMatchLineFindsMatchingTrigger(t *testing.T) {
	e := New()
	require.NoError(t, e.Register(Spec{
		Name: "gag_spam", Owner: "antispam", Pattern: `^\[SPAM\]`, Enabled: true, Omit: true,
	}))

	matches := e.MatchLine("[SPAM]buy gold", "")
	require.Len(t, matches, 1)
	require.Equal(t, "gag_spam", matches[0].Trigger.Name)
	require.True(t, matches[0].Trigger.Omit)
}

func TestMatchLineNoMatchReturnsEmpty(t *testing.T) {
	e := New()
	require.NoError(t, e.Register(Spec{Name: "gag_spam", Owner: "antispam", Pattern: `^\[SPAM\]`, Enabled: true}))

	matches := e.MatchLine("hello world", "")
	require.Empty(t, matches)
}

func TestPriorityOrdering(t *testing.T) {
	e := New()
	require.NoError(t, e.Register(Spec{Name: "low", Owner: "p1", Pattern: `hp`, Priority: 50, Enabled: true}))
	require.NoError(t, e.Register(Spec{Name: "high", Owner: "p2", Pattern: `^You have (?P<amt>\d+) hp`, Priority: 10, Enabled: true}))

	matches := e.MatchLine("You have 42 hp left", "")
	require.Len(t, matches, 2)
	require.Equal(t, "high", matches[0].Trigger.Name)
	require.Equal(t, "low", matches[1].Trigger.Name)
}

func TestArgTypeIntCoercion(t *testing.T) {
	e := New()
	require.NoError(t, e.Register(Spec{
		Name: "hp", Owner: "tracker", Pattern: `^You have (?P<amt>\d+) hp`, Enabled: true,
		ArgTypes: map[string]ArgType{"amt": ArgInt},
	}))

	matches := e.MatchLine("You have 42 hp left", "")
	require.Len(t, matches, 1)
	require.Equal(t, 42, matches[0].Groups["amt"])
}

func TestDuplicatePatternsBothFire(t *testing.T) {
	e := New()
	require.NoError(t, e.Register(Spec{Name: "a", Owner: "p1", Pattern: `hp`, Enabled: true}))
	require.NoError(t, e.Register(Spec{Name: "b", Owner: "p2", Pattern: `hp`, Enabled: true}))

	matches := e.MatchLine("hp", "")
	require.Len(t, matches, 2)
}

func TestUnregisterRemovesTrigger(t *testing.T) {
	e := New()
	_ = e.Register(Spec{Name: "gag_spam", Owner: "antispam", Pattern: `^\[SPAM\]`, Enabled: true})
	require.True(t, e.Unregister("antispam", "gag_spam"))

	matches := e.MatchLine("[SPAM]buy gold", "")
	require.Empty(t, matches)
}

func TestUnloadOwnerRemovesAllOfItsTriggers(t *testing.T) {
	e := New()
	_ = e.Register(Spec{Name: "a", Owner: "weather", Pattern: `rain`, Enabled: true})
	_ = e.Register(Spec{Name: "b", Owner: "weather", Pattern: `snow`, Enabled: true})
	_ = e.Register(Spec{Name: "c", Owner: "clock", Pattern: `tick`, Enabled: true})

	removed := e.UnloadOwner("weather")
	require.Equal(t, 2, removed)
	require.Empty(t, e.MatchLine("rain", ""))
	require.NotEmpty(t, e.MatchLine("tick", ""))
}

func TestDisabledTriggerDoesNotMatch(t *testing.T) {
	e := New()
	_ = e.Register(Spec{Name: "a", Owner: "weather", Pattern: `rain`, Enabled: false})
	require.Empty(t, e.MatchLine("rain", ""))

	e.Enable("weather", "a", true)
	require.NotEmpty(t, e.MatchLine("rain", ""))
}

func TestIsEmptyLine(t *testing.T) {
	require.True(t, IsEmptyLine(""))
	require.False(t, IsEmptyLine("hi"))
}
