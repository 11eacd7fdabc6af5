package record

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRecordDefaults(t *testing.T) {
	r := New("hello", OriginMud, KindIO, true)
	require.Equal(t, "hello", r.Text())
	require.Equal(t, "hello", r.Original())
	require.True(t, r.Send)
	require.False(t, r.Locked())
	require.NotEqual(t, r.ID.String(), "")
}

func TestSetTextMutatesUntilLocked(t *testing.T) {
	r := New("hello", OriginClient, KindIO, false)
	r.SetText("plugin:weather", nil, nil, "goodbye")
	require.Equal(t, "goodbye", r.Text())

	r.Lock("pipeline", nil, nil)
	r.SetText("plugin:weather", nil, nil, "ignored")
	require.Equal(t, "goodbye", r.Text(), "mutation after lock must not change state")

	hist := r.History()
	require.Equal(t, "set-rejected-locked", hist[len(hist)-1].Action)
}

func TestOriginNeverChanges(t *testing.T) {
	r := New("hello", OriginMud, KindIO, false)
	require.Equal(t, OriginMud, r.Origin)
}

func TestFormatAppendsLineEndingWhenMissing(t *testing.T) {
	r := New("hello", OriginMud, KindIO, false)
	require.Equal(t, "hello\r\n", r.Format(""))
}

func TestFormatPreservesExistingLineEnding(t *testing.T) {
	r := New("hello\r\n", OriginMud, KindIO, true)
	require.Equal(t, "hello\r\n", r.Format(""))
}

func TestFormatAppliesPreambleForInternalOrigin(t *testing.T) {
	r := New("low hp", OriginInternal, KindIO, true)
	r.Preamble = true
	require.Equal(t, "[proxy] low hp", r.Format("[proxy] "))
}

func TestContainerAppendCoercesStrings(t *testing.T) {
	c := NewContainer("one", "two")
	require.Equal(t, 2, c.Len())
	require.Equal(t, "one", c.Lines()[0].Text())
}

func TestContainerSelectFiltersByOriginAndKind(t *testing.T) {
	c := &Container{}
	c.Append("test", nil, nil, New("a", OriginMud, KindIO, false))
	c.Append("test", nil, nil, New("b", OriginMud, KindTelnetCommand, false))
	c.Append("test", nil, nil, New("c", OriginClient, KindIO, false))

	sel := c.Select(func(r *LineRecord) bool {
		return r.Origin == OriginMud && r.Kind == KindIO
	})
	require.Len(t, sel, 1)
	require.Equal(t, "a", sel[0].Text())
}

func TestContainerLockLocksAllLines(t *testing.T) {
	c := NewContainer("one", "two")
	c.Lock("pipeline", nil, nil)
	for _, lr := range c.Lines() {
		require.True(t, lr.Locked())
	}
}
