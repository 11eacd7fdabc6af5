package colorcode

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestToANSIConvertsKnownCode(t *testing.T) {
	got := ToANSI("@Rhello@x")
	require.Equal(t, "\x1b[1;31mhello\x1b[0m", got)
}

func TestToANSILiteralAt(t *testing.T) {
	require.Equal(t, "a@b", ToANSI("a@@b"))
}

func TestStripANSIRemovesEscapes(t *testing.T) {
	require.Equal(t, "hello", StripANSI("\x1b[1;31mhello\x1b[0m"))
}

func TestRoundTripToInternal(t *testing.T) {
	ansi := ToANSI("@Rhello@x")
	back := ToInternal(ansi)
	require.Equal(t, "@Rhello@x", back)
}

func TestVisibleWidthIgnoresEscapes(t *testing.T) {
	require.Equal(t, 5, VisibleWidth("\x1b[1;31mhello\x1b[0m"))
}
