// Package colorcode implements the pure-function ANSI color transforms the
// record pipeline invokes when it builds a LineRecord's derived views: the
// proxy's own internal color-code language (a short `@` escape dialect
// similar to classic MUD clients) and conversion to/from raw ANSI SGR
// sequences. Telnet option negotiation and MCCP decompression happen
// upstream of this package; by the time text reaches here it is already
// plain bytes.
package colorcode

import (
	"regexp"
	"strings"

	"github.com/muesli/termenv"
)

// internalCodeRE matches this proxy's `@x` internal color escapes, where x
// is a single alphanumeric naming a foreground/background/style code, or
// `@@` for a literal `@`.
var internalCodeRE = regexp.MustCompile(`@([0-9A-Za-z@])`)

// ansiSGRRE matches a raw ANSI CSI SGR sequence, e.g. "\x1b[1;32m".
var ansiSGRRE = regexp.MustCompile("\x1b\\[[0-9;]*m")

// codeTable maps internal single-character codes to ANSI SGR parameters.
// Grounded on the classic bastproxy/bast-mud color code set: digits are
// standard foreground colors, uppercase letters are bold variants,
// lowercase x is reset.
var codeTable = map[byte]string{
	'0': "30", '1': "31", '2': "32", '3': "33",
	'4': "34", '5': "35", '6': "36", '7': "37",
	'D': "1;30", 'R': "1;31", 'G': "1;32", 'Y': "1;33",
	'B': "1;34", 'M': "1;35", 'C': "1;36", 'W': "1;37",
	'x': "0",
}

// ToANSI converts internal `@x` codes in s into real ANSI SGR escapes,
// suitable for writing to a color-capable client socket.
func ToANSI(s string) string {
	return internalCodeRE.ReplaceAllStringFunc(s, func(m string) string {
		c := m[1]
		if c == '@' {
			return "@"
		}
		if sgr, ok := codeTable[c]; ok {
			return "\x1b[" + sgr + "m"
		}
		return m
	})
}

// StripANSI removes ANSI SGR sequences, producing the `noansi` derived
// view used for logging, trigger matching against color-blind patterns,
// and terminal-width calculations.
func StripANSI(s string) string {
	return ansiSGRRE.ReplaceAllString(s, "")
}

// ToInternal converts raw ANSI SGR escapes in s back into this proxy's `@x`
// codes where a faithful mapping exists, producing the `colorcoded`
// derived view. Sequences with no internal equivalent are dropped rather
// than passed through, since a client lacking color will otherwise see
// stray escape bytes.
func ToInternal(s string) string {
	return ansiSGRRE.ReplaceAllStringFunc(s, func(m string) string {
		params := strings.TrimSuffix(strings.TrimPrefix(m, "\x1b["), "m")
		for code, sgr := range codeTable {
			if sgr == params {
				return "@" + string(code)
			}
		}
		return ""
	})
}

// Profile reports the ANSI color profile of the given termenv-style output
// name ("dumb", "16", "256", "truecolor"), used by network shims to decide
// whether to call ToANSI at all for a given client connection.
func Profile(name string) termenv.Profile {
	switch strings.ToLower(name) {
	case "truecolor", "24bit":
		return termenv.TrueColor
	case "256":
		return termenv.ANSI256
	case "16", "ansi":
		return termenv.ANSI
	default:
		return termenv.Ascii
	}
}

// VisibleWidth returns the printable width of s, ignoring ANSI escapes —
// used when formatting preamble/prompt padding.
func VisibleWidth(s string) int {
	return len([]rune(StripANSI(s)))
}
