package trigger

// Pseudo event names, raised by the pipeline around each line so plugins
// that want whole-stream visibility don't need a real pattern: emptyline
// first, and only when the color-stripped line is empty; then beall
// before any real trigger; then all after the real triggers.
const (
	EventBeAll     = "trigger_beall"
	EventAll       = "trigger_all"
	EventEmptyLine = "trigger_emptyline"
)

// IsEmptyLine reports whether noAnsiLine (already color-stripped) should
// raise the emptyline pseudo-trigger.
func IsEmptyLine(noAnsiLine string) bool {
	return noAnsiLine == ""
}
