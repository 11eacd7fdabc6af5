package plugin

import (
	"bytes"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const maxHookSpanOutput = 4096

// addHookSpanEvents records captured stdout/stderr from a lifecycle script
// run as span events, truncated so a chatty script can't bloat traces.
func addHookSpanEvents(span trace.Span, stdout, stderr *bytes.Buffer) {
	if n := stdout.Len(); n > 0 {
		span.AddEvent("hook.stdout", trace.WithAttributes(
			attribute.String("output", truncateHookOutput(stdout.String())),
			attribute.Int("bytes", n),
		))
	}
	if n := stderr.Len(); n > 0 {
		span.AddEvent("hook.stderr", trace.WithAttributes(
			attribute.String("output", truncateHookOutput(stderr.String())),
			attribute.Int("bytes", n),
		))
	}
}

func truncateHookOutput(s string) string {
	if len(s) <= maxHookSpanOutput {
		return s
	}
	return s[:maxHookSpanOutput] + "...(truncated)"
}
