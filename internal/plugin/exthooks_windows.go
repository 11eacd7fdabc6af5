//go:build windows

package plugin

import (
	"bytes"
	"context"
	"os/exec"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// runHook executes path with payload on stdin. Windows has no process-group
// semantics; on timeout we best-effort kill the immediate process only.
func runHook(ctx context.Context, path string, payload []byte) (retErr error) {
	tracer := otel.Tracer("bastproxy/plugin")
	ctx, span := tracer.Start(ctx, "plugin.exthook",
		trace.WithAttributes(attribute.String("hook.path", path)))
	defer func() {
		if retErr != nil {
			span.RecordError(retErr)
			span.SetStatus(codes.Error, retErr.Error())
		}
		span.End()
	}()

	cmd := exec.CommandContext(ctx, path)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
		<-done
		addHookSpanEvents(span, &stdout, &stderr)
		return ctx.Err()
	case err := <-done:
		addHookSpanEvents(span, &stdout, &stderr)
		return err
	}
}
