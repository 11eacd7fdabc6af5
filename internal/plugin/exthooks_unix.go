//go:build unix

package plugin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// runHook executes path with payload on stdin and enforces ctx's deadline,
// killing the whole process group on expiry so that descendants spawned by
// the script (backgrounded or not) cannot outlive it.
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

	// #nosec G204 -- path comes from the plugin's own manifest, under the
	// plugin's own directory; operators control which plugins are installed.
	cmd := exec.CommandContext(ctx, path)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		if cmd.Process != nil {
			if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
				return fmt.Errorf("kill hook process group: %w", err)
			}
		}
		<-done
		addHookSpanEvents(span, &stdout, &stderr)
		return ctx.Err()
	case err := <-done:
		addHookSpanEvents(span, &stdout, &stderr)
		return err
	}
}
