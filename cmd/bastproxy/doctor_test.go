package main

import (
	"strings"
	"testing"
)

func TestPasswordState(t *testing.T) {
	if got := passwordState(""); got != "none (open access)" {
		t.Errorf("passwordState(\"\") = %q, want open-access message", got)
	}
	if got := passwordState("secret"); got != "configured" {
		t.Errorf("passwordState(\"secret\") = %q, want \"configured\"", got)
	}
}

func TestProviderKindEphemeralOverridesCgo(t *testing.T) {
	got := providerKind(true)
	if !strings.Contains(got, "in-memory") || !strings.Contains(got, "--ephemeral") {
		t.Errorf("providerKind(true) = %q, want it to mention in-memory and --ephemeral", got)
	}
}
