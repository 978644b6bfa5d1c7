package generator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/lokutor-ai/voice-echo/pkg/providers/clienterr"
)

// fakeAgentScript writes a shell script that emits deterministic
// --output-format json stdout, standing in for the real CLI agent.
func fakeAgentScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes not supported on windows")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-agent.sh")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("failed to write fake agent script: %v", err)
	}
	return path
}

func TestSubprocessGeneratorParsesJSONOutput(t *testing.T) {
	bin := fakeAgentScript(t, `echo '{"result":"hi from agent","session_id":"sess-123"}'`)
	g := NewSubprocessGenerator(bin, false, "")

	text, convID, err := g.Send(context.Background(), "call-1", "hello", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "hi from agent" {
		t.Errorf("expected agent reply, got %q", text)
	}
	if convID != "sess-123" {
		t.Errorf("expected session id continuation, got %q", convID)
	}
}

func TestSubprocessGeneratorPassesContinuationFlag(t *testing.T) {
	bin := fakeAgentScript(t, `
for arg in "$@"; do
  if [ "$arg" = "-r" ]; then
    echo '{"result":"continued","session_id":"sess-123"}'
    exit 0
  fi
done
echo '{"result":"fresh","session_id":"sess-123"}'
`)
	g := NewSubprocessGenerator(bin, false, "")

	text, _, err := g.Send(context.Background(), "call-1", "hello", "sess-123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "continued" {
		t.Errorf("expected -r flag to be passed through, got %q", text)
	}
}

func TestSubprocessGeneratorNonZeroExitIsAPIError(t *testing.T) {
	bin := fakeAgentScript(t, `echo "boom" >&2; exit 1`)
	g := NewSubprocessGenerator(bin, false, "")

	if _, _, err := g.Send(context.Background(), "call-1", "hello", ""); !errors.Is(err, clienterr.ErrAPI) {
		t.Fatalf("expected an API error from non-zero exit, got %v", err)
	}
}
