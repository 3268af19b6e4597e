package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestUnknownCommandExitsTwo(t *testing.T) {
	code, _, stderr := runCLI(t, "replay")
	if code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(stderr, "unknown command") {
		t.Fatalf("expected an unknown-command message, got %q", stderr)
	}
}

func TestRunRequiresExactlyOneMode(t *testing.T) {
	code, _, stderr := runCLI(t, "run")
	if code != 2 {
		t.Fatalf("expected exit 2 with no mode, got %d", code)
	}
	if !strings.Contains(stderr, "exactly one") {
		t.Fatalf("expected the mode-selection message, got %q", stderr)
	}

	code, _, _ = runCLI(t, "run", "-demo", "-battle", "x.json")
	if code != 2 {
		t.Fatalf("expected exit 2 with two modes, got %d", code)
	}
}

func TestDemoRunRendersBossFrames(t *testing.T) {
	code, stdout, stderr := runCLI(t, "run", "-demo", "-ticks", "10")
	if code != 0 {
		t.Fatalf("expected exit 0, got %d (stderr: %s)", code, stderr)
	}
	if !strings.Contains(stdout, "Boss Turn #1") {
		t.Fatalf("expected at least one boss frame, got:\n%s", stdout)
	}
	if !strings.Contains(stdout, "A1") {
		t.Fatalf("expected the demo champion row, got:\n%s", stdout)
	}
}

func TestEventsOutThenInputRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "events.json")
	code, first, stderr := runCLI(t, "run", "-demo", "-ticks", "10", "-events-out", path)
	if code != 0 {
		t.Fatalf("expected exit 0, got %d (stderr: %s)", code, stderr)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected the stream file to exist: %v", err)
	}

	code, second, stderr := runCLI(t, "run", "-input", path)
	if code != 0 {
		t.Fatalf("expected exit 0 rendering the stream, got %d (stderr: %s)", code, stderr)
	}
	if first != second {
		t.Fatalf("expected identical renders from live run and replay:\n%s\nvs\n%s", first, second)
	}
}

func TestInvalidInputStreamExitsTwo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte(`[{"tick": 0}]`), 0o644); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}
	code, _, stderr := runCLI(t, "run", "-input", path)
	if code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(stderr, "invalid input stream") {
		t.Fatalf("expected the stream error message, got %q", stderr)
	}
}

func TestInvalidBattleSpecExitsTwo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "battle.json")
	if err := os.WriteFile(path, []byte(`{"champions": []}`), 0o644); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}
	code, _, stderr := runCLI(t, "run", "-battle", path)
	if code != 2 {
		t.Fatalf("expected exit 2, got %d", code)
	}
	if !strings.Contains(stderr, "invalid battle spec") {
		t.Fatalf("expected the battle spec error message, got %q", stderr)
	}
}

func TestExhaustedSequenceExitsTwo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "battle.json")
	spec := `{
	  "boss": {"name": "Fire Knight", "speed": 250, "shield_max": 21},
	  "champions": [{"name": "Coldheart", "speed": 2000, "skill_sequence": ["A1"]}],
	  "options": {"sequence_policy": "error_if_exhausted"}
	}`
	if err := os.WriteFile(path, []byte(spec), 0o644); err != nil {
		t.Fatalf("unexpected write error: %v", err)
	}
	code, _, stderr := runCLI(t, "run", "-battle", path, "-ticks", "10", "-boss-actor", "Fire Knight")
	if code != 2 {
		t.Fatalf("expected exit 2 on sequence exhaustion, got %d (stderr: %s)", code, stderr)
	}
	if !strings.Contains(stderr, "exhausted") {
		t.Fatalf("expected the exhaustion message, got %q", stderr)
	}
}
