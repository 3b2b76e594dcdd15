package transcript

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// writeTranscript writes lines to <dir>/<session>.jsonl and backdates the
// mtime so the quiet-window check passes.
func writeTranscript(t *testing.T, dir, sessionID string, lines []string) string {
	t.Helper()
	path := filepath.Join(dir, sessionID+".jsonl")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write transcript: %v", err)
	}
	old := time.Now().Add(-time.Hour)
	if err := os.Chtimes(path, old, old); err != nil {
		t.Fatalf("backdate transcript: %v", err)
	}
	return path
}

func record(id, typ, content string, ts time.Time) string {
	return fmt.Sprintf(`{"uuid":%q,"sessionId":"s1","type":%q,"timestamp":%q,"message":{"role":%q,"content":%q}}`,
		id, typ, ts.Format(time.RFC3339Nano), typ, content)
}

func TestReadSession_OrdersBySequence(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	writeTranscript(t, dir, "s1", []string{
		record("m1", "user", "how do I fix this build error?", base),
		record("m2", "assistant", "Run npm install then restart the dev server", base.Add(time.Second)),
		record("m3", "user", "that worked, thanks", base.Add(2*time.Second)),
	})

	r := NewReader(dir, time.Minute, testLogger())
	msgs, err := r.ReadSession("s1")
	if err != nil {
		t.Fatalf("ReadSession failed: %v", err)
	}

	if len(msgs) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(msgs))
	}
	for i, m := range msgs {
		if m.SequenceIndex != i {
			t.Errorf("message %d: sequence index = %d", i, m.SequenceIndex)
		}
		if m.SessionID != "s1" {
			t.Errorf("message %d: session id = %q", i, m.SessionID)
		}
	}
	if msgs[0].ID != "m1" || msgs[1].ID != "m2" || msgs[2].ID != "m3" {
		t.Errorf("messages out of file order: %s %s %s", msgs[0].ID, msgs[1].ID, msgs[2].ID)
	}
	if msgs[1].Role != RoleAssistant {
		t.Errorf("expected assistant role, got %s", msgs[1].Role)
	}
}

func TestReadSession_NotStable(t *testing.T) {
	dir := t.TempDir()
	path := writeTranscript(t, dir, "s1", []string{
		record("m1", "user", "hello", time.Now()),
	})
	// Touch the file so it looks actively written.
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		t.Fatalf("touch: %v", err)
	}

	r := NewReader(dir, time.Minute, testLogger())
	_, err := r.ReadSession("s1")
	if !errors.Is(err, ErrTranscriptNotStable) {
		t.Fatalf("expected ErrTranscriptNotStable, got %v", err)
	}
}

func TestReadSession_SkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	writeTranscript(t, dir, "s1", []string{
		record("m1", "user", "first", base),
		`{not json at all`,
		`{"uuid":"","type":"user","message":{"role":"user","content":"no id"}}`,
		record("m2", "assistant", "second", base.Add(time.Second)),
	})

	r := NewReader(dir, time.Minute, testLogger())
	msgs, err := r.ReadSession("s1")
	if err != nil {
		t.Fatalf("ReadSession failed: %v", err)
	}

	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages (malformed skipped), got %d", len(msgs))
	}
	// Sequence indexes stay dense despite skips.
	if msgs[0].SequenceIndex != 0 || msgs[1].SequenceIndex != 1 {
		t.Errorf("sequence indexes not dense: %d, %d", msgs[0].SequenceIndex, msgs[1].SequenceIndex)
	}
}

func TestReadSession_AllMalformedYieldsEmpty(t *testing.T) {
	dir := t.TempDir()
	writeTranscript(t, dir, "s1", []string{"garbage", "{", ""})

	r := NewReader(dir, time.Minute, testLogger())
	msgs, err := r.ReadSession("s1")
	if err != nil {
		t.Fatalf("expected no error for all-malformed transcript, got %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected empty sequence, got %d messages", len(msgs))
	}
}

func TestReadSession_MissingFile(t *testing.T) {
	r := NewReader(t.TempDir(), time.Minute, testLogger())
	_, err := r.ReadSession("nope")
	if err == nil {
		t.Fatal("expected error for missing transcript")
	}
	if errors.Is(err, ErrTranscriptNotStable) {
		t.Fatal("missing file must not be reported as not-stable")
	}
}

func TestReadSession_ContentBlocks(t *testing.T) {
	dir := t.TempDir()
	blockLine := `{"uuid":"m1","sessionId":"s1","type":"assistant","timestamp":"2026-03-01T10:00:00Z",` +
		`"message":{"role":"assistant","content":[{"type":"text","text":"Try rebuilding."},` +
		`{"type":"tool_use","name":"Bash"},{"type":"text","text":"Then rerun the tests."}]}}`
	toolResultLine := `{"uuid":"m2","sessionId":"s1","type":"user","timestamp":"2026-03-01T10:00:01Z",` +
		`"message":{"role":"user","content":[{"type":"tool_result"}]}}`
	writeTranscript(t, dir, "s1", []string{blockLine, toolResultLine})

	r := NewReader(dir, time.Minute, testLogger())
	msgs, err := r.ReadSession("s1")
	if err != nil {
		t.Fatalf("ReadSession failed: %v", err)
	}

	if len(msgs) != 1 {
		t.Fatalf("expected 1 message (tool_result skipped), got %d", len(msgs))
	}
	if msgs[0].Content != "Try rebuilding.\nThen rerun the tests." {
		t.Errorf("content = %q", msgs[0].Content)
	}
	if len(msgs[0].ToolsUsed) != 1 || msgs[0].ToolsUsed[0] != "Bash" {
		t.Errorf("tools used = %v", msgs[0].ToolsUsed)
	}
}

func TestListSessions(t *testing.T) {
	dir := t.TempDir()
	writeTranscript(t, dir, "s1", []string{record("m1", "user", "hi", time.Now())})
	writeTranscript(t, dir, "s2", []string{record("m1", "user", "hi", time.Now())})
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	r := NewReader(dir, time.Minute, testLogger())
	ids, err := r.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions failed: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 sessions, got %d: %v", len(ids), ids)
	}
}
