package transcript

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrTranscriptNotStable signals that the transcript file was modified within
// the quiet window and may still be appended to. This is a defer-and-retry
// signal, not a hard failure.
var ErrTranscriptNotStable = errors.New("transcript not stable")

// Reader loads session transcripts from a directory of JSONL files, one file
// per session named <session_id>.jsonl.
type Reader struct {
	dir         string
	quietWindow time.Duration
	logger      *slog.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewReader creates a transcript reader rooted at dir. A session file is only
// read once its last modification is older than quietWindow.
func NewReader(dir string, quietWindow time.Duration, logger *slog.Logger) *Reader {
	return &Reader{
		dir:         expandHome(dir),
		quietWindow: quietWindow,
		logger:      logger,
		now:         time.Now,
	}
}

// line is a single JSONL record in a session transcript.
type line struct {
	UUID      string     `json:"uuid"`
	SessionID string     `json:"sessionId"`
	Type      string     `json:"type"`
	Timestamp string     `json:"timestamp"`
	Message   rawMessage `json:"message"`
}

type rawMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
	Name string `json:"name,omitempty"`
}

// ReadSession parses one session's transcript into an ordered message
// sequence. Malformed records are skipped and logged; an empty or
// all-malformed file yields an empty slice without failing the session.
// Returns ErrTranscriptNotStable if the file was written to recently.
func (r *Reader) ReadSession(sessionID string) ([]Message, error) {
	path := r.SessionPath(sessionID)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat transcript: %w", err)
	}
	if age := r.now().Sub(info.ModTime()); age < r.quietWindow {
		return nil, fmt.Errorf("%w: %s modified %s ago", ErrTranscriptNotStable, sessionID, age.Round(time.Second))
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	var msgs []Message
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024) // 10MB line buffer
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Bytes()
		if len(strings.TrimSpace(string(raw))) == 0 {
			continue
		}

		var l line
		if err := json.Unmarshal(raw, &l); err != nil {
			r.logger.Warn("skipping malformed transcript record",
				"session_id", sessionID, "line", lineNo, "error", err)
			continue
		}

		msg, ok := r.toMessage(sessionID, lineNo, &l)
		if !ok {
			continue
		}

		msg.SequenceIndex = len(msgs)
		msgs = append(msgs, msg)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan transcript: %w", err)
	}

	return msgs, nil
}

// SessionPath returns the transcript file path for a session.
func (r *Reader) SessionPath(sessionID string) string {
	return filepath.Join(r.dir, sessionID+".jsonl")
}

// ListSessions returns the session ids of all transcript files under the
// reader's directory.
func (r *Reader) ListSessions() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("read transcript dir: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".jsonl"))
	}
	return ids, nil
}

// toMessage converts a parsed record into a Message. Records with an
// unrecognized role, a missing id, or no extractable text are skipped.
func (r *Reader) toMessage(sessionID string, lineNo int, l *line) (Message, bool) {
	role := Role(l.Type)
	switch role {
	case RoleUser, RoleAssistant, RoleSummary:
	default:
		return Message{}, false
	}

	if l.UUID == "" {
		r.logger.Warn("skipping transcript record without id",
			"session_id", sessionID, "line", lineNo)
		return Message{}, false
	}

	text, tools, isToolResult := extractContent(l.Message.Content)
	if isToolResult || text == "" {
		return Message{}, false
	}

	ts, _ := time.Parse(time.RFC3339Nano, l.Timestamp)

	return Message{
		ID:        l.UUID,
		SessionID: sessionID,
		Role:      role,
		Content:   text,
		Timestamp: ts,
		ToolsUsed: tools,
	}, true
}

// extractContent pulls text and tool names from a message content field.
// Content is either a plain string or an array of typed blocks; tool_result
// records are skipped entirely.
func extractContent(raw json.RawMessage) (text string, tools []string, isToolResult bool) {
	if raw == nil {
		return "", nil, false
	}

	var plain string
	if err := json.Unmarshal(raw, &plain); err == nil {
		return plain, nil, false
	}

	var blocks []contentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return "", nil, false
	}

	for _, b := range blocks {
		if b.Type == "tool_result" {
			return "", nil, true
		}
	}

	var sb strings.Builder
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if b.Text != "" {
				if sb.Len() > 0 {
					sb.WriteString("\n")
				}
				sb.WriteString(b.Text)
			}
		case "tool_use":
			if b.Name != "" {
				tools = append(tools, b.Name)
			}
		}
	}

	return sb.String(), tools, false
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
