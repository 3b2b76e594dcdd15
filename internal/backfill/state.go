package backfill

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// SessionRecord marks one session as back-filled. The fingerprint is a hash
// of the transcript file contents at completion time, so an appended or
// rewritten transcript is picked up again on the next run.
type SessionRecord struct {
	Fingerprint string    `json:"fingerprint"`
	CompletedAt time.Time `json:"completed_at"`
}

// State tracks completed sessions across runs. A session with an unchanged
// fingerprint is skipped by ordinary runs; Reprocess ignores the state.
type State struct {
	StartedAt time.Time                `json:"started_at"`
	UpdatedAt time.Time                `json:"updated_at"`
	Sessions  map[string]SessionRecord `json:"sessions"`

	path string // not serialized
}

// LoadState loads run state from disk, or starts fresh if none exists.
func LoadState(path string) (*State, error) {
	p := expandHome(path)

	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{
				StartedAt: time.Now().UTC(),
				Sessions:  make(map[string]SessionRecord),
				path:      p,
			}, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	if s.Sessions == nil {
		s.Sessions = make(map[string]SessionRecord)
	}
	s.path = p
	return &s, nil
}

// Save persists the state to disk.
func (s *State) Save() error {
	s.UpdatedAt = time.Now().UTC()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	return os.WriteFile(s.path, data, 0o644)
}

// IsCompleted reports whether the session was already back-filled with the
// same transcript contents.
func (s *State) IsCompleted(sessionID, fingerprint string) bool {
	rec, ok := s.Sessions[sessionID]
	return ok && rec.Fingerprint == fingerprint
}

// MarkCompleted records a finished session and its transcript fingerprint.
func (s *State) MarkCompleted(sessionID, fingerprint string) {
	s.Sessions[sessionID] = SessionRecord{
		Fingerprint: fingerprint,
		CompletedAt: time.Now().UTC(),
	}
}

// FingerprintFile hashes a transcript file's contents.
func FingerprintFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open transcript: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash transcript: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
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
