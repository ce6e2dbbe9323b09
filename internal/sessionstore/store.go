// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package sessionstore provides the default, optional implementation
// of pkg/session.Store: one JSON file per session under a
// directory, named by session ID. File layout, permissions, and
// cleanup are this collaborator's own concern; the orchestrator only
// ever depends on the pkg/session.Store interface.
package sessionstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/danpilot/dialogos/internal/convstate"
	"github.com/danpilot/dialogos/pkg/session"
	"github.com/danpilot/dialogos/pkg/types"
)

// sessionIDPattern guards against path traversal through a malicious
// or malformed session ID before it is used to build a file path.
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// Store persists session snapshots as JSON files under Dir, mode 0o600
//.
type Store struct {
	Dir string
}

// New returns a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating session directory: %w", err)
	}
	return &Store{Dir: dir}, nil
}

var _ session.Store = (*Store)(nil)

func (s *Store) path(sessionID string) (string, error) {
	if !sessionIDPattern.MatchString(sessionID) {
		return "", fmt.Errorf("invalid session id %q", sessionID)
	}
	return filepath.Join(s.Dir, sessionID+".json"), nil
}

// Save writes the canonical JSON serialization of a ConversationState
// snapshot to <dir>/<session_id>.json with mode 0o600.
func (s *Store) Save(ctx context.Context, sessionID string, snapshot []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(sessionID)
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, snapshot, 0o600); err != nil {
		return fmt.Errorf("writing session snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("committing session snapshot: %w", err)
	}
	return nil
}

// ExportYAML writes a human-editable YAML copy of a session snapshot
// alongside the canonical JSON file, for operators inspecting a
// session without a JSON-aware tool.
func (s *Store) ExportYAML(ctx context.Context, sessionID string, state *types.ConversationState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, err := s.path(sessionID)
	if err != nil {
		return err
	}

	data, err := convstate.SerializeYAML(state)
	if err != nil {
		return fmt.Errorf("marshaling session YAML: %w", err)
	}
	return os.WriteFile(path[:len(path)-len(".json")]+".yaml", data, 0o600)
}

// Load reads back the snapshot previously written by Save.
func (s *Store) Load(ctx context.Context, sessionID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := s.path(sessionID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("session %s: %w", sessionID, err)
		}
		return nil, fmt.Errorf("reading session snapshot: %w", err)
	}
	return data, nil
}
