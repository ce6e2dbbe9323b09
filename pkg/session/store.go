// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package session defines the outbound, optional session persistence
// dependency. Directory layout, file permissions, and
// cleanup policy are the collaborator's concern; the core only depends
// on this interface.
package session

import "context"

// Store saves and loads the canonical JSON serialization of a
// ConversationState snapshot.
type Store interface {
	Save(ctx context.Context, sessionID string, snapshot []byte) error
	Load(ctx context.Context, sessionID string) ([]byte, error)
}
