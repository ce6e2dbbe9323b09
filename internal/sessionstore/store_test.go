// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package sessionstore

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danpilot/dialogos/internal/convstate"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	ctx := context.Background()
	data := []byte(`{"session_id":"DRA_20260101_000000"}`)
	require.NoError(t, store.Save(ctx, "DRA_20260101_000000", data))

	got, err := store.Load(ctx, "DRA_20260101_000000")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestSaveUsesRestrictivePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file mode bits are not meaningful on windows")
	}
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, store.Save(context.Background(), "DRA_20260101_000001", []byte("{}")))

	info, err := os.Stat(filepath.Join(dir, "DRA_20260101_000001.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestLoadMissingSessionErrors(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	_, err = store.Load(context.Background(), "DRA_missing")
	assert.Error(t, err)
}

func TestExportYAMLWritesAlongsideJSON(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	state, err := convstate.New("DRA_20260101_000002", "compare laptops", now)
	require.NoError(t, err)

	require.NoError(t, store.ExportYAML(context.Background(), state.SessionID, state))

	data, err := os.ReadFile(filepath.Join(dir, "DRA_20260101_000002.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "user_query: compare laptops")
}

func TestPathRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	require.NoError(t, err)

	err = store.Save(context.Background(), "../../etc/passwd", []byte("x"))
	assert.Error(t, err)
}
