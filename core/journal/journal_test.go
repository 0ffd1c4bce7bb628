package journal

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 9, 26, 8, 0, 0, 0, time.UTC)

func records(t *testing.T) []Record {
	t.Helper()
	r1, err := NewRecord(KindSchedule, "sch-1", "", map[string]int{"trains": 3}, t0)
	require.NoError(t, err)
	r2, err := NewRecord(KindDisruptionApplied, "sch-1", "OBS-1", map[string]string{"kind": "obstruction"}, t0.Add(time.Minute))
	require.NoError(t, err)
	r3, err := NewRecord(KindDisruptionResolved, "sch-1", "OBS-1", nil, t0.Add(time.Hour))
	require.NoError(t, err)
	return []Record{r1, r2, r3}
}

func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	for _, r := range records(t) {
		require.NoError(t, store.Append(ctx, r))
	}
	all, err := store.Query(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, KindSchedule, all[0].Kind)
	assert.True(t, all[0].Timestamp.Equal(t0))

	var payload map[string]int
	require.NoError(t, json.Unmarshal(all[0].Payload, &payload))
	assert.Equal(t, 3, payload["trains"])

	byEvent, err := store.Query(ctx, Query{EventID: "OBS-1"})
	require.NoError(t, err)
	assert.Len(t, byEvent, 2)

	byKind, err := store.Query(ctx, Query{Kind: KindDisruptionResolved})
	require.NoError(t, err)
	require.Len(t, byKind, 1)
	assert.Empty(t, byKind[0].Payload)

	window, err := store.Query(ctx, Query{Start: t0.Add(30 * time.Second), End: t0.Add(30 * time.Minute)})
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "OBS-1", window[0].EventID)
}

func TestJSONLStore(t *testing.T) {
	store, err := NewJSONLStore(filepath.Join(t.TempDir(), "journal.jsonl"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	exerciseStore(t, store)
}

func TestRotatingJSONLStore(t *testing.T) {
	store, err := NewRotatingJSONLStore(filepath.Join(t.TempDir(), "logs", "journal.jsonl"), 1, 2, 1)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	exerciseStore(t, store)
}

func TestRotatingJSONLStore_Rotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "journal.jsonl")
	store, err := NewRotatingJSONLStore(path, 1, 5, 1)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	big := make([]string, 2000)
	for i := range big {
		big[i] = "0123456789abcdef0123456789abcdef"
	}
	const n = 20
	for i := 0; i < n; i++ {
		rec, err := NewRecord(KindOptimization, "sch", "", big, t0)
		require.NoError(t, err)
		require.NoError(t, store.Append(context.Background(), rec))
	}
	files, _ := filepath.Glob(filepath.Join(dir, "journal*"))
	if len(files) < 2 {
		t.Fatalf("expected rotated files, got %v", files)
	}
	out, err := store.Query(context.Background(), Query{Kind: KindOptimization})
	require.NoError(t, err)
	assert.Len(t, out, n)
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()
	exerciseStore(t, store)
}

func TestOpenBackends(t *testing.T) {
	s, err := Open(Config{})
	require.NoError(t, err)
	assert.IsType(t, NopStore{}, s)

	s, err = Open(Config{Backend: "sqlite", Path: filepath.Join(t.TempDir(), "j.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLiteStore{}, s)
	require.NoError(t, s.Close())

	s, err = Open(Config{Backend: "jsonl", Path: filepath.Join(t.TempDir(), "j.jsonl"), MaxSizeMB: 5})
	require.NoError(t, err)
	assert.IsType(t, &RotatingJSONLStore{}, s)

	_, err = Open(Config{Backend: "postgres", Path: "x"})
	assert.Error(t, err)
}
