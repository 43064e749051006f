package metacache_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"naimeta/internal/metacache"
	"naimeta/internal/testsupport"
)

func sampleKey(path string) metacache.Key {
	return metacache.Key{Path: path, Size: 1234, ModTime: time.Unix(1700000000, 123456789), PixelOrder: "row"}
}

func TestPutAndLookup(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCache(t, cfg)
	ctx := context.Background()

	key := sampleKey("/images/a.png")
	entry := metacache.Entry{
		Key:         key,
		Source:      "alpha",
		ImageWidth:  832,
		ImageHeight: 1216,
		Metadata:    []byte(`{"prompt":"a cat"}`),
	}
	if err := store.Put(ctx, entry); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, found, err := store.Lookup(ctx, key)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !found {
		t.Fatal("expected entry to be found")
	}
	if got.Source != "alpha" || got.ImageWidth != 832 || got.ImageHeight != 1216 {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if string(got.Metadata) != `{"prompt":"a cat"}` {
		t.Fatalf("unexpected metadata %q", got.Metadata)
	}
	if got.PixelOrder != "row" {
		t.Fatalf("pixel order %q, want row", got.PixelOrder)
	}
	if !got.ModTime.Equal(key.ModTime) {
		t.Fatalf("mod time %v, want %v", got.ModTime, key.ModTime)
	}
	if got.CachedAt.IsZero() {
		t.Fatal("expected cached_at to be recorded")
	}
}

func TestLookupMissesStaleEntries(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCache(t, cfg)
	ctx := context.Background()

	key := sampleKey("/images/b.png")
	if err := store.Put(ctx, metacache.Entry{Key: key}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	cases := map[string]metacache.Key{
		"size changed":  {Path: key.Path, Size: key.Size + 1, ModTime: key.ModTime},
		"mtime changed": {Path: key.Path, Size: key.Size, ModTime: key.ModTime.Add(time.Nanosecond)},
		"unknown path":  sampleKey("/images/other.png"),
		"order changed": {Path: key.Path, Size: key.Size, ModTime: key.ModTime, PixelOrder: "column"},
	}
	for name, probe := range cases {
		_, found, err := store.Lookup(ctx, probe)
		if err != nil {
			t.Fatalf("%s: Lookup: %v", name, err)
		}
		if found {
			t.Fatalf("%s: expected miss", name)
		}
	}

	got, found, err := store.Lookup(ctx, key)
	if err != nil || !found {
		t.Fatalf("expected hit for unchanged key: found=%v err=%v", found, err)
	}
	if got.Metadata != nil {
		t.Fatalf("expected nil metadata for cached miss, got %q", got.Metadata)
	}
}

func TestPutReplacesExisting(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCache(t, cfg)
	ctx := context.Background()

	key := sampleKey("/images/c.png")
	if err := store.Put(ctx, metacache.Entry{Key: key, Source: "text"}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	key.Size = 99
	if err := store.Put(ctx, metacache.Entry{Key: key, Source: "alpha", Metadata: []byte(`{}`)}); err != nil {
		t.Fatalf("Put replace: %v", err)
	}
	got, found, err := store.Lookup(ctx, key)
	if err != nil || !found {
		t.Fatalf("Lookup: found=%v err=%v", found, err)
	}
	if got.Source != "alpha" {
		t.Fatalf("expected replaced entry, got %+v", got)
	}
	if n, err := store.Count(ctx); err != nil || n != 1 {
		t.Fatalf("Count = %d, %v", n, err)
	}
	if err := store.Put(ctx, metacache.Entry{}); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestPruneAndClear(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCache(t, cfg)
	ctx := context.Background()

	root := filepath.Join(string(filepath.Separator), "scan")
	paths := []string{
		filepath.Join(root, "keep.png"),
		filepath.Join(root, "gone.png"),
		filepath.Join(root, "sub", "nested.png"),
		filepath.Join(string(filepath.Separator), "scanner", "other.png"),
	}
	for _, p := range paths {
		if err := store.Put(ctx, metacache.Entry{Key: sampleKey(p)}); err != nil {
			t.Fatalf("Put %s: %v", p, err)
		}
	}

	removed, err := store.Prune(ctx, root, false, []string{paths[0]})
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 1 {
		t.Fatalf("non-recursive prune removed %d, want 1", removed)
	}

	removed, err = store.Prune(ctx, root, true, []string{paths[0]})
	if err != nil {
		t.Fatalf("Prune recursive: %v", err)
	}
	if removed != 1 {
		t.Fatalf("recursive prune removed %d, want 1", removed)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Entries != 2 || stats.Misses != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if stats.Oldest.After(stats.Newest) {
		t.Fatalf("oldest %v after newest %v", stats.Oldest, stats.Newest)
	}

	cleared, err := store.Clear(ctx)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if cleared != 2 {
		t.Fatalf("Clear removed %d, want 2", cleared)
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenCache(t, cfg)
	store.Close()

	db, err := sql.Open("sqlite", cfg.Paths.CachePath)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	db.Close()

	if _, err := metacache.Open(cfg); !errors.Is(err, metacache.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}

	if err := metacache.Reset(cfg.Paths.CachePath); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if _, err := os.Stat(cfg.Paths.CachePath); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("database still present after Reset: %v", err)
	}
	reopened, err := metacache.Open(cfg)
	if err != nil {
		t.Fatalf("Open after Reset: %v", err)
	}
	reopened.Close()
	if err := metacache.Reset(filepath.Join(t.TempDir(), "missing.db")); err != nil {
		t.Fatalf("Reset of missing database: %v", err)
	}
}

func TestKeyFor(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.png")
	testsupport.WriteFile(t, path, 10)
	key, err := metacache.KeyFor(path)
	if err != nil {
		t.Fatalf("KeyFor: %v", err)
	}
	if key.Size != 10 || key.Path != path {
		t.Fatalf("unexpected key %+v", key)
	}
	if _, err := metacache.KeyFor(filepath.Join(t.TempDir(), "missing.png")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
