package preflight

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"naimeta/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
	if result := CheckReadableDirectory("test", f); result.Passed {
		t.Fatal("expected readable check to fail for file path")
	}
}

func TestCheckReadableDirectory_OK(t *testing.T) {
	result := CheckReadableDirectory("scan", t.TempDir())
	if !result.Passed {
		t.Fatalf("expected pass, got: %s", result.Detail)
	}
}

func TestCheckCache(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	result := CheckCache(context.Background(), cfg)
	if !result.Passed || !strings.Contains(result.Detail, "0 entries") {
		t.Fatalf("unexpected result: %+v", result)
	}

	disabled := testsupport.NewConfig(t, testsupport.WithoutCache())
	if result := CheckCache(context.Background(), disabled); !result.Passed || result.Detail != "Disabled" {
		t.Fatalf("unexpected result for disabled cache: %+v", result)
	}
}

func TestCheckCache_SchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := os.MkdirAll(filepath.Dir(cfg.Paths.CachePath), 0o755); err != nil {
		t.Fatal(err)
	}
	db, err := sql.Open("sqlite", cfg.Paths.CachePath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("CREATE TABLE schema_version (version INTEGER NOT NULL); INSERT INTO schema_version VALUES (99);"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	result := CheckCache(context.Background(), cfg)
	if result.Passed {
		t.Fatal("expected failure for schema mismatch")
	}
	if !strings.Contains(result.Detail, "cache clear --reset") {
		t.Fatalf("detail should suggest a reset: %s", result.Detail)
	}
}

func TestCheckBindAddress(t *testing.T) {
	if result := CheckBindAddress(context.Background(), "127.0.0.1:0"); !result.Passed {
		t.Fatalf("expected free port to pass: %s", result.Detail)
	}
	if result := CheckBindAddress(context.Background(), ""); result.Passed {
		t.Fatal("expected failure for empty bind")
	}

	busy, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()
	result := CheckBindAddress(context.Background(), busy.Addr().String())
	if result.Passed {
		t.Fatal("expected failure for occupied port")
	}
	if !strings.Contains(result.Detail, "in use") {
		t.Fatalf("unexpected detail: %s", result.Detail)
	}
}

func TestCheckBindAddress_RunningServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	addr := strings.TrimPrefix(srv.URL, "http://")
	result := CheckBindAddress(context.Background(), addr)
	if !result.Passed || !strings.Contains(result.Detail, "running") {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestRunAll_NilConfig(t *testing.T) {
	results := RunAll(context.Background(), nil)
	if results != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestRunAll_MinimalConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithoutCache())
	cfg.Paths.OutputDir = ""

	results := RunAll(context.Background(), cfg)
	// Log directory, cache (disabled), and bind address checks
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d: %+v", len(results), results)
	}
	if failed := Failed(results); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}
}

func TestRunAll_FullConfig(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := os.MkdirAll(cfg.Paths.OutputDir, 0o755); err != nil {
		t.Fatal(err)
	}

	results := RunAll(context.Background(), cfg)
	// Log, output, cache directory, cache database, bind address
	if len(results) != 5 {
		t.Fatalf("expected 5 results, got %d: %+v", len(results), results)
	}
	for _, r := range results {
		if !r.Passed {
			t.Errorf("check %q failed: %s", r.Name, r.Detail)
		}
	}
}
