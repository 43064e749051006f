package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"naimeta/internal/config"
	"naimeta/internal/metacache"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckReadableDirectory verifies that a scan source exists and can be listed.
func CheckReadableDirectory(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: not readable: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (readable)", path)}
}

// CheckCache opens the extraction cache, which also verifies the schema
// version, and reports its entry count.
func CheckCache(ctx context.Context, cfg *config.Config) Result {
	const name = "Extraction cache"

	if !cfg.Cache.Enabled {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	store, err := metacache.Open(cfg)
	if err != nil {
		if errors.Is(err, metacache.ErrSchemaMismatch) {
			return Result{Name: name, Detail: err.Error()}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", cfg.Paths.CachePath, err)}
	}
	defer store.Close()

	n, err := store.Count(ctx)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", cfg.Paths.CachePath, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (%d entries)", store.Path(), n)}
}

// CheckBindAddress verifies that the API address can be bound. When the port
// is taken by a naimeta server that answers its health endpoint, the check
// still passes.
func CheckBindAddress(ctx context.Context, bind string) Result {
	const name = "API bind address"

	bind = strings.TrimSpace(bind)
	if bind == "" {
		return Result{Name: name, Detail: "missing bind address"}
	}
	listener, err := net.Listen("tcp", bind)
	if err == nil {
		_ = listener.Close()
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (available)", bind)}
	}
	if probeHealth(ctx, bind) {
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (naimeta server running)", bind)}
	}
	return Result{Name: name, Detail: fmt.Sprintf("%s (error: %s)", bind, summarizeListenError(err))}
}

func probeHealth(ctx context.Context, bind string) bool {
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return false
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	url := "http://" + net.JoinHostPort(host, port) + "/api/health"
	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// summarizeListenError produces a human-readable summary for bind failures.
func summarizeListenError(err error) string {
	if errors.Is(err, unix.EADDRINUSE) {
		return "address already in use"
	}
	if errors.Is(err, unix.EACCES) {
		return "permission denied"
	}
	return err.Error()
}
