package metacache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// timeLayout has fixed-width fractional seconds so stored timestamps sort
// lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const entryColumns = "path, size, mod_time_ns, pixel_order, source, image_width, image_height, metadata_json, error_message, cached_at"

func scanEntry(scanner interface{ Scan(dest ...any) error }) (Entry, error) {
	var (
		entry     Entry
		modTimeNS int64
		metadata  sql.NullString
		cachedRaw string
	)
	if err := scanner.Scan(
		&entry.Path,
		&entry.Size,
		&modTimeNS,
		&entry.PixelOrder,
		&entry.Source,
		&entry.ImageWidth,
		&entry.ImageHeight,
		&metadata,
		&entry.ErrorMessage,
		&cachedRaw,
	); err != nil {
		return Entry{}, err
	}
	entry.ModTime = time.Unix(0, modTimeNS)
	if metadata.Valid {
		entry.Metadata = []byte(metadata.String)
	}
	if ts, err := time.Parse(timeLayout, cachedRaw); err == nil {
		entry.CachedAt = ts
	}
	return entry, nil
}

// Lookup returns the entry for key.Path when its size, modification time and
// pixel order still match. A stale entry reports found=false.
func (s *Store) Lookup(ctx context.Context, key Key) (Entry, bool, error) {
	ctx = ensureContext(ctx)
	row := s.db.QueryRowContext(ctx, "SELECT "+entryColumns+" FROM entries WHERE path = ?", key.Path)
	entry, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("lookup %s: %w", key.Path, err)
	}
	if entry.Size != key.Size || entry.ModTime.UnixNano() != key.ModTime.UnixNano() ||
		entry.PixelOrder != key.PixelOrder {
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Put inserts or replaces the entry for entry.Path.
func (s *Store) Put(ctx context.Context, entry Entry) error {
	if strings.TrimSpace(entry.Path) == "" {
		return errors.New("metacache: entry path is required")
	}
	cachedAt := entry.CachedAt
	if cachedAt.IsZero() {
		cachedAt = time.Now()
	}
	var metadata any
	if entry.Metadata != nil {
		metadata = string(entry.Metadata)
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO entries (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			size = excluded.size,
			mod_time_ns = excluded.mod_time_ns,
			pixel_order = excluded.pixel_order,
			source = excluded.source,
			image_width = excluded.image_width,
			image_height = excluded.image_height,
			metadata_json = excluded.metadata_json,
			error_message = excluded.error_message,
			cached_at = excluded.cached_at`,
		entry.Path,
		entry.Size,
		entry.ModTime.UnixNano(),
		entry.PixelOrder,
		entry.Source,
		entry.ImageWidth,
		entry.ImageHeight,
		metadata,
		entry.ErrorMessage,
		cachedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("store %s: %w", entry.Path, err)
	}
	return nil
}

// Prune deletes entries located directly under dir (or anywhere below it when
// recursive) whose paths are not in keep. It returns the number removed.
func (s *Store) Prune(ctx context.Context, dir string, recursive bool, keep []string) (int, error) {
	ctx = ensureContext(ctx)
	dir = filepath.Clean(dir)
	keepSet := make(map[string]struct{}, len(keep))
	for _, path := range keep {
		keepSet[path] = struct{}{}
	}

	prefix := strings.TrimSuffix(dir, string(filepath.Separator)) + string(filepath.Separator)
	rows, err := s.db.QueryContext(ctx, "SELECT path FROM entries")
	if err != nil {
		return 0, fmt.Errorf("list cached paths: %w", err)
	}
	var stale []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan cached path: %w", err)
		}
		if !strings.HasPrefix(path, prefix) {
			continue
		}
		if !recursive && filepath.Dir(path) != dir {
			continue
		}
		if _, ok := keepSet[path]; !ok {
			stale = append(stale, path)
		}
	}
	if err := rows.Close(); err != nil {
		return 0, err
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, path := range stale {
		if _, err := s.execWithRetry(ctx, "DELETE FROM entries WHERE path = ?", path); err != nil {
			return 0, fmt.Errorf("delete %s: %w", path, err)
		}
	}
	return len(stale), nil
}

// Count returns the number of cached entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ensureContext(ctx), "SELECT COUNT(1) FROM entries").Scan(&n); err != nil {
		return 0, fmt.Errorf("count entries: %w", err)
	}
	return n, nil
}

// Stats reports entry counts and the cached_at range.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var (
		stats          Stats
		oldest, newest sql.NullString
	)
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT COUNT(1),
			COALESCE(SUM(CASE WHEN metadata_json IS NULL THEN 1 ELSE 0 END), 0),
			MIN(cached_at), MAX(cached_at)
		FROM entries`,
	).Scan(&stats.Entries, &stats.Misses, &oldest, &newest)
	if err != nil {
		return Stats{}, fmt.Errorf("cache stats: %w", err)
	}
	if oldest.Valid {
		stats.Oldest, _ = time.Parse(timeLayout, oldest.String)
	}
	if newest.Valid {
		stats.Newest, _ = time.Parse(timeLayout, newest.String)
	}
	return stats, nil
}

// Clear removes every entry and returns the number deleted.
func (s *Store) Clear(ctx context.Context) (int, error) {
	res, err := s.execWithRetry(ctx, "DELETE FROM entries")
	if err != nil {
		return 0, fmt.Errorf("clear entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
