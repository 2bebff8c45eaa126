package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/spf13/afero"

	"github.com/tapedeck/tapedeck/internal/decoder"
)

// ErrSongNotFound is returned when a lookup matches no catalog entry
var ErrSongNotFound = errors.New("song not found in catalog")

// Song is one library entry
type Song struct {
	ID          int64
	Path        string
	Artist      string
	AlbumArtist string
	Album       string
	Title       string
	Duration    time.Duration
	AddedAt     time.Time
}

// Catalog is the song library plus its play history, backed by SQLite
type Catalog struct {
	db *sql.DB
}

// Open opens the catalog database at dbPath
func Open(dbPath string) (*Catalog, error) {
	db, err := OpenDatabase(dbPath)
	if err != nil {
		return nil, err
	}
	slog.Info("catalog opened", "path", dbPath)
	return &Catalog{db: db}, nil
}

// Close releases the database connection
func (c *Catalog) Close() error {
	return c.db.Close()
}

// AddSong inserts song, or refreshes the existing row when the path is
// already cataloged. Returns the song id either way.
func (c *Catalog) AddSong(song *Song) (int64, error) {
	if song.Path == "" {
		return 0, fmt.Errorf("song path cannot be empty")
	}
	if song.AddedAt.IsZero() {
		song.AddedAt = time.Now()
	}

	existing, err := c.SongByPath(song.Path)
	if err != nil && !errors.Is(err, ErrSongNotFound) {
		return 0, err
	}

	if existing != nil {
		ub := sqlbuilder.NewUpdateBuilder()
		ub.Update("songs").Set(
			ub.Assign("artist", song.Artist),
			ub.Assign("album_artist", song.AlbumArtist),
			ub.Assign("album", song.Album),
			ub.Assign("title", song.Title),
			ub.Assign("duration_ms", song.Duration.Milliseconds()),
		)
		ub.Where(ub.Equal("id", existing.ID))

		query, args := ub.Build()
		if _, err := c.db.Exec(query, args...); err != nil {
			return 0, fmt.Errorf("failed to update song %q: %w", song.Path, err)
		}
		slog.Debug("song refreshed", "path", song.Path, "id", existing.ID)
		return existing.ID, nil
	}

	ib := sqlbuilder.NewInsertBuilder()
	ib.InsertInto("songs")
	ib.Cols("path", "artist", "album_artist", "album", "title", "duration_ms", "added_at")
	ib.Values(song.Path, song.Artist, song.AlbumArtist, song.Album, song.Title,
		song.Duration.Milliseconds(), song.AddedAt.Unix())

	query, args := ib.Build()
	result, err := c.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert song %q: %w", song.Path, err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read inserted song id: %w", err)
	}

	slog.Debug("song cataloged", "path", song.Path, "id", id)
	return id, nil
}

// SongByPath looks up a song by its library path
func (c *Catalog) SongByPath(path string) (*Song, error) {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("id", "path", "artist", "album_artist", "album", "title", "duration_ms", "added_at")
	sb.From("songs")
	sb.Where(sb.Equal("path", path))

	query, args := sb.Build()
	row := c.db.QueryRow(query, args...)

	var song Song
	var durationMS, addedAt int64
	err := row.Scan(&song.ID, &song.Path, &song.Artist, &song.AlbumArtist,
		&song.Album, &song.Title, &durationMS, &addedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSongNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query song %q: %w", path, err)
	}

	song.Duration = time.Duration(durationMS) * time.Millisecond
	song.AddedAt = time.Unix(addedAt, 0)
	return &song, nil
}

// RecordPlay records that played worth of song was delivered during the
// given session
func (c *Catalog) RecordPlay(songID int64, sessionID string, startedAt time.Time, played time.Duration) error {
	ib := sqlbuilder.NewInsertBuilder()
	ib.InsertInto("plays")
	ib.Cols("song_id", "session_id", "started_at", "duration_ms")
	ib.Values(songID, sessionID, startedAt.Unix(), played.Milliseconds())

	query, args := ib.Build()
	if _, err := c.db.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to record play for song %d: %w", songID, err)
	}

	slog.Debug("play recorded",
		"song_id", songID,
		"session", sessionID,
		"played", played)
	return nil
}

// ScanResult summarizes one library scan
type ScanResult struct {
	Scanned int // audio files cataloged
	Skipped int // files no decoder recognizes
	Failed  int // recognized files that would not open
}

// Scan walks root on fsys and catalogs every file a decoder recognizes.
// Durations come from the negotiated stream; artist/album/title come
// from the artist/album/title.ext directory convention relative to root.
func (c *Catalog) Scan(fsys afero.Fs, decoders *decoder.Registry, root string) (*ScanResult, error) {
	result := &ScanResult{}

	err := afero.Walk(fsys, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		if decoders.DetectFormat(path) == nil {
			result.Skipped++
			return nil
		}

		song, err := c.scanFile(fsys, decoders, root, path)
		if err != nil {
			slog.Warn("failed to scan file", "path", path, "error", err)
			result.Failed++
			return nil
		}

		if _, err := c.AddSong(song); err != nil {
			return err
		}
		result.Scanned++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %q: %w", root, err)
	}

	slog.Info("library scan finished",
		"root", root,
		"scanned", result.Scanned,
		"skipped", result.Skipped,
		"failed", result.Failed)
	return result, nil
}

// scanFile opens one recognized file far enough to learn its duration
func (c *Catalog) scanFile(fsys afero.Fs, decoders *decoder.Registry, root, path string) (*Song, error) {
	file, err := fsys.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	stream, err := decoders.OpenStream(path, file)
	if err != nil {
		return nil, err
	}
	total := stream.TotalTime()
	stream.Close()

	song := &Song{Path: path, Duration: total}
	applyPathTags(song, root, path)
	return song, nil
}

// applyPathTags fills tag fields from the path layout under root:
// artist/album/title.ext, artist/title.ext, or a bare title.ext
func applyPathTags(song *Song, root, path string) {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		rel = filepath.Base(path)
	}

	parts := strings.Split(filepath.ToSlash(rel), "/")
	title := strings.TrimSuffix(parts[len(parts)-1], filepath.Ext(rel))

	song.Title = title
	switch {
	case len(parts) >= 3:
		song.Artist = parts[len(parts)-3]
		song.Album = parts[len(parts)-2]
	case len(parts) == 2:
		song.Artist = parts[0]
	}
}
