package catalog

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/tapedeck/tapedeck/internal/audio"
	"github.com/tapedeck/tapedeck/internal/decoder"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestOpenDatabaseCreatesFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "catalog.db")

	db, err := OpenDatabase(dbPath)
	if err != nil {
		t.Fatalf("OpenDatabase failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestDatabaseSchemaExists(t *testing.T) {
	c := openTestCatalog(t)

	for _, table := range []string{"songs", "plays"} {
		var count int
		if err := c.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&count); err != nil {
			t.Errorf("table %s does not exist or is not queryable: %v", table, err)
		}
	}
}

func TestAddSongAndLookup(t *testing.T) {
	c := openTestCatalog(t)

	id, err := c.AddSong(&Song{
		Path:     "/music/nina/baltimore/01.wav",
		Artist:   "Nina Simone",
		Album:    "Baltimore",
		Title:    "Baltimore",
		Duration: 4*time.Minute + 51*time.Second,
	})
	if err != nil {
		t.Fatalf("AddSong failed: %v", err)
	}
	if id == 0 {
		t.Error("AddSong returned zero id")
	}

	song, err := c.SongByPath("/music/nina/baltimore/01.wav")
	if err != nil {
		t.Fatalf("SongByPath failed: %v", err)
	}
	if song.ID != id || song.Artist != "Nina Simone" || song.Duration != 4*time.Minute+51*time.Second {
		t.Errorf("lookup mismatch: %+v", song)
	}

	_, err = c.SongByPath("/music/missing.wav")
	if !errors.Is(err, ErrSongNotFound) {
		t.Errorf("missing song: got %v, want ErrSongNotFound", err)
	}
}

func TestAddSongRefreshesExistingPath(t *testing.T) {
	c := openTestCatalog(t)

	first, err := c.AddSong(&Song{Path: "/music/a.wav", Title: "draft", Duration: time.Second})
	if err != nil {
		t.Fatalf("AddSong failed: %v", err)
	}

	second, err := c.AddSong(&Song{Path: "/music/a.wav", Title: "final", Duration: 2 * time.Second})
	if err != nil {
		t.Fatalf("AddSong refresh failed: %v", err)
	}
	if first != second {
		t.Errorf("refresh created a new row: %d != %d", first, second)
	}

	song, err := c.SongByPath("/music/a.wav")
	if err != nil {
		t.Fatal(err)
	}
	if song.Title != "final" || song.Duration != 2*time.Second {
		t.Errorf("refresh did not apply: %+v", song)
	}
}

func TestAddSongRejectsEmptyPath(t *testing.T) {
	c := openTestCatalog(t)

	if _, err := c.AddSong(&Song{Title: "nameless"}); err == nil {
		t.Error("AddSong accepted an empty path")
	}
}

func TestRecordPlayRequiresExistingSong(t *testing.T) {
	c := openTestCatalog(t)

	if err := c.RecordPlay(9999, "session-1", time.Now(), time.Minute); err == nil {
		t.Error("RecordPlay accepted a nonexistent song id")
	}

	id, err := c.AddSong(&Song{Path: "/music/a.wav", Duration: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	if err := c.RecordPlay(id, "session-1", time.Now(), 30*time.Second); err != nil {
		t.Errorf("RecordPlay failed: %v", err)
	}
}

// testWav builds a canonical RIFF/WAVE file around pcm
func testWav(format audio.Format, pcm []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(format.Channels))
	binary.Write(&buf, binary.LittleEndian, format.SampleRate)
	binary.Write(&buf, binary.LittleEndian, uint32(format.ByteRate()))
	binary.Write(&buf, binary.LittleEndian, uint16(format.FrameSize()))
	binary.Write(&buf, binary.LittleEndian, uint16(format.Bits))
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}

func TestScanCatalogsLibrary(t *testing.T) {
	c := openTestCatalog(t)
	fs := afero.NewMemMapFs()
	format := audio.Format{SampleRate: 8000, Channels: 1, Bits: 16}
	oneSecond := testWav(format, make([]byte, 16000))

	files := map[string][]byte{
		"/lib/Nina Simone/Baltimore/Baltimore.wav": oneSecond,
		"/lib/Nina Simone/Single.wav":              oneSecond,
		"/lib/loose.wav":                           oneSecond,
		"/lib/notes.txt":                           []byte("not audio"),
		"/lib/corrupt.wav":                         []byte("RIFFgarbage"),
	}
	for path, data := range files {
		if err := afero.WriteFile(fs, path, data, 0644); err != nil {
			t.Fatal(err)
		}
	}

	result, err := c.Scan(fs, decoder.NewDefaultRegistry(), "/lib")
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if result.Scanned != 3 {
		t.Errorf("Scanned = %d, want 3", result.Scanned)
	}
	if result.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", result.Skipped)
	}
	if result.Failed != 1 {
		t.Errorf("Failed = %d, want 1", result.Failed)
	}

	song, err := c.SongByPath("/lib/Nina Simone/Baltimore/Baltimore.wav")
	if err != nil {
		t.Fatalf("scanned song not cataloged: %v", err)
	}
	if song.Artist != "Nina Simone" || song.Album != "Baltimore" || song.Title != "Baltimore" {
		t.Errorf("path tags wrong: %+v", song)
	}
	if song.Duration != time.Second {
		t.Errorf("duration = %v, want 1s", song.Duration)
	}
}

func TestApplyPathTags(t *testing.T) {
	tests := []struct {
		name                 string
		path                 string
		artist, album, title string
	}{
		{"artist album title", "/lib/Artist/Album/Track.wav", "Artist", "Album", "Track"},
		{"artist title", "/lib/Artist/Track.wav", "Artist", "", "Track"},
		{"bare title", "/lib/Track.wav", "", "", "Track"},
		{"deep nesting keeps closest three", "/lib/x/Artist/Album/Track.wav", "Artist", "Album", "Track"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var song Song
			applyPathTags(&song, "/lib", tt.path)
			if song.Artist != tt.artist || song.Album != tt.album || song.Title != tt.title {
				t.Errorf("got %q/%q/%q, want %q/%q/%q",
					song.Artist, song.Album, song.Title, tt.artist, tt.album, tt.title)
			}
		})
	}
}
