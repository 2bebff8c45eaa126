package catalog

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/tj/go-naturaldate"
)

// Supported stats groupings. GroupAlbumArtist falls back to the plain
// artist for songs without an album artist.
const (
	GroupNone        = ""
	GroupArtist      = "artist"
	GroupAlbum       = "album"
	GroupAlbumArtist = "albumartist"
)

// StatsFilter selects the songs and plays a Stats call aggregates
type StatsFilter struct {
	// Group produces one bucket per distinct tag value
	Group string

	// Artist/Album restrict the selection to exact tag matches
	Artist string
	Album  string

	// Since restricts counted plays to those started after a natural
	// language point in time ("2 days ago", "last sunday")
	Since string

	// Now anchors Since parsing; zero means time.Now()
	Now time.Time
}

// GroupStats is one aggregation bucket
type GroupStats struct {
	Key      string        // tag value the bucket groups on
	Songs    int           // songs carrying the tag
	Playtime time.Duration // summed duration of those songs
}

// Stats aggregates a catalog selection: how many songs, how much audio
// they hold, and how much of it was actually played
type Stats struct {
	Songs    int           // songs in the selection
	Playtime time.Duration // summed duration of selected songs
	Plays    int           // play records against the selection
	Played   time.Duration // summed delivered playtime
	Groups   []GroupStats  // per-tag buckets, present only when grouped
}

// groupExpr maps a grouping to its SQL expression
func groupExpr(group string) (string, error) {
	switch group {
	case GroupArtist:
		return "artist", nil
	case GroupAlbum:
		return "album", nil
	case GroupAlbumArtist:
		// Songs without an album artist count under their artist
		return "COALESCE(NULLIF(album_artist, ''), artist)", nil
	default:
		return "", fmt.Errorf("unknown stats grouping %q", group)
	}
}

// parseSince resolves a natural language time expression against now
func parseSince(since string, now time.Time) (time.Time, error) {
	if now.IsZero() {
		now = time.Now()
	}
	result, err := naturaldate.Parse(since, now, naturaldate.WithDirection(naturaldate.Past))
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse time expression %q: %w", since, err)
	}
	return result, nil
}

// songWhere applies the tag filters to a songs select
func songWhere(sb *sqlbuilder.SelectBuilder, filter StatsFilter) {
	if filter.Artist != "" {
		sb.Where(sb.Equal("artist", filter.Artist))
	}
	if filter.Album != "" {
		sb.Where(sb.Equal("album", filter.Album))
	}
}

// Stats aggregates songs and plays matching filter
func (c *Catalog) Stats(filter StatsFilter) (*Stats, error) {
	stats := &Stats{}

	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("COUNT(*)", "COALESCE(SUM(duration_ms), 0)")
	sb.From("songs")
	songWhere(sb, filter)

	query, args := sb.Build()
	var playtimeMS int64
	if err := c.db.QueryRow(query, args...).Scan(&stats.Songs, &playtimeMS); err != nil {
		return nil, fmt.Errorf("failed to aggregate songs: %w", err)
	}
	stats.Playtime = time.Duration(playtimeMS) * time.Millisecond

	if err := c.playStats(filter, stats); err != nil {
		return nil, err
	}

	if filter.Group != GroupNone {
		groups, err := c.groupStats(filter)
		if err != nil {
			return nil, err
		}
		stats.Groups = groups
	}

	slog.Debug("stats computed",
		"songs", stats.Songs,
		"playtime", stats.Playtime,
		"plays", stats.Plays,
		"groups", len(stats.Groups))
	return stats, nil
}

// playStats aggregates the play history for the selection
func (c *Catalog) playStats(filter StatsFilter, stats *Stats) error {
	sb := sqlbuilder.NewSelectBuilder()
	sb.Select("COUNT(*)", "COALESCE(SUM(plays.duration_ms), 0)")
	sb.From("plays")
	sb.JoinWithOption(sqlbuilder.InnerJoin, "songs", "songs.id = plays.song_id")

	if filter.Artist != "" {
		sb.Where(sb.Equal("songs.artist", filter.Artist))
	}
	if filter.Album != "" {
		sb.Where(sb.Equal("songs.album", filter.Album))
	}
	if filter.Since != "" {
		since, err := parseSince(filter.Since, filter.Now)
		if err != nil {
			return err
		}
		sb.Where(sb.GreaterEqualThan("plays.started_at", since.Unix()))
	}

	query, args := sb.Build()
	var playedMS int64
	if err := c.db.QueryRow(query, args...).Scan(&stats.Plays, &playedMS); err != nil {
		return fmt.Errorf("failed to aggregate plays: %w", err)
	}
	stats.Played = time.Duration(playedMS) * time.Millisecond
	return nil
}

// groupStats aggregates songs into one bucket per tag value
func (c *Catalog) groupStats(filter StatsFilter) ([]GroupStats, error) {
	expr, err := groupExpr(filter.Group)
	if err != nil {
		return nil, err
	}

	sb := sqlbuilder.NewSelectBuilder()
	sb.Select(expr+" AS tag", "COUNT(*)", "COALESCE(SUM(duration_ms), 0)")
	sb.From("songs")
	songWhere(sb, filter)
	sb.GroupBy("tag")
	sb.OrderBy("tag")

	query, args := sb.Build()
	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate %s groups: %w", filter.Group, err)
	}
	defer rows.Close()

	var groups []GroupStats
	for rows.Next() {
		var g GroupStats
		var playtimeMS int64
		if err := rows.Scan(&g.Key, &g.Songs, &playtimeMS); err != nil {
			return nil, fmt.Errorf("failed to scan group row: %w", err)
		}
		g.Playtime = time.Duration(playtimeMS) * time.Millisecond
		groups = append(groups, g)
	}
	return groups, rows.Err()
}
