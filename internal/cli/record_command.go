package cli

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tapedeck/tapedeck/internal/catalog"
	"github.com/tapedeck/tapedeck/internal/config"
	"github.com/tapedeck/tapedeck/internal/encoder"
	tdfs "github.com/tapedeck/tapedeck/internal/fs"
	"github.com/tapedeck/tapedeck/internal/output"
	"github.com/tapedeck/tapedeck/internal/player"
)

func newRecordCommand(c *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record <input>",
		Short: "Re-encode an audio file to disk",
		Long:  "Record decodes the input through the playback pipeline and writes the encoded result to the output file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runRecord(cmd, args[0])
		},
	}

	cmd.Flags().StringP("output", "o", "", "Destination file (required)")
	cmd.Flags().String("encoder", "", "Encoder to use (wav, pcm)")
	cmd.Flags().Duration("seek", 0, "Start position within the input")
	cmd.Flags().Int("chunks", 0, "Ring buffer capacity in chunks")
	cmd.Flags().String("title", "", "Tag: title")
	cmd.Flags().String("artist", "", "Tag: artist")
	cmd.Flags().String("album", "", "Tag: album")
	cmd.MarkFlagRequired("output")

	return cmd
}

func (c *CLI) runRecord(cmd *cobra.Command, input string) error {
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}

	outputPath, _ := cmd.Flags().GetString("output")
	encoderName, _ := cmd.Flags().GetString("encoder")
	seek, _ := cmd.Flags().GetDuration("seek")
	chunks, _ := cmd.Flags().GetInt("chunks")

	if encoderName == "" {
		encoderName = cfg.Encoder
	}
	if chunks == 0 {
		chunks = cfg.BufferChunks
	}

	if err := tdfs.EnsureParent(c.fs, outputPath); err != nil {
		return err
	}

	title, _ := cmd.Flags().GetString("title")
	artist, _ := cmd.Flags().GetString("artist")
	album, _ := cmd.Flags().GetString("album")

	sessionCfg := player.Config{
		Source: input,
		Chunks: chunks,
		Sink: output.Config{
			Name:    "recorder",
			Path:    outputPath,
			Encoder: encoderName,
		},
		Tag: encoder.Tag{Title: title, Artist: artist, Album: album},
	}

	elapsed, session, err := c.runStream(cmd, sessionCfg, seek)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Recorded %s of %s to %s\n",
		formatDuration(elapsed), input, outputPath)

	c.recordPlay(cfg, session, input, elapsed)
	return nil
}

// runStream drives one session to completion, with a progress line when
// stdout is an interactive terminal. Returns the delivered playtime.
func (c *CLI) runStream(cmd *cobra.Command, sessionCfg player.Config, seek time.Duration) (time.Duration, *player.Session, error) {
	session, err := player.NewSession(c.fs, c.decoders, c.sinks, sessionCfg)
	if err != nil {
		return 0, nil, err
	}
	defer session.Close()

	if seek > 0 {
		session.Seek(seek)
	}
	session.Start()

	done := make(chan struct{})
	if c.isInteractiveTerminal(int(os.Stdout.Fd())) {
		go c.showProgress(cmd, session, done)
	}

	err = session.Wait()
	close(done)
	if err != nil {
		return session.Elapsed(), nil, err
	}
	if closeErr := session.Close(); closeErr != nil {
		return session.Elapsed(), nil, closeErr
	}
	return session.Elapsed(), session, nil
}

// showProgress repaints an elapsed/total line until done closes
func (c *CLI) showProgress(cmd *cobra.Command, session *player.Session, done <-chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			fmt.Fprint(cmd.OutOrStdout(), "\r\033[K")
			return
		case <-ticker.C:
			line := fmt.Sprintf("\r%s / %s",
				formatDuration(session.Elapsed()),
				formatDuration(session.TotalTime()))
			if br := session.Bitrate(); br > 0 {
				line += fmt.Sprintf("  %d kbps", br)
			}
			fmt.Fprint(cmd.OutOrStdout(), line)
		}
	}
}

// recordPlay notes the finished stream in the catalog. Bookkeeping never
// fails the command.
func (c *CLI) recordPlay(cfg *config.Config, session *player.Session, input string, elapsed time.Duration) {
	cat, err := catalog.Open(c.configManager.ResolveDatabasePath(cfg.DatabasePath))
	if err != nil {
		slog.Warn("catalog unavailable, play not recorded", "error", err)
		return
	}
	defer cat.Close()

	song, err := cat.SongByPath(input)
	if err != nil {
		id, addErr := cat.AddSong(&catalog.Song{Path: input, Duration: session.TotalTime()})
		if addErr != nil {
			slog.Warn("failed to catalog song", "path", input, "error", addErr)
			return
		}
		song = &catalog.Song{ID: id}
	}

	if err := cat.RecordPlay(song.ID, session.ID, time.Now().Add(-elapsed), elapsed); err != nil {
		slog.Warn("failed to record play", "path", input, "error", err)
	}
}

// formatDuration renders d as m:ss or h:mm:ss
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
