package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tapedeck/tapedeck/internal/catalog"
)

func newStatsCommand(c *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show catalog and play statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runStats(cmd)
		},
	}

	cmd.Flags().String("group", "", "Group by tag (artist, album, albumartist)")
	cmd.Flags().String("artist", "", "Only songs by this artist")
	cmd.Flags().String("album", "", "Only songs on this album")
	cmd.Flags().String("since", "", "Only plays since, e.g. '2 days ago'")

	return cmd
}

func (c *CLI) runStats(cmd *cobra.Command) error {
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}

	group, _ := cmd.Flags().GetString("group")
	artist, _ := cmd.Flags().GetString("artist")
	album, _ := cmd.Flags().GetString("album")
	since, _ := cmd.Flags().GetString("since")

	cat, err := catalog.Open(c.configManager.ResolveDatabasePath(cfg.DatabasePath))
	if err != nil {
		return err
	}
	defer cat.Close()

	stats, err := cat.Stats(catalog.StatsFilter{
		Group:  group,
		Artist: artist,
		Album:  album,
		Since:  since,
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Songs:    %d\n", stats.Songs)
	fmt.Fprintf(out, "Playtime: %s\n", formatDuration(stats.Playtime))
	fmt.Fprintf(out, "Plays:    %d\n", stats.Plays)
	fmt.Fprintf(out, "Played:   %s\n", formatDuration(stats.Played))

	if len(stats.Groups) > 0 {
		fmt.Fprintln(out)
		w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
		fmt.Fprintf(w, "%s\tSONGS\tPLAYTIME\n", strings.ToUpper(group))
		for _, g := range stats.Groups {
			fmt.Fprintf(w, "%s\t%d\t%s\n", g.Key, g.Songs, formatDuration(g.Playtime))
		}
		w.Flush()
	}
	return nil
}
