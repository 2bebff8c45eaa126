package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tapedeck/tapedeck/internal/output"
	"github.com/tapedeck/tapedeck/internal/player"
)

func newPlayCommand(c *CLI) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play <input>",
		Short: "Play an audio file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runPlay(cmd, args[0])
		},
	}

	cmd.Flags().String("sink", "", "Output sink (device, null)")
	cmd.Flags().Duration("seek", 0, "Start position within the input")
	cmd.Flags().Int("chunks", 0, "Ring buffer capacity in chunks")

	return cmd
}

func (c *CLI) runPlay(cmd *cobra.Command, input string) error {
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}

	sinkName, _ := cmd.Flags().GetString("sink")
	seek, _ := cmd.Flags().GetDuration("seek")
	chunks, _ := cmd.Flags().GetInt("chunks")

	if sinkName == "" {
		sinkName = cfg.Sink
	}
	if sinkName == "recorder" {
		return fmt.Errorf("the recorder sink needs a destination; use 'tapedeck record'")
	}
	if chunks == 0 {
		chunks = cfg.BufferChunks
	}

	sessionCfg := player.Config{
		Source: input,
		Chunks: chunks,
		Sink:   output.Config{Name: sinkName},
	}

	elapsed, session, err := c.runStream(cmd, sessionCfg, seek)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Played %s of %s\n", formatDuration(elapsed), input)

	c.recordPlay(cfg, session, input, elapsed)
	return nil
}
