package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tapedeck/tapedeck/internal/catalog"
)

func newScanCommand(c *CLI) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <dir>",
		Short: "Catalog every audio file under a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runScan(cmd, args[0])
		},
	}
}

func (c *CLI) runScan(cmd *cobra.Command, root string) error {
	cfg, err := c.loadConfig(cmd)
	if err != nil {
		return err
	}

	cat, err := catalog.Open(c.configManager.ResolveDatabasePath(cfg.DatabasePath))
	if err != nil {
		return err
	}
	defer cat.Close()

	result, err := cat.Scan(c.fs, c.decoders, root)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Cataloged %d songs (%d skipped, %d failed)\n",
		result.Scanned, result.Skipped, result.Failed)
	return nil
}
