package cli

import "github.com/spf13/cobra"

var CommandRoot = &cobra.Command{
	Use:   "dohconf",
	Short: `dohconf validates DoH resolver configurations and queries the servers they name`,
}
