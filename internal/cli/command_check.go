package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/picatz/dohconf/pkg/dohconf"
	"github.com/spf13/cobra"
)

var CommandCheck = &cobra.Command{
	Use:   "check [config]",
	Short: "Validate a DoH resolver configuration and print its canonical form",
	Long: `Validate a DoH resolver configuration and print its canonical form.

The configuration is either a whitespace-separated list of URI templates or a
JSON document with a "servers" list. It is read from the argument, or from
STDIN when no argument is given.

By default parsing is strict: the whole configuration is rejected if any
server in it is invalid. With --lax, invalid servers are dropped instead and
the command never fails. The canonical form is the templates one per line
when no server carries extra settings, and pretty-printed JSON otherwise;
--json forces the JSON form.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		input, err := configInput(cmd, args)
		if err != nil {
			return err
		}

		lax, err := cmd.Flags().GetBool("lax")
		if err != nil {
			return fmt.Errorf("invalid lax: %w", err)
		}

		jsonOut, err := cmd.Flags().GetBool("json")
		if err != nil {
			return fmt.Errorf("invalid json: %w", err)
		}

		var config dohconf.Config
		if lax {
			config = dohconf.FromStringLax(input)
		} else {
			config, err = dohconf.FromString(input)
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
		}

		if jsonOut {
			output := json.NewEncoder(cmd.OutOrStdout())
			output.SetIndent("", "  ")
			return output.Encode(config)
		}

		fmt.Fprintln(cmd.OutOrStdout(), config.String())

		return nil
	},
}

// configInput returns the configuration string to parse, from the command
// argument or STDIN.
func configInput(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}

	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("error reading configuration from stdin: %w", err)
	}

	return string(b), nil
}

func init() {
	CommandCheck.Flags().Bool("lax", false, "drop invalid servers instead of failing")
	CommandCheck.Flags().Bool("json", false, "print the JSON form even when every server is simple")

	CommandRoot.AddCommand(CommandCheck)
}
