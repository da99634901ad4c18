package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pacerhq/pacer/internal/config"
	"github.com/pacerhq/pacer/internal/output"
)

var gatesCmd = &cobra.Command{
	Use:   "gates",
	Short: "Show the configured gates",
	Long:  "Validate the gates declared in the config file and print them.",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			return err
		}
		specs, err := cfg.GateSpecs()
		if err != nil {
			return err
		}

		rendered, err := output.NewFormatter(format).FormatGates(specs)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
		return err
	},
}

func init() {
	rootCmd.AddCommand(gatesCmd)
	gatesCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json|markdown")
}
