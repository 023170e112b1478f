package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Simplici0/resinquote/internal/catalog"
)

func newRulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Export and check pricing rules files",
	}
	cmd.AddCommand(newRulesExportCmd(), newRulesCheckCmd())
	return cmd
}

func newRulesExportCmd() *cobra.Command {
	var (
		format    string
		out       string
		rulesFile string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the rules and materials as YAML or an Excel workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			bundle, err := loadBundle(rulesFile)
			if err != nil {
				return err
			}

			var write func(io.Writer, catalog.Bundle) error
			switch format {
			case "yaml":
				write = catalog.WriteYAML
			case "xlsx":
				if out == "" || out == "-" {
					return fmt.Errorf("xlsx export needs --out")
				}
				write = catalog.WriteWorkbook
			default:
				return fmt.Errorf("unknown format %q, want yaml or xlsx", format)
			}

			if out == "" || out == "-" {
				return write(cmd.OutOrStdout(), bundle)
			}

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}
			if err := write(f, bundle); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		},
	}

	cmd.Flags().StringVar(&format, "format", "yaml", "output format: yaml or xlsx")
	cmd.Flags().StringVar(&out, "out", "", "output file, stdout when empty")
	cmd.Flags().StringVar(&rulesFile, "rules", "", "input rules file; built-in defaults when empty")
	return cmd
}

func newRulesCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check FILE",
		Short: "Validate a rules file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bundle, err := catalog.Load(args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d materials, %d markup tiers, currency %s)\n",
				args[0], len(bundle.Materials), len(bundle.Rules.Markup), bundle.Rules.Currency)
			return err
		},
	}
}
