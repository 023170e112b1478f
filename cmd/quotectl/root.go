package main

import (
	"github.com/spf13/cobra"

	"github.com/Simplici0/resinquote/internal/catalog"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "quotectl",
		Short:         "Resin print quoting tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newPriceCmd(), newRulesCmd())
	return root
}

// loadBundle reads a rules file, or returns the built-in defaults when path
// is empty.
func loadBundle(path string) (catalog.Bundle, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	return catalog.Load(path)
}
