package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a rule catalog",
	Long: `Validate a rule catalog without starting the server.

Every rule is checked: regular expressions must compile, destination
templates must be well formed, and build states must be known. The
first error found is reported with the offending rule's position.

A catalog whose last rule still has match conditions gets a warning:
builds matching no rule are left untagged.

Examples:
  tagmill validate --rules rules.yaml`,
	RunE: runValidate,
}

var validateRulesPath string

func init() {
	validateCmd.Flags().StringVar(&validateRulesPath, "rules", "", "rule catalog file (default: rules.path from config)")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	catalog, err := loadCatalogFromFlag(validateRulesPath)
	if err != nil {
		return err
	}

	fmt.Printf("Catalog OK: %d rules\n", catalog.Len())
	if !catalog.HasFallback() {
		fmt.Fprintln(os.Stderr, "Warning: no fallback rule, builds matching no rule will be left untagged")
	}
	return nil
}
