package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tagmill/tagmill/internal/adapter/outbound/rulesfile"
	"github.com/tagmill/tagmill/internal/config"
	"github.com/tagmill/tagmill/internal/domain/build"
	"github.com/tagmill/tagmill/internal/domain/rule"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve a destination tag for one build",
	Long: `Resolve the destination tag for a single module build without
starting the server or touching the hub.

The build descriptor is read as YAML from the file given with --build,
or from stdin when --build is "-". The rule catalog comes from --rules,
falling back to rules.path in the config file.

Examples:
  # Resolve from a descriptor file
  tagmill resolve --rules rules.yaml --build build.yaml

  # Resolve from stdin
  cat build.yaml | tagmill resolve --rules rules.yaml --build -`,
	RunE: runResolve,
}

var (
	resolveRulesPath string
	resolveBuildPath string
)

func init() {
	resolveCmd.Flags().StringVar(&resolveRulesPath, "rules", "", "rule catalog file (default: rules.path from config)")
	resolveCmd.Flags().StringVar(&resolveBuildPath, "build", "", "build descriptor YAML file, or - for stdin")
	_ = resolveCmd.MarkFlagRequired("build")
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	catalog, err := loadCatalogFromFlag(resolveRulesPath)
	if err != nil {
		return err
	}

	descriptor, err := readDescriptor(resolveBuildPath)
	if err != nil {
		return err
	}

	resolution, err := rule.Resolve(catalog, descriptor)
	if errors.Is(err, rule.ErrNoMatch) {
		return fmt.Errorf("no rule matched build %s", descriptor.NSVC())
	}
	if err != nil {
		return err
	}

	fmt.Printf("%s\n", resolution.Destination)
	fmt.Fprintf(os.Stderr, "  Rule:  %s\n", resolution.RuleID)
	fmt.Fprintf(os.Stderr, "  Build: %s\n", descriptor.NVR())
	return nil
}

// loadCatalogFromFlag loads the rule catalog from the given path, or
// from rules.path in the config file when the flag was not set.
func loadCatalogFromFlag(path string) (rule.Catalog, error) {
	if path == "" {
		cfg, err := config.LoadConfigRaw()
		if err != nil {
			return rule.Catalog{}, err
		}
		path = cfg.Rules.Path
	}
	if path == "" {
		return rule.Catalog{}, fmt.Errorf("no rule catalog: pass --rules or set rules.path in the config")
	}
	return rulesfile.NewLoader(path).Load(context.Background())
}

func readDescriptor(path string) (build.Descriptor, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return build.Descriptor{}, fmt.Errorf("failed to read build descriptor: %w", err)
	}

	var descriptor build.Descriptor
	if err := yaml.Unmarshal(data, &descriptor); err != nil {
		return build.Descriptor{}, fmt.Errorf("invalid build descriptor: %w", err)
	}
	if descriptor.Name == "" {
		return build.Descriptor{}, fmt.Errorf("build descriptor is missing a name")
	}
	if !descriptor.State.IsValid() {
		return build.Descriptor{}, fmt.Errorf("unknown build state %q", descriptor.State)
	}
	return descriptor, nil
}
