// arbiterctl is the offline companion to the arbiter service: it validates
// rule set files, computes their content hashes, and runs sandbox
// evaluations against sample transcripts without touching the service or
// its database.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/arbiterhq/arbiter/internal/config"
)

var tunablesPath string

func main() {
	root := &cobra.Command{
		Use:           "arbiterctl",
		Short:         "Offline tooling for arbiter rule sets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&tunablesPath, "tunables", "", "path to engine tunables YAML")

	root.AddCommand(validateCmd())
	root.AddCommand(hashCmd())
	root.AddCommand(sandboxCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadTunables() (config.Tunables, error) {
	return config.LoadTunables(tunablesPath)
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
