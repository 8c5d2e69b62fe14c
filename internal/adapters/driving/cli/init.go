package cli

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/civicwatch/internal/adapters/driven/config/file"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write example configuration and rules files",
	Long: `Writes an example configuration to --config, or to
~/.civicwatch/config.toml, and an example rules.yaml next to it.
Existing files are never overwritten.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, _ []string) error {
	path := configPath
	if path == "" {
		p, err := file.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	if err := file.WriteExample(path); err != nil {
		return err
	}
	cmd.Printf("Wrote example configuration to %s\n", path)

	rules := filepath.Join(filepath.Dir(path), "rules.yaml")
	if err := file.WriteExampleRules(rules); err != nil {
		cmd.Printf("Kept existing rules file %s\n", rules)
	} else {
		cmd.Printf("Wrote example rules to %s\n", rules)
	}
	cmd.Println("Edit the sources, then run: civicwatch run")
	return nil
}
