package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/civicwatch/internal/adapters/driven/config/file"
	"github.com/custodia-labs/civicwatch/internal/core/domain"
	"github.com/custodia-labs/civicwatch/internal/core/services"
)

var rulesJSON bool

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect and validate alert rules",
}

var rulesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the active rules",
	Args:  cobra.NoArgs,
	RunE:  runRulesList,
}

var rulesValidateCmd = &cobra.Command{
	Use:   "validate [file]",
	Short: "Check a rules file without loading it",
	Long: `Parses and validates a rules file. Every problem is reported with the
rule and field it concerns. Nothing is loaded or stored.`,
	Args: cobra.ExactArgs(1),
	RunE: runRulesValidate,
}

func init() {
	rulesListCmd.Flags().BoolVar(&rulesJSON, "json", false, "output rules as JSON")
	rulesCmd.AddCommand(rulesListCmd, rulesValidateCmd)
	rootCmd.AddCommand(rulesCmd)
}

func runRulesList(cmd *cobra.Command, _ []string) error {
	engine, err := requireRules(cmd)
	if err != nil {
		return err
	}

	rules := engine.Rules()
	if rulesJSON {
		return printJSON(cmd, rules)
	}
	if len(rules) == 0 {
		cmd.Println("No rules loaded.")
		return nil
	}

	st := stylesFor(cmd.OutOrStdout())
	for i := range rules {
		r := &rules[i]
		state := ""
		if !r.Enabled {
			state = st.muted.Render(" (disabled)")
		}
		cmd.Printf("  %s  %s%s\n", st.title.Render(r.ID), st.severity(r.Severity), state)
		if r.Category != "" {
			cmd.Printf("      Category: %s\n", r.Category)
		}
		if r.Description != "" {
			cmd.Printf("      %s\n", r.Description)
		}
		cmd.Printf("      When: %s\n", describeCondition(&r.Condition))
	}
	cmd.Printf("\nTotal: %d rules\n", len(rules))
	return nil
}

func runRulesValidate(cmd *cobra.Command, args []string) error {
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read rules: %w", err)
	}
	rules, err := file.ParseRules(path, data)
	if err != nil {
		return err
	}
	if err := services.ValidateRules(path, rules); err != nil {
		return err
	}
	cmd.Printf("%s: %d rules OK\n", path, len(rules))
	return nil
}

// describeCondition renders a condition tree on one line.
func describeCondition(c *domain.Condition) string {
	switch c.Kind {
	case domain.CondAnd, domain.CondOr:
		op := " and "
		if c.Kind == domain.CondOr {
			op = " or "
		}
		s := "("
		for i := range c.Children {
			if i > 0 {
				s += op
			}
			s += describeCondition(&c.Children[i])
		}
		return s + ")"
	case domain.CondContainsTag:
		return fmt.Sprintf("tag %q", c.Value)
	case domain.CondFieldEquals:
		return fmt.Sprintf("%s = %q", c.Field, c.Value)
	case domain.CondContainsKeyword:
		field := c.Field
		if field == "" {
			field = "text"
		}
		return fmt.Sprintf("%s contains %q", field, c.Value)
	case domain.CondEntityNameMatches:
		return fmt.Sprintf("entity matches %q", c.Value)
	case domain.CondWithinRadius:
		return fmt.Sprintf("within %.0fm of %.5f, %.5f", c.Meters, c.Point.Lat, c.Point.Lon)
	default:
		return string(c.Kind)
	}
}
