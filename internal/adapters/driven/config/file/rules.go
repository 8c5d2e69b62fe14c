package file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
	"github.com/custodia-labs/civicwatch/internal/core/ports/driven"
)

// Ensure RulesFile implements the interface.
var _ driven.RuleSource = (*RulesFile)(nil)

// RulesFileVersion is the only supported rule file version.
const RulesFileVersion = "1"

// RulesFile reads alert rules from a YAML (or JSON) file on every Load.
type RulesFile struct {
	path string
}

// NewRulesFile creates a rule source for path.
func NewRulesFile(path string) *RulesFile {
	return &RulesFile{path: path}
}

// Name returns the file path.
func (f *RulesFile) Name() string {
	return f.path
}

// Load reads and parses the file. Condition trees are only checked for
// shape here; the rules engine validates them.
func (f *RulesFile) Load(ctx context.Context) ([]domain.Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("rules %s: %w", f.path, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("reading rules: %w", err)
	}
	return ParseRules(f.path, data)
}

// exampleRules is the starter rule file written by WriteExampleRules.
const exampleRules = `version: "1"
rules:
  - id: rezoning
    category: land_use
    description: Rezoning requests on any agenda
    severity: warning
    condition:
      contains_tag: rezoning

  - id: demolition-issued
    category: preservation
    severity: urgent
    condition:
      and:
        - field_equals: {field: event_type, value: permit_issued}
        - contains_keyword: demolition

  - id: annexation
    category: land_use
    severity: notable
    condition:
      or:
        - contains_tag: annexation
        - contains_keyword: {field: title, keyword: annexation}
`

// WriteExampleRules writes a starter rules file to path.
// Existing files are left untouched and reported as an error.
func WriteExampleRules(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("rules %s already exists", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(exampleRules), 0600)
}

type yamlRuleFile struct {
	Version string     `yaml:"version"`
	Rules   []yamlRule `yaml:"rules"`
}

type yamlRule struct {
	ID          string    `yaml:"id"`
	Category    string    `yaml:"category"`
	Description string    `yaml:"description"`
	Severity    string    `yaml:"severity"`
	Message     string    `yaml:"message"`
	Enabled     *bool     `yaml:"enabled"`
	Condition   yaml.Node `yaml:"condition"`
}

// ParseRules decodes a rule document. name identifies the document in errors.
func ParseRules(name string, data []byte) ([]domain.Rule, error) {
	var doc yamlRuleFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, &domain.RuleConfigError{Source: name, Problems: yamlProblems(err), Err: domain.ErrInvalidInput}
	}

	var problems []string
	if doc.Version != "" && doc.Version != RulesFileVersion {
		problems = append(problems, fmt.Sprintf("version: unsupported version %q", doc.Version))
	}

	rules := make([]domain.Rule, 0, len(doc.Rules))
	for i := range doc.Rules {
		y := &doc.Rules[i]
		label := fmt.Sprintf("rules[%d]", i)
		if y.ID != "" {
			label = fmt.Sprintf("rule %s", y.ID)
		}

		rule := domain.Rule{
			ID:          strings.TrimSpace(y.ID),
			Category:    y.Category,
			Description: y.Description,
			Severity:    domain.Severity(strings.ToLower(strings.TrimSpace(y.Severity))),
			Message:     y.Message,
			Enabled:     y.Enabled == nil || *y.Enabled,
		}
		if y.Condition.Kind == 0 {
			problems = append(problems, fmt.Sprintf("%s: condition is required", label))
		} else {
			cond, err := parseCondition(&y.Condition, "condition")
			if err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", label, err))
			}
			rule.Condition = cond
		}
		rules = append(rules, rule)
	}

	if len(problems) > 0 {
		return nil, &domain.RuleConfigError{Source: name, Problems: problems, Err: domain.ErrInvalidInput}
	}
	return rules, nil
}

func yamlProblems(err error) []string {
	var te *yaml.TypeError
	if errors.As(err, &te) {
		return te.Errors
	}
	return []string{err.Error()}
}

// parseCondition converts a single-key mapping such as
// {contains_tag: rezoning} into a Condition. Unknown keys become nodes of
// that kind so validation can name them.
func parseCondition(node *yaml.Node, path string) (domain.Condition, error) {
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return domain.Condition{}, fmt.Errorf("%s: line %d: expected a mapping with exactly one condition type", path, node.Line)
	}
	kind := domain.ConditionKind(node.Content[0].Value)
	val := node.Content[1]

	switch kind {
	case domain.CondContainsTag, domain.CondEntityNameMatches:
		if val.Kind != yaml.ScalarNode {
			return domain.Condition{}, fmt.Errorf("%s: line %d: %s takes a single value", path, val.Line, kind)
		}
		return domain.Condition{Kind: kind, Value: val.Value}, nil

	case domain.CondFieldEquals:
		args, err := conditionArgs(val, kind, path, "field", "value")
		if err != nil {
			return domain.Condition{}, err
		}
		field, err := args.str("field", true)
		if err != nil {
			return domain.Condition{}, err
		}
		value, err := args.str("value", true)
		if err != nil {
			return domain.Condition{}, err
		}
		return domain.FieldEquals(field, value), nil

	case domain.CondContainsKeyword:
		// A bare keyword searches all text.
		if val.Kind == yaml.ScalarNode {
			return domain.ContainsKeyword(domain.FieldText, val.Value), nil
		}
		args, err := conditionArgs(val, kind, path, "field", "keyword")
		if err != nil {
			return domain.Condition{}, err
		}
		field, err := args.str("field", false)
		if err != nil {
			return domain.Condition{}, err
		}
		keyword, err := args.str("keyword", true)
		if err != nil {
			return domain.Condition{}, err
		}
		if field == "" {
			field = domain.FieldText
		}
		return domain.ContainsKeyword(field, keyword), nil

	case domain.CondWithinRadius:
		args, err := conditionArgs(val, kind, path, "lat", "lon", "meters")
		if err != nil {
			return domain.Condition{}, err
		}
		var point domain.GeoPoint
		if point.Lat, err = args.float("lat"); err != nil {
			return domain.Condition{}, err
		}
		if point.Lon, err = args.float("lon"); err != nil {
			return domain.Condition{}, err
		}
		meters, err := args.float("meters")
		if err != nil {
			return domain.Condition{}, err
		}
		return domain.WithinRadius(point, meters), nil

	case domain.CondAnd, domain.CondOr:
		if val.Kind != yaml.SequenceNode {
			return domain.Condition{}, fmt.Errorf("%s: line %d: %s takes a list of conditions", path, val.Line, kind)
		}
		children := make([]domain.Condition, 0, len(val.Content))
		for i, child := range val.Content {
			c, err := parseCondition(child, fmt.Sprintf("%s.%s[%d]", path, kind, i))
			if err != nil {
				return domain.Condition{}, err
			}
			children = append(children, c)
		}
		return domain.Condition{Kind: kind, Children: children}, nil

	default:
		return domain.Condition{Kind: kind}, nil
	}
}

// condArgs holds the arguments of a mapping-valued condition.
type condArgs struct {
	kind   domain.ConditionKind
	path   string
	line   int
	values map[string]*yaml.Node
}

// conditionArgs reads a condition's argument mapping. Keys outside allowed
// are rejected so a misspelt argument cannot silently default.
func conditionArgs(val *yaml.Node, kind domain.ConditionKind, path string, allowed ...string) (*condArgs, error) {
	if val.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s: line %d: %s takes a mapping with %s", path, val.Line, kind, strings.Join(allowed, ", "))
	}
	args := &condArgs{kind: kind, path: path, line: val.Line, values: make(map[string]*yaml.Node, len(allowed))}
	for i := 0; i+1 < len(val.Content); i += 2 {
		key := val.Content[i]
		if !slices.Contains(allowed, key.Value) {
			return nil, fmt.Errorf("%s: line %d: %s: unknown key %q (expected %s)",
				path, key.Line, kind, key.Value, strings.Join(allowed, ", "))
		}
		args.values[key.Value] = val.Content[i+1]
	}
	return args, nil
}

func (a *condArgs) missing(name string) error {
	return fmt.Errorf("%s: line %d: %s: %s is required", a.path, a.line, a.kind, name)
}

func (a *condArgs) str(name string, required bool) (string, error) {
	node, ok := a.values[name]
	if !ok {
		if required {
			return "", a.missing(name)
		}
		return "", nil
	}
	if node.Kind != yaml.ScalarNode {
		return "", fmt.Errorf("%s: line %d: %s: %s must be a single value", a.path, node.Line, a.kind, name)
	}
	return node.Value, nil
}

func (a *condArgs) float(name string) (float64, error) {
	node, ok := a.values[name]
	if !ok {
		return 0, a.missing(name)
	}
	var f float64
	if err := node.Decode(&f); err != nil {
		return 0, fmt.Errorf("%s: line %d: %s: %s must be a number", a.path, node.Line, a.kind, name)
	}
	return f, nil
}
