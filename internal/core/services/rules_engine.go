package services

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/civicwatch/internal/core/domain"
	"github.com/custodia-labs/civicwatch/internal/core/ports/driven"
	"github.com/custodia-labs/civicwatch/internal/core/ports/driving"
	"github.com/custodia-labs/civicwatch/internal/logger"
)

// Ensure RulesEngine implements the interface.
var _ driving.RulesEngine = (*RulesEngine)(nil)

// RulesEngine evaluates civic events against a validated rule set.
// The active set is swapped atomically on Reload, so Evaluate never sees
// a partially loaded set and never blocks.
type RulesEngine struct {
	source driven.RuleSource
	rules  atomic.Pointer[[]domain.Rule]

	now   func() time.Time
	newID func() string
}

// RulesEngineOption configures a RulesEngine.
type RulesEngineOption func(*RulesEngine)

// WithRulesClock sets the clock used for alert timestamps.
func WithRulesClock(now func() time.Time) RulesEngineOption {
	return func(e *RulesEngine) { e.now = now }
}

// WithAlertIDs sets the alert ID generator.
func WithAlertIDs(newID func() string) RulesEngineOption {
	return func(e *RulesEngine) { e.newID = newID }
}

// NewRulesEngine loads and validates the rule set from source.
// Construction fails with a *domain.RuleConfigError if any rule is invalid.
func NewRulesEngine(ctx context.Context, source driven.RuleSource, opts ...RulesEngineOption) (*RulesEngine, error) {
	e := &RulesEngine{
		source: source,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}

	rules, err := e.load(ctx)
	if err != nil {
		return nil, err
	}
	e.rules.Store(&rules)
	return e, nil
}

// NewStaticRulesEngine builds an engine over a fixed rule set.
func NewStaticRulesEngine(rules []domain.Rule, opts ...RulesEngineOption) (*RulesEngine, error) {
	return NewRulesEngine(context.Background(), staticRules(rules), opts...)
}

// Reload re-reads the rule source. On any error the active set is kept
// and the error is returned.
func (e *RulesEngine) Reload(ctx context.Context) error {
	rules, err := e.load(ctx)
	if err != nil {
		logger.Warn("rule reload from %s failed, keeping %d active rules", e.source.Name(), len(e.Rules()))
		return err
	}
	e.rules.Store(&rules)
	logger.Info("Loaded %d rules from %s", len(rules), e.source.Name())
	return nil
}

// Rules returns a copy of the active rule set.
func (e *RulesEngine) Rules() []domain.Rule {
	p := e.rules.Load()
	if p == nil {
		return nil
	}
	out := make([]domain.Rule, len(*p))
	copy(out, *p)
	return out
}

func (e *RulesEngine) load(ctx context.Context) ([]domain.Rule, error) {
	rules, err := e.source.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := ValidateRules(e.source.Name(), rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// ValidateRules checks every rule and reports all problems at once.
func ValidateRules(source string, rules []domain.Rule) error {
	var problems []string
	seen := make(map[string]bool, len(rules))
	for i := range rules {
		r := &rules[i]
		if err := r.Validate(); err != nil {
			problems = append(problems, fmt.Sprintf("rules[%d]: %v", i, err))
			continue
		}
		if seen[r.ID] {
			problems = append(problems, fmt.Sprintf("rules[%d]: duplicate rule id %q", i, r.ID))
			continue
		}
		seen[r.ID] = true
	}
	if len(problems) > 0 {
		return &domain.RuleConfigError{Source: source, Problems: problems, Err: domain.ErrInvalidInput}
	}
	return nil
}

// Evaluate returns one alert per enabled rule the event satisfies, in rule
// order. Evaluation has no side effects.
func (e *RulesEngine) Evaluate(event *domain.CivicEvent) []domain.Alert {
	p := e.rules.Load()
	if p == nil || event == nil {
		return nil
	}

	var alerts []domain.Alert
	now := e.now()
	for i := range *p {
		r := &(*p)[i]
		if !r.Enabled || !Matches(&r.Condition, event) {
			continue
		}
		alerts = append(alerts, domain.Alert{
			ID:        e.newID(),
			RuleID:    r.ID,
			Category:  r.Category,
			EventID:   event.ID,
			EventHash: event.ContentHash,
			SourceID:  event.SourceID,
			Severity:  r.Severity,
			Message:   alertMessage(r, event),
			CreatedAt: now,
		})
	}
	return alerts
}

func alertMessage(r *domain.Rule, event *domain.CivicEvent) string {
	if r.Message != "" {
		return r.Message
	}
	return r.ID + ": " + event.Title
}

// Matches reports whether the event satisfies the condition tree.
func Matches(c *domain.Condition, event *domain.CivicEvent) bool {
	switch c.Kind {
	case domain.CondFieldEquals:
		return strings.EqualFold(strings.TrimSpace(fieldValue(event, c.Field)), strings.TrimSpace(c.Value))
	case domain.CondContainsTag:
		return event.HasTag(c.Value)
	case domain.CondContainsKeyword:
		return containsFold(keywordText(event, c.Field), c.Value)
	case domain.CondWithinRadius:
		if event.Location == nil {
			return false
		}
		return c.Point.DistanceMeters(*event.Location) <= c.Meters
	case domain.CondEntityNameMatches:
		for _, ent := range event.Entities {
			if containsFold(ent.Name, c.Value) {
				return true
			}
		}
		return false
	case domain.CondAnd:
		for i := range c.Children {
			if !Matches(&c.Children[i], event) {
				return false
			}
		}
		return len(c.Children) > 0
	case domain.CondOr:
		for i := range c.Children {
			if Matches(&c.Children[i], event) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

func fieldValue(event *domain.CivicEvent, field string) string {
	switch field {
	case domain.FieldEventType:
		return string(event.Type)
	case domain.FieldSourceID:
		return event.SourceID
	case domain.FieldTitle:
		return event.Title
	case domain.FieldDescription:
		return event.Description
	case domain.FieldRegion:
		return event.Region
	case domain.FieldNaturalKey:
		return event.NaturalKey
	default:
		return ""
	}
}

func keywordText(event *domain.CivicEvent, field string) string {
	switch field {
	case domain.FieldTitle:
		return event.Title
	case domain.FieldDescription:
		return event.Description
	case domain.FieldText:
		parts := make([]string, 0, 2+len(event.Entities)+len(event.Documents))
		parts = append(parts, event.Title, event.Description)
		for _, ent := range event.Entities {
			parts = append(parts, ent.Name)
		}
		for _, doc := range event.Documents {
			parts = append(parts, doc.Title)
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}

func containsFold(s, substr string) bool {
	substr = strings.TrimSpace(substr)
	if substr == "" {
		return false
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

// staticRules is a RuleSource over a fixed slice.
type staticRules []domain.Rule

func (s staticRules) Name() string { return "static" }

func (s staticRules) Load(_ context.Context) ([]domain.Rule, error) {
	out := make([]domain.Rule, len(s))
	copy(out, s)
	return out, nil
}
