// Package executor turns high-level intents (log in, add an item to the
// cart) into concrete browser steps. Planning is delegated to a model; the
// driver applies the returned steps to the page. Executors act only, they
// never self-certify success: verification belongs to the caller's probes.
package executor

import (
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StepKind enumerates the browser actions a plan may contain.
type StepKind string

const (
	StepNavigate StepKind = "navigate"
	StepClick    StepKind = "click"
	StepType     StepKind = "type"
	StepSubmit   StepKind = "submit"
	StepWait     StepKind = "wait"
)

// Step is one browser action. Selector is a CSS selector for click, type and
// submit; Value carries the URL for navigate, the text for type, and the
// wait duration in milliseconds for wait.
type Step struct {
	Kind     StepKind `json:"action"`
	Selector string   `json:"selector,omitempty"`
	Value    string   `json:"value,omitempty"`
}

// Plan is the model's response: an ordered step list plus its own reading of
// the page. Outcome is advisory; observable page evidence decides success.
type Plan struct {
	Steps   []Step `json:"steps"`
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

// Advisory outcome values a plan may carry.
const (
	PlanOutcomeActed    = "acted"
	PlanOutcomeNotFound = "not_found"
	PlanOutcomeBlocked  = "blocked"
)

// ParsePlan decodes a model response into a Plan. Markdown fencing is
// stripped first; models wrap JSON in fences regardless of instructions.
func ParsePlan(raw string) (*Plan, error) {
	cleaned := stripFences(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("empty plan response")
	}

	var plan Plan
	if err := json.UnmarshalFromString(cleaned, &plan); err != nil {
		return nil, fmt.Errorf("failed to decode plan: %w", err)
	}

	switch plan.Outcome {
	case PlanOutcomeActed, PlanOutcomeNotFound, PlanOutcomeBlocked:
	case "":
		plan.Outcome = PlanOutcomeActed
	default:
		return nil, fmt.Errorf("unknown plan outcome %q", plan.Outcome)
	}

	for i, step := range plan.Steps {
		if err := validateStep(step); err != nil {
			return nil, fmt.Errorf("invalid step %d: %w", i, err)
		}
	}
	return &plan, nil
}

func validateStep(s Step) error {
	switch s.Kind {
	case StepNavigate:
		if s.Value == "" {
			return fmt.Errorf("navigate requires a url value")
		}
	case StepClick, StepSubmit:
		if s.Selector == "" {
			return fmt.Errorf("%s requires a selector", s.Kind)
		}
	case StepType:
		if s.Selector == "" {
			return fmt.Errorf("type requires a selector")
		}
	case StepWait:
		if s.Value == "" {
			return fmt.Errorf("wait requires a duration value")
		}
	default:
		return fmt.Errorf("unknown action %q", s.Kind)
	}
	return nil
}

// stripFences removes a surrounding markdown code fence, if any, and trims
// whitespace.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		// Drop the language tag line ("json").
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
