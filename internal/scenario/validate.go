package scenario

import (
	"fmt"
	"regexp"
	"time"
)

// Validate checks that an expanded scenario is executable.
func Validate(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("scenario %q: steps list is required and must be non-empty", s.Name)
	}
	for i, step := range s.Steps {
		if err := validateStep(step); err != nil {
			return fmt.Errorf("scenario %q: steps[%d]: %w", s.Name, i, err)
		}
	}
	return nil
}

func validateStep(step Step) error {
	if step.Use != "" {
		return fmt.Errorf("unexpanded use %q", step.Use)
	}
	if err := validateTiming(step.Timeout, step.Poll); err != nil {
		return err
	}
	if step.Target != nil {
		if err := step.Target.Validate(); err != nil {
			return fmt.Errorf("target: %w", err)
		}
	}

	switch step.Action {
	case ActionNavigate:
		if step.Value == "" {
			return fmt.Errorf("value (URL) is required for navigate")
		}
		if step.Target != nil {
			return fmt.Errorf("navigate does not take a target")
		}
	case ActionType:
		if step.Target == nil {
			return fmt.Errorf("target is required for type")
		}
		if step.Value == "" && !step.Clear {
			return fmt.Errorf("value is required for type")
		}
	case ActionClick:
		if step.Target == nil {
			return fmt.Errorf("target is required for click")
		}
	case ActionSelect:
		if step.Target == nil {
			return fmt.Errorf("target is required for select")
		}
		if step.Value == "" {
			return fmt.Errorf("value (option) is required for select")
		}
	case ActionWaitFor:
		if step.Target == nil && step.Expect == nil {
			return fmt.Errorf("wait-for requires expect or target")
		}
	case "":
		return fmt.Errorf("action is required")
	default:
		return fmt.Errorf("unknown action %q", step.Action)
	}

	if step.Expect != nil {
		if err := validateCondition(*step.Expect); err != nil {
			return fmt.Errorf("expect: %w", err)
		}
	}
	return nil
}

func validateCondition(c Condition) error {
	if err := validateTiming(c.Timeout, c.Poll); err != nil {
		return err
	}
	switch c.Since {
	case "", SinceStep, SinceSession:
	default:
		return fmt.Errorf("since must be %q or %q, got %q", SinceStep, SinceSession, c.Since)
	}
	if c.Since != "" && c.Kind != RequestMade {
		return fmt.Errorf("since applies only to %s", RequestMade)
	}
	switch c.Kind {
	case ElementExists, ElementVisible, ElementAbsent:
		if c.Target == nil {
			return fmt.Errorf("target is required for %s", c.Kind)
		}
		if err := c.Target.Validate(); err != nil {
			return fmt.Errorf("target: %w", err)
		}
	case URLContains:
		if c.Value == "" {
			return fmt.Errorf("value is required for %s", c.Kind)
		}
	case RequestMade:
		if c.Value == "" {
			return fmt.Errorf("value (URL pattern) is required for %s", c.Kind)
		}
		if !hasPlaceholder(c.Value) {
			if _, err := regexp.Compile(c.Value); err != nil {
				return fmt.Errorf("invalid URL pattern: %w", err)
			}
		}
	case "":
		return fmt.Errorf("kind is required")
	default:
		return fmt.Errorf("unknown condition kind %q", c.Kind)
	}
	return nil
}

func validateTiming(timeout, poll *time.Duration) error {
	if timeout != nil && *timeout < 0 {
		return fmt.Errorf("timeout must be non-negative, got %s", *timeout)
	}
	if poll != nil && *poll <= 0 {
		return fmt.Errorf("poll must be positive, got %s", *poll)
	}
	return nil
}
