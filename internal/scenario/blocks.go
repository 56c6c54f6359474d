package scenario

import (
	"fmt"
	"slices"
	"strings"
)

// maxBlockDepth bounds nested "use" expansion.
const maxBlockDepth = 16

// expandSteps replaces every "use" step with the referenced block's steps,
// substituting ${param.X} placeholders with the step's "with" arguments.
// Fixture placeholders are left for Bind.
func expandSteps(steps []Step, blocks map[string][]Step) ([]Step, error) {
	return expand(steps, blocks, nil)
}

func expand(steps []Step, blocks map[string][]Step, stack []string) ([]Step, error) {
	if len(stack) > maxBlockDepth {
		return nil, fmt.Errorf("block nesting exceeds %d levels: %s", maxBlockDepth, strings.Join(stack, " -> "))
	}

	out := make([]Step, 0, len(steps))
	for i, step := range steps {
		if step.Use == "" {
			out = append(out, step)
			continue
		}
		if step.Action != "" || step.Target != nil || step.Expect != nil || step.Value != "" {
			return nil, fmt.Errorf("step %d: use %q cannot be combined with action, target, value or expect", i, step.Use)
		}
		if slices.Contains(stack, step.Use) {
			return nil, fmt.Errorf("step %d: block cycle: %s -> %s", i, strings.Join(stack, " -> "), step.Use)
		}
		body, ok := blocks[step.Use]
		if !ok {
			return nil, fmt.Errorf("step %d: unknown block %q", i, step.Use)
		}

		bound := make([]Step, len(body))
		for j, inner := range body {
			b, err := bindParams(inner, step.With)
			if err != nil {
				return nil, fmt.Errorf("step %d (block %q, step %d): %w", i, step.Use, j, err)
			}
			bound[j] = b
		}

		nested, err := expand(bound, blocks, append(slices.Clone(stack), step.Use))
		if err != nil {
			return nil, fmt.Errorf("step %d (block %q): %w", i, step.Use, err)
		}
		out = append(out, nested...)
	}
	return out, nil
}

// bindParams substitutes ${param.X} placeholders from args and leaves every
// other placeholder untouched.
func bindParams(step Step, args map[string]string) (Step, error) {
	return step.mapStrings(func(v string) (string, error) {
		return substitute(v, func(ns, key string) (string, bool) {
			if ns != ParamNamespace {
				return "${" + ns + "." + key + "}", true
			}
			val, ok := args[key]
			return val, ok
		})
	})
}
