// ABOUTME: Argument validation against tool parameter lists
// ABOUTME: Checks required fields, JSON types, enums, ranges, lengths and email shape, then applies defaults

package tools

import (
	"errors"
	"fmt"
	"math"
	"net/mail"
	"strings"
	"unicode/utf8"
)

// ValidationError lists every problem found in a tool's arguments.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

// IsValidationError reports whether err came from argument validation.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate checks args against the tool's parameters. It returns a copy of
// args with defaults filled in. Unknown keys are dropped. JSON null counts as
// absent.
func (t *Tool) Validate(args map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(t.Params))
	var problems []string

	for _, p := range t.Params {
		v, ok := args[p.Name]
		if !ok || v == nil {
			if p.Required {
				problems = append(problems, p.Name+" is required")
			} else if p.Default != nil {
				out[p.Name] = p.Default
			}
			continue
		}

		if msg := checkParam(p, v); msg != "" {
			problems = append(problems, msg)
			continue
		}
		out[p.Name] = v
	}

	if len(t.AtLeastOneOf) > 0 && len(problems) == 0 {
		found := false
		for _, name := range t.AtLeastOneOf {
			if _, ok := out[name]; ok {
				found = true
				break
			}
		}
		if !found {
			problems = append(problems, "at least one of "+strings.Join(t.AtLeastOneOf, ", ")+" must be provided")
		}
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return out, nil
}

func checkParam(p Param, v any) string {
	switch p.Type {
	case String:
		s, ok := v.(string)
		if !ok {
			return p.Name + " must be a string"
		}
		n := utf8.RuneCountInString(s)
		if p.MinLength > 0 && n < p.MinLength {
			if p.MinLength == 1 {
				return p.Name + " must not be empty"
			}
			return fmt.Sprintf("%s must be at least %d characters", p.Name, p.MinLength)
		}
		if p.MaxLength > 0 && n > p.MaxLength {
			return fmt.Sprintf("%s must be at most %d characters", p.Name, p.MaxLength)
		}
		if len(p.Enum) > 0 && !contains(p.Enum, s) {
			return fmt.Sprintf("%s must be one of %s", p.Name, strings.Join(p.Enum, ", "))
		}
		if p.Format == FormatEmail && !isEmail(s) {
			return p.Name + " must be a valid email address"
		}

	case Number, Integer:
		f, ok := v.(float64)
		if !ok {
			if p.Type == Integer {
				return p.Name + " must be an integer"
			}
			return p.Name + " must be a number"
		}
		if p.Type == Integer && f != math.Trunc(f) {
			return p.Name + " must be an integer"
		}
		if msg := checkRange(p, f); msg != "" {
			return msg
		}

	case Boolean:
		if _, ok := v.(bool); !ok {
			return p.Name + " must be a boolean"
		}
	}
	return ""
}

func checkRange(p Param, f float64) string {
	switch {
	case p.Min != nil && p.Max != nil && (f < *p.Min || f > *p.Max):
		return fmt.Sprintf("%s must be between %g and %g", p.Name, *p.Min, *p.Max)
	case p.Min != nil && f < *p.Min:
		return fmt.Sprintf("%s must be at least %g", p.Name, *p.Min)
	case p.Max != nil && f > *p.Max:
		return fmt.Sprintf("%s must be at most %g", p.Name, *p.Max)
	}
	return ""
}

// isEmail accepts a bare address, rejecting display names and missing domains.
func isEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return false
	}
	at := strings.LastIndex(s, "@")
	return at > 0 && strings.Contains(s[at+1:], ".")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
