package document

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxRegexLength is the length cap for contains_is_regex patterns. Longer
// patterns are rejected at validation time.
const MaxRegexLength = 200

// Validate checks the document's structure: required metadata, unique rule
// ids, known enum values, and compilable regex patterns within the length
// cap. It returns a *ValidationError listing every problem found, or nil if
// the document is valid.
func Validate(doc *Document) error {
	var errs []string

	if doc.PolicyVersion == "" {
		errs = append(errs, "policy_version is required")
	}
	if doc.AutonomyMode == "" {
		errs = append(errs, "autonomy_mode is required")
	} else if !doc.AutonomyMode.Valid() {
		errs = append(errs, fmt.Sprintf("unknown autonomy_mode %q", doc.AutonomyMode))
	}

	if doc.Defaults.NoMatch != "" && !doc.Defaults.NoMatch.Valid() {
		errs = append(errs, fmt.Sprintf("unknown defaults.no_match %q", doc.Defaults.NoMatch))
	}
	if doc.Defaults.LowConfidence != "" && !doc.Defaults.LowConfidence.Valid() {
		errs = append(errs, fmt.Sprintf("unknown defaults.low_confidence %q", doc.Defaults.LowConfidence))
	}

	seen := make(map[string]bool, len(doc.Rules))
	for i, rule := range doc.Rules {
		prefix := fmt.Sprintf("rule %d", i)
		if rule.ID != "" {
			prefix = fmt.Sprintf("rule %q", rule.ID)
		}

		if rule.ID == "" {
			errs = append(errs, prefix+": id is required")
		} else if seen[rule.ID] {
			errs = append(errs, prefix+": duplicate rule id")
		}
		seen[rule.ID] = true

		errs = append(errs, validateMatch(prefix, rule.Match)...)

		if rule.Action.Type == "" {
			errs = append(errs, prefix+": action.type is required")
		} else if !rule.Action.Type.Valid() {
			errs = append(errs, fmt.Sprintf("%s: unknown action.type %q", prefix, rule.Action.Type))
		}
		if rule.MaxAutoReplies < 0 {
			errs = append(errs, prefix+": max_auto_replies must not be negative")
		}
	}

	if len(errs) > 0 {
		return &ValidationError{PolicyName: doc.Name, Errors: errs}
	}
	return nil
}

func validateMatch(prefix string, m MatchCriteria) []string {
	var errs []string

	for _, pt := range m.PromptTypes {
		if !pt.Valid() {
			errs = append(errs, fmt.Sprintf("%s: unknown prompt_type %q", prefix, pt))
		}
	}
	if m.MinConfidence != "" && !m.MinConfidence.Valid() {
		errs = append(errs, fmt.Sprintf("%s: unknown min_confidence %q", prefix, m.MinConfidence))
	}

	if m.ContainsIsRegex && m.Contains != "" {
		if len(m.Contains) > MaxRegexLength {
			errs = append(errs, fmt.Sprintf("%s: regex pattern exceeds %d characters", prefix, MaxRegexLength))
		} else if err := checkPattern(m.Contains); err != nil {
			errs = append(errs, fmt.Sprintf("%s: invalid regex pattern: %v", prefix, err))
		}
	}

	return errs
}

// checkPattern rejects patterns that do not compile under RE2 semantics and
// patterns using backreferences. RE2 has no backreference support, so an
// explicit check keeps the error message specific instead of surfacing a
// generic escape-sequence failure.
func checkPattern(pattern string) error {
	if hasBackreference(pattern) {
		return fmt.Errorf("backreferences are not supported")
	}
	_, err := regexp.Compile(pattern)
	return err
}

func hasBackreference(pattern string) bool {
	for i := 0; i+1 < len(pattern); i++ {
		if pattern[i] != '\\' {
			continue
		}
		next := pattern[i+1]
		if next == '\\' {
			i++ // escaped backslash, skip the pair
			continue
		}
		if strings.ContainsRune("123456789", rune(next)) {
			return true
		}
	}
	return false
}
