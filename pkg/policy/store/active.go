package store

import (
	"regexp"
	"time"

	"atlasbridge-hq/atlasbridge/pkg/policy/document"
)

// ActivePolicy is an immutable compiled snapshot of a policy document. The
// matcher evaluates against a snapshot, so a swap mid-evaluation never
// changes the rules an in-flight prompt sees.
type ActivePolicy struct {
	// Document is the validated policy this snapshot was compiled from.
	Document *document.Document

	// Hash is the canonical content hash of Document. Decisions record it
	// so the trace shows which policy produced each outcome.
	Hash string

	// ActivatedAt is when this snapshot became active.
	ActivatedAt time.Time

	// regexes holds the pre-compiled patterns for rules using
	// contains_is_regex, keyed by rule id.
	regexes map[string]*regexp.Regexp
}

// compile validates the document and builds an immutable snapshot from a
// deep copy of it.
func compile(doc *document.Document) (*ActivePolicy, error) {
	if err := document.Validate(doc); err != nil {
		return nil, err
	}

	cloned := doc.Clone()
	hash, err := cloned.Hash()
	if err != nil {
		return nil, err
	}

	regexes := make(map[string]*regexp.Regexp)
	for _, rule := range cloned.Rules {
		if rule.Match.ContainsIsRegex && rule.Match.Contains != "" {
			// Validate already rejected uncompilable patterns.
			re, err := regexp.Compile(rule.Match.Contains)
			if err != nil {
				return nil, err
			}
			regexes[rule.ID] = re
		}
	}

	return &ActivePolicy{
		Document:    cloned,
		Hash:        hash,
		ActivatedAt: time.Now().UTC(),
		regexes:     regexes,
	}, nil
}

// Rules returns the evaluation sequence: rules in document order, minus
// those disabled in the document itself.
func (p *ActivePolicy) Rules() []*document.Rule {
	out := make([]*document.Rule, 0, len(p.Document.Rules))
	for _, rule := range p.Document.Rules {
		if rule.IsEnabled() {
			out = append(out, rule)
		}
	}
	return out
}

// Regex returns the compiled pattern for the given rule id, or nil when the
// rule does not use a regex predicate.
func (p *ActivePolicy) Regex(ruleID string) *regexp.Regexp {
	return p.regexes[ruleID]
}
