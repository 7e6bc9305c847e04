// Package rule models the stored match-rules evaluated against incoming
// documents. Rules are configuration-derived, immutable after creation, and
// replaced wholesale on resync rather than patched.
package rule

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/streamtag/streamtag/internal/domain"
	"github.com/streamtag/streamtag/internal/domain/activity"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Policy is how a clause combines with its siblings inside one rule.
type Policy int

// Clause combination policies.
const (
	Must Policy = iota
	Should
	MustNot
)

// String returns the configuration spelling of the policy.
func (p Policy) String() string {
	switch p {
	case Must:
		return "must"
	case Should:
		return "should"
	case MustNot:
		return "must_not"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy converts a configuration string into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "", "must":
		return Must, nil
	case "should":
		return Should, nil
	case "must_not":
		return MustNot, nil
	default:
		return Must, fmt.Errorf("unknown combination policy %q: %w", s, domain.ErrInvalidConfig)
	}
}

// Clause is one match expression within a rule: an opaque store-dialect
// query scoped to a field set. An empty field set targets the catch-all
// field, matching the whole document.
type Clause struct {
	query  string
	fields []string
	policy Policy
}

// NewClause validates and creates a clause.
func NewClause(query string, policy Policy, fields ...string) (Clause, error) {
	if strings.TrimSpace(query) == "" {
		return Clause{}, fmt.Errorf("clause query is required: %w", domain.ErrInvalidConfig)
	}
	return Clause{query: query, fields: fields, policy: policy}, nil
}

// Query returns the match expression.
func (c Clause) Query() string { return c.query }

// Fields returns the targeted field names; empty means the catch-all field.
func (c Clause) Fields() []string { return c.fields }

// Policy returns the combination policy.
func (c Clause) Policy() Policy { return c.policy }

// source renders the clause as a store query fragment.
func (c Clause) source() string {
	fields := c.fields
	if len(fields) == 0 {
		fields = []string{activity.CatchAllField}
	}
	return fmt.Sprintf("@%s:(%s)", strings.Join(fields, "|"), c.query)
}

// Rule is one named match-rule: a unique id within an index namespace plus
// one or more clauses.
type Rule struct {
	id      string
	clauses []Clause
}

// New creates a rule with a single must-match clause over the catch-all
// field, the common configuration shape.
func New(id, query string) (Rule, error) {
	c, err := NewClause(query, Must)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %q: %w", id, err)
	}
	return Compose(id, c)
}

// Compose creates a rule from explicit clauses.
func Compose(id string, clauses ...Clause) (Rule, error) {
	if id == "" {
		return Rule{}, fmt.Errorf("rule id is required: %w", domain.ErrInvalidConfig)
	}
	if !idRegex.MatchString(id) {
		return Rule{}, fmt.Errorf("rule id %q must be alphanumeric with underscores and hyphens: %w",
			id, domain.ErrInvalidConfig)
	}
	if len(clauses) == 0 {
		return Rule{}, fmt.Errorf("rule %q: at least one clause is required: %w", id, domain.ErrInvalidConfig)
	}
	return Rule{id: id, clauses: clauses}, nil
}

// ID returns the rule identifier.
func (r Rule) ID() string { return r.id }

// Clauses returns the rule's clauses.
func (r Rule) Clauses() []Clause { return r.clauses }

// Source renders the rule as one store query expression: must clauses are
// conjoined, should clauses grouped into one alternation, must-not clauses
// negated. A rule with only negative clauses is anchored on a wildcard so
// the query stays valid.
func (r Rule) Source() string {
	var musts, shoulds, nots []string
	for _, c := range r.clauses {
		switch c.policy {
		case Must:
			musts = append(musts, c.source())
		case Should:
			shoulds = append(shoulds, c.source())
		case MustNot:
			nots = append(nots, "-"+c.source())
		}
	}

	var parts []string
	parts = append(parts, musts...)
	if len(shoulds) == 1 {
		parts = append(parts, shoulds[0])
	} else if len(shoulds) > 1 {
		parts = append(parts, "("+strings.Join(shoulds, "|")+")")
	}
	if len(parts) == 0 {
		parts = append(parts, "*")
	}
	parts = append(parts, nots...)

	return strings.Join(parts, " ")
}

// Set is the desired mapping from rule id to rule.
type Set map[string]Rule

// NewSet builds a set from rules, rejecting duplicate ids.
func NewSet(rules ...Rule) (Set, error) {
	s := make(Set, len(rules))
	for _, r := range rules {
		if _, dup := s[r.id]; dup {
			return nil, fmt.Errorf("duplicate rule id %q: %w", r.id, domain.ErrInvalidConfig)
		}
		s[r.id] = r
	}
	return s, nil
}

// IDs returns the rule ids in deterministic order.
func (s Set) IDs() []string {
	ids := make([]string, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Rules returns the rules ordered by id.
func (s Set) Rules() []Rule {
	rules := make([]Rule, 0, len(s))
	for _, id := range s.IDs() {
		rules = append(rules, s[id])
	}
	return rules
}
