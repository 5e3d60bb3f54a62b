package proxy

import (
	"fmt"
	"regexp"
	"strings"
)

// Table is the ordered set of proxy rules consulted for every request.
// Rules are matched in registration order and the first match wins.
//
// A Table is built once at startup and then sealed; a sealed table is
// read-only and safe for concurrent use without locking.
type Table struct {
	rules  []*Rule
	index  map[string]int
	sealed bool
}

// NewTable returns an empty, unsealed routing table.
func NewTable() *Table {
	return &Table{index: make(map[string]int)}
}

// Register adds rule under prefix. A prefix beginning with "^" is compiled
// as a regular expression matched against the request path.
func (t *Table) Register(prefix string, rule Rule) error {
	if t.sealed {
		return ErrTableSealed
	}
	if strings.TrimSpace(prefix) == "" {
		return ErrEmptyPrefix
	}
	if _, ok := t.index[prefix]; ok {
		return &DuplicatePrefixError{Prefix: prefix}
	}
	if rule.Target == nil {
		return &InvalidTargetError{Prefix: prefix, Reason: "target is required"}
	}

	if strings.HasPrefix(prefix, "^") {
		re, err := regexp.Compile(prefix)
		if err != nil {
			return fmt.Errorf("proxy %q: compiling pattern: %w", prefix, err)
		}
		rule.pattern = re
	}
	if rule.Rewrite == nil {
		rule.Rewrite = Identity
		rule.RewriteName = "identity"
	}
	rule.Prefix = prefix

	t.index[prefix] = len(t.rules)
	t.rules = append(t.rules, &rule)
	return nil
}

// Seal freezes the table. Further calls to Register fail.
func (t *Table) Seal() {
	t.sealed = true
}

// Sealed reports whether Seal has been called.
func (t *Table) Sealed() bool {
	return t.sealed
}

// Len returns the number of registered rules.
func (t *Table) Len() int {
	return len(t.rules)
}

// Match returns the first rule whose prefix matches path.
func (t *Table) Match(path string) (*Rule, bool) {
	i := t.matchIndex(path)
	if i < 0 {
		return nil, false
	}
	return t.rules[i], true
}

// Lookup returns the rule registered under exactly prefix.
func (t *Table) Lookup(prefix string) (*Rule, bool) {
	i, ok := t.index[prefix]
	if !ok {
		return nil, false
	}
	return t.rules[i], true
}

// Rules returns a copy of the registered rules in match order.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	for i, r := range t.rules {
		out[i] = *r
	}
	return out
}

func (t *Table) matchIndex(path string) int {
	for i, r := range t.rules {
		if r.Matches(path) {
			return i
		}
	}
	return -1
}
