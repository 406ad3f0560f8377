package chronos

import (
	"fmt"
	"regexp"
	"strings"
)

// MatchOp is the comparison a Matcher applies to a label value.
type MatchOp uint8

const (
	MatchEqual MatchOp = iota
	MatchNotEqual
	MatchRegexp
	MatchNotRegexp
	MatchPrefix
	MatchSuffix
)

// String returns the operator in selector syntax.
func (op MatchOp) String() string {
	switch op {
	case MatchEqual:
		return "="
	case MatchNotEqual:
		return "!="
	case MatchRegexp:
		return "=~"
	case MatchNotRegexp:
		return "!~"
	case MatchPrefix:
		return "=^"
	case MatchSuffix:
		return "=$"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(op))
	}
}

// Matcher is a predicate over the values of one label, used to select
// series from the index.
type Matcher struct {
	Op    MatchOp
	Name  string
	Value string

	re *regexp.Regexp
}

// NewMatcher builds a matcher, compiling the regular expression for
// regexp operators. Regexps are anchored at both ends.
func NewMatcher(op MatchOp, name, value string) (*Matcher, error) {
	m := &Matcher{Op: op, Name: name, Value: value}
	if op == MatchRegexp || op == MatchNotRegexp {
		re, err := regexp.Compile("^(?:" + value + ")$")
		if err != nil {
			return nil, fmt.Errorf("invalid regexp for label %q: %w", name, err)
		}
		m.re = re
	}
	return m, nil
}

// MustMatcher is NewMatcher for statically known expressions.
func MustMatcher(op MatchOp, name, value string) *Matcher {
	m, err := NewMatcher(op, name, value)
	if err != nil {
		panic(err)
	}
	return m
}

func (m *Matcher) String() string {
	return fmt.Sprintf("%s%s%q", m.Name, m.Op, m.Value)
}

// Matches reports whether the predicate accepts the given label value.
func (m *Matcher) Matches(value string) bool {
	switch m.Op {
	case MatchEqual:
		return value == m.Value
	case MatchNotEqual:
		return value != m.Value
	case MatchRegexp:
		return m.re.MatchString(value)
	case MatchNotRegexp:
		return !m.re.MatchString(value)
	case MatchPrefix:
		return strings.HasPrefix(value, m.Value)
	case MatchSuffix:
		return strings.HasSuffix(value, m.Value)
	default:
		return false
	}
}

// isNegative reports whether the operator inverts its match. Negation
// applies to the per-value decision during index scans, not to the
// accumulated bitmap.
func (m *Matcher) isNegative() bool {
	return m.Op == MatchNotEqual || m.Op == MatchNotRegexp
}

// matchesAll reports whether the predicate accepts every value, which
// lets evaluation skip per-value checks and union the whole label.
func (m *Matcher) matchesAll() bool {
	switch m.Op {
	case MatchPrefix:
		return m.Value == ""
	case MatchRegexp:
		return m.Value == ".*"
	case MatchNotEqual, MatchNotRegexp:
		return false
	default:
		return false
	}
}

// matchesNone reports whether the predicate can never accept a value.
func (m *Matcher) matchesNone() bool {
	return m.Op == MatchNotRegexp && m.Value == ".*"
}
