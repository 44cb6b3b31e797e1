// pkg/validator/validator.go

// Package validator implements composable predicates over raw text messages.
//
// A Validator is an immutable expression tree. Leaves test the message text
// (regex search, prefix, suffix, substring); inner nodes combine children with
// AND / OR / NOT. Trees are built once and evaluated many times: all failure
// modes live in the constructors, Check itself never fails.
package validator

import (
	"regexp"
	"strconv"
	"strings"
)

// -----------------------------------------------------------------------------
// Node kinds
// -----------------------------------------------------------------------------

type kind uint8

const (
	kindMatchAny kind = iota
	kindRegex
	kindStartsWith
	kindEndsWith
	kindContains
	kindAll
	kindAny
	kindNot
)

var kindNames = [...]string{
	kindMatchAny:   "match_any",
	kindRegex:      "regex",
	kindStartsWith: "starts_with",
	kindEndsWith:   "ends_with",
	kindContains:   "contains",
	kindAll:        "all",
	kindAny:        "any",
	kindNot:        "not",
}

func (k kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// -----------------------------------------------------------------------------
// Validator
// -----------------------------------------------------------------------------

// Validator is one node of a predicate tree. The zero value matches every
// message. Values are safe to copy and to share between goroutines.
type Validator struct {
	kind     kind
	text     string // literal for starts/ends/contains, source for regex
	re       *regexp.Regexp
	children []Validator
}

// New returns the validator that accepts any message.
func New() Validator { return Validator{} }

// MatchAny is an alias of New that reads better inside combinators.
func MatchAny() Validator { return Validator{} }

// Regex compiles pattern and returns a validator that reports whether the
// pattern matches anywhere in the message. Invalid syntax is rejected here
// with a *PatternError so that Check stays infallible.
func Regex(pattern string) (Validator, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Validator{}, &PatternError{Pattern: pattern, Err: err}
	}
	return Validator{kind: kindRegex, text: pattern, re: re}, nil
}

// MustRegex is like Regex but panics on an invalid pattern.
// Intended for package-level validators built from constant patterns.
func MustRegex(pattern string) Validator {
	v, err := Regex(pattern)
	if err != nil {
		panic(err)
	}
	return v
}

// StartsWith accepts messages with the given prefix.
func StartsWith(prefix string) Validator {
	return Validator{kind: kindStartsWith, text: prefix}
}

// EndsWith accepts messages with the given suffix.
func EndsWith(suffix string) Validator {
	return Validator{kind: kindEndsWith, text: suffix}
}

// Contains accepts messages containing substr.
func Contains(substr string) Validator {
	return Validator{kind: kindContains, text: substr}
}

// All accepts a message when every child accepts it. All() is true.
func All(children ...Validator) Validator {
	return Validator{kind: kindAll, children: cloneChildren(children)}
}

// Any accepts a message when at least one child accepts it. Any() is false.
func Any(children ...Validator) Validator {
	return Validator{kind: kindAny, children: cloneChildren(children)}
}

// Not negates child.
func Not(child Validator) Validator {
	return Validator{kind: kindNot, children: []Validator{child}}
}

// cloneChildren copies the caller's slice so later appends on it can never
// reach into an already built tree.
func cloneChildren(children []Validator) []Validator {
	if len(children) == 0 {
		return nil
	}
	out := make([]Validator, len(children))
	copy(out, children)
	return out
}

// Check reports whether msg satisfies the predicate tree.
func (v Validator) Check(msg string) bool {
	switch v.kind {
	case kindMatchAny:
		return true
	case kindRegex:
		return v.re.MatchString(msg)
	case kindStartsWith:
		return strings.HasPrefix(msg, v.text)
	case kindEndsWith:
		return strings.HasSuffix(msg, v.text)
	case kindContains:
		return strings.Contains(msg, v.text)
	case kindAll:
		for _, c := range v.children {
			if !c.Check(msg) {
				return false
			}
		}
		return true
	case kindAny:
		for _, c := range v.children {
			if c.Check(msg) {
				return true
			}
		}
		return false
	case kindNot:
		return !v.children[0].Check(msg)
	default:
		panic("validator: unknown node " + v.kind.String())
	}
}

// CheckBytes is Check for raw frame payloads.
func (v Validator) CheckBytes(msg []byte) bool {
	return v.Check(string(msg))
}

// IsMatchAny reports whether v is the accept-everything validator.
func (v Validator) IsMatchAny() bool { return v.kind == kindMatchAny }

// Equal reports structural equality: same node kinds, same literals and
// pattern sources, same children in the same order.
func (v Validator) Equal(other Validator) bool {
	if v.kind != other.kind || v.text != other.text || len(v.children) != len(other.children) {
		return false
	}
	for i := range v.children {
		if !v.children[i].Equal(other.children[i]) {
			return false
		}
	}
	return true
}

// String renders the tree in a compact functional form, e.g.
// all(starts_with("ORDER:"),contains("EURUSD")).
func (v Validator) String() string {
	var b strings.Builder
	v.write(&b)
	return b.String()
}

func (v Validator) write(b *strings.Builder) {
	b.WriteString(v.kind.String())
	b.WriteByte('(')
	switch v.kind {
	case kindRegex, kindStartsWith, kindEndsWith, kindContains:
		b.WriteString(strconv.Quote(v.text))
	case kindAll, kindAny, kindNot:
		for i, c := range v.children {
			if i > 0 {
				b.WriteByte(',')
			}
			c.write(b)
		}
	}
	b.WriteByte(')')
}
