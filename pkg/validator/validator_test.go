package validator

import (
	"errors"
	"regexp/syntax"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var messages = []string{
	"",
	"Hello World",
	"ORDER: BUY EURUSD 100 60",
	"ORDER: BUY GBPUSD 100 60",
	`42["successopenOrder",{"id":"a1"}]`,
	"abcdef",
	"xabc",
}

func sampleTrees(t *testing.T) []Validator {
	t.Helper()
	re, err := Regex(`EUR|GBP`)
	require.NoError(t, err)
	return []Validator{
		New(),
		re,
		StartsWith("ORDER:"),
		EndsWith("60"),
		Contains("World"),
		All(),
		Any(),
		All(StartsWith("ORDER:"), Contains("EURUSD")),
		Any(Contains("Hello"), Not(re)),
		Not(All(Any(), StartsWith("x"))),
	}
}

func TestLeaves(t *testing.T) {
	tests := []struct {
		name string
		v    Validator
		msg  string
		want bool
	}{
		{"match_any_empty", New(), "", true},
		{"match_any_text", MatchAny(), "anything", true},
		{"starts_with", StartsWith("Hello"), "Hello World", true},
		{"starts_with_miss", StartsWith("Hello"), "World Hello", false},
		{"ends_with", EndsWith("World"), "Hello World", true},
		{"ends_with_miss", EndsWith("World"), "World Hello", false},
		{"contains", Contains("World"), "Hello World", true},
		{"contains_case_sensitive", Contains("world"), "Hello World", false},
		{"empty_literal_always_matches", Contains(""), "x", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.v.Check(tt.msg))
		})
	}
}

func TestRegex(t *testing.T) {
	t.Run("anchored prefix", func(t *testing.T) {
		v, err := Regex("^abc")
		require.NoError(t, err)
		assert.True(t, v.Check("abcdef"))
		assert.False(t, v.Check("xabc"))
	})

	t.Run("unanchored search", func(t *testing.T) {
		v, err := Regex(`\d{3}`)
		require.NoError(t, err)
		assert.True(t, v.Check("BUY EURUSD 100 60"))
		assert.False(t, v.Check("BUY EURUSD 10 60"))
	})

	t.Run("unbalanced group is a pattern error", func(t *testing.T) {
		_, err := Regex("(")
		require.Error(t, err)

		var perr *PatternError
		require.True(t, errors.As(err, &perr))
		assert.Equal(t, "(", perr.Pattern)

		var serr *syntax.Error
		assert.True(t, errors.As(err, &serr))
	})

	t.Run("must regex panics on invalid pattern", func(t *testing.T) {
		assert.Panics(t, func() { MustRegex("[") })
		assert.NotPanics(t, func() { MustRegex("ok") })
	})
}

func TestCombinatorIdentities(t *testing.T) {
	for _, m := range messages {
		assert.True(t, All().Check(m), "All() on %q", m)
		assert.False(t, Any().Check(m), "Any() on %q", m)
	}
}

func TestCombinatorLaws(t *testing.T) {
	trees := sampleTrees(t)
	for _, p1 := range trees {
		for _, p2 := range trees {
			for _, m := range messages {
				assert.Equal(t, !p1.Check(m), Not(p1).Check(m), "not %s on %q", p1, m)
				assert.Equal(t, p1.Check(m) || p2.Check(m), Any(p1, p2).Check(m), "any(%s,%s) on %q", p1, p2, m)
				assert.Equal(t, p1.Check(m) && p2.Check(m), All(p1, p2).Check(m), "all(%s,%s) on %q", p1, p2, m)
			}
		}
	}
}

func TestOrderValidatorEndToEnd(t *testing.T) {
	v := All(StartsWith("ORDER:"), Contains("EURUSD"))
	assert.True(t, v.Check("ORDER: BUY EURUSD 100 60"))
	assert.False(t, v.Check("ORDER: BUY GBPUSD 100 60"))
	assert.True(t, v.CheckBytes([]byte("ORDER: SELL EURUSD 5 30")))
}

func TestChildrenAreCopied(t *testing.T) {
	children := []Validator{StartsWith("a"), StartsWith("b")}
	v := Any(children...)
	children[0] = StartsWith("z")

	assert.True(t, v.Check("apple"))
	assert.False(t, v.Check("zebra"))
}

func TestEqualAndString(t *testing.T) {
	a := All(StartsWith("ORDER:"), Not(MustRegex(`GBP\w+`)))
	b := All(StartsWith("ORDER:"), Not(MustRegex(`GBP\w+`)))
	c := All(StartsWith("ORDER:"), Not(MustRegex(`EUR\w+`)))

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, All().Equal(Any()))
	assert.True(t, New().Equal(Validator{}))
	assert.True(t, New().IsMatchAny())

	assert.Equal(t, `all(starts_with("ORDER:"),not(regex("GBP\\w+")))`, a.String())
	assert.Equal(t, "match_any()", New().String())
}
