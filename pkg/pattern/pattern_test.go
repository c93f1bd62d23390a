package pattern

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicetyped/rivebot/pkg/lexicon"
)

func testLexicon() *lexicon.Store {
	lex := lexicon.NewStore()
	lex.Define(lexicon.KindArray, "colors", "red", "light blue", "green")
	lex.Define(lexicon.KindArray, "empty")
	lex.Define(lexicon.KindVar, "name", "Aiden")
	return lex
}

func mustCompile(t *testing.T, source string) *Pattern {
	t.Helper()
	p, err := Compile(source, testLexicon())
	require.NoError(t, err, "compile %q", source)
	return p
}

func match(t *testing.T, p *Pattern, input string) ([]string, bool) {
	t.Helper()
	caps, ok, err := p.Match(strings.Fields(input), 0)
	require.NoError(t, err)
	return caps, ok
}

func TestMatchTable(t *testing.T) {
	tests := []struct {
		pattern string
		input   string
		ok      bool
		caps    []string
	}{
		{"hello bot", "hello bot", true, []string{}},
		{"hello bot", "hello", false, nil},
		{"i like @colors", "i like light blue", true, []string{"light blue"}},
		{"i like @colors", "i like plaid", false, nil},
		{"i like (@colors)", "i like red", true, []string{"red"}},
		{"* and *", "bread and butter and jam", true, []string{"bread and butter", "jam"}},
		{"i am # years old", "i am 42 years old", true, []string{"42"}},
		{"i am # years old", "i am old years old", false, nil},
		{"my name is _", "my name is bob", true, []string{"bob"}},
		{"my name is _", "my name is r2d2", false, nil},
		{"how [are] you", "how you", true, []string{}},
		{"how [are] you", "how are you", true, []string{}},
		{"[*] hello [*]", "hello", true, []string{"", ""}},
		{"[*] hello [*]", "well hello there", true, []string{"well", "there"}},
		{"(i am|i) happy", "i am happy", true, []string{"i am"}},
		{"(i am|i) happy", "i happy", true, []string{"i"}},
		{"i like [@colors] things", "i like things", true, []string{}},
		{"i like [@colors] things", "i like light blue things", true, []string{}},
		{"<bot name> rocks", "aiden rocks", true, []string{}},
		{"*", "anything at all", true, []string{"anything at all"}},
		{"*", "", false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.pattern+"/"+tt.input, func(t *testing.T) {
			p := mustCompile(t, tt.pattern)
			caps, ok := match(t, p, tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.caps, caps)
			}
		})
	}
}

func TestCompileRanking(t *testing.T) {
	p := mustCompile(t, "{weight=10} hello * (a|b) [c] #")
	assert.Equal(t, 10, p.Priority)
	assert.Equal(t, 2, p.Literals)
	assert.Equal(t, 2, p.Wildcards)
	assert.Equal(t, 1, p.OpenWildcards)
	assert.Equal(t, 3, p.Captures)
	assert.Equal(t, "{weight=10} hello * (a|b) [c] #", p.String())
}

func TestCompileChoicesLongestFirst(t *testing.T) {
	p := mustCompile(t, "(a|b c|d|e f g)")
	require.Len(t, p.Segments, 1)
	assert.Equal(t, [][]string{{"e", "f", "g"}, {"b", "c"}, {"a"}, {"d"}}, p.Segments[0].Choices)
}

func TestCompileDeterministic(t *testing.T) {
	sources := []string{
		"i like @colors",
		"[*] (hello|hi there) [bot] *",
		"{weight=5} my name is _ and i am #",
	}
	for _, src := range sources {
		a := mustCompile(t, src)
		b := mustCompile(t, src)
		if diff := cmp.Diff(a, b); diff != "" {
			t.Errorf("Compile(%q) not deterministic (-first +second):\n%s", src, diff)
		}
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		source string
		reason string
	}{
		{"i like @plaid", "undeclared array"},
		{"i like @empty", "no members"},
		{"hello (there", "unterminated"},
		{"hello [there", "unterminated"},
		{"hello there)", "unexpected"},
		{"hello there]", "unexpected"},
		{"hello | there", "outside a group"},
		{"hello ()", "empty group"},
		{"hello (a||b)", "empty alternative"},
		{"hello (a|)", "empty alternative"},
		{"hello (a (b))", "nested group"},
		{"hello (a|*)", "wildcard"},
		{"", "empty pattern"},
		{"   ", "empty pattern"},
		{"{weight=10}", "empty pattern"},
		{"{weight=high} hi", "invalid weight"},
		{"hello @", "missing array name"},
	}
	for _, tt := range tests {
		t.Run(tt.source, func(t *testing.T) {
			_, err := Compile(tt.source, testLexicon())
			require.Error(t, err)
			var cerr *CompileError
			require.True(t, errors.As(err, &cerr), "want *CompileError, got %T", err)
			assert.Equal(t, tt.source, cerr.Source)
			assert.Contains(t, cerr.Reason, tt.reason)
		})
	}
}

func TestCompileNilResolver(t *testing.T) {
	p, err := Compile("<bot name> hi", nil)
	require.NoError(t, err)
	assert.Equal(t, "undefined", p.Segments[0].Word)

	_, err = Compile("@colors", nil)
	require.Error(t, err)
}

func TestMatchTimeout(t *testing.T) {
	p := mustCompile(t, "* * * * * * * * * * x")
	input := strings.Fields(strings.Repeat("a ", 40))

	_, ok, err := p.Match(input, 1000)
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrMatchTimeout)
}

func TestMatchBudgetIsPerCall(t *testing.T) {
	p := mustCompile(t, "hello *")
	for i := 0; i < 3; i++ {
		_, ok, err := p.Match([]string{"hello", "there"}, 5)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}
