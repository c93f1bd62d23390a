package brain

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voicetyped/rivebot/pkg/pattern"
	"github.com/voicetyped/rivebot/pkg/script"
	"github.com/voicetyped/rivebot/pkg/session"
)

func parse(t *testing.T, src string) *script.Script {
	t.Helper()
	s, err := script.Parse("test.rive", strings.NewReader(src))
	require.NoError(t, err)
	return s
}

func build(t *testing.T, src string) *Brain {
	t.Helper()
	b, err := Build([]*script.Script{parse(t, src)}, BuildOptions{})
	require.NoError(t, err)
	return b
}

func patterns(triggers []*Trigger) []string {
	out := make([]string, len(triggers))
	for i, t := range triggers {
		out[i] = t.Pattern.Source
	}
	return out
}

func TestRankingTotalOrder(t *testing.T) {
	b := build(t, `
+ *
- star

+ hello *
- hello star

+ hello bot
- hello bot

+ {weight=5} * bot
- weighted

+ hello _
- hello alpha

+ [*] hello [*]
- optional hello

+ (hi|hey) there bot
- greeting
`)

	ranked := b.Ranked("random")
	assert.Equal(t, []string{
		"{weight=5} * bot",
		"(hi|hey) there bot",
		"hello bot",
		"hello _",
		"hello *",
		"[*] hello [*]",
		"*",
	}, patterns(ranked))

	for i := range ranked {
		for j := range ranked {
			if i == j {
				continue
			}
			if higherRank(ranked[i], ranked[j]) == higherRank(ranked[j], ranked[i]) {
				t.Errorf("%q and %q are not strictly ordered", ranked[i].ID, ranked[j].ID)
			}
			if i < j && !higherRank(ranked[i], ranked[j]) {
				t.Errorf("%q should rank above %q", ranked[i].ID, ranked[j].ID)
			}
		}
	}
}

func TestDeclarationOrderBreaksTies(t *testing.T) {
	b := build(t, `
+ tell me about *
- first

+ tell me about *
% something
- constrained

+ talk about my *
- second
`)
	ranked := b.Ranked("random")
	require.Len(t, ranked, 3)
	assert.NotNil(t, ranked[0].Previous, "previous-constrained triggers rank first")
	assert.Equal(t, "tell me about *", ranked[1].Pattern.Source)
	assert.Equal(t, "talk about my *", ranked[2].Pattern.Source)
}

func TestPreviousExclusionFromCandidates(t *testing.T) {
	b := build(t, `
+ knock knock
- Who's there?

+ *
% who's there
- <star> who?

+ *
- I don't understand.
`)
	sess := session.NewSession("u1", 0)

	cands := b.Candidates("random", sess)
	for _, c := range cands {
		assert.Nil(t, c.Trigger.Previous, "constrained trigger %q must be absent", c.Trigger.ID)
	}
	assert.Len(t, cands, 2)

	sess.Advance(session.Turn{Input: "knock knock", Reply: "Who's there?"})
	cands = b.Candidates("random", sess)
	require.Len(t, cands, 3)
	assert.NotNil(t, cands[0].Trigger.Previous)
	assert.Equal(t, []string{}, cands[0].BotCaptures)

	m, err := b.Match("random", "banana", sess)
	require.NoError(t, err)
	assert.Equal(t, "random/* %who's there", m.Trigger.ID)
	assert.Equal(t, []string{"banana"}, m.Captures)
}

func TestIncludesAndInherits(t *testing.T) {
	b := build(t, `
> topic base
+ help
- base help

+ *
- base catch-all
< topic

> topic child inherits base
+ hello
- child hello

+ *
- child catch-all
< topic

> topic merged includes base
+ *
- merged catch-all
< topic
`)
	assert.Equal(t, []string{"hello", "*", "help", "*"}, patterns(b.Ranked("child")))

	sess := session.NewSession("u1", 0)
	m, err := b.Match("child", "help", sess)
	require.NoError(t, err)
	assert.Equal(t, "child/*", m.Trigger.ID, "inherited triggers rank after every own trigger")

	m, err = b.Match("merged", "help", sess)
	require.NoError(t, err)
	assert.Equal(t, "base/help", m.Trigger.ID, "included triggers merge into the ranking")
}

func TestMatchUnknownTopicFallsBack(t *testing.T) {
	b := build(t, "+ hello\n- hi\n")
	m, err := b.Match("ghost", "hello", session.NewSession("u1", 0))
	require.NoError(t, err)
	assert.Equal(t, "random", m.Topic)
}

func TestMatchNoMatch(t *testing.T) {
	b := build(t, "+ hello\n- hi\n")
	m, err := b.Match("random", "goodbye", session.NewSession("u1", 0))
	assert.ErrorIs(t, err, ErrNoMatch)
	require.NotNil(t, m)
	assert.Nil(t, m.Trigger)
}

func TestMatchTimeoutIsSkipped(t *testing.T) {
	s := parse(t, `
+ {weight=10} * * * * * * x
- never

+ * lol
- fallback
`)
	b, err := Build([]*script.Script{s}, BuildOptions{MaxMatchSteps: 50})
	require.NoError(t, err)

	input := strings.Repeat("a ", 20) + "lol"
	m, err := b.Match("random", input, session.NewSession("u1", 0))
	require.NoError(t, err)
	assert.Equal(t, "random/* lol", m.Trigger.ID)
	assert.Equal(t, []string{"random/{weight=10} * * * * * * x"}, m.Timeouts)
}

func TestBuildSkipsBadTriggers(t *testing.T) {
	s := parse(t, `
! array colors = red blue

+ i like @plaid
- never

+ i like @colors
- me too

+ broken (group
- never

+ empty trigger

+ how old
* <get age> is 5 => bad condition
- fine
`)
	b, err := Build([]*script.Script{s}, BuildOptions{})
	require.Error(t, err)

	var cerr *CompileErrors
	require.True(t, errors.As(err, &cerr))
	assert.Len(t, cerr.Issues, 4)

	var perr *pattern.CompileError
	assert.True(t, errors.As(err, &perr), "pattern errors are reachable through CompileErrors")

	require.NotNil(t, b)
	assert.Equal(t, []string{"i like @colors"}, patterns(b.Ranked("random")))
}

func TestBuildDuplicateTrigger(t *testing.T) {
	s := parse(t, "+ hi\n- one\n+ hi\n- two\n")
	b, err := Build([]*script.Script{s}, BuildOptions{})
	var cerr *CompileErrors
	require.True(t, errors.As(err, &cerr))
	assert.Contains(t, cerr.Issues[0].Error(), "duplicate trigger")
	assert.Len(t, b.Ranked("random"), 1)
}

func TestBuildAcrossFiles(t *testing.T) {
	defs := parse(t, "! array colors = red blue\n! var name = Aiden\n")
	chat := parse(t, "+ i like @colors\n- ok\n> topic games\n+ play\n- sure\n< topic\n")
	more := parse(t, "> topic games\n+ stop\n- fine\n< topic\n")

	b, err := Build([]*script.Script{chat, defs, more}, BuildOptions{})
	require.NoError(t, err)

	games, ok := b.Topic("games")
	require.True(t, ok)
	assert.Len(t, games.Triggers, 2)
	assert.Equal(t, []string{"games", "random"}, b.TopicNames())
	assert.Equal(t, Stats{Files: 3, Topics: 2, Triggers: 3}, b.Stats())
	assert.Equal(t, "Aiden", b.Lexicon().Var("name"))
}

func TestParseCondition(t *testing.T) {
	tests := []struct {
		in   string
		want Condition
	}{
		{"<get age> >= 18 => adult", Condition{Left: "<get age>", Op: ">=", Right: "18", Reply: "adult"}},
		{"<get name> == undefined => who?", Condition{Left: "<get name>", Op: "==", Right: "undefined", Reply: "who?"}},
		{"<bot mood> ne happy => sad", Condition{Left: "<bot mood>", Op: "ne", Right: "happy", Reply: "sad"}},
		{"<get x> < 5 => small", Condition{Left: "<get x>", Op: "<", Right: "5", Reply: "small"}},
	}
	for _, tt := range tests {
		got, err := parseCondition(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := parseCondition("no arrow here")
	assert.Error(t, err)
}

func TestEvalCondition(t *testing.T) {
	tests := []struct {
		left, op, right string
		want            bool
	}{
		{"5", "==", "5.0", true},
		{"abc", "eq", "abc", true},
		{"abc", "!=", "abd", true},
		{"abc", "<>", "abc", false},
		{"10", ">", "9", true},
		{"10", "<=", "9", false},
		{"abc", "<", "abd", false},
		{"undefined", "==", "undefined", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, evalCondition(tt.left, tt.op, tt.right), "%s %s %s", tt.left, tt.op, tt.right)
	}
}

func TestParseReplyWeight(t *testing.T) {
	assert.Equal(t, Reply{Text: "Hi there!", Weight: 3}, parseReply("Hi there!{weight=3}"))
	assert.Equal(t, Reply{Text: "plain", Weight: 1}, parseReply("plain"))
	assert.Equal(t, Reply{Text: "zero", Weight: 1}, parseReply("zero{weight=0}"))
}

func TestSplitArgs(t *testing.T) {
	assert.Equal(t, []string{"shout", "hello world", "x"}, splitArgs(`shout "hello world" x`))
	assert.Nil(t, splitArgs("   "))
}
