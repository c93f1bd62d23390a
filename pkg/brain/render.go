package brain

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/voicetyped/rivebot/pkg/lexicon"
)

const maxTagPasses = 32

var (
	starRe     = regexp.MustCompile(`<(bot)?star(\d*)>`)
	historyRe  = regexp.MustCompile(`<(input|reply)(\d*)>`)
	varTagRe   = regexp.MustCompile(`<(bot|env|get|set)\s+([^<>]*)>`)
	braceTagRe = regexp.MustCompile(`\{(person|formal|sentence|uppercase|lowercase|random)\}([^{}<]*)\{/(person|formal|sentence|uppercase|lowercase|random)\}`)
	redirectRe = regexp.MustCompile(`\{@([^{}]*)\}`)
	callRe     = regexp.MustCompile(`<call>(.*?)</call>`)
	topicTagRe = regexp.MustCompile(`\{topic=([^{}]*)\}`)
)

var shortcuts = strings.NewReplacer(
	"<person>", "{person}<star>{/person}",
	"<formal>", "{formal}<star>{/formal}",
	"<sentence>", "{sentence}<star>{/sentence}",
	"<uppercase>", "{uppercase}<star>{/uppercase}",
	"<lowercase>", "{lowercase}<star>{/lowercase}",
	"<@>", "{@<star>}",
)

// render expands every reply tag of text in the context of a match.
// Side effects (variable assignment, topic switch) are applied to the turn.
func (t *turn) render(text string, m *Match) string {
	text = replyWeightRe.ReplaceAllString(text, "")
	text = shortcuts.Replace(text)

	text = starRe.ReplaceAllStringFunc(text, func(tag string) string {
		sm := starRe.FindStringSubmatch(tag)
		caps := m.Captures
		if sm[1] != "" {
			caps = m.BotCaptures
		}
		return nth(caps, sm[2])
	})
	text = historyRe.ReplaceAllStringFunc(text, func(tag string) string {
		sm := historyRe.FindStringSubmatch(tag)
		n := 1
		if sm[2] != "" {
			n, _ = strconv.Atoi(sm[2])
		}
		if sm[1] == "input" {
			return t.sess.InputAt(n)
		}
		return t.sess.ReplyAt(n)
	})
	text = strings.ReplaceAll(text, "<id>", t.userID)
	text = strings.ReplaceAll(text, `\s`, " ")
	text = strings.ReplaceAll(text, `\n`, "\n")

	for i := 0; i < maxTagPasses; i++ {
		next := braceTagRe.ReplaceAllStringFunc(text, t.braceTag)
		next = varTagRe.ReplaceAllStringFunc(next, t.varTag)
		if next == text {
			break
		}
		text = next
	}

	text = redirectRe.ReplaceAllStringFunc(text, func(tag string) string {
		target := strings.TrimSpace(redirectRe.FindStringSubmatch(tag)[1])
		return t.reply(m.Topic, t.brain.Normalize(target), t.depth+1)
	})
	text = callRe.ReplaceAllStringFunc(text, func(tag string) string {
		return t.call(strings.TrimSpace(callRe.FindStringSubmatch(tag)[1]))
	})
	text = topicTagRe.ReplaceAllStringFunc(text, func(tag string) string {
		if name := strings.ToLower(strings.TrimSpace(topicTagRe.FindStringSubmatch(tag)[1])); name != "" {
			t.nextTopic = name
		}
		return ""
	})
	return text
}

// nth returns the 1-based capture named by index ("" means 1), or "".
func nth(caps []string, index string) string {
	n := 1
	if index != "" {
		var err error
		if n, err = strconv.Atoi(index); err != nil {
			return ""
		}
	}
	if n < 1 || n > len(caps) {
		return ""
	}
	return caps[n-1]
}

func (t *turn) varTag(tag string) string {
	sm := varTagRe.FindStringSubmatch(tag)
	kind, body := sm[1], strings.TrimSpace(sm[2])
	name, value, assign := strings.Cut(body, "=")
	name = strings.TrimSpace(name)
	value = strings.TrimSpace(value)

	lex := t.brain.Lexicon()
	switch kind {
	case "bot":
		if assign {
			lex.Define(lexicon.KindVar, name, value)
			return ""
		}
		return lex.Var(name)
	case "env":
		if assign {
			lex.Define(lexicon.KindGlobal, name, value)
			return ""
		}
		return lex.Global(name)
	case "get":
		if v, ok := t.sess.GetVariable(name); ok {
			return v
		}
		return lexicon.Undefined
	case "set":
		t.sess.SetVariable(name, value)
		return ""
	}
	return tag
}

func (t *turn) braceTag(tag string) string {
	sm := braceTagRe.FindStringSubmatch(tag)
	if sm[1] != sm[3] {
		return tag
	}
	content := sm[2]
	switch sm[1] {
	case "person":
		return t.brain.Person(content)
	case "formal":
		return cases.Title(language.English).String(content)
	case "sentence":
		return sentenceCase(content)
	case "uppercase":
		return cases.Upper(language.Und).String(content)
	case "lowercase":
		return cases.Lower(language.Und).String(content)
	case "random":
		var choices []string
		if strings.Contains(content, "|") {
			choices = strings.Split(content, "|")
		} else {
			choices = strings.Fields(content)
		}
		if len(choices) == 0 {
			return ""
		}
		return strings.TrimSpace(choices[t.engine.randN(len(choices))])
	}
	return tag
}

// sentenceCase lowercases text and capitalizes its first letter.
func sentenceCase(s string) string {
	s = cases.Lower(language.Und).String(s)
	for i, r := range s {
		if unicode.IsLetter(r) {
			return s[:i] + string(unicode.ToUpper(r)) + s[i+utf8.RuneLen(r):]
		}
	}
	return s
}

// splitArgs splits macro arguments on whitespace, keeping double-quoted
// phrases together.
func splitArgs(s string) []string {
	var (
		args    []string
		cur     strings.Builder
		quoted  bool
		hasWord bool
	)
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			hasWord = true
		case unicode.IsSpace(r) && !quoted:
			if hasWord {
				args = append(args, cur.String())
				cur.Reset()
				hasWord = false
			}
		default:
			cur.WriteRune(r)
			hasWord = true
		}
	}
	if hasWord {
		args = append(args, cur.String())
	}
	return args
}
