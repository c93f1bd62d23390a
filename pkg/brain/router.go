package brain

import (
	"errors"
	"log/slog"

	"github.com/voicetyped/rivebot/pkg/normalize"
	"github.com/voicetyped/rivebot/pkg/pattern"
	"github.com/voicetyped/rivebot/pkg/script"
	"github.com/voicetyped/rivebot/pkg/session"
)

// Candidate is an eligible trigger for the current turn.
type Candidate struct {
	Trigger *Trigger
	// BotCaptures are the captures of the trigger's previous-reply pattern.
	BotCaptures []string
}

// Match is the outcome of routing one input.
type Match struct {
	// Topic is the topic actually searched. Unknown topics fall back to
	// the default topic.
	Topic       string
	Input       string
	Trigger     *Trigger
	Captures    []string
	BotCaptures []string
	// Timeouts lists the triggers skipped for exhausting the step budget.
	Timeouts []string
}

func (b *Brain) resolveTopic(topic string) string {
	if _, ok := b.topics[topic]; ok {
		return topic
	}
	return script.DefaultTopic
}

// Candidates returns the ranked triggers eligible in a topic for this
// session. Triggers whose previous-reply pattern does not match the
// session's last reply are left out.
func (b *Brain) Candidates(topic string, sess *session.Session) []Candidate {
	cands, _ := b.candidates(b.resolveTopic(topic), sess)
	return cands
}

func (b *Brain) candidates(topic string, sess *session.Session) ([]Candidate, []string) {
	ranked := b.ranked[topic]
	out := make([]Candidate, 0, len(ranked))

	var (
		lastTokens []string
		normalized bool
		timeouts   []string
	)
	for _, t := range ranked {
		if t.Previous == nil {
			out = append(out, Candidate{Trigger: t})
			continue
		}
		if !normalized {
			if sess != nil {
				lastTokens = normalize.Tokens(b.norm.Normalize(sess.LastReply()))
			}
			normalized = true
		}
		caps, ok, err := t.Previous.Match(lastTokens, b.maxSteps)
		if err != nil {
			slog.Warn("previous-reply match timed out", "trigger", t.ID, "budget", b.maxSteps)
			timeouts = append(timeouts, t.ID)
			continue
		}
		if ok {
			out = append(out, Candidate{Trigger: t, BotCaptures: caps})
		}
	}
	return out, timeouts
}

// Match finds the first candidate of a topic that accepts the normalized
// input. When nothing matches it returns ErrNoMatch together with a Match
// carrying the topic and any timeouts.
func (b *Brain) Match(topic, input string, sess *session.Session) (*Match, error) {
	topic = b.resolveTopic(topic)
	m := &Match{Topic: topic, Input: input}

	cands, timeouts := b.candidates(topic, sess)
	m.Timeouts = timeouts

	tokens := normalize.Tokens(input)
	for _, c := range cands {
		caps, ok, err := c.Trigger.Pattern.Match(tokens, b.maxSteps)
		if errors.Is(err, pattern.ErrMatchTimeout) {
			slog.Warn("trigger match timed out", "trigger", c.Trigger.ID, "budget", b.maxSteps)
			m.Timeouts = append(m.Timeouts, c.Trigger.ID)
			continue
		}
		if ok {
			m.Trigger = c.Trigger
			m.Captures = caps
			m.BotCaptures = c.BotCaptures
			return m, nil
		}
	}
	return m, ErrNoMatch
}

// MaxMatchSteps returns the per-pattern step budget.
func (b *Brain) MaxMatchSteps() int {
	return b.maxSteps
}
