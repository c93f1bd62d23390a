package brain

import (
	"strconv"
	"strings"
)

// selectReply picks exactly one reply text for a matched trigger: the
// first true condition, otherwise a weighted random reply. It returns
// false when the trigger should redirect instead.
func (t *turn) selectReply(m *Match) (string, bool) {
	trig := m.Trigger
	for _, c := range trig.Conditions {
		left := strings.TrimSpace(t.render(c.Left, m))
		right := strings.TrimSpace(t.render(c.Right, m))
		if evalCondition(left, c.Op, right) {
			return c.Reply, true
		}
	}
	if trig.Redirect != "" || len(trig.Replies) == 0 {
		return "", false
	}
	return t.engine.pickWeighted(trig.Replies), true
}

// evalCondition compares numerically when both sides are numbers and as
// strings otherwise.
func evalCondition(left, op, right string) bool {
	lf, lerr := strconv.ParseFloat(left, 64)
	rf, rerr := strconv.ParseFloat(right, 64)
	numeric := lerr == nil && rerr == nil

	switch op {
	case "==", "eq":
		if numeric {
			return lf == rf
		}
		return left == right
	case "!=", "ne", "<>":
		if numeric {
			return lf != rf
		}
		return left != right
	}

	if !numeric {
		return false
	}
	switch op {
	case "<":
		return lf < rf
	case "<=":
		return lf <= rf
	case ">":
		return lf > rf
	case ">=":
		return lf >= rf
	}
	return false
}

func (e *Engine) pickWeighted(replies []Reply) string {
	total := 0
	for _, r := range replies {
		total += r.Weight
	}
	n := e.randN(total)
	for _, r := range replies {
		if n < r.Weight {
			return r.Text
		}
		n -= r.Weight
	}
	return replies[len(replies)-1].Text
}
