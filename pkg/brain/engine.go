package brain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/voicetyped/rivebot/pkg/events"
	"github.com/voicetyped/rivebot/pkg/pattern"
	"github.com/voicetyped/rivebot/pkg/script"
	"github.com/voicetyped/rivebot/pkg/session"
)

// Engine defaults.
const (
	DefaultMaxDepth       = 50
	DefaultNoMatchReply   = "ERR: No Reply Matched"
	DefaultHandshakeInput = "request"
	DeepRecursionReply    = "ERR: Deep Recursion Detected"
	okMarker              = "{ok}"
)

// Options configure an Engine.
type Options struct {
	HistorySize    int
	MaxMatchSteps  int
	MaxDepth       int
	NoMatchReply   string
	HandshakeInput string
	// Seed makes reply selection reproducible. Zero picks a random seed.
	Seed         uint64
	StrictReload bool
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		HistorySize:    session.DefaultHistorySize,
		MaxMatchSteps:  pattern.DefaultMaxSteps,
		MaxDepth:       DefaultMaxDepth,
		NoMatchReply:   DefaultNoMatchReply,
		HandshakeInput: DefaultHandshakeInput,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.HistorySize <= 0 {
		o.HistorySize = d.HistorySize
	}
	if o.MaxMatchSteps <= 0 {
		o.MaxMatchSteps = d.MaxMatchSteps
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = d.MaxDepth
	}
	if o.NoMatchReply == "" {
		o.NoMatchReply = d.NoMatchReply
	}
	if o.HandshakeInput == "" {
		o.HandshakeInput = d.HandshakeInput
	}
	return o
}

// MacroCall is one <call> invocation.
type MacroCall struct {
	Object    script.Object
	Args      []string
	UserID    string
	Topic     string
	Variables map[string]string
}

// MacroHandler runs object macros of one language.
type MacroHandler interface {
	Call(ctx context.Context, call MacroCall) (string, error)
}

// MacroFunc adapts a function to MacroHandler.
type MacroFunc func(ctx context.Context, call MacroCall) (string, error)

func (f MacroFunc) Call(ctx context.Context, call MacroCall) (string, error) {
	return f(ctx, call)
}

// Response is the full outcome of one turn.
type Response struct {
	Reply              string   `json:"reply"`
	Matched            bool     `json:"matched"`
	TriggerID          string   `json:"trigger_id,omitempty"`
	Topic              string   `json:"topic"`
	Captures           []string `json:"captures,omitempty"`
	HandshakeCompleted bool     `json:"handshake_completed,omitempty"`
	Timeouts           []string `json:"timeouts,omitempty"`
}

// Engine answers user messages against the current brain. It is safe for
// concurrent use; turns of the same user are serialized.
type Engine struct {
	opts      Options
	brain     atomic.Pointer[Brain]
	store     session.Store
	publisher *events.Publisher
	locks     *keyedMutex

	macroMu sync.RWMutex
	macros  map[string]MacroHandler

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewEngine creates an engine with an empty brain. A nil store keeps
// sessions in memory; a nil publisher disables events.
func NewEngine(opts Options, store session.Store, pub *events.Publisher) *Engine {
	opts = opts.withDefaults()
	if store == nil {
		store = session.NewMemoryStore()
	}
	seed := opts.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	e := &Engine{
		opts:      opts,
		store:     store,
		publisher: pub,
		locks:     newKeyedMutex(),
		macros:    make(map[string]MacroHandler),
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
	empty, _ := Build(nil, BuildOptions{MaxMatchSteps: opts.MaxMatchSteps})
	e.brain.Store(empty)
	return e
}

// Options returns the effective options.
func (e *Engine) Options() Options {
	return e.opts
}

// Brain returns the current brain.
func (e *Engine) Brain() *Brain {
	return e.brain.Load()
}

// Store returns the session store.
func (e *Engine) Store() session.Store {
	return e.store
}

// RegisterMacro installs the handler for an object language.
func (e *Engine) RegisterMacro(language string, h MacroHandler) {
	e.macroMu.Lock()
	defer e.macroMu.Unlock()
	e.macros[strings.ToLower(language)] = h
}

func (e *Engine) macro(language string) (MacroHandler, bool) {
	e.macroMu.RLock()
	defer e.macroMu.RUnlock()
	h, ok := e.macros[language]
	return h, ok
}

func (e *Engine) randN(n int) int {
	if n <= 1 {
		return 0
	}
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.IntN(n)
}

// Reload builds a brain from scripts and swaps it in atomically. Issues
// are returned as *CompileErrors; unless StrictReload is set the new brain
// is used anyway, without the triggers that failed.
func (e *Engine) Reload(ctx context.Context, scripts ...*script.Script) error {
	b, err := Build(scripts, BuildOptions{MaxMatchSteps: e.opts.MaxMatchSteps})

	var cerr *CompileErrors
	if errors.As(err, &cerr) {
		for _, issue := range cerr.Issues {
			slog.WarnContext(ctx, "script issue", "file", issue.File, "line", issue.Line,
				"topic", issue.Topic, "error", issue.Err)
			e.emit(ctx, events.ScriptError, "", events.ScriptErrorData{
				File: issue.File, Line: issue.Line, Pattern: issue.Pattern, Error: issue.Err.Error(),
			})
		}
		if e.opts.StrictReload {
			return fmt.Errorf("reload refused: %w", err)
		}
	}

	e.brain.Store(b)
	stats := b.Stats()
	issues := 0
	if cerr != nil {
		issues = len(cerr.Issues)
	}
	slog.InfoContext(ctx, "brain reloaded", "files", stats.Files, "topics", stats.Topics,
		"triggers", stats.Triggers, "issues", issues)
	e.emit(ctx, events.ScriptReloaded, "", events.ScriptReloadedData{
		Files: stats.Files, Topics: stats.Topics, Triggers: stats.Triggers, Issues: issues,
	})
	return err
}

// Reply answers raw user text. The reply is never empty.
func (e *Engine) Reply(ctx context.Context, userID, raw string) (string, error) {
	resp, err := e.Respond(ctx, userID, raw)
	if err != nil {
		return "", err
	}
	return resp.Reply, nil
}

// Respond answers raw user text and reports how the reply was found.
// Errors only come from the session store.
func (e *Engine) Respond(ctx context.Context, userID, raw string) (*Response, error) {
	unlock := e.locks.Lock(userID)
	defer unlock()

	sess, err := e.loadSession(ctx, userID)
	if err != nil {
		return nil, err
	}

	b := e.brain.Load()
	t := &turn{ctx: ctx, engine: e, brain: b, sess: sess, userID: userID}
	input := b.Normalize(raw)
	startTopic := sess.GetTopic()

	var (
		reply     string
		handshake bool
	)
	if !sess.Handshaken() && b.HasTopic(script.BeginTopic) {
		begin := t.begin()
		switch {
		case begin.noMatch:
			reply = t.reply(startTopic, input, 0)
		case strings.Contains(begin.text, okMarker):
			sess.CompleteHandshake()
			handshake = true
			t.top = nil
			topic := startTopic
			if t.nextTopic != "" {
				topic = t.nextTopic
			}
			real := t.reply(topic, input, 0)
			reply = strings.Replace(begin.text, okMarker, real, 1)
		default:
			t.top = begin.match
			reply = begin.text
		}
	} else {
		reply = t.reply(startTopic, input, 0)
	}

	reply = strings.TrimSpace(strings.ReplaceAll(reply, okMarker, ""))
	if reply == "" {
		reply = e.opts.NoMatchReply
	}

	resp := &Response{
		Reply:              reply,
		HandshakeCompleted: handshake,
		Timeouts:           t.timeouts,
	}
	turnRecord := session.Turn{Input: input, Reply: reply}
	if t.top != nil {
		resp.Matched = true
		resp.TriggerID = t.top.Trigger.ID
		resp.Captures = t.top.Captures
		turnRecord.TriggerID = t.top.Trigger.ID
		turnRecord.Captures = t.top.Captures
		turnRecord.BotCaptures = t.top.BotCaptures
	}
	sess.Advance(turnRecord)

	endTopic := startTopic
	if t.topicFallback != "" {
		endTopic = t.topicFallback
	}
	if t.nextTopic != "" {
		endTopic = t.nextTopic
	}
	if endTopic != startTopic {
		sess.SetTopic(endTopic)
		e.emit(ctx, events.TopicChanged, userID, events.TopicChangedData{From: startTopic, To: endTopic})
	}
	resp.Topic = endTopic

	if err := e.store.Save(ctx, sess); err != nil {
		e.emit(ctx, events.SystemError, userID, events.ErrorData{Op: "save_session", Error: err.Error()})
		return nil, fmt.Errorf("save session %q: %w", userID, err)
	}

	if handshake {
		e.emit(ctx, events.HandshakeCompleted, userID, events.HandshakeData{Topic: endTopic})
	}
	for _, id := range t.timeouts {
		e.emit(ctx, events.MatchTimeout, userID, events.MatchTimeoutData{TriggerID: id, Input: input, Budget: b.MaxMatchSteps()})
	}
	data := events.ReplyData{Input: input, Reply: reply, Topic: endTopic, TriggerID: resp.TriggerID, Captures: resp.Captures}
	if resp.Matched {
		e.emit(ctx, events.ReplyMatched, userID, data)
	} else {
		e.emit(ctx, events.ReplyNoMatch, userID, data)
	}
	return resp, nil
}

func (e *Engine) loadSession(ctx context.Context, userID string) (*session.Session, error) {
	sess, err := e.store.Load(ctx, userID)
	if errors.Is(err, session.ErrNotFound) {
		return session.NewSession(userID, e.opts.HistorySize), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %q: %w", userID, err)
	}
	return sess, nil
}

// Session returns a user's stored session.
func (e *Engine) Session(ctx context.Context, userID string) (*session.Session, error) {
	return e.store.Load(ctx, userID)
}

// ResetSession forgets everything about a user.
func (e *Engine) ResetSession(ctx context.Context, userID string) error {
	unlock := e.locks.Lock(userID)
	defer unlock()
	return e.store.Delete(ctx, userID)
}

func (e *Engine) emit(ctx context.Context, eventType events.EventType, sessionID string, data any) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Emit(ctx, eventType, sessionID, data); err != nil {
		slog.WarnContext(ctx, "emit event failed", "type", string(eventType), "error", err)
	}
}

// turn is the state of answering one message.
type turn struct {
	ctx    context.Context
	engine *Engine
	brain  *Brain
	sess   *session.Session
	userID string
	depth  int

	// top is the outermost matched trigger.
	top           *Match
	nextTopic     string
	topicFallback string
	timeouts      []string
}

type beginResult struct {
	text    string
	match   *Match
	noMatch bool
}

func (t *turn) begin() beginResult {
	input := t.brain.Normalize(t.engine.opts.HandshakeInput)
	m, err := t.brain.Match(script.BeginTopic, input, t.sess)
	t.timeouts = append(t.timeouts, m.Timeouts...)
	if err != nil {
		return beginResult{noMatch: true}
	}
	text, ok := t.selectReply(m)
	if !ok {
		return beginResult{noMatch: true}
	}
	return beginResult{text: t.render(text, m), match: m}
}

// reply matches input in a topic and renders the chosen reply.
func (t *turn) reply(topic, input string, depth int) string {
	if depth > t.engine.opts.MaxDepth {
		slog.WarnContext(t.ctx, "reply recursion too deep", "user", t.userID, "input", input)
		return DeepRecursionReply
	}

	prev := t.depth
	t.depth = depth
	defer func() { t.depth = prev }()

	m, err := t.brain.Match(topic, input, t.sess)
	t.timeouts = append(t.timeouts, m.Timeouts...)
	if depth == 0 && m.Topic != topic {
		t.topicFallback = m.Topic
	}
	if err != nil {
		return t.engine.opts.NoMatchReply
	}
	if depth == 0 {
		t.top = m
	}

	text, ok := t.selectReply(m)
	if !ok {
		if m.Trigger.Redirect == "" {
			return t.engine.opts.NoMatchReply
		}
		target := t.render(m.Trigger.Redirect, m)
		return t.reply(m.Topic, t.brain.Normalize(target), depth+1)
	}
	return t.render(text, m)
}

// call runs a <call> macro. Failures become inline error text.
func (t *turn) call(body string) string {
	args := splitArgs(body)
	if len(args) == 0 {
		return "[ERR: Object Not Found]"
	}
	obj, ok := t.brain.Object(args[0])
	if !ok {
		return "[ERR: Object Not Found]"
	}
	h, ok := t.engine.macro(obj.Language)
	if !ok {
		return "[ERR: No Object Handler]"
	}

	out, err := h.Call(t.ctx, MacroCall{
		Object:    obj,
		Args:      args[1:],
		UserID:    t.userID,
		Topic:     t.sess.GetTopic(),
		Variables: t.sess.CopyVariables(),
	})
	if err != nil {
		slog.WarnContext(t.ctx, "object macro failed", "object", obj.Name, "error", err)
		t.engine.emit(t.ctx, events.MacroError, t.userID, events.MacroErrorData{Object: obj.Name, Error: err.Error()})
		return "[ERR: " + err.Error() + "]"
	}
	t.engine.emit(t.ctx, events.MacroResult, t.userID, events.MacroResultData{Object: obj.Name, Language: obj.Language, Output: out})
	return out
}
