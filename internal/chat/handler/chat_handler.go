// Package handler serves the chat engine as Connect procedures with a JSON
// codec.
package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"connectrpc.com/connect"
	"github.com/pitabwire/frame/workerpool"

	"github.com/voicetyped/rivebot/pkg/brain"
	"github.com/voicetyped/rivebot/pkg/script"
	"github.com/voicetyped/rivebot/pkg/session"
)

// Procedures of the chat service.
const (
	ServiceName               = "rivebot.chat.v1.ChatService"
	ReplyProcedure            = "/" + ServiceName + "/Reply"
	GetSessionProcedure       = "/" + ServiceName + "/GetSession"
	ResetSessionProcedure     = "/" + ServiceName + "/ResetSession"
	ReloadProcedure           = "/" + ServiceName + "/Reload"
	ListTopicsProcedure       = "/" + ServiceName + "/ListTopics"
	defaultReaperInterval     = time.Minute
	defaultSessionIdleTimeout = 30 * time.Minute
)

// Reaper is implemented by session stores that expire idle sessions
// themselves on request.
type Reaper interface {
	Reap(ctx context.Context, maxIdle time.Duration) (int, error)
}

// ChatHandler answers chat procedures against an engine.
type ChatHandler struct {
	engine *brain.Engine
	loader *script.Loader
	pool   workerpool.WorkerPool

	sessionTTL     time.Duration
	reaperInterval time.Duration
}

// Option configures a ChatHandler.
type Option func(*ChatHandler)

// WithSessionTTL sets how long an idle session is kept by the reaper.
func WithSessionTTL(ttl time.Duration) Option {
	return func(h *ChatHandler) {
		if ttl > 0 {
			h.sessionTTL = ttl
		}
	}
}

// WithReaperInterval sets how often the reaper runs.
func WithReaperInterval(d time.Duration) Option {
	return func(h *ChatHandler) {
		if d > 0 {
			h.reaperInterval = d
		}
	}
}

// NewChatHandler creates a chat handler. loader may be nil, in which case
// Reload fails with FailedPrecondition. pool may be nil.
func NewChatHandler(engine *brain.Engine, loader *script.Loader, pool workerpool.WorkerPool, opts ...Option) *ChatHandler {
	h := &ChatHandler{
		engine:         engine,
		loader:         loader,
		pool:           pool,
		sessionTTL:     defaultSessionIdleTimeout,
		reaperInterval: defaultReaperInterval,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Mount registers every procedure on mux.
func (h *ChatHandler) Mount(mux *http.ServeMux, opts ...connect.HandlerOption) {
	mux.Handle(ReplyProcedure, connect.NewUnaryHandler(ReplyProcedure, h.Reply, opts...))
	mux.Handle(GetSessionProcedure, connect.NewUnaryHandler(GetSessionProcedure, h.GetSession, opts...))
	mux.Handle(ResetSessionProcedure, connect.NewUnaryHandler(ResetSessionProcedure, h.ResetSession, opts...))
	mux.Handle(ReloadProcedure, connect.NewUnaryHandler(ReloadProcedure, h.Reload, opts...))
	mux.Handle(ListTopicsProcedure, connect.NewUnaryHandler(ListTopicsProcedure, h.ListTopics, opts...))
}

// StartReaper begins the idle session reaper when the engine's store
// supports it.
func (h *ChatHandler) StartReaper(ctx context.Context) {
	reaper, ok := h.engine.Store().(Reaper)
	if !ok {
		slog.InfoContext(ctx, "session store expires sessions itself; reaper not started")
		return
	}
	reap := func() {
		ticker := time.NewTicker(h.reaperInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				h.reapIdleSessions(ctx, reaper)
			}
		}
	}
	if h.pool != nil {
		if err := h.pool.Submit(ctx, reap); err != nil {
			slog.WarnContext(ctx, "reaper submit failed, running inline goroutine", slog.String("error", err.Error()))
			go reap()
		}
		return
	}
	go reap()
}

func (h *ChatHandler) reapIdleSessions(ctx context.Context, reaper Reaper) {
	n, err := reaper.Reap(ctx, h.sessionTTL)
	if err != nil {
		slog.WarnContext(ctx, "session reap failed", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		slog.InfoContext(ctx, "reaped idle sessions", slog.Int("count", n))
	}
}

func (h *ChatHandler) Reply(ctx context.Context, req *connect.Request[ReplyRequest]) (*connect.Response[ReplyResponse], error) {
	if err := req.Msg.Validate(); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	resp, err := h.engine.Respond(ctx, req.Msg.UserID, req.Msg.Message)
	if err != nil {
		return nil, connect.NewError(connect.CodeUnavailable, err)
	}
	return connect.NewResponse(&ReplyResponse{Response: *resp}), nil
}

func (h *ChatHandler) GetSession(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[SessionResponse], error) {
	if err := req.Msg.Validate(); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	sess, err := h.engine.Store().Load(ctx, req.Msg.UserID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("session %q not found", req.Msg.UserID))
	}
	if err != nil {
		return nil, connect.NewError(connect.CodeUnavailable, err)
	}
	return connect.NewResponse(&SessionResponse{Session: sess.Snapshot()}), nil
}

func (h *ChatHandler) ResetSession(ctx context.Context, req *connect.Request[SessionRequest]) (*connect.Response[ResetSessionResponse], error) {
	if err := req.Msg.Validate(); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	if err := h.engine.ResetSession(ctx, req.Msg.UserID); err != nil {
		return nil, connect.NewError(connect.CodeUnavailable, err)
	}
	return connect.NewResponse(&ResetSessionResponse{UserID: req.Msg.UserID}), nil
}

func (h *ChatHandler) Reload(ctx context.Context, _ *connect.Request[ReloadRequest]) (*connect.Response[ReloadResponse], error) {
	if h.loader == nil {
		return nil, connect.NewError(connect.CodeFailedPrecondition, errors.New("no script directory configured"))
	}
	scripts, err := h.loader.LoadAll(ctx)
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}

	out := &ReloadResponse{}
	err = h.engine.Reload(ctx, scripts...)
	var cerr *brain.CompileErrors
	switch {
	case err == nil:
	case errors.As(err, &cerr) && !h.engine.Options().StrictReload:
		for _, issue := range cerr.Issues {
			out.Issues = append(out.Issues, issue.Error())
		}
	default:
		return nil, connect.NewError(connect.CodeFailedPrecondition, err)
	}
	out.Stats = h.engine.Brain().Stats()
	return connect.NewResponse(out), nil
}

func (h *ChatHandler) ListTopics(_ context.Context, _ *connect.Request[ListTopicsRequest]) (*connect.Response[ListTopicsResponse], error) {
	b := h.engine.Brain()
	out := &ListTopicsResponse{Topics: []TopicInfo{}}
	for _, name := range b.TopicNames() {
		if name == script.BeginTopic {
			continue
		}
		t, _ := b.Topic(name)
		out.Topics = append(out.Topics, TopicInfo{
			Name:     name,
			Triggers: len(t.Triggers),
			Includes: t.Includes,
			Inherits: t.Inherits,
		})
	}
	return connect.NewResponse(out), nil
}
