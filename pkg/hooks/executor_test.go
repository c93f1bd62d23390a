package hooks

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voicetyped/rivebot/pkg/brain"
	"github.com/voicetyped/rivebot/pkg/script"
)

func objectFor(url string, extra string) script.Object {
	return script.Object{
		Name:     "lookup",
		Language: Language,
		Body:     "url: " + url + "\ntimeout_sec: 5\n" + extra,
	}
}

func TestExecutorCall(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Error("expected application/json content type")
		}
		if r.Header.Get("X-Bot") != "rivebot" {
			t.Errorf("X-Bot = %q", r.Header.Get("X-Bot"))
		}

		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.SessionID != "user-1" {
			t.Errorf("session_id = %q, want %q", req.SessionID, "user-1")
		}
		if req.Object != "lookup" || req.Topic != "random" {
			t.Errorf("object/topic = %q/%q", req.Object, req.Topic)
		}
		if strings.Join(req.Args, ",") != "weather,paris" {
			t.Errorf("args = %v", req.Args)
		}
		if req.Variables["name"] != "Alice" {
			t.Errorf("variables = %v", req.Variables)
		}

		json.NewEncoder(w).Encode(Response{Reply: "It is sunny in " + req.Args[1] + "."})
	}))
	defer ts.Close()

	exec := NewExecutor(AllowPrivateIPs())
	out, err := exec.Call(t.Context(), brain.MacroCall{
		Object:    objectFor(ts.URL, "headers:\n  X-Bot: rivebot\n"),
		Args:      []string{"weather", "paris"},
		UserID:    "user-1",
		Topic:     "random",
		Variables: map[string]string{"name": "Alice"},
	})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if out != "It is sunny in paris." {
		t.Errorf("reply = %q", out)
	}
}

func TestExecutorBearerAuth(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(Response{})
	}))
	defer ts.Close()

	exec := NewExecutor(AllowPrivateIPs())
	cfg := Config{URL: ts.URL, AuthType: "bearer", AuthSecret: "my-token", TimeoutSec: 5}
	if _, err := exec.Execute(t.Context(), cfg, Request{SessionID: "s1"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if gotAuth != "Bearer my-token" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer my-token")
	}
}

func TestExecutorHMACSignature(t *testing.T) {
	var verified bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		verified = Verify("shh", body, r.Header.Get(SignatureHeader))
		json.NewEncoder(w).Encode(Response{Reply: "ok"})
	}))
	defer ts.Close()

	exec := NewExecutor(AllowPrivateIPs())
	cfg := Config{URL: ts.URL, AuthType: "hmac", AuthSecret: "shh"}
	if _, err := exec.Execute(t.Context(), cfg, Request{SessionID: "s1"}); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !verified {
		t.Error("signature did not verify")
	}
}

func TestExecutorHTTPError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("internal error"))
	}))
	defer ts.Close()

	exec := NewExecutor(AllowPrivateIPs())
	_, err := exec.Execute(t.Context(), Config{URL: ts.URL, TimeoutSec: 5}, Request{SessionID: "s1"})
	if err == nil {
		t.Fatal("expected error for HTTP 500")
	}
	if err.Error() != "hook returned HTTP 500" {
		t.Errorf("error = %q", err)
	}
}

func TestExecutorCircuitOpens(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	exec := NewExecutor(AllowPrivateIPs(), WithBreaker(2, time.Hour))
	cfg := Config{URL: ts.URL, TimeoutSec: 5}

	for i := 0; i < 2; i++ {
		if _, err := exec.Execute(t.Context(), cfg, Request{}); err == nil {
			t.Fatal("expected failure")
		}
	}
	if got := exec.BreakerState(ts.URL); got != "open" {
		t.Errorf("state = %q, want open", got)
	}

	_, err := exec.Execute(t.Context(), cfg, Request{})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("err = %v, want ErrCircuitOpen", err)
	}
	if calls.Load() != 2 {
		t.Errorf("server saw %d calls, want 2", calls.Load())
	}
}

func TestExecutorRejectsLoopbackByDefault(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request should never reach the server")
	}))
	defer ts.Close()

	exec := NewExecutor()
	_, err := exec.Execute(t.Context(), Config{URL: ts.URL}, Request{})
	if !errors.Is(err, ErrReservedAddress) {
		t.Errorf("err = %v, want ErrReservedAddress", err)
	}
}

func TestExecutorBadObjectBody(t *testing.T) {
	exec := NewExecutor(AllowPrivateIPs())
	tests := []string{
		"",
		"url: [unterminated",
		"url: http://127.0.0.1\nauth_type: magic\n",
		"url: http://127.0.0.1\nauth_type: bearer\n",
		"url: http://127.0.0.1\ntimeout_sec: 600\n",
	}
	for _, body := range tests {
		_, err := exec.Call(t.Context(), brain.MacroCall{Object: script.Object{Name: "x", Language: Language, Body: body}})
		if err == nil {
			t.Errorf("body %q: expected error", body)
		}
	}
}

func TestEngineRendersHookReply(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req Request
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(Response{Reply: strings.ToUpper(strings.Join(req.Args, " "))})
	}))
	defer ts.Close()

	src := "> object shout webhook\nurl: " + ts.URL + "\n< object\n\n+ shout *\n- <call>shout <star></call>\n"
	s, err := script.Parse("hooks.rive", strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	e := brain.NewEngine(brain.Options{Seed: 1}, nil, nil)
	e.RegisterMacro(Language, NewExecutor(AllowPrivateIPs()))
	if err := e.Reload(t.Context(), s); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	reply, err := e.Reply(t.Context(), "u1", "shout hello there")
	if err != nil {
		t.Fatalf("Reply: %v", err)
	}
	if reply != "HELLO THERE" {
		t.Errorf("reply = %q, want %q", reply, "HELLO THERE")
	}
}
