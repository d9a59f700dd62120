package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/edumarques81/stellar-emp/internal/domain/adapter"
	"github.com/edumarques81/stellar-emp/internal/domain/contextmgr"
	"github.com/edumarques81/stellar-emp/internal/domain/directive"
	"github.com/edumarques81/stellar-emp/internal/domain/focus"
	"github.com/edumarques81/stellar-emp/internal/emp"
	"github.com/edumarques81/stellar-emp/internal/infra/metrics"
)

type fakeAgent struct {
	mu         sync.Mutex
	directives []directive.Directive
	buttons    []adapter.PlaybackButton
	toggles    []string
	// respond completes directives; nil leaves them pending.
	respond func(d directive.Directive, result directive.Result)
}

func (a *fakeAgent) HandleDirective(d directive.Directive, result directive.Result) {
	a.mu.Lock()
	a.directives = append(a.directives, d)
	respond := a.respond
	a.mu.Unlock()
	if respond != nil {
		respond(d, result)
	}
}

func (a *fakeAgent) FocusSnapshot() emp.FocusSnapshot {
	return emp.FocusSnapshot{
		Focus:          focus.Foreground,
		MixingBehavior: focus.Primary,
		PlayerInFocus:  "spotify",
		Activity:       adapter.ActivityPlaying,
		HaltInitiator:  emp.HaltNone,
	}
}

func (a *fakeAgent) OnButtonPressed(b adapter.PlaybackButton) {
	a.mu.Lock()
	a.buttons = append(a.buttons, b)
	a.mu.Unlock()
}

func (a *fakeAgent) OnTogglePressed(t adapter.PlaybackToggle, selected bool) {
	a.mu.Lock()
	a.toggles = append(a.toggles, t.RequestType(selected).String())
	a.mu.Unlock()
}

type fakeContext struct {
	err error
}

func (c fakeContext) GetContext(context.Context) ([]contextmgr.Entry, error) {
	if c.err != nil {
		return nil, c.err
	}
	return []contextmgr.Entry{{
		Header:  contextmgr.NamespaceAndName{Namespace: "ExternalMediaPlayer", Name: "ExternalMediaPlayerState"},
		Payload: json.RawMessage(`{"agent":"agent-1"}`),
	}}, nil
}

func completeAll(d directive.Directive, result directive.Result) {
	if d.Name == "Fail" {
		result.SetFailed("unsupported")
		return
	}
	result.SetCompleted()
}

func newTestRouter(agent *fakeAgent, deps Deps) http.Handler {
	deps.Agent = agent
	if deps.Context == nil {
		deps.Context = fakeContext{}
	}
	return NewRouter(deps)
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := newTestRouter(&fakeAgent{}, Deps{})
	if rec := do(t, h, http.MethodGet, "/health", ""); rec.Code != http.StatusOK {
		t.Errorf("health = %d, want 200", rec.Code)
	}

	h = newTestRouter(&fakeAgent{}, Deps{Health: func() error { return errors.New("mpd disconnected") }})
	rec := do(t, h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("health = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "mpd disconnected") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestVersion(t *testing.T) {
	rec := do(t, newTestRouter(&fakeAgent{}, Deps{}), http.MethodGet, "/api/v1/version", "")
	var info map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info["name"] == "" || info["version"] == "" {
		t.Errorf("version info = %v", info)
	}
}

func TestFocus(t *testing.T) {
	rec := do(t, newTestRouter(&fakeAgent{}, Deps{}), http.MethodGet, "/api/v1/focus", "")
	var got focusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.PlayerInFocus != "spotify" || got.Focus != focus.Foreground.String() || got.HaltInitiator != emp.HaltNone.String() {
		t.Errorf("focus = %+v", got)
	}
}

func TestContext(t *testing.T) {
	rec := do(t, newTestRouter(&fakeAgent{}, Deps{}), http.MethodGet, "/api/v1/context", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"agent":"agent-1"`) {
		t.Errorf("context = %d %s", rec.Code, rec.Body.String())
	}

	h := newTestRouter(&fakeAgent{}, Deps{Context: fakeContext{err: contextmgr.ErrTimeout}})
	if rec := do(t, h, http.MethodGet, "/api/v1/context", ""); rec.Code != http.StatusGatewayTimeout {
		t.Errorf("context timeout = %d, want 504", rec.Code)
	}

	h = newTestRouter(&fakeAgent{}, Deps{Context: fakeContext{err: errors.New("boom")}})
	if rec := do(t, h, http.MethodGet, "/api/v1/context", ""); rec.Code != http.StatusInternalServerError {
		t.Errorf("context error = %d, want 500", rec.Code)
	}
}

func TestAuthorizedPlayers(t *testing.T) {
	h := newTestRouter(&fakeAgent{}, Deps{Authorized: func(context.Context) ([]adapter.PlayerInfo, error) {
		return []adapter.PlayerInfo{{PlayerID: "spotify", Authorized: true}}, nil
	}})
	rec := do(t, h, http.MethodGet, "/api/v1/players/authorized", "")
	if !strings.Contains(rec.Body.String(), `"playerId":"spotify"`) {
		t.Errorf("body = %s", rec.Body.String())
	}

	rec = do(t, newTestRouter(&fakeAgent{}, Deps{}), http.MethodGet, "/api/v1/players/authorized", "")
	if !strings.Contains(rec.Body.String(), `"players":[]`) {
		t.Errorf("body without source = %s", rec.Body.String())
	}

	slow := newTestRouter(&fakeAgent{}, Deps{Timeout: 10 * time.Millisecond, Authorized: func(ctx context.Context) ([]adapter.PlayerInfo, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}})
	rec = do(t, slow, http.MethodGet, "/api/v1/players/authorized", "")
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("slow source status = %d, want 504", rec.Code)
	}
}

func TestPostDirective(t *testing.T) {
	agent := &fakeAgent{respond: completeAll}
	h := newTestRouter(agent, Deps{})

	rec := do(t, h, http.MethodPost, "/api/v1/directives",
		`{"namespace":"ExternalMediaPlayer","name":"Play","payload":{"playerId":"spotify"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var res directiveResponse
	json.Unmarshal(rec.Body.Bytes(), &res)
	if !res.Success || res.MessageID == "" {
		t.Errorf("response = %+v, want success with a generated message id", res)
	}

	agent.mu.Lock()
	d := agent.directives[0]
	agent.mu.Unlock()
	if d.Payload != `{"playerId":"spotify"}` || d.Key() != "ExternalMediaPlayer.Play" {
		t.Errorf("directive = %+v", d)
	}
}

func TestPostDirectiveStringPayload(t *testing.T) {
	agent := &fakeAgent{respond: completeAll}
	h := newTestRouter(agent, Deps{})

	do(t, h, http.MethodPost, "/api/v1/directives",
		`{"namespace":"ExternalMediaPlayer","name":"Logout","messageId":"m1","payload":"{\"playerId\":\"A\"}"}`)

	agent.mu.Lock()
	defer agent.mu.Unlock()
	if len(agent.directives) != 1 || agent.directives[0].Payload != `{"playerId":"A"}` || agent.directives[0].MessageID != "m1" {
		t.Errorf("directives = %+v", agent.directives)
	}
}

func TestPostDirectiveFailure(t *testing.T) {
	h := newTestRouter(&fakeAgent{respond: completeAll}, Deps{})

	rec := do(t, h, http.MethodPost, "/api/v1/directives", `{"namespace":"X","name":"Fail","payload":{}}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "unsupported") {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestPostDirectiveTimeout(t *testing.T) {
	h := newTestRouter(&fakeAgent{}, Deps{Timeout: 20 * time.Millisecond})

	rec := do(t, h, http.MethodPost, "/api/v1/directives", `{"namespace":"X","name":"Y","payload":{}}`)
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504", rec.Code)
	}
}

func TestPostDirectiveBadRequest(t *testing.T) {
	agent := &fakeAgent{respond: completeAll}
	h := newTestRouter(agent, Deps{})

	for _, body := range []string{"not json", `{"name":"Play"}`} {
		if rec := do(t, h, http.MethodPost, "/api/v1/directives", body); rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
	if len(agent.directives) != 0 {
		t.Errorf("directives = %+v, want none", agent.directives)
	}
}

func TestButtonsAndToggles(t *testing.T) {
	agent := &fakeAgent{}
	h := newTestRouter(agent, Deps{})

	if rec := do(t, h, http.MethodPost, "/api/v1/buttons/next", ""); rec.Code != http.StatusAccepted {
		t.Errorf("button = %d, want 202", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/v1/buttons/eject", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown button = %d, want 400", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/v1/toggles/shuffle?selected=false", ""); rec.Code != http.StatusAccepted {
		t.Errorf("toggle = %d, want 202", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/v1/toggles/shuffle?selected=maybe", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad selected = %d, want 400", rec.Code)
	}

	agent.mu.Lock()
	defer agent.mu.Unlock()
	if len(agent.buttons) != 1 || agent.buttons[0] != adapter.ButtonNext {
		t.Errorf("buttons = %v", agent.buttons)
	}
	if len(agent.toggles) != 1 || agent.toggles[0] != adapter.RequestDisableShuffle.String() {
		t.Errorf("toggles = %v", agent.toggles)
	}
}

func TestMetricsRoute(t *testing.T) {
	m := metrics.New()
	h := newTestRouter(&fakeAgent{}, Deps{Metrics: m})

	do(t, h, http.MethodGet, "/health", "")
	rec := do(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `emp_http_requests_total{route="/health",status="2xx"} 1`) {
		t.Errorf("metrics output missing request counter:\n%s", rec.Body.String())
	}
}

func TestSocketIOMounted(t *testing.T) {
	called := false
	sio := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	h := newTestRouter(&fakeAgent{}, Deps{SocketIO: sio})

	do(t, h, http.MethodGet, "/socket.io/?EIO=4&transport=polling", "")
	if !called {
		t.Error("socket.io handler was not called")
	}
}

func TestCorsMiddleware_SetsHeadersOnError(t *testing.T) {
	rec := do(t, newTestRouter(&fakeAgent{}, Deps{}), http.MethodGet, "/missing", "")

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q on 404 response, want %q", got, "*")
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestCorsMiddleware_HandlesPreflight(t *testing.T) {
	handler := corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called for OPTIONS preflight")
	}))

	req := httptest.NewRequest(http.MethodOptions, "/test", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, OPTIONS" {
		t.Errorf("Access-Control-Allow-Methods = %q, want %q", got, "GET, POST, OPTIONS")
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type" {
		t.Errorf("Access-Control-Allow-Headers = %q, want %q", got, "Content-Type")
	}
}
