package emp

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/edumarques81/stellar-emp/internal/domain/adapter"
)

func playDirectivePayload(playerID string) map[string]any {
	return map[string]any{
		"playerId":             playerID,
		"playbackContextToken": "ctx-token",
		"skillToken":           "skill-" + playerID,
		"playbackSessionId":    "session-1",
		"navigation":           "DEFAULT",
		"preload":              false,
	}
}

func TestUnknownDirectiveFails(t *testing.T) {
	h := newHarness(t, Config{}, Options{})
	a := newRecordingAdapter("A")
	h.addAdapter(t, a)

	res := h.handle(t, "X", "Y", `{}`)
	h.flush(t)

	if res.failed != 1 || res.completed != 0 {
		t.Fatalf("result = %+v, want exactly one failure", res)
	}
	if calls := a.Calls(); len(calls) != 0 {
		t.Errorf("adapter calls = %v, want none", calls)
	}

	exceptions := h.events.named("ExceptionEncountered")
	if len(exceptions) != 1 {
		t.Fatalf("ExceptionEncountered events = %d, want 1", len(exceptions))
	}
	var p exceptionPayload
	if err := json.Unmarshal(exceptions[0].Payload, &p); err != nil {
		t.Fatalf("unmarshal exception: %v", err)
	}
	if p.Error.Type != "UNSUPPORTED_OPERATION" {
		t.Errorf("exception type = %q, want UNSUPPORTED_OPERATION", p.Error.Type)
	}
}

func TestDirectiveValidation(t *testing.T) {
	tests := []struct {
		name      string
		namespace string
		directive string
		payload   string
		wantErr   string
	}{
		{"malformed json", NamespaceExternalMediaPlayer, "Login", `{not json`, "malformed payload"},
		{"login without playerId", NamespaceExternalMediaPlayer, "Login",
			`{"accessToken":"t","tokenRefreshIntervalInMilliseconds":1000,"forceLogin":false}`, "playerId"},
		{"login without forceLogin", NamespaceExternalMediaPlayer, "Login",
			`{"playerId":"A","accessToken":"t","tokenRefreshIntervalInMilliseconds":1000}`, "forceLogin"},
		{"logout without playerId", NamespaceExternalMediaPlayer, "Logout", `{}`, "playerId"},
		{"play without preload", NamespaceExternalMediaPlayer, "Play",
			`{"playerId":"A","playbackContextToken":"c","skillToken":"s","playbackSessionId":"p","navigation":"DEFAULT"}`, "preload"},
		{"seek without position", NamespaceSeekController, "SetSeekPosition", `{"playerId":"A"}`, "positionMilliseconds"},
		{"negative seek", NamespaceSeekController, "SetSeekPosition", `{"playerId":"A","positionMilliseconds":-1}`, "out of range"},
		{"authorize without players", NamespaceExternalMediaPlayer, "AuthorizeDiscoveredPlayers", `{}`, "players"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{}, Options{})
			a := newRecordingAdapter("A")
			h.addAdapter(t, a)

			res := h.handle(t, tt.namespace, tt.directive, tt.payload)
			h.flush(t)

			if res.failed != 1 || res.completed != 0 {
				t.Fatalf("result = %+v, want exactly one failure", res)
			}
			if !strings.Contains(res.description, tt.wantErr) {
				t.Errorf("description = %q, want it to mention %q", res.description, tt.wantErr)
			}
			if calls := a.Calls(); len(calls) != 0 {
				t.Errorf("adapter calls = %v, want none", calls)
			}
		})
	}
}

func TestAdjustSeekBounds(t *testing.T) {
	tests := []struct {
		name    string
		delta   int64
		wantOK  bool
		wantArg string
	}{
		{"above max", 86400001, false, ""},
		{"below min", -86400001, false, ""},
		{"max", 86400000, true, "adjustSeek:A:86400000"},
		{"min", -86400000, true, "adjustSeek:A:-86400000"},
		{"zero", 0, true, "adjustSeek:A:0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{}, Options{})
			a := newRecordingAdapter("A")
			h.addAdapter(t, a)

			res := h.handle(t, NamespaceSeekController, "AdjustSeekPosition",
				map[string]any{"playerId": "A", "deltaPositionMilliseconds": tt.delta})
			h.flush(t)

			got := a.callsWithPrefix("adjustSeek:")
			if !tt.wantOK {
				if res.failed != 1 {
					t.Errorf("result = %+v, want failure", res)
				}
				if len(got) != 0 {
					t.Errorf("adjustSeek calls = %v, want none", got)
				}
				return
			}
			if res.completed != 1 {
				t.Errorf("result = %+v, want completion", res)
			}
			if len(got) != 1 || got[0] != tt.wantArg {
				t.Errorf("adjustSeek calls = %v, want [%s]", got, tt.wantArg)
			}
		})
	}
}

func TestPlayThenPauseKeepsOrder(t *testing.T) {
	h := newHarness(t, Config{}, Options{})
	a := newRecordingAdapter("A")
	h.addAdapter(t, a)
	h.authorize(t, "A")
	a.reset()

	play := h.handle(t, NamespaceExternalMediaPlayer, "Play", playDirectivePayload("A"))
	pause := h.handle(t, NamespacePlaybackController, "Pause", map[string]any{"playerId": "A"})
	h.flush(t)

	if play.completed != 1 || pause.completed != 1 {
		t.Fatalf("play = %+v, pause = %+v, want both completed", play, pause)
	}

	var order []string
	for _, c := range a.Calls() {
		if c == "play:A" || c == "control:A:PAUSE" {
			order = append(order, c)
		}
	}
	if len(order) != 2 || order[0] != "play:A" || order[1] != "control:A:PAUSE" {
		t.Errorf("call order = %v, want [play:A control:A:PAUSE]", order)
	}
}

func TestPlayPrimesAndAcquires(t *testing.T) {
	h := newHarness(t, Config{}, Options{})
	h.addAdapter(t, newRecordingAdapter("A"))
	h.authorize(t, "A")

	res := h.handle(t, NamespaceExternalMediaPlayer, "Play", playDirectivePayload("A"))
	h.flush(t)

	if res.completed != 1 {
		t.Fatalf("result = %+v, want completion", res)
	}
	snap := h.core.FocusSnapshot()
	if snap.PlayerInFocus != "A" {
		t.Errorf("player in focus = %q, want A", snap.PlayerInFocus)
	}
	if !snap.IgnoreExternalPauseCheck {
		t.Error("play should set ignoreExternalPauseCheck")
	}
	if acquires, _ := h.fm.counts(); acquires != 1 {
		t.Errorf("acquireChannel calls = %d, want 1", acquires)
	}
}

func TestRejectedPlayRollsBack(t *testing.T) {
	h, a := playingHarness(t)

	h.handle(t, NamespacePlaybackController, "Pause", map[string]any{"playerId": "A"})
	h.flush(t)
	a.rejectPlay = true

	res := h.handle(t, NamespaceExternalMediaPlayer, "Play", playDirectivePayload("A"))
	h.flush(t)

	if res.completed != 1 {
		t.Errorf("result = %+v, rejected play is still completed", res)
	}
	snap := h.core.FocusSnapshot()
	if snap.HaltInitiator != HaltExternalPause {
		t.Errorf("halt initiator = %v, want EXTERNAL_PAUSE restored", snap.HaltInitiator)
	}
	if snap.IgnoreExternalPauseCheck {
		t.Error("ignoreExternalPauseCheck should be rolled back")
	}
}

func TestControlWithoutPlayerTargetsPlayerInFocus(t *testing.T) {
	h, a := playingHarness(t)

	res := h.handle(t, NamespacePlaybackController, "Next", `{}`)
	h.flush(t)

	if res.completed != 1 {
		t.Fatalf("result = %+v, want completion", res)
	}
	if got := a.callsWithPrefix("control:"); len(got) != 1 || got[0] != "control:A:NEXT" {
		t.Errorf("control calls = %v, want [control:A:NEXT]", got)
	}
}

func TestControlDirectivesMapToRequests(t *testing.T) {
	tests := []struct {
		namespace string
		name      string
		want      adapter.RequestType
	}{
		{NamespacePlaybackController, "Play", adapter.RequestResume},
		{NamespacePlaybackController, "Stop", adapter.RequestStop},
		{NamespacePlaybackController, "StartOver", adapter.RequestStartOver},
		{NamespacePlaylistController, "EnableRepeatOne", adapter.RequestEnableRepeatOne},
		{NamespacePlaylistController, "DisableShuffle", adapter.RequestDisableShuffle},
		{NamespaceFavoritesController, "Unfavorite", adapter.RequestUnfavorite},
	}

	for _, tt := range tests {
		t.Run(tt.namespace+"."+tt.name, func(t *testing.T) {
			h := newHarness(t, Config{}, Options{})
			a := newRecordingAdapter("A")
			h.addAdapter(t, a)

			res := h.handle(t, tt.namespace, tt.name, map[string]any{"playerId": "A"})
			h.flush(t)

			if res.completed != 1 {
				t.Fatalf("result = %+v, want completion", res)
			}
			want := "control:A:" + tt.want.String()
			if got := a.callsWithPrefix("control:"); len(got) != 1 || got[0] != want {
				t.Errorf("control calls = %v, want [%s]", got, want)
			}
		})
	}
}

func TestLoginAndLogout(t *testing.T) {
	h := newHarness(t, Config{}, Options{})
	a := newRecordingAdapter("A")
	h.addAdapter(t, a)

	login := h.handle(t, NamespaceExternalMediaPlayer, "Login", map[string]any{
		"playerId":                           "A",
		"accessToken":                        "token",
		"userName":                           "user",
		"tokenRefreshIntervalInMilliseconds": 60000,
		"forceLogin":                         true,
	})
	logout := h.handle(t, NamespaceExternalMediaPlayer, "Logout", map[string]any{"playerId": "A"})
	h.flush(t)

	if login.completed != 1 || logout.completed != 1 {
		t.Fatalf("login = %+v, logout = %+v", login, logout)
	}
	calls := a.Calls()
	if len(calls) != 2 || calls[0] != "login:A" || calls[1] != "logout:A" {
		t.Errorf("calls = %v, want [login:A logout:A]", calls)
	}
}

func TestSupports(t *testing.T) {
	h := newHarness(t, Config{}, Options{})
	d := h.core.Dispatcher()

	if !d.Supports(NamespaceExternalMediaPlayer, "Play") {
		t.Error("ExternalMediaPlayer.Play should be supported")
	}
	if !d.Supports(NamespaceSeekController, "AdjustSeekPosition") {
		t.Error("Alexa.SeekController.AdjustSeekPosition should be supported")
	}
	if d.Supports("X", "Y") {
		t.Error("X.Y should not be supported")
	}
}

func TestButtonPressRoutesToDefaultPlayer(t *testing.T) {
	h := newHarness(t, Config{}, Options{})
	a := newRecordingAdapter("")
	h.addAdapter(t, a)

	h.core.OnButtonPressed(adapter.ButtonPause)
	h.core.OnButtonPressed(adapter.ButtonPlay)
	h.core.OnTogglePressed(adapter.ToggleShuffle, true)
	h.flush(t)

	got := a.callsWithPrefix("control:")
	want := []string{"control::PAUSE_RESUME_TOGGLE", "control::PAUSE_RESUME_TOGGLE", "control::ENABLE_SHUFFLE"}
	if len(got) != len(want) {
		t.Fatalf("control calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestShutdownFailsLaterDirectives(t *testing.T) {
	h := newHarness(t, Config{}, Options{})
	h.core.Shutdown()

	res := h.handle(t, NamespaceExternalMediaPlayer, "Logout", map[string]any{"playerId": "A"})
	if res.failed != 1 {
		t.Errorf("result = %+v, want failure after shutdown", res)
	}
}
