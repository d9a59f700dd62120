package emp

import (
	"errors"
	"testing"
	"time"
)

func TestParsePlayDefaults(t *testing.T) {
	req, err := parsePlay(`{"playbackContextToken":"c","skillToken":"s","playbackSessionId":"p","navigation":"NONE","preload":true}`)
	if err != nil {
		t.Fatalf("parsePlay() error: %v", err)
	}
	if req.PlayerID != "" || req.Index != 0 || req.Offset != 0 {
		t.Errorf("defaults = %+v, want empty player and zero index/offset", req)
	}
	if !req.Preload || req.Navigation != "NONE" {
		t.Errorf("req = %+v", req)
	}
}

func TestParsePlayOffsetAndRequestor(t *testing.T) {
	req, err := parsePlay(`{"playerId":"A","playbackContextToken":"c","skillToken":"s","playbackSessionId":"p",
		"navigation":"DEFAULT","preload":false,"index":3,"offsetInMilliseconds":2500,
		"playRequestor":{"type":"ALERT","id":"alarm-1"}}`)
	if err != nil {
		t.Fatalf("parsePlay() error: %v", err)
	}
	if req.Index != 3 || req.Offset != 2500*time.Millisecond {
		t.Errorf("index/offset = %d/%v", req.Index, req.Offset)
	}
	if req.Requestor.Type != "ALERT" || req.Requestor.ID != "alarm-1" {
		t.Errorf("requestor = %+v", req.Requestor)
	}
}

func TestParseErrorsClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType string
	}{
		{"malformed", func() error { _, err := parseRequiredPlayer(`[`); return err }(), "UNEXPECTED_INFORMATION_RECEIVED"},
		{"missing", func() error { _, err := parseRequiredPlayer(`{}`); return err }(), "UNEXPECTED_INFORMATION_RECEIVED"},
		{"out of range", func() error { _, _, err := parseAdjustSeek(`{"deltaPositionMilliseconds":86400001}`); return err }(), "UNEXPECTED_INFORMATION_RECEIVED"},
		{"no handler", ErrNoHandler, "UNSUPPORTED_OPERATION"},
		{"other", errors.New("boom"), "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err == nil {
				t.Fatal("expected an error")
			}
			if got := exceptionType(tt.err); got != tt.wantType {
				t.Errorf("exceptionType(%v) = %q, want %q", tt.err, got, tt.wantType)
			}
		})
	}
}

func TestParseOptionalPlayer(t *testing.T) {
	id, present, err := parseOptionalPlayer(`{"playerId":""}`)
	if err != nil || !present || id != "" {
		t.Errorf("empty playerId: id=%q present=%v err=%v", id, present, err)
	}
	_, present, err = parseOptionalPlayer(`{}`)
	if err != nil || present {
		t.Errorf("absent playerId: present=%v err=%v", present, err)
	}
}

func TestParseLoginRefreshIntervalBounds(t *testing.T) {
	login := func(ms string) error {
		_, err := parseLogin(`{"playerId":"A","accessToken":"t","forceLogin":false,"tokenRefreshIntervalInMilliseconds":` + ms + `}`)
		return err
	}

	tests := []struct {
		ms      string
		wantErr bool
	}{
		{"0", false},
		{"3600000", false},
		{"9223372036854", false},
		{"9223372036855", true},
		{"9223372036854775807", true},
		{"-1", true},
	}
	for _, tt := range tests {
		t.Run(tt.ms, func(t *testing.T) {
			err := login(tt.ms)
			if tt.wantErr && !errors.Is(err, ErrOutOfRange) {
				t.Errorf("parseLogin(%s) error = %v, want ErrOutOfRange", tt.ms, err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("parseLogin(%s) error = %v", tt.ms, err)
			}
		})
	}
}
