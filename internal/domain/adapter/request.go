package adapter

import "fmt"

// RequestType is a control request delivered to an adapter.
type RequestType int

const (
	RequestNone RequestType = iota
	RequestInit
	RequestDeinit
	RequestLogin
	RequestLogout
	RequestRegister
	RequestPlay
	RequestResume
	RequestPause
	RequestPauseResumeToggle
	RequestStop
	RequestNext
	RequestPrevious
	RequestStartOver
	RequestFastForward
	RequestRewind
	RequestEnableRepeatOne
	RequestEnableRepeat
	RequestDisableRepeat
	RequestEnableShuffle
	RequestDisableShuffle
	RequestFavorite
	RequestDeselectFavorite
	RequestUnfavorite
	RequestDeselectUnfavorite
	RequestSeek
	RequestAdjustSeek
	RequestSetVolume
	RequestAdjustVolume
	RequestSetMute
)

var requestNames = map[RequestType]string{
	RequestNone:               "NONE",
	RequestInit:               "INIT",
	RequestDeinit:             "DEINIT",
	RequestLogin:              "LOGIN",
	RequestLogout:             "LOGOUT",
	RequestRegister:           "REGISTER",
	RequestPlay:               "PLAY",
	RequestResume:             "RESUME",
	RequestPause:              "PAUSE",
	RequestPauseResumeToggle:  "PAUSE_RESUME_TOGGLE",
	RequestStop:               "STOP",
	RequestNext:               "NEXT",
	RequestPrevious:           "PREVIOUS",
	RequestStartOver:          "START_OVER",
	RequestFastForward:        "FAST_FORWARD",
	RequestRewind:             "REWIND",
	RequestEnableRepeatOne:    "ENABLE_REPEAT_ONE",
	RequestEnableRepeat:       "ENABLE_REPEAT",
	RequestDisableRepeat:      "DISABLE_REPEAT",
	RequestEnableShuffle:      "ENABLE_SHUFFLE",
	RequestDisableShuffle:     "DISABLE_SHUFFLE",
	RequestFavorite:           "FAVORITE",
	RequestDeselectFavorite:   "DESELECT_FAVORITE",
	RequestUnfavorite:         "UNFAVORITE",
	RequestDeselectUnfavorite: "DESELECT_UNFAVORITE",
	RequestSeek:               "SEEK",
	RequestAdjustSeek:         "ADJUST_SEEK",
	RequestSetVolume:          "SET_VOLUME",
	RequestAdjustVolume:       "ADJUST_VOLUME",
	RequestSetMute:            "SET_MUTE",
}

func (r RequestType) String() string {
	if s, ok := requestNames[r]; ok {
		return s
	}
	return fmt.Sprintf("RequestType(%d)", int(r))
}

// ParseRequestType is the inverse of RequestType.String.
func ParseRequestType(s string) (RequestType, error) {
	for r, name := range requestNames {
		if name == s {
			return r, nil
		}
	}
	return RequestNone, fmt.Errorf("unknown request type %q", s)
}

// PlaybackButton is a hardware or UI button.
type PlaybackButton int

const (
	ButtonPlay PlaybackButton = iota
	ButtonPause
	ButtonNext
	ButtonPrevious
	ButtonSkipForward
	ButtonSkipBackward
)

var buttonNames = map[string]PlaybackButton{
	"PLAY":          ButtonPlay,
	"PAUSE":         ButtonPause,
	"NEXT":          ButtonNext,
	"PREVIOUS":      ButtonPrevious,
	"SKIP_FORWARD":  ButtonSkipForward,
	"SKIP_BACKWARD": ButtonSkipBackward,
}

// ParsePlaybackButton parses a button name such as "PAUSE".
func ParsePlaybackButton(s string) (PlaybackButton, error) {
	if b, ok := buttonNames[s]; ok {
		return b, nil
	}
	return 0, fmt.Errorf("unknown playback button %q", s)
}

// RequestType maps a button press to the request sent to the default adapter.
// Play and Pause both become a pause/resume toggle.
func (b PlaybackButton) RequestType() RequestType {
	switch b {
	case ButtonPlay, ButtonPause:
		return RequestPauseResumeToggle
	case ButtonNext:
		return RequestNext
	case ButtonPrevious:
		return RequestPrevious
	case ButtonSkipForward:
		return RequestFastForward
	case ButtonSkipBackward:
		return RequestRewind
	}
	return RequestNone
}

// PlaybackToggle is a two-state UI control.
type PlaybackToggle int

const (
	ToggleShuffle PlaybackToggle = iota
	ToggleLoop
	ToggleRepeat
	ToggleThumbsUp
	ToggleThumbsDown
)

var toggleNames = map[string]PlaybackToggle{
	"SHUFFLE":     ToggleShuffle,
	"LOOP":        ToggleLoop,
	"REPEAT":      ToggleRepeat,
	"THUMBS_UP":   ToggleThumbsUp,
	"THUMBS_DOWN": ToggleThumbsDown,
}

// ParsePlaybackToggle parses a toggle name such as "SHUFFLE".
func ParsePlaybackToggle(s string) (PlaybackToggle, error) {
	if t, ok := toggleNames[s]; ok {
		return t, nil
	}
	return 0, fmt.Errorf("unknown playback toggle %q", s)
}

// RequestType maps a toggle and its new value to an adapter request.
func (t PlaybackToggle) RequestType(selected bool) RequestType {
	switch t {
	case ToggleShuffle:
		if selected {
			return RequestEnableShuffle
		}
		return RequestDisableShuffle
	case ToggleLoop:
		if selected {
			return RequestEnableRepeat
		}
		return RequestDisableRepeat
	case ToggleRepeat:
		if selected {
			return RequestEnableRepeatOne
		}
		return RequestDisableRepeat
	case ToggleThumbsUp:
		if selected {
			return RequestFavorite
		}
		return RequestDeselectFavorite
	case ToggleThumbsDown:
		if selected {
			return RequestUnfavorite
		}
		return RequestDeselectUnfavorite
	}
	return RequestNone
}
