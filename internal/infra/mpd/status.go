package mpd

import (
	"strconv"
	"strings"
	"time"

	"github.com/fhs/gompd/v2/mpd"
)

// Playback states reported by MPD.
const (
	StatePlay  = "play"
	StatePause = "pause"
	StateStop  = "stop"
)

// Status is the parsed result of the status and currentsong commands.
type Status struct {
	State    string
	Elapsed  time.Duration
	Duration time.Duration
	Random   bool
	Repeat   bool
	Single   bool
	Song     Song
}

// Song describes the current queue entry.
type Song struct {
	File   string
	ID     string
	Title  string
	Artist string
	Album  string
	Track  string
}

// ParseStatus builds a Status from raw MPD attributes.
func ParseStatus(status, song mpd.Attrs) Status {
	st := Status{
		State:   status["state"],
		Elapsed: seconds(status["elapsed"]),
		Random:  status["random"] == "1",
		Repeat:  status["repeat"] == "1",
		Single:  status["single"] == "1",
	}
	if st.State == "" {
		st.State = StateStop
	}

	st.Duration = seconds(status["duration"])
	if st.Duration == 0 {
		st.Duration = seconds(song["duration"])
	}
	if st.Duration == 0 {
		st.Duration = seconds(song["Time"])
	}

	st.Song = Song{
		File:   song["file"],
		ID:     song["Id"],
		Title:  song["Title"],
		Artist: song["Artist"],
		Album:  song["Album"],
		Track:  song["Track"],
	}
	if st.Song.Artist == "" {
		st.Song.Artist = song["AlbumArtist"]
	}
	return st
}

// PlaylistName reports whether uri names a stored playlist.
func PlaylistName(uri string) (string, bool) {
	name, ok := strings.CutPrefix(uri, "playlist:")
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

func seconds(s string) time.Duration {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}
