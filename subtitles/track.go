package subtitles

import (
	"bufio"
	"fmt"
	"io"
)

// Format selects the caption file syntax.
type Format string

const (
	FormatVTT Format = "vtt"
	FormatSRT Format = "srt"
)

// Ext returns the file extension including the dot.
func (f Format) Ext() string {
	if f == FormatSRT {
		return ".srt"
	}
	return ".vtt"
}

// PlaceholderCue is written when recognition produced no words.
var PlaceholderCue = Cue{Start: 0, End: 5, Text: "Automatic subtitles unavailable."}

// Timestamp formats seconds as HH:MM:SS.mmm (or HH:MM:SS,mmm for SRT).
// Milliseconds are truncated, not rounded.
func Timestamp(seconds float64, sep byte) string {
	if seconds < 0 {
		seconds = 0
	}
	ms := int64(seconds * 1000)
	h := ms / 3600000
	ms %= 3600000
	m := ms / 60000
	ms %= 60000
	s := ms / 1000
	ms %= 1000
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", h, m, s, sep, ms)
}

// WriteTrack writes cues in the given format. An empty cue list yields the
// single placeholder cue.
func WriteTrack(w io.Writer, f Format, cues []Cue) error {
	if len(cues) == 0 {
		cues = []Cue{PlaceholderCue}
	}
	bw := bufio.NewWriter(w)
	switch f {
	case FormatSRT:
		for i, c := range cues {
			fmt.Fprintf(bw, "%d\n%s --> %s\n%s\n\n", i+1, Timestamp(c.Start, ','), Timestamp(c.End, ','), c.Text)
		}
	default:
		bw.WriteString("WEBVTT\n\n")
		for _, c := range cues {
			fmt.Fprintf(bw, "%s --> %s\n%s\n\n", Timestamp(c.Start, '.'), Timestamp(c.End, '.'), c.Text)
		}
	}
	return bw.Flush()
}
