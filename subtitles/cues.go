package subtitles

import "strings"

// WordTiming is one recognized word with times in seconds from the start of
// the audio.
type WordTiming struct {
	Text  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Cue is one caption: a time span and the words shown during it.
type Cue struct {
	Start float64
	End   float64
	Text  string
}

// BucketWords groups words into cues. Before a word is added the current cue
// is flushed when it is non-empty and either the word's end is maxDuration
// or more past the cue start, or the cue already holds maxWords words. A
// cue ends at its last word's end.
func BucketWords(words []WordTiming, maxDuration float64, maxWords int) []Cue {
	var (
		cues   []Cue
		bucket []WordTiming
		start  float64
	)
	flush := func() {
		texts := make([]string, len(bucket))
		for i, w := range bucket {
			texts[i] = w.Text
		}
		cues = append(cues, Cue{Start: start, End: bucket[len(bucket)-1].End, Text: strings.Join(texts, " ")})
		bucket = bucket[:0]
	}

	for _, w := range words {
		if len(bucket) > 0 && (w.End-start >= maxDuration || len(bucket) >= maxWords) {
			flush()
		}
		if len(bucket) == 0 {
			start = w.Start
		}
		bucket = append(bucket, w)
	}
	if len(bucket) > 0 {
		flush()
	}
	return cues
}
