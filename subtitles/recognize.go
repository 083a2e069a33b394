package subtitles

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/maastricht-university/edmo-engagement/clients"
	"github.com/maastricht-university/edmo-engagement/media"
)

// ErrUnsupportedAudio is returned for WAV input that is not mono 16-bit at
// the recognizer sample rate.
var ErrUnsupportedAudio = errors.New("audio must be mono 16-bit PCM at the recognizer sample rate")

// Recognizer is a streaming speech recognizer fed with raw PCM chunks.
// Result and FinalResult return JSON of the form
// {"result":[{"word":..,"start":..,"end":..}],"text":..}.
type Recognizer interface {
	AcceptWaveform(pcm []byte) (bool, error)
	Result() []byte
	FinalResult() ([]byte, error)
	Close() error
}

// RecognizerFactory opens a recognizer for the installed model at modelPath.
type RecognizerFactory func(ctx context.Context, modelPath string, sampleRate int) (Recognizer, error)

// VoskServer returns a factory that connects to a vosk-server instance. The
// server loads its model from the shared models directory, so modelPath is
// only used to confirm the install.
func VoskServer(url string) RecognizerFactory {
	return func(ctx context.Context, _ string, sampleRate int) (Recognizer, error) {
		conn, err := clients.DialVosk(ctx, url, sampleRate)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

type resultWord struct {
	Word  string   `json:"word"`
	Start float64  `json:"start"`
	End   *float64 `json:"end"`
}

func parseResult(b []byte) ([]WordTiming, error) {
	var res struct {
		Result []resultWord `json:"result"`
	}
	if len(b) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(b, &res); err != nil {
		return nil, fmt.Errorf("decode recognizer result: %w", err)
	}
	out := make([]WordTiming, 0, len(res.Result))
	for _, w := range res.Result {
		end := w.Start + 0.4
		if w.End != nil {
			end = *w.End
		}
		out = append(out, WordTiming{Text: w.Word, Start: w.Start, End: end})
	}
	return out, nil
}

// Recognize streams the WAV at wavPath through rec in chunks of chunkFrames
// frames and collects the word timings of every final result.
func Recognize(ctx context.Context, rec Recognizer, wavPath string, sampleRate, chunkFrames int) ([]WordTiming, error) {
	wav, err := media.OpenWAV(wavPath)
	if err != nil {
		return nil, err
	}
	defer wav.Close()

	f := wav.Format
	if f.Channels != 1 || f.BitsPerSample != 16 || f.SampleRate != sampleRate {
		return nil, fmt.Errorf("%s: %d ch, %d bit, %d Hz: %w", wavPath, f.Channels, f.BitsPerSample, f.SampleRate, ErrUnsupportedAudio)
	}

	var (
		words []WordTiming
		buf   []byte
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		buf, err = wav.ReadFrames(buf, chunkFrames)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		final, err := rec.AcceptWaveform(buf)
		if err != nil {
			return nil, err
		}
		if final {
			ws, err := parseResult(rec.Result())
			if err != nil {
				return nil, err
			}
			words = append(words, ws...)
		}
	}

	last, err := rec.FinalResult()
	if err != nil {
		return nil, err
	}
	ws, err := parseResult(last)
	if err != nil {
		return nil, err
	}
	return append(words, ws...), nil
}
