// Package subtitles generates caption tracks for lecture videos: extract the
// audio, run it through a speech recognizer, group the recognized words into
// timed cues and write a WebVTT (or SRT) file next to the video outputs.
package subtitles

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/edmo-engagement/media"
)

// ErrNoAudio means the audio track could not be extracted; no captions are
// produced.
var ErrNoAudio = errors.New("audio extraction failed")

// AudioExtractor is satisfied by media.Transcoder.
type AudioExtractor interface {
	ExtractAudio(ctx context.Context, video, wavOut string) error
}

type Pipeline struct {
	Models        *ModelCache
	Model         string
	Audio         AudioExtractor
	NewRecognizer RecognizerFactory

	SampleRate  int
	ChunkFrames int
	MaxDuration float64
	MaxWords    int
	Format      Format

	Log logrus.FieldLogger
}

// Result describes a written caption track.
type Result struct {
	Path        string
	Name        string
	Cues        int
	Placeholder bool
}

// Generate writes <outDir>/<base><ext> for video and returns its location.
// The intermediate audio gets a unique name per call. Two videos with the
// same base name still map to the same track; callers batching videos keep
// base names distinct.
// Recognition problems degrade to a placeholder track; only a failed audio
// extraction or an unwritable output is an error.
func (p *Pipeline) Generate(ctx context.Context, video, outDir string) (Result, error) {
	log := p.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("video", filepath.Base(video))

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return Result{}, err
	}
	base := strings.TrimSuffix(filepath.Base(video), filepath.Ext(video))
	format := p.Format
	if format == "" {
		format = FormatVTT
	}
	trackPath := filepath.Join(outDir, base+format.Ext())
	wavPath, err := media.TempPath(outDir, base+"_stt-*.wav")
	if err != nil {
		return Result{}, fmt.Errorf("reserve temporary audio: %w", err)
	}

	if err := p.Audio.ExtractAudio(ctx, video, wavPath); err != nil {
		log.WithError(err).Warn("audio extraction failed; no subtitles generated")
		os.Remove(wavPath)
		return Result{}, fmt.Errorf("%s: %w: %v", video, ErrNoAudio, err)
	}

	words := p.transcribe(ctx, wavPath, log)
	if err := os.Remove(wavPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Debug("could not remove temporary audio")
	}

	cues := BucketWords(words, p.maxDuration(), p.maxWords())
	if err := writeTrackFile(trackPath, format, cues); err != nil {
		return Result{}, fmt.Errorf("write %s: %w", trackPath, err)
	}

	res := Result{Path: trackPath, Name: filepath.Base(trackPath), Cues: len(cues), Placeholder: len(cues) == 0}
	if res.Placeholder {
		res.Cues = 1
	}
	log.WithFields(logrus.Fields{"track": res.Name, "cues": res.Cues, "placeholder": res.Placeholder}).Info("subtitles generated")
	return res, nil
}

// transcribe never fails: any model or recognizer problem yields no words.
func (p *Pipeline) transcribe(ctx context.Context, wavPath string, log logrus.FieldLogger) []WordTiming {
	modelPath := ""
	if p.Models != nil {
		path, err := p.Models.Ensure(ctx, p.Model)
		if err != nil {
			log.WithError(err).Warn("recognizer model unavailable")
			return nil
		}
		modelPath = path
	}
	if p.NewRecognizer == nil {
		log.Warn("no recognizer configured")
		return nil
	}

	rec, err := p.NewRecognizer(ctx, modelPath, p.sampleRate())
	if err != nil {
		log.WithError(err).Warn("recognizer unavailable")
		return nil
	}
	defer rec.Close()

	words, err := Recognize(ctx, rec, wavPath, p.sampleRate(), p.chunkFrames())
	if err != nil {
		log.WithError(err).Warn("transcription failed")
		return nil
	}
	log.WithField("words", len(words)).Debug("transcription finished")
	return words
}

func writeTrackFile(path string, f Format, cues []Cue) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteTrack(out, f, cues); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func (p *Pipeline) sampleRate() int {
	if p.SampleRate > 0 {
		return p.SampleRate
	}
	return 16000
}

func (p *Pipeline) chunkFrames() int {
	if p.ChunkFrames > 0 {
		return p.ChunkFrames
	}
	return 4000
}

func (p *Pipeline) maxDuration() float64 {
	if p.MaxDuration > 0 {
		return p.MaxDuration
	}
	return 5.0
}

func (p *Pipeline) maxWords() int {
	if p.MaxWords > 0 {
		return p.MaxWords
	}
	return 12
}
