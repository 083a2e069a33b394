// Package dubbing replaces the audio of a lecture video with synthesized
// narration, falling back across speech providers until one succeeds.
package dubbing

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

var (
	ErrSynthesisFailed = errors.New("no speech provider produced audio")
	ErrMuxFailed       = errors.New("combining video and narration failed")
)

// Muxer is satisfied by media.Transcoder.
type Muxer interface {
	Mux(ctx context.Context, video, audio, out string) error
}

type Job struct {
	SourceVideo    string
	OutputDir      string
	TargetLanguage string
}

type Result struct {
	Output   string
	Name     string
	Provider string
	Attempts []Attempt
}

type Pipeline struct {
	Text  TextSource
	Chain *Chain
	Mux   Muxer
	Log   logrus.FieldLogger
}

// Dub writes <OutputDir>/<base>_dubbed.mp4. The intermediate
// <base>_dubbed_audio-*.wav is unique per call and removed whatever the
// outcome.
func (p *Pipeline) Dub(ctx context.Context, job Job) (Result, error) {
	log := p.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithFields(logrus.Fields{"video": filepath.Base(job.SourceVideo), "language": job.TargetLanguage})

	lang := job.TargetLanguage
	if lang == "" {
		lang = "en"
	}
	text, err := p.Text.Narration(ctx, job.SourceVideo)
	if err != nil {
		return Result{}, fmt.Errorf("narration: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return Result{}, ErrNoNarration
	}

	if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
		return Result{}, err
	}
	base := strings.TrimSuffix(filepath.Base(job.SourceVideo), filepath.Ext(job.SourceVideo))
	outPath := filepath.Join(job.OutputDir, base+"_dubbed.mp4")
	audioPath, err := media.TempPath(job.OutputDir, base+"_dubbed_audio-*.wav")
	if err != nil {
		return Result{}, fmt.Errorf("reserve narration audio: %w", err)
	}
	defer func() {
		if err := os.Remove(audioPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.WithError(err).Debug("could not remove narration audio")
		}
	}()

	provider, attempts, err := p.Chain.Synthesize(ctx, text, lang, audioPath)
	res := Result{Provider: provider, Attempts: attempts}
	if err != nil {
		log.WithError(err).Error("speech synthesis failed")
		return res, err
	}

	if err := p.Mux.Mux(ctx, job.SourceVideo, audioPath, outPath); err != nil {
		log.WithError(err).Error("mux failed")
		return res, fmt.Errorf("%w: %v", ErrMuxFailed, err)
	}

	res.Output = outPath
	res.Name = filepath.Base(outPath)
	log.WithFields(logrus.Fields{"output": res.Name, "provider": provider}).Info("dubbed video created")
	return res, nil
}
