package dubbing

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
)

// Provider turns narration text into a WAV file at outPath.
type Provider interface {
	Name() string
	// Synthesize writes speech for text to outPath. voice may be empty to
	// use the provider default.
	Synthesize(ctx context.Context, text, outPath, voice string) error
	Voices(ctx context.Context) ([]Voice, error)
}

type Voice struct {
	Provider string `json:"provider"`
	Name     string `json:"name"`
	Language string `json:"language"`
	Gender   string `json:"gender"`
}

// Attempt records one provider's failure during a fallback run.
type Attempt struct {
	Provider string
	Err      error
}

func (a Attempt) String() string { return fmt.Sprintf("%s: %v", a.Provider, a.Err) }

var errEmptyAudio = errors.New("provider produced no audio")

// Chain tries providers in order until one produces a non-empty file.
type Chain struct {
	Providers []Provider
	// VoiceMap maps provider name -> language -> voice name.
	VoiceMap map[string]map[string]string
	Log      logrus.FieldLogger
}

// VoiceFor picks the configured voice for a provider and language, or ""
// for the provider default.
func (c *Chain) VoiceFor(provider, lang string) string {
	byLang := c.VoiceMap[provider]
	if v, ok := byLang[lang]; ok {
		return v
	}
	return ""
}

// Synthesize returns the winning provider's name and every failed attempt
// before it. When all providers fail the error wraps ErrSynthesisFailed.
func (c *Chain) Synthesize(ctx context.Context, text, lang, outPath string) (string, []Attempt, error) {
	log := c.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	var attempts []Attempt
	for _, p := range c.Providers {
		if err := ctx.Err(); err != nil {
			return "", attempts, err
		}
		os.Remove(outPath)
		err := p.Synthesize(ctx, text, outPath, c.VoiceFor(p.Name(), lang))
		if err == nil && !nonEmpty(outPath) {
			err = errEmptyAudio
		}
		if err == nil {
			log.WithField("provider", p.Name()).Info("speech synthesized")
			return p.Name(), attempts, nil
		}
		log.WithField("provider", p.Name()).WithError(err).Warn("speech provider failed")
		attempts = append(attempts, Attempt{Provider: p.Name(), Err: err})
		os.Remove(outPath)
	}
	return "", attempts, fmt.Errorf("%w: %d providers tried", ErrSynthesisFailed, len(attempts))
}

// Voices collects the catalogue of every provider. Providers that cannot
// list voices are skipped.
func (c *Chain) Voices(ctx context.Context) []Voice {
	var out []Voice
	for _, p := range c.Providers {
		vs, err := p.Voices(ctx)
		if err != nil {
			if c.Log != nil {
				c.Log.WithField("provider", p.Name()).WithError(err).Debug("voice listing failed")
			}
			continue
		}
		out = append(out, vs...)
	}
	return out
}

func nonEmpty(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Size() > 0
}
