package dubbing

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/maastricht-university/edmo-engagement/media"
)

// Espeak drives the espeak command-line synthesizer.
type Espeak struct {
	Bin    string
	Runner media.Runner
	// Speed in words per minute.
	Speed int
}

func NewEspeak(bin string, r media.Runner) *Espeak {
	if bin == "" {
		bin = "espeak"
	}
	return &Espeak{Bin: bin, Runner: r, Speed: 150}
}

func (e *Espeak) Name() string { return "espeak" }

func (e *Espeak) Synthesize(ctx context.Context, text, outPath, voice string) error {
	if voice == "" {
		voice = "en+f3"
	}
	tmp, err := os.CreateTemp("", "edmo-narration-*.txt")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.WriteString(text); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	res, err := e.Runner.Run(ctx, e.Bin,
		"-f", tmp.Name(),
		"-w", outPath,
		"-s", strconv.Itoa(e.Speed),
		"-v", voice,
	)
	if err != nil {
		return fmt.Errorf("espeak: %w\n%s", err, res.Stderr)
	}
	return nil
}

func (e *Espeak) Voices(context.Context) ([]Voice, error) {
	return []Voice{{Provider: "espeak", Name: "eSpeak Default", Language: "en", Gender: "unknown"}}, nil
}
