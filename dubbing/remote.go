package dubbing

import (
	"context"
	"os"

	"github.com/maastricht-university/edmo-engagement/clients"
)

// Remote synthesizes through an HTTP speech server.
type Remote struct {
	HTTP *clients.HTTP
	URL  string
}

func (r *Remote) Name() string { return "remote" }

func (r *Remote) Synthesize(ctx context.Context, text, outPath, voice string) error {
	audio, err := r.HTTP.TTS(ctx, r.URL, clients.TTSReq{Text: text, Voice: voice})
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, audio, 0o644)
}

func (r *Remote) Voices(ctx context.Context) ([]Voice, error) {
	vs, err := r.HTTP.TTSVoices(ctx, r.URL)
	if err != nil {
		return nil, err
	}
	out := make([]Voice, 0, len(vs))
	for _, v := range vs {
		out = append(out, Voice{Provider: r.Name(), Name: v.Name, Language: v.Language, Gender: v.Gender})
	}
	return out, nil
}
