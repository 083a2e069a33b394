package dubbing

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/maastricht-university/edmo-engagement/clients"
	"github.com/maastricht-university/edmo-engagement/config"
	"github.com/maastricht-university/edmo-engagement/media"
)

// NewChain builds the provider chain in the order named by c.Providers.
// Providers that cannot be constructed (no API key, no server URL) are left
// out with a warning; an empty chain is an error.
func NewChain(ctx context.Context, c config.Dubbing, ttsURL string, r media.Runner, log logrus.FieldLogger) (*Chain, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	chain := &Chain{VoiceMap: c.Voices, Log: log}
	for _, name := range c.Providers {
		switch name {
		case "gemini":
			g, err := NewGemini(ctx, c.GeminiKey, c.GeminiModel)
			if err != nil {
				log.WithError(err).Warn("gemini provider disabled")
				continue
			}
			chain.Providers = append(chain.Providers, g)
		case "remote":
			if ttsURL == "" {
				log.Warn("remote provider disabled: no services.tts.url")
				continue
			}
			h := clients.NewHTTP()
			if c.RequestsPerM > 0 {
				h = h.WithRateLimit(c.RequestsPerM)
			}
			chain.Providers = append(chain.Providers, &Remote{HTTP: h, URL: ttsURL})
		case "espeak":
			chain.Providers = append(chain.Providers, NewEspeak(c.Espeak, r))
		default:
			return nil, fmt.Errorf("unknown speech provider %q", name)
		}
	}
	if len(chain.Providers) == 0 {
		return nil, fmt.Errorf("%w: no provider configured", ErrSynthesisFailed)
	}
	return chain, nil
}
