package dubbing

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"google.golang.org/genai"

	"github.com/maastricht-university/edmo-engagement/media"
)

// geminiPCM is the raw format Gemini speech models return.
var geminiPCM = media.WAVFormat{Channels: 1, SampleRate: 24000, BitsPerSample: 16}

// geminiVoices are the prebuilt voices offered for speech generation.
var geminiVoices = []struct{ name, gender string }{
	{"Kore", "female"},
	{"Aoede", "female"},
	{"Leda", "female"},
	{"Puck", "male"},
	{"Charon", "male"},
	{"Fenrir", "male"},
}

// GenerativeModels is the part of *genai.Models used by Gemini.
type GenerativeModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Gemini synthesizes speech with a Gemini TTS model.
type Gemini struct {
	Models GenerativeModels
	Model  string
}

// NewGemini connects to the Gemini API with apiKey.
func NewGemini(ctx context.Context, apiKey, model string) (*Gemini, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: no API key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Gemini{Models: client.Models, Model: model}, nil
}

func (g *Gemini) Name() string { return "gemini" }

func (g *Gemini) Synthesize(ctx context.Context, text, outPath, voice string) error {
	if voice == "" {
		voice = "Kore"
	}
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}
	resp, err := g.Models.GenerateContent(ctx, g.Model, genai.Text(text), config)
	if err != nil {
		return fmt.Errorf("gemini generate: %w", err)
	}

	var pcm []byte
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, part := range c.Content.Parts {
			if part.InlineData != nil {
				pcm = append(pcm, part.InlineData.Data...)
			}
		}
	}
	if len(pcm) == 0 {
		return errEmptyAudio
	}

	var buf bytes.Buffer
	if err := media.WriteWAV(&buf, pcm, geminiPCM); err != nil {
		return err
	}
	return os.WriteFile(outPath, buf.Bytes(), 0o644)
}

func (g *Gemini) Voices(context.Context) ([]Voice, error) {
	out := make([]Voice, 0, len(geminiVoices))
	for _, v := range geminiVoices {
		out = append(out, Voice{Provider: g.Name(), Name: v.name, Language: "multi", Gender: v.gender})
	}
	return out, nil
}
