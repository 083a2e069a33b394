package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type TTSReq struct {
	Text     string `json:"text"`
	Voice    string `json:"voice,omitempty"`
	Language string `json:"language,omitempty"`
	Format   string `json:"format"`
}

type TTSVoice struct {
	Name     string `json:"name"`
	Language string `json:"language"`
	Gender   string `json:"gender,omitempty"`
}

// TTS posts text to a speech server's /synthesize endpoint and returns the
// WAV body.
func (h *HTTP) TTS(ctx context.Context, url string, in TTSReq) ([]byte, error) {
	if in.Format == "" {
		in.Format = "wav"
	}
	if err := h.wait(ctx); err != nil {
		return nil, err
	}
	b, _ := json.Marshal(in)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url+"/synthesize", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("tts %s: %s", resp.Status, string(body))
	}
	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tts read: %w", err)
	}
	return audio, nil
}

// TTSVoices lists the voices a speech server offers.
func (h *HTTP) TTSVoices(ctx context.Context, url string) ([]TTSVoice, error) {
	if err := h.wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/voices", nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("tts voices %s: %s", resp.Status, string(body))
	}
	var out []TTSVoice
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("tts voices decode: %w", err)
	}
	return out, nil
}
