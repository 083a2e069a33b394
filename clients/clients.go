// Package clients holds the HTTP and websocket clients for the external
// services the media pipelines talk to: the model mirror, a remote TTS
// server and a vosk-server recognizer.
package clients

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

type HTTP struct {
	c   *http.Client
	lim *rate.Limiter
}

func NewHTTP() *HTTP { return &HTTP{c: &http.Client{Timeout: 60 * time.Second}} }

// WithRateLimit caps outgoing requests at perMinute; zero disables the cap.
func (h *HTTP) WithRateLimit(perMinute int) *HTTP {
	if perMinute > 0 {
		h.lim = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1)
	} else {
		h.lim = nil
	}
	return h
}

// WithTimeout replaces the per-request timeout.
func (h *HTTP) WithTimeout(d time.Duration) *HTTP {
	h.c = &http.Client{Timeout: d}
	return h
}

func (h *HTTP) wait(ctx context.Context) error {
	if h.lim == nil {
		return nil
	}
	return h.lim.Wait(ctx)
}
