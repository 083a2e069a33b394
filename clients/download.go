package clients

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
)

// Download streams url into dst. A partially written file is removed on
// failure.
func (h *HTTP) Download(ctx context.Context, url, dst string) (int64, error) {
	if err := h.wait(ctx); err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := h.c.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("download %s: %s: %s", url, resp.Status, string(body))
	}

	f, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return n, fmt.Errorf("download %s: %w", url, err)
	}
	return n, nil
}
