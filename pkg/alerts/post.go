package alerts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	userAgent   = "LLM-Provider-Gateway/1.0"
	sendTimeout = 10 * time.Second
)

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: sendTimeout}
}

// postJSON delivers body to url and treats any non-2xx response as a failure.
// At most 512 bytes of an error response are kept for the error message.
func postJSON(ctx context.Context, client *http.Client, target, url string, body []byte, header http.Header) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", target, err)
	}
	for k, v := range header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send %s alert: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if len(detail) > 0 {
			return fmt.Errorf("%s returned status %d: %s", target, resp.StatusCode, bytes.TrimSpace(detail))
		}
		return fmt.Errorf("%s returned status %d", target, resp.StatusCode)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
