package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/teslashibe/go-drowse/internal/httpc"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxAudioBytes caps a single clip. A short warning is well under 1 MiB.
const maxAudioBytes = 8 << 20

// postJSON sends payload to url with retries and returns the audio body.
// parseError turns a non-200 response into an error.
func postJSON(ctx context.Context, client *http.Client, cfg *Config, logger *slog.Logger,
	url string, payload any, header http.Header, parseError func(*http.Response) error) ([]byte, error) {

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	retry := httpc.Retry{
		MaxRetries: cfg.MaxRetries,
		Delay:      cfg.RetryDelay,
		OnRetry: func(attempt, status int) {
			logger.Warn("retrying request", "attempt", attempt, "status", status)
		},
	}
	resp, err := httpc.DoWithRetry(ctx, client, retry, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		for k, v := range header {
			req.Header[k] = v
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, parseError(resp)
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(audio) == 0 {
		return nil, ErrEmptyAudio
	}
	return audio, nil
}

// getStatus performs an authenticated GET used by health checks.
func getStatus(ctx context.Context, client *http.Client, url string, header http.Header, parseError func(*http.Response) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	for k, v := range header {
		req.Header[k] = v
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseError(resp)
	}
	return nil
}
