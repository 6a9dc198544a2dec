// Package transport holds the JSON-over-HTTP plumbing shared by the HTTP
// extraction backends. Every error it returns wraps one of the models backend
// sentinels so the extraction engine can pick a fallback reason.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/steelsched/pkg/models"
)

// maxErrorBody bounds how much of a failed response is kept in the error text.
const maxErrorBody = 512

// PostJSON marshals body, POSTs it to url and returns the raw 2xx response.
func PostJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, body any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("create request: %w: %w", models.ErrBackendUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, Classify(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Classify(ctx, fmt.Errorf("read body: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(raw))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return nil, fmt.Errorf("%w: status %d: %s", models.ErrBackendResponse, resp.StatusCode, msg)
	}
	return raw, nil
}

// Classify wraps a transport-level error in the matching backend sentinel.
func Classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrBackendUnavailable) || errors.Is(err, models.ErrBackendTimeout) || errors.Is(err, models.ErrBackendResponse) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", models.ErrBackendTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", models.ErrBackendTimeout, err)
	}
	return fmt.Errorf("%w: %w", models.ErrBackendUnavailable, err)
}
