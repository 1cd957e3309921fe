package formrecognizer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/kirillkom/receipt-reminders/internal/core/domain"
)

func (c *Client) submit(ctx context.Context, image []byte, mimeType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+analyzePath, bytes.NewReader(image))
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "create submit request", err)
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", domain.WrapError(domain.ErrTransport, "analysis submit request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", domain.WrapError(domain.ErrTransport, "analysis submit", newHTTPStatusError("submit", resp))
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	location := strings.TrimSpace(resp.Header.Get(operationLocationHeader))
	if location == "" {
		return "", domain.WrapError(domain.ErrProtocol, "analysis submit", errors.New("response has no Operation-Location header"))
	}
	return location, nil
}

func (c *Client) getJSON(ctx context.Context, url string, out *pollResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "create poll request", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.WrapError(domain.ErrTransport, "analysis poll request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.WrapError(domain.ErrTransport, "analysis poll", newHTTPStatusError("poll", resp))
	}
	return decodePollBody(resp, out)
}

func newHTTPStatusError(operation string, resp *http.Response) *HTTPStatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &HTTPStatusError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(body),
	}
}

type HTTPStatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "analysis status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("analysis %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("analysis %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}
