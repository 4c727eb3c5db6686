// Package googleapi reads the two external attendance sources: committee
// meeting protocols from Google Docs and event-registration rosters from
// Google Sheets. It only understands the fixed layouts those documents are
// known to follow; everything else degrades to null fields or typed errors.
package googleapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

type Client struct {
	token      string
	httpClient *http.Client

	// Overridable in tests.
	DocsBaseURL   string
	SheetsBaseURL string
	ExportBaseURL string
}

func NewClient(token string) *Client {
	return &Client{
		token:         token,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		DocsBaseURL:   "https://docs.googleapis.com",
		SheetsBaseURL: "https://sheets.googleapis.com",
		ExportBaseURL: "https://docs.google.com",
	}
}

// get performs a single authorized round trip. No retries: a failed fetch
// fails the current reconciliation cycle for that one item only.
func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", url, ErrNotFound)
	case http.StatusForbidden:
		return nil, fmt.Errorf("%s: %w", url, ErrPermissionDenied)
	default:
		return nil, &APIError{StatusCode: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}
