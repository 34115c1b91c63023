package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUnreachable is returned (wrapped) when the coordinator cannot be reached
// at the transport level, as opposed to answering with an unexpected status.
var ErrUnreachable = errors.New("cluster unreachable")

var httpClient = &http.Client{Timeout: 10 * time.Second}

// Stats holds the coordinator's aggregate counters.
type Stats struct {
	TotalFiles  int `json:"total_files"`
	ActiveNodes int `json:"active_nodes"`
}

// DeleteOutcome records one delete attempt. Status is the HTTP status code,
// or -1 when the request never produced a response. Exactly one of Response
// and Err is set.
type DeleteOutcome struct {
	File      string    `json:"file"`
	Status    int       `json:"status"`
	Response  string    `json:"response,omitempty"`
	Err       string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// OK reports whether the delete was accepted synchronously.
func (o DeleteOutcome) OK() bool { return o.Status == http.StatusOK }

// Client talks to the coordinator's HTTP API.
type Client struct {
	baseURL string
	secret  string
	http    *http.Client
}

// NewClient creates a client for the coordinator at baseURL. The secret is
// the admin credential required by destructive endpoints.
func NewClient(baseURL, secret string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		http:    httpClient,
	}
}

// BaseURL returns the coordinator URL the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// Health probes the coordinator's /health endpoint.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// Stats fetches the coordinator's aggregate counters. A transport failure is
// reported as a wrapped ErrUnreachable.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/stats", nil)
	if err != nil {
		return stats, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return stats, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return stats, fmt.Errorf("stats returned status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return stats, fmt.Errorf("decode stats: %w", err)
	}
	return stats, nil
}

// DeleteFile issues a delete for name and captures the result. It never
// returns an error: transport failures are recorded in the outcome with
// Status -1 so a degraded cluster produces data, not aborts.
func (c *Client) DeleteFile(ctx context.Context, name string) DeleteOutcome {
	out := DeleteOutcome{File: name, Timestamp: time.Now()}

	u := fmt.Sprintf("%s/delete?name=%s&secret=%s",
		c.baseURL, url.QueryEscape(name), url.QueryEscape(c.secret))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		out.Status = -1
		out.Err = err.Error()
		return out
	}
	resp, err := c.http.Do(req)
	if err != nil {
		out.Status = -1
		out.Err = err.Error()
		return out
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	out.Status = resp.StatusCode
	if err != nil {
		out.Err = err.Error()
		return out
	}
	out.Response = strings.TrimSpace(string(body))
	return out
}

// Upload streams a file to the coordinator's multipart /upload endpoint.
func (c *Client) Upload(ctx context.Context, name string, r io.Reader) error {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		part, err := mw.CreateFormFile("movie", name)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(err)
			return
		}
		if err := mw.WriteField("secret", c.secret); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", pr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upload %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upload %s: status %d: %s", name, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// GetText fetches a URL and returns its body as a string. Used for raw
// Prometheus exposition endpoints on the coordinator and workers.
func GetText(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("http %s: %d", rawURL, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
