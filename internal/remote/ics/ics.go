// Package ics is a read-only remote calendar backed by an iCalendar feed.
// It also parses .ics files for import.
package ics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/mschirtzinger/planner/internal/remote"
	"github.com/mschirtzinger/planner/internal/schema"
)

// HTTPDoer is the part of *http.Client the feed client needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client fetches the account's CalendarURL as an iCalendar feed. Writes are
// rejected with ErrNotSupported.
type Client struct {
	http    HTTPDoer
	timeout time.Duration
}

var _ remote.Client = (*Client)(nil)

// New creates a feed client. timeout bounds every fetch (default 30s).
func New(client HTTPDoer, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Client{http: client, timeout: timeout}
}

// List implements remote.Client.
func (c *Client) List(ctx context.Context, acct *schema.Account, from, to time.Time) ([]remote.Event, error) {
	if acct.CalendarURL == "" {
		return nil, &remote.RejectedError{Op: "list", Err: errors.New("account has no feed url")}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, acct.CalendarURL, nil)
	if err != nil {
		return nil, &remote.RejectedError{Op: "list", Err: err}
	}
	if acct.Credential != "" {
		req.Header.Set("Authorization", "Bearer "+acct.Credential)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &remote.UnavailableError{Op: "list", Code: "network", Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	code := strconv.Itoa(resp.StatusCode)
	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &remote.UnavailableError{Op: "list", Code: code, Retryable: true}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &remote.UnavailableError{Op: "list", Code: code}
	default:
		return nil, &remote.RejectedError{Op: "list", Code: code}
	}

	events, err := Parse(resp.Body, from, to)
	if err != nil {
		return nil, &remote.RejectedError{Op: "list", Err: err}
	}
	return events, nil
}

// ReadOnly implements remote.ReadOnly.
func (c *Client) ReadOnly() bool { return true }

// Push implements remote.Client.
func (c *Client) Push(context.Context, *schema.Account, *schema.Event) (string, error) {
	return "", &remote.RejectedError{Op: "push", Err: remote.ErrNotSupported}
}

// Update implements remote.Client.
func (c *Client) Update(context.Context, *schema.Account, *schema.Event) error {
	return &remote.RejectedError{Op: "update", Err: remote.ErrNotSupported}
}

// Delete implements remote.Client.
func (c *Client) Delete(context.Context, *schema.Account, string) error {
	return &remote.RejectedError{Op: "delete", Err: remote.ErrNotSupported}
}
