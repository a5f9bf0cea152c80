// Package rest is a JSON-over-HTTP remote calendar client authenticated with
// the account's bearer credential.
//
// Wire format (one calendar per account):
//
//	GET    {collection}?time_min=RFC3339&time_max=RFC3339  -> {"items":[Event...]}
//	POST   {collection}            body Event              -> Event (with id)
//	PUT    {collection}/{id}       body Event              -> Event
//	DELETE {collection}/{id}                               -> 204
//
// The collection is the account's calendar URL, or
// {base}/calendars/primary/events when the account has none.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mschirtzinger/planner/internal/remote"
	"github.com/mschirtzinger/planner/internal/schema"
)

// HTTPDoer is the part of *http.Client the client needs.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client implements remote.Client.
type Client struct {
	baseURL string
	http    HTTPDoer
	timeout time.Duration
}

var _ remote.Client = (*Client)(nil)

// New creates a client. timeout bounds every call (default 30s).
func New(baseURL string, client HTTPDoer, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: client, timeout: timeout}
}

type listResponse struct {
	Items []remote.Event `json:"items"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// List implements remote.Client.
func (c *Client) List(ctx context.Context, acct *schema.Account, from, to time.Time) ([]remote.Event, error) {
	q := url.Values{}
	q.Set("time_min", from.UTC().Format(time.RFC3339))
	q.Set("time_max", to.UTC().Format(time.RFC3339))

	var out listResponse
	if err := c.do(ctx, "list", acct, http.MethodGet, c.collection(acct)+"?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Push implements remote.Client.
func (c *Client) Push(ctx context.Context, acct *schema.Account, e *schema.Event) (string, error) {
	in := remote.FromLocal(e)
	in.ID = ""
	var out remote.Event
	if err := c.do(ctx, "push", acct, http.MethodPost, c.collection(acct), in, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", &remote.RejectedError{Op: "push", Err: errors.New("response carried no event id")}
	}
	return out.ID, nil
}

// Update implements remote.Client.
func (c *Client) Update(ctx context.Context, acct *schema.Account, e *schema.Event) error {
	if e.RemoteID == "" {
		return &remote.RejectedError{Op: "update", Err: errors.New("event has no remote id")}
	}
	return c.do(ctx, "update", acct, http.MethodPut, c.item(acct, e.RemoteID), remote.FromLocal(e), nil)
}

// Delete implements remote.Client. Deleting an event the provider no longer
// knows is not an error.
func (c *Client) Delete(ctx context.Context, acct *schema.Account, remoteID string) error {
	err := c.do(ctx, "delete", acct, http.MethodDelete, c.item(acct, remoteID), nil, nil)
	var re *remote.RejectedError
	if errors.As(err, &re) && (re.Code == "404" || re.Code == "410") {
		return nil
	}
	return err
}

func (c *Client) collection(acct *schema.Account) string {
	if acct.CalendarURL != "" {
		return strings.TrimRight(acct.CalendarURL, "/")
	}
	return c.baseURL + "/calendars/primary/events"
}

func (c *Client) item(acct *schema.Account, remoteID string) string {
	return c.collection(acct) + "/" + url.PathEscape(remoteID)
}

func (c *Client) do(ctx context.Context, op string, acct *schema.Account, method, target string, in, out any) error {
	if !acct.Linked() {
		return &remote.UnavailableError{Op: op, Code: "401", Err: errors.New("no credential")}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return &remote.RejectedError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return &remote.RejectedError{Op: op, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+acct.Credential)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &remote.UnavailableError{Op: op, Code: "network", Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return classify(op, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &remote.UnavailableError{Op: op, Code: strconv.Itoa(resp.StatusCode), Retryable: true,
			Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// classify maps a non-2xx response onto the remote failure taxonomy.
func classify(op string, resp *http.Response) error {
	code := strconv.Itoa(resp.StatusCode)
	var cause error = errors.New(http.StatusText(resp.StatusCode))

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var er errorResponse
	if json.Unmarshal(raw, &er) == nil && er.Error.Message != "" {
		cause = errors.New(er.Error.Message)
		if er.Error.Code != "" {
			cause = fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
		}
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode >= 500:
		return &remote.UnavailableError{Op: op, Code: code, Retryable: true, Err: cause}
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return &remote.UnavailableError{Op: op, Code: code, Err: cause}
	default:
		return &remote.RejectedError{Op: op, Code: code, Err: cause}
	}
}
