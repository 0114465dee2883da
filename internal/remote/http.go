package remote

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

	"github.com/hyperengineering/fitsync/internal/identity"
	"github.com/sethvargo/go-retry"
)

// HTTPConfig configures an HTTPClient.
type HTTPConfig struct {
	// BaseURL is the project URL; requests go to BaseURL/rest/v1/<table>.
	BaseURL string
	// APIKey is the public project key sent as the apikey header.
	APIKey string
	// MaxRetries bounds transport retries within one call.
	MaxRetries uint64
	// RetryBase is the first backoff interval.
	RetryBase time.Duration
	// HTTPClient overrides the default client.
	HTTPClient *http.Client
}

// HTTPClient speaks the PostgREST dialect used by hosted Postgres backends.
// The payload carries the device's modified_at; every synced table must have
// a BEFORE INSERT OR UPDATE trigger setting modified_at = clock_timestamp(),
// or pulls on other devices order rows by untrusted client clocks.
type HTTPClient struct {
	base       string
	apiKey     string
	hc         *http.Client
	ident      identity.Provider
	maxRetries uint64
	retryBase  time.Duration
}

// NewHTTPClient creates a client authenticating as ident's current user.
func NewHTTPClient(cfg HTTPConfig, ident identity.Provider) *HTTPClient {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	base := cfg.RetryBase
	if base <= 0 {
		base = 200 * time.Millisecond
	}
	return &HTTPClient{
		base:       strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		hc:         hc,
		ident:      ident,
		maxRetries: cfg.MaxRetries,
		retryBase:  base,
	}
}

// Upsert posts the row with merge-duplicates resolution on conflictTarget.
func (c *HTTPClient) Upsert(ctx context.Context, table string, payload json.RawMessage, conflictTarget []string) error {
	if err := checkTable("upsert", table); err != nil {
		return err
	}
	q := url.Values{}
	if len(conflictTarget) > 0 {
		q.Set("on_conflict", strings.Join(conflictTarget, ","))
	}

	_, err := c.do(ctx, "upsert", table, func(token string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(table, q), bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		c.authorize(req, token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Prefer", "resolution=merge-duplicates,return=minimal")
		return req, nil
	})
	return err
}

// SelectChanged fetches rows after q's keyset position.
func (c *HTTPClient) SelectChanged(ctx context.Context, table string, q SelectQuery) ([]json.RawMessage, error) {
	if err := checkTable("select", table); err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("select", "*")
	params.Set("order", "modified_at.asc,id.asc")
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if !q.AfterModifiedAt.IsZero() {
		at := formatTime(q.AfterModifiedAt)
		params.Set("or", fmt.Sprintf("(modified_at.gt.%s,and(modified_at.eq.%s,id.gt.%s))", at, at, q.AfterID))
	}

	body, err := c.do(ctx, "select", table, func(token string) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(table, params), nil)
		if err != nil {
			return nil, err
		}
		c.authorize(req, token)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var rows []json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, &Error{Op: "select", Table: table, Message: "decode response: " + err.Error(), Err: ErrServer}
	}
	return rows, nil
}

func (c *HTTPClient) endpoint(table string, q url.Values) string {
	u := c.base + "/rest/v1/" + url.PathEscape(table)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *HTTPClient) authorize(req *http.Request, token string) {
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	req.Header.Set("Authorization", "Bearer "+token)
}

// do sends the request built by build, retrying transport and server
// failures with exponential backoff inside ctx.
func (c *HTTPClient) do(ctx context.Context, op, table string, build func(token string) (*http.Request, error)) ([]byte, error) {
	id, err := c.ident.Current(ctx)
	if err != nil {
		return nil, &Error{Op: op, Table: table, Message: err.Error(), Err: ErrUnauthorized}
	}

	var body []byte
	b := retry.WithMaxRetries(c.maxRetries, retry.NewExponential(c.retryBase))
	err = retry.Do(ctx, b, func(ctx context.Context) error {
		req, err := build(id.AccessToken)
		if err != nil {
			return &Error{Op: op, Table: table, Message: err.Error(), Err: ErrRejected}
		}
		body, err = c.send(req, op, table)
		if Retryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		var rerr *Error
		if !errors.As(err, &rerr) {
			err = &Error{Op: op, Table: table, Message: err.Error(), Err: ErrNetwork}
		}
		return nil, err
	}
	return body, nil
}

// postgrestError is the error body PostgREST returns.
type postgrestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

func (c *HTTPClient) send(req *http.Request, op, table string) ([]byte, error) {
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &Error{Op: op, Table: table, Message: err.Error(), Err: ErrNetwork}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Op: op, Table: table, Status: resp.StatusCode, Message: err.Error(), Err: ErrNetwork}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	rerr := &Error{Op: op, Table: table, Status: resp.StatusCode, Err: classifyStatus(resp.StatusCode)}
	var pe postgrestError
	if json.Unmarshal(body, &pe) == nil {
		rerr.Code = pe.Code
		rerr.Message = pe.Message
	} else {
		rerr.Message = resp.Status
	}
	return nil, rerr
}

func classifyStatus(status int) error {
	switch {
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case status == http.StatusTooManyRequests || status >= 500:
		return ErrServer
	default:
		return ErrRejected
	}
}
