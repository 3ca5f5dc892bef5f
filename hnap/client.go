// Package hnap talks to the HNAP management API of Motorola MB8600 cable
// modems: request signing, the login handshake and the status actions.
//
// A Client holds one session and is not safe for concurrent use.
package hnap

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/prometheus/common/log"
	"golang.org/x/net/publicsuffix"
)

var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrUnsupportedAction    = errors.New("unsupported action")
	ErrInvalidResponse      = errors.New("invalid response")
	// ErrResponseMissing usually means the session is not, or no longer,
	// authenticated. Log in again before retrying.
	ErrResponseMissing = errors.New("response missing")
)

const maxResponseSize = 4 << 20

type Config struct {
	// Hostname of the modem, used to build https://<Hostname>/HNAP1/.
	Hostname string
	// URL overrides the endpoint derived from Hostname.
	URL string

	Username string
	Password string

	// Location is used to interpret event log timestamps. Nil means UTC.
	Location *time.Location

	// HTTPClient defaults to NewHTTPClient(NewTransport(false), 0).
	HTTPClient *http.Client

	// Now overrides the clock used for request signing.
	Now func() time.Time
}

type Client struct {
	url      string
	username string
	password string
	location *time.Location
	http     *http.Client
	signer   Signer
	session  Session
}

func NewClient(cfg Config) (*Client, error) {
	url := cfg.URL
	if url == "" {
		if cfg.Hostname == "" {
			return nil, errors.New("hnap: hostname or URL required")
		}
		url = "https://" + cfg.Hostname + "/HNAP1/"
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		var err error
		httpClient, err = NewHTTPClient(NewTransport(false), 0)
		if err != nil {
			return nil, err
		}
	}

	location := cfg.Location
	if location == nil {
		location = time.UTC
	}

	return &Client{
		url:      url,
		username: cfg.Username,
		password: cfg.Password,
		location: location,
		http:     httpClient,
		signer:   Signer{Now: cfg.Now},
	}, nil
}

// NewTransport returns a transport for talking to the modem. The MB8600 serves
// a self-signed certificate, so callers must opt in to skipping verification.
func NewTransport(insecureSkipVerify bool) *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: insecureSkipVerify}
	return transport
}

// NewHTTPClient returns an http.Client with a cookie jar, as the modem sets
// cookies that it expects back on later requests.
func NewHTTPClient(rt http.RoundTripper, timeout time.Duration) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Transport: rt,
		Jar:       jar,
		Timeout:   timeout,
	}, nil
}

// Session returns the current session state.
func (c *Client) Session() Session { return c.session }

// SetSession replaces the session state, e.g. to resume a known session.
func (c *Client) SetSession(s Session) { c.session = s }

// Logout drops the session, returning the client to the anonymous state.
func (c *Client) Logout() { c.session = Session{} }

// Perform sends a single action and returns the raw value of its
// "<action>Response" member. A nil params sends an empty object.
func (c *Client) Perform(ctx context.Context, action string, params interface{}) (json.RawMessage, error) {
	return c.perform(ctx, c.session, action, params)
}

// BatchResponse maps "<action>Response" keys to their raw values.
type BatchResponse map[string]json.RawMessage

// Decode unmarshals the response of action into v.
func (b BatchResponse) Decode(action string, v interface{}) error {
	raw, ok := b[action+"Response"]
	if !ok {
		return fmt.Errorf("%w: %sResponse not in batch", ErrResponseMissing, action)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidResponse, action, err)
	}
	return nil
}

// PerformBatch sends several parameterless actions in one GetMultipleHNAPs
// request.
func (c *Client) PerformBatch(ctx context.Context, actions ...string) (BatchResponse, error) {
	params := make(map[string]string, len(actions))
	for _, action := range actions {
		if !Known(action) || action == ActionMultiple {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedAction, action)
		}
		params[action] = ""
	}

	raw, err := c.Perform(ctx, ActionMultiple, params)
	if err != nil {
		return nil, err
	}
	var batch BatchResponse
	if err := json.Unmarshal(raw, &batch); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidResponse, ActionMultiple, err)
	}
	return batch, nil
}

func (c *Client) perform(ctx context.Context, session Session, action string, params interface{}) (json.RawMessage, error) {
	if !Known(action) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAction, action)
	}
	if params == nil {
		params = struct{}{}
	}

	body, err := json.Marshal(map[string]interface{}{action: params})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("SOAPAction", Namespace+action)
	req.Header.Set("HNAP_AUTH", c.signer.AuthHeader(session.Key(), action))
	if session.Authenticated() {
		req.AddCookie(&http.Cookie{Name: "uid", Value: session.UID})
		req.AddCookie(&http.Cookie{Name: "PrivateKey", Value: session.PrivateKey})
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	content, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, err
	}
	log.Debugf("HNAP %s: HTTP %d, %d bytes", action, resp.StatusCode, len(content))

	if !(resp.StatusCode >= 200 && resp.StatusCode < 300) {
		return nil, fmt.Errorf("%w: %s failed: HTTP status %d", ErrInvalidResponse, action, resp.StatusCode)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(content), &envelope); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidResponse, action, err)
	}
	result, ok := envelope[action+"Response"]
	if !ok {
		return nil, fmt.Errorf("%w: no %sResponse from modem", ErrResponseMissing, action)
	}
	return result, nil
}

func (c *Client) performInto(ctx context.Context, action string, v interface{}) error {
	raw, err := c.Perform(ctx, action, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidResponse, action, err)
	}
	return nil
}
