// Package api validates an extracted token against the vendor cloud API
// and retrieves the secondary credentials derived from it. One request
// per operation, no retries: token staleness is the common failure and
// the fix is re-running the whole extraction, not hammering the API.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tarsier-dev/tarsier/internal/log"
)

const (
	tokenHeader  = "x-member-token"
	localeHeader = "X-DJI-locale"
	userAgent    = "tarsier"
)

// FailureKind classifies why validation failed, so the operator knows
// whether to re-extract (stale token) or distrust the extraction itself
// (malformed token).
type FailureKind int

const (
	// KindUnauthorized: the API understood the token and rejected it -
	// expired or revoked. Re-extraction after a fresh login may suffice.
	KindUnauthorized FailureKind = iota
	// KindMalformed: the API could not parse the token at all. The scan
	// most likely captured a wrong or truncated value.
	KindMalformed
	// KindAPI: transport failure or an unexpected API error.
	KindAPI
)

func (k FailureKind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindMalformed:
		return "malformed"
	default:
		return "api-error"
	}
}

// ValidationError is a failed validation with its classification.
type ValidationError struct {
	Kind    FailureKind
	Status  int
	Code    int
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("validation failed (%s): %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("validation failed (%s): status %d code %d", e.Kind, e.Status, e.Code)
}

// BrokerCredentials are the secondary credentials issued for a valid
// token: where to connect and the dynamic password, which expires within
// hours.
type BrokerCredentials struct {
	Domain   string `json:"mqtt_domain"`
	Port     int    `json:"mqtt_port"`
	UserUUID string `json:"user_uuid"`
	Password string `json:"mqtt_password"`
	ExpireAt int64  `json:"expire_at"`
}

// Member is the account identity behind a token.
type Member struct {
	UID      json.Number `json:"uid"`
	Nickname string      `json:"nickname"`
	Email    string      `json:"email"`
}

// Device is one piece of hardware paired to the account.
type Device struct {
	SN        string `json:"sn"`
	DeviceSN  string `json:"device_sn"`
	SerialNum string `json:"serial_number"`
	Name      string `json:"name"`
	ModelName string `json:"model_name"`
	Product   string `json:"product_type"`
}

// Serial returns the first populated serial field.
func (d Device) Serial() string {
	for _, s := range []string{d.SN, d.DeviceSN, d.SerialNum} {
		if s != "" {
			return s
		}
	}
	return ""
}

// Model returns the first populated model field.
func (d Device) Model() string {
	for _, s := range []string{d.ModelName, d.Product, d.Name} {
		if s != "" {
			return s
		}
	}
	return ""
}

// envelope is the field-tagged wrapper every endpoint uses.
type envelope struct {
	Result struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"result"`
	Data json.RawMessage `json:"data"`
}

// Client issues authenticated requests against one API base URL.
type Client struct {
	base   string
	locale string
	http   *http.Client

	// LastBody keeps the raw body of the most recent response for the
	// verbose echo in the CLI.
	LastBody []byte
}

// New returns a client for the given base URL and locale.
func New(base, locale string) *Client {
	return &Client{
		base:   strings.TrimRight(base, "/"),
		locale: locale,
		http:   &http.Client{Timeout: 30 * time.Second},
	}
}

// NewWithHTTPClient is the test constructor.
func NewWithHTTPClient(base, locale string, hc *http.Client) *Client {
	c := New(base, locale)
	c.http = hc
	return c
}

func (c *Client) get(ctx context.Context, token, path string, query url.Values) (*envelope, error) {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(tokenHeader, token)
	req.Header.Set(localeHeader, c.locale)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &ValidationError{Kind: KindAPI, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &ValidationError{Kind: KindAPI, Status: resp.StatusCode, Message: err.Error()}
	}
	c.LastBody = body
	log.L.Debug("api response", log.Args([]string{path}), log.Size(uint64(len(body))))

	var env envelope
	jsonErr := json.Unmarshal(body, &env)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, &ValidationError{Kind: KindUnauthorized, Status: resp.StatusCode,
			Code: env.Result.Code, Message: firstNonEmpty(env.Result.Message, "token rejected")}
	case resp.StatusCode == http.StatusBadRequest:
		return nil, &ValidationError{Kind: KindMalformed, Status: resp.StatusCode,
			Code: env.Result.Code, Message: firstNonEmpty(env.Result.Message, "token not understood")}
	case resp.StatusCode != http.StatusOK:
		return nil, &ValidationError{Kind: KindAPI, Status: resp.StatusCode,
			Message: firstNonEmpty(env.Result.Message, http.StatusText(resp.StatusCode))}
	}
	if jsonErr != nil {
		return nil, &ValidationError{Kind: KindAPI, Status: resp.StatusCode,
			Message: "unparseable response body"}
	}
	if env.Result.Code != 0 {
		kind := KindAPI
		msg := strings.ToLower(env.Result.Message)
		switch {
		case strings.Contains(msg, "expire") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "invalid token"):
			kind = KindUnauthorized
		case strings.Contains(msg, "malformed") || strings.Contains(msg, "illegal"):
			kind = KindMalformed
		}
		return nil, &ValidationError{Kind: kind, Status: resp.StatusCode,
			Code: env.Result.Code, Message: env.Result.Message}
	}
	return &env, nil
}

// BrokerToken validates the token and returns the broker credentials
// derived from it. This is the one call a run needs to succeed; the
// remaining endpoints are optional probes.
func (c *Client) BrokerToken(ctx context.Context, token string) (*BrokerCredentials, error) {
	env, err := c.get(ctx, token, "/app/api/v1/users/auth/token", url.Values{"reason": {"mqtt"}})
	if err != nil {
		return nil, err
	}
	var creds BrokerCredentials
	if err := json.Unmarshal(env.Data, &creds); err != nil {
		return nil, &ValidationError{Kind: KindAPI, Message: "unparseable broker credentials"}
	}
	return &creds, nil
}

// MemberInfo fetches the account identity behind the token.
func (c *Client) MemberInfo(ctx context.Context, token string) (*Member, error) {
	env, err := c.get(ctx, token, "/app/api/v1/member/info", nil)
	if err != nil {
		return nil, err
	}
	var m Member
	if err := json.Unmarshal(env.Data, &m); err != nil {
		return nil, &ValidationError{Kind: KindAPI, Message: "unparseable member info"}
	}
	return &m, nil
}

// Devices lists hardware paired to the account. Used to backfill a
// serial number the memory scan did not find.
func (c *Client) Devices(ctx context.Context, token string) ([]Device, error) {
	env, err := c.get(ctx, token, "/app/api/v1/devices", nil)
	if err != nil {
		return nil, err
	}
	var devices []Device
	if err := json.Unmarshal(env.Data, &devices); err != nil {
		return nil, &ValidationError{Kind: KindAPI, Message: "unparseable device list"}
	}
	return devices, nil
}

// Homes lists devices grouped by home, the home-robot app's equivalent
// of Devices.
func (c *Client) Homes(ctx context.Context, token string) ([]Device, error) {
	env, err := c.get(ctx, token, "/app/api/v1/homes", nil)
	if err != nil {
		return nil, err
	}
	var data struct {
		Homes []struct {
			Devices []Device `json:"devices"`
		} `json:"homes"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, &ValidationError{Kind: KindAPI, Message: "unparseable homes list"}
	}
	var devices []Device
	for _, h := range data.Homes {
		devices = append(devices, h.Devices...)
	}
	return devices, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
