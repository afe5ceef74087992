package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hamshmas/personal-rehabilitation-docs/document"
)

const (
	DefaultBaseURL   = "https://api.hyphen.im"
	defaultTokenPath = "/oauth/token"
	defaultTimeout   = 60 * time.Second

	headerUserID    = "user-id"
	headerAPIKey    = "Hkey"
	headerTestMode  = "hyphen-gustation"
	maxResponseBody = 8 << 20
)

// Config is the issuance API account and transport settings.
type Config struct {
	BaseURL      string
	ClientID     string
	APIKey       string
	TransportKey string
	TestMode     bool

	// Timeout bounds each Call, including any token fetch it waits on.
	Timeout            time.Duration
	TokenPath          string
	TokenTimeout       time.Duration
	TokenRefreshMargin time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

func WithCatalog(cat *Catalog) Option { return func(c *Client) { c.catalog = cat } }

func WithTokenStore(s TokenStore) Option { return func(c *Client) { c.tokenStore = s } }

func WithLogger(l logrus.FieldLogger) Option { return func(c *Client) { c.log = l } }

func WithMetrics(m *Metrics) Option { return func(c *Client) { c.metrics = m } }

func WithClock(now func() time.Time) Option { return func(c *Client) { c.now = now } }

// Client calls the issuance API. It is built once per process and shared;
// the token cache is its only mutable state.
type Client struct {
	cfg        Config
	http       *http.Client
	catalog    *Catalog
	cipher     *TransportCipher
	tokens     *TokenSource
	tokenStore TokenStore
	log        logrus.FieldLogger
	metrics    *Metrics
	now        func() time.Time
}

func New(cfg Config, opts ...Option) (*Client, error) {
	if cfg.ClientID == "" || cfg.APIKey == "" {
		return nil, errors.New("gateway: client id and api key are required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.TokenPath == "" {
		cfg.TokenPath = defaultTokenPath
	}
	cipher, err := NewTransportCipher(cfg.TransportKey, cfg.ClientID)
	if err != nil {
		return nil, fmt.Errorf("gateway: %w", err)
	}

	c := &Client{
		cfg:    cfg,
		http:   &http.Client{},
		cipher: cipher,
		log:    logrus.StandardLogger(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	if c.catalog == nil {
		c.catalog = DefaultCatalog()
	}
	c.log = c.log.WithField("component", "gateway")
	c.tokens = NewTokenSource(c.fetchToken, TokenSourceConfig{
		Store:        c.tokenStore,
		Margin:       cfg.TokenRefreshMargin,
		FetchTimeout: cfg.TokenTimeout,
		Now:          c.now,
		Metrics:      c.metrics,
		Logger:       c.log,
	})
	return c, nil
}

func (c *Client) Catalog() *Catalog { return c.catalog }

// Result is a normalized successful response. Artifact is the payload's
// data member when present, otherwise the whole body.
type Result struct {
	DocumentType document.Type
	Code         string
	Message      string
	Artifact     json.RawMessage
	RawResponse  json.RawMessage
}

// Call performs one issuance request. It never retries; failures are
// returned as *Error.
func (c *Client) Call(ctx context.Context, req Request) (res *Result, err error) {
	start := c.now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = string(GetKind(err))
		}
		c.metrics.ObserveCall(string(req.DocumentType), outcome, c.now().Sub(start))
	}()

	d, ok := c.catalog.Lookup(req.DocumentType)
	if !ok {
		return nil, &Error{Kind: KindUnsupportedDocument, DocumentType: req.DocumentType}
	}
	if err := d.validate(req); err != nil {
		return nil, err
	}
	body, err := d.Builder.Build(req, c.cipher, c.now())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	log := c.log.WithFields(logrus.Fields{"phase": "call", "document_type": d.Type, "endpoint": d.Endpoint})

	headers := c.baseHeaders()
	if d.BearerAuth {
		tok, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, withDocument(err, d.Type)
		}
		headers.Set("Authorization", "Bearer "+tok)
	}

	status, raw, err := c.post(ctx, d.Endpoint, headers, body)
	if err != nil {
		log.WithError(err).Warn("issuance request failed")
		return nil, &Error{Kind: KindNetwork, DocumentType: d.Type, Err: err}
	}
	if status == http.StatusUnauthorized && d.BearerAuth {
		c.tokens.Invalidate(ctx)
	}
	res, err = parseResponse(d, status, raw)
	if err != nil {
		log.WithFields(logrus.Fields{"status": status, "code": GetCode(err)}).Warn("issuance rejected")
		return nil, err
	}
	log.WithField("status", status).Debug("issuance succeeded")
	return res, nil
}

func (c *Client) baseHeaders() http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set(headerUserID, c.cfg.ClientID)
	h.Set(headerAPIKey, c.cfg.APIKey)
	if c.cfg.TestMode {
		h.Set(headerTestMode, "test")
	}
	return h
}

func (c *Client) post(ctx context.Context, path string, headers http.Header, body any) (int, []byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("encode body: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header = headers
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return 0, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, raw, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (c *Client) fetchToken(ctx context.Context) (AccessToken, error) {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	if c.cfg.TestMode {
		h.Set(headerTestMode, "test")
	}
	status, raw, err := c.post(ctx, c.cfg.TokenPath, h, map[string]string{
		"user_id": c.cfg.ClientID,
		"hkey":    c.cfg.APIKey,
	})
	if err != nil {
		return AccessToken{}, &Error{Kind: KindTokenFetchFailed, Err: err}
	}
	if status < 200 || status > 299 {
		return AccessToken{}, &Error{Kind: KindTokenFetchFailed, StatusCode: status, Code: fmt.Sprint(status), Message: snippet(raw)}
	}
	var tr tokenResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return AccessToken{}, &Error{Kind: KindTokenFetchFailed, StatusCode: status, Message: "invalid token response", Err: err}
	}
	if tr.AccessToken == "" {
		return AccessToken{}, &Error{Kind: KindTokenFetchFailed, StatusCode: status, Message: "token response has no access_token"}
	}
	ttl := defaultTokenTTL
	if tr.ExpiresIn > 0 {
		ttl = time.Duration(tr.ExpiresIn) * time.Second
	}
	return AccessToken{Value: tr.AccessToken, ExpiresAt: c.now().Add(ttl)}, nil
}

// ---- response normalization ----

// flexString accepts both JSON strings and numbers; the API is not
// consistent about the type of "code".
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if string(b) == "null" {
		return nil
	}
	*f = flexString(b)
	return nil
}

type envelope struct {
	Code    flexString      `json:"code"`
	Success *bool           `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Common  *struct {
		ErrYn  string     `json:"errYn"`
		ErrCd  flexString `json:"errCd"`
		ErrMsg string     `json:"errMsg"`
	} `json:"common"`
}

func parseResponse(d Descriptor, status int, raw []byte) (*Result, error) {
	if status < 200 || status > 299 {
		return nil, &Error{Kind: KindUpstream, DocumentType: d.Type, StatusCode: status, Code: fmt.Sprint(status), Message: snippet(raw)}
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &Error{Kind: KindUpstream, DocumentType: d.Type, StatusCode: status, Message: "response is not a JSON object", Err: err}
	}

	code, msg := string(env.Code), env.Message
	if env.Common != nil {
		if code == "" {
			code = string(env.Common.ErrCd)
		}
		if msg == "" {
			msg = env.Common.ErrMsg
		}
	}
	ok := code == d.SuccessCode ||
		(env.Success != nil && *env.Success) ||
		(env.Common != nil && env.Common.ErrYn == "N")
	if !ok {
		if msg == "" {
			msg = "unknown upstream error"
		}
		return nil, &Error{Kind: KindUpstream, DocumentType: d.Type, StatusCode: status, Code: code, Message: msg}
	}

	artifact := json.RawMessage(raw)
	if len(env.Data) > 0 && string(env.Data) != "null" {
		artifact = env.Data
	}
	return &Result{
		DocumentType: d.Type,
		Code:         code,
		Message:      msg,
		Artifact:     artifact,
		RawResponse:  json.RawMessage(raw),
	}, nil
}

// GetCode extracts the upstream code, or "" if err is not a gateway error.
func GetCode(err error) string {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Code
	}
	return ""
}

func withDocument(err error, dt document.Type) error {
	var ge *Error
	if errors.As(err, &ge) && ge.DocumentType == "" {
		cp := *ge
		cp.DocumentType = dt
		return &cp
	}
	return err
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 512 {
		s = s[:512]
	}
	return s
}
