// Package rest is the HTTP client of the planner API: the auth endpoints under /auth/v1 and the
// table endpoints under /rest/v1.
package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	sgrest "github.com/sendgrid/rest"

	"github.com/trezcool/studyplanner/core"
	"github.com/trezcool/studyplanner/storage/kv"
)

const DefaultKeyPrefix = "planner.auth"

type Options struct {
	BackendURL string
	AnonKey    string
	// Store persists the session across runs.
	Store kv.Store
	// KeyPrefix of the persisted session keys; defaults to DefaultKeyPrefix.
	KeyPrefix string
	Timeout   time.Duration
	// HTTPClient overrides the default client; Timeout is then ignored.
	HTTPClient *http.Client
}

// Client implements core.AuthService and core.TableService against the planner API.
type Client struct {
	baseURL string
	anonKey string
	store   kv.Store
	key     string
	http    *sgrest.Client
	logger  core.Logger

	mu     sync.Mutex
	sess   *core.Session
	loaded bool

	subsMu  sync.Mutex
	subs    map[int]func(core.AuthEvent, *core.Session)
	nextSub int
}

var (
	_ core.AuthService  = (*Client)(nil)
	_ core.TableService = (*Client)(nil)
)

func New(opts Options, logger core.Logger) (*Client, error) {
	u, err := url.Parse(opts.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, core.NewConfigurationError("invalid backend URL: " + opts.BackendURL)
	}
	if opts.AnonKey == "" {
		return nil, core.NewConfigurationError("missing backend anon key")
	}
	if opts.Store == nil {
		opts.Store = kv.NewMemory()
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = DefaultKeyPrefix
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(opts.BackendURL, "/"),
		anonKey: opts.AnonKey,
		store:   opts.Store,
		key:     opts.KeyPrefix + ".token",
		http:    &sgrest.Client{HTTPClient: httpClient},
		logger:  logger,
		subs:    make(map[int]func(core.AuthEvent, *core.Session)),
	}, nil
}

// StorageKey is where the session is persisted.
func (c *Client) StorageKey() string {
	return c.key
}

type request struct {
	method sgrest.Method
	path   string
	query  map[string]string
	body   interface{}
	prefer string
	// token overrides the session bearer token.
	token string
}

type errorBody struct {
	Code             string `json:"code"`
	ErrorCode        string `json:"error_code"`
	Error            string `json:"error"`
	Message          string `json:"message"`
	Msg              string `json:"msg"`
	ErrorDescription string `json:"error_description"`
}

// do sends req and decodes a successful JSON response into out, when given.
func (c *Client) do(ctx context.Context, req request, out interface{}) error {
	headers := map[string]string{
		"apikey":        c.anonKey,
		"Authorization": "Bearer " + c.anonKey,
		"Accept":        "application/json",
	}
	if req.token != "" {
		headers["Authorization"] = "Bearer " + req.token
	}
	if req.prefer != "" {
		headers["Prefer"] = req.prefer
	}

	var body []byte
	if req.body != nil {
		b, err := json.Marshal(req.body)
		if err != nil {
			return errors.Wrap(err, "encoding request body")
		}
		body = b
		headers["Content-Type"] = "application/json"
	}

	res, err := c.http.SendWithContext(ctx, sgrest.Request{
		Method:      req.method,
		BaseURL:     c.baseURL + req.path,
		Headers:     headers,
		QueryParams: req.query,
		Body:        body,
	})
	if err != nil {
		return errors.Wrapf(err, "%s %s", req.method, req.path)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return decodeError(res)
	}
	if out == nil || res.StatusCode == http.StatusNoContent || res.Body == "" {
		return nil
	}
	if err = json.Unmarshal([]byte(res.Body), out); err != nil {
		return errors.Wrapf(err, "decoding %s %s response", req.method, req.path)
	}
	return nil
}

func decodeError(res *sgrest.Response) error {
	var eb errorBody
	_ = json.Unmarshal([]byte(res.Body), &eb)

	bErr := &core.BackendError{Status: res.StatusCode}
	for _, code := range []string{eb.ErrorCode, eb.Code, eb.Error} {
		if code != "" {
			bErr.Code = code
			break
		}
	}
	for _, msg := range []string{eb.Message, eb.Msg, eb.ErrorDescription} {
		if msg != "" {
			bErr.Message = msg
			break
		}
	}
	if bErr.Message == "" {
		bErr.Message = http.StatusText(res.StatusCode)
	}
	// an unauthorized call means a stale access token, which a refresh fixes
	if res.StatusCode == http.StatusUnauthorized && bErr.Code == "" {
		bErr.Code = core.CodeInvalidJWT
	}
	return bErr
}
