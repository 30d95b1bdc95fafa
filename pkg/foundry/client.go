package foundry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
)

const (
	defaultAPIVersion  = "v1"
	defaultHTTPTimeout = 30 * time.Second
	defaultScope       = "https://ai.azure.com/.default"
	userAgent          = "agentctl/foundry"

	// tokenRefreshSkew renews cached tokens this long before expiry.
	tokenRefreshSkew = 5 * time.Minute
)

// TokenProvider supplies bearer tokens for the hosting service.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenProvider returning a fixed token, used by tests and
// pre-acquired credentials.
type StaticToken string

// Token implements TokenProvider.
func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// credentialTokenProvider adapts an azcore.TokenCredential with expiry-aware
// caching so each request does not round-trip the identity service.
type credentialTokenProvider struct {
	cred   azcore.TokenCredential
	scopes []string

	mu     sync.Mutex
	cached azcore.AccessToken
}

// NewCredentialTokenProvider wraps cred into a TokenProvider. With no scopes
// the hosting service's default scope is requested.
func NewCredentialTokenProvider(cred azcore.TokenCredential, scopes ...string) (TokenProvider, error) {
	if cred == nil {
		return nil, errors.New("credential is nil")
	}
	if len(scopes) == 0 {
		scopes = []string{defaultScope}
	}
	return &credentialTokenProvider{cred: cred, scopes: scopes}, nil
}

func (p *credentialTokenProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached.Token != "" && time.Until(p.cached.ExpiresOn) > tokenRefreshSkew {
		return p.cached.Token, nil
	}
	tok, err := p.cred.GetToken(ctx, policy.TokenRequestOptions{Scopes: p.scopes})
	if err != nil {
		return "", fmt.Errorf("acquire token: %w", err)
	}
	p.cached = tok
	return tok.Token, nil
}

// Client is a thin typed client for the agent-hosting REST surface: agent
// CRUD, threads, messages, runs, and tool-approval submission.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiVersion string
	tokens     TokenProvider
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the transport, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithAPIVersion overrides the api-version query parameter.
func WithAPIVersion(version string) Option {
	return func(c *Client) {
		if strings.TrimSpace(version) != "" {
			c.apiVersion = strings.TrimSpace(version)
		}
	}
}

// NewClient builds a Client for the project endpoint. The endpoint is the
// project URL from configuration; tokens must not be nil.
func NewClient(endpoint string, tokens TokenProvider, opts ...Option) (*Client, error) {
	base, err := sanitizeEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	if tokens == nil {
		return nil, errors.New("token provider is required")
	}
	c := &Client{
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
		baseURL:    base,
		apiVersion: defaultAPIVersion,
		tokens:     tokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint returns the sanitized base URL the client talks to.
func (c *Client) Endpoint() string {
	return c.baseURL
}

func sanitizeEndpoint(endpoint string) (string, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if trimmed == "" {
		return "", errors.New("project endpoint is empty")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("parse project endpoint: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("project endpoint has unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", errors.New("project endpoint is missing a host")
	}
	return trimmed, nil
}

// do performs one request against the service. A nil in sends no body; a nil
// out discards the response payload after status checking.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	var body *bytes.Buffer
	if in != nil {
		body = &bytes.Buffer{}
		if err := json.NewEncoder(body).Encode(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	endpoint := c.baseURL + path
	if query == nil {
		query = url.Values{}
	}
	query.Set("api-version", c.apiVersion)
	endpoint += "?" + query.Encode()

	var reader *bytes.Buffer
	if body != nil {
		reader = body
	} else {
		reader = &bytes.Buffer{}
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return readServiceError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
