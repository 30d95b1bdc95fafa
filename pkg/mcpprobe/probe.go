// Package mcpprobe performs a best-effort health check of a remote MCP tool
// server before the smoke suite exercises it through the hosting service.
// Probe failures are advisory: many MCP servers expose no root endpoint and
// still serve the protocol fine.
package mcpprobe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	probeTimeout  = 5 * time.Second
	clientName    = "agentctl"
	clientVersion = "dev"
)

// Result reports what the probe could establish about the server.
type Result struct {
	// Reachable is true when the endpoint answered any HTTP status at all.
	Reachable bool
	// StatusCode is the HTTP status of the reachability check, 0 if none.
	StatusCode int
	// Tools lists the names the server advertised over MCP, when the
	// handshake succeeded. Nil when it did not.
	Tools []string
	// HandshakeErr records why the MCP handshake failed, if it did.
	HandshakeErr error
}

// Probe checks plain HTTP reachability and then attempts an MCP handshake to
// list the server's tools. The headers (typically X-API-Key) are attached to
// every request in both phases.
func Probe(ctx context.Context, serverURL string, headers map[string]string) (*Result, error) {
	endpoint, err := normalizeEndpoint(serverURL)
	if err != nil {
		return nil, err
	}

	httpClient := &http.Client{
		Timeout:   probeTimeout,
		Transport: &headerTransport{headers: headers, next: http.DefaultTransport},
	}

	result := &Result{}
	result.Reachable, result.StatusCode = checkReachable(ctx, httpClient, endpoint)

	tools, err := listTools(ctx, httpClient, endpoint)
	if err != nil {
		result.HandshakeErr = err
		return result, nil
	}
	result.Tools = tools
	result.Reachable = true
	return result, nil
}

// checkReachable issues a plain GET; any response, including 404, counts.
func checkReachable(ctx context.Context, client *http.Client, endpoint string) (bool, int) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, 0
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, 0
	}
	defer resp.Body.Close()
	return true, resp.StatusCode
}

// listTools connects over the streamable HTTP transport, falling back to
// SSE, and enumerates the advertised tool names.
func listTools(ctx context.Context, httpClient *http.Client, endpoint string) ([]string, error) {
	transports := []mcpsdk.Transport{
		&mcpsdk.StreamableClientTransport{Endpoint: endpoint, HTTPClient: httpClient},
		&mcpsdk.SSEClientTransport{Endpoint: endpoint, HTTPClient: httpClient},
	}

	var lastErr error
	for _, transport := range transports {
		names, err := listToolsOver(ctx, transport)
		if err == nil {
			return names, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("mcp handshake failed: %w", lastErr)
}

func listToolsOver(ctx context.Context, transport mcpsdk.Transport) ([]string, error) {
	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: clientName, Version: clientVersion}, nil)
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, err
	}
	defer session.Close()

	var names []string
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			return nil, err
		}
		names = append(names, tool.Name)
	}
	return names, nil
}

// headerTransport injects static headers into every outgoing request.
type headerTransport struct {
	headers map[string]string
	next    http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(t.headers) > 0 {
		req = req.Clone(req.Context())
		for key, value := range t.headers {
			if value == "" {
				continue
			}
			req.Header.Set(key, value)
		}
	}
	return t.next.RoundTrip(req)
}

func normalizeEndpoint(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", errors.New("mcp server url is empty")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("parse mcp server url: %w", err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("mcp server url has unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", errors.New("mcp server url is missing a host")
	}
	parsed.Scheme = scheme
	return parsed.String(), nil
}
