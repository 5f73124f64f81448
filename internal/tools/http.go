package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/localclaw/claw/internal/security"
)

const (
	httpMaxResponseBytes = 1024 * 1024
	httpDefaultTimeout   = 30 * time.Second
	httpMaxTimeout       = 120 * time.Second
)

// HttpRequestTool issues an outbound HTTP request with an SSRF guard:
// http/https only, no redirect-following, and a block on loopback,
// private, link-local, and cloud-metadata hosts. Response bodies are
// capped at 1 MiB.
type HttpRequestTool struct{}

func NewHttpRequestTool() *HttpRequestTool { return &HttpRequestTool{} }

func (t *HttpRequestTool) Name() string { return "http_request" }
func (t *HttpRequestTool) Description() string {
	return "Issue an HTTP request (GET/POST/PUT/PATCH/DELETE/HEAD). Only http/https is allowed; " +
		"access to internal networks, localhost, and cloud metadata endpoints is blocked (SSRF protection). " +
		"Redirects are not followed. Response bodies are capped at 1 MiB."
}

func (t *HttpRequestTool) ParametersSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "Request URL; must start with http:// or https://",
			},
			"method": map[string]interface{}{
				"type":        "string",
				"enum":        []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD"},
				"description": "HTTP method, defaults to GET",
			},
			"headers": map[string]interface{}{
				"type":                 "object",
				"description":          "Request headers as key-value pairs",
				"additionalProperties": map[string]interface{}{"type": "string"},
			},
			"body": map[string]interface{}{
				"type":        "string",
				"description": "Request body string, used for POST/PUT/PATCH",
			},
			"timeout_secs": map[string]interface{}{
				"type":        "integer",
				"description": "Timeout in seconds, default 30, max 120",
				"default":     30,
			},
		},
		"required": []string{"url"},
	}
}

type httpArgs struct {
	URL         string            `json:"url"`
	Method      string            `json:"method"`
	Headers     map[string]string `json:"headers"`
	Body        string            `json:"body"`
	TimeoutSecs int               `json:"timeout_secs"`
}

// checkSSRFRisk returns a non-empty reason if host is unsafe to contact,
// based on its literal form alone (hostname denylist, literal IP). It does
// not resolve DNS; see resolveAndCheckSSRF for the dial-time check that
// also catches DNS-rebinding to a private address.
func checkSSRFRisk(host string) string {
	lower := strings.ToLower(host)
	if lower == "localhost" || lower == "ip6-localhost" || lower == "ip6-loopback" {
		return fmt.Sprintf("refusing to access localhost (SSRF protection): %s", host)
	}
	if host == "169.254.169.254" ||
		lower == "metadata.google.internal" ||
		lower == "metadata.azure.internal" ||
		strings.HasSuffix(lower, ".internal") ||
		strings.HasSuffix(lower, ".local") ||
		strings.HasSuffix(lower, ".localhost") {
		return fmt.Sprintf("refusing to access metadata/internal service (SSRF protection): %s", host)
	}
	if ip := net.ParseIP(host); ip != nil && isPrivateIP(ip) {
		return fmt.Sprintf("refusing to access a private/reserved IP address (SSRF protection): %s", ip)
	}
	return ""
}

// resolveAndCheckSSRF re-resolves host and rejects it if any resolved
// address is private/reserved. Plugged in as the HTTP transport's
// DialContext so a hostname that passes PreValidate cannot rebind to an
// internal address by the time the connection is actually opened.
func resolveAndCheckSSRF(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	if reason := checkSSRFRisk(host); reason != "" {
		return nil, fmt.Errorf("%s", reason)
	}
	ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("unable to resolve host %q: %w", host, err)
	}
	for _, ip := range ips {
		if isPrivateIP(ip.IP) {
			return nil, fmt.Errorf("refusing to access a private/reserved IP address (SSRF protection): %s resolves to %s", host, ip.IP)
		}
	}
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	return dialer.DialContext(ctx, network, net.JoinHostPort(ips[0].IP.String(), port))
}

func isPrivateIP(ip net.IP) bool {
	if ip4 := ip.To4(); ip4 != nil {
		if ip4.IsLoopback() || ip4.IsPrivate() || ip4.IsLinkLocalUnicast() || ip4.IsUnspecified() {
			return true
		}
		// 100.64.0.0/10 (CGNAT)
		return ip4[0] == 100 && (ip4[1]&0b1100_0000) == 64
	}
	return ip.IsLoopback() || ip.IsUnspecified() || ip.IsPrivate() || ip.IsLinkLocalUnicast()
}

func (t *HttpRequestTool) PreValidate(args json.RawMessage, policy security.Policy) string {
	var a httpArgs
	_ = json.Unmarshal(args, &a)

	if !policy.AllowsExecution() {
		return "read-only mode: HTTP requests are not allowed"
	}
	if a.URL == "" {
		return "missing url parameter"
	}
	u, err := url.Parse(a.URL)
	if err != nil {
		return fmt.Sprintf("invalid URL: %s", a.URL)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Sprintf("unsupported URL scheme %q, only http or https is allowed", u.Scheme)
	}
	if reason := checkSSRFRisk(u.Hostname()); reason != "" {
		return reason
	}
	return ""
}

func (t *HttpRequestTool) Execute(ctx context.Context, args json.RawMessage, policy security.Policy) (Result, error) {
	var a httpArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return Result{Success: false, Error: "invalid arguments"}, nil
	}
	if msg := t.PreValidate(args, policy); msg != "" {
		return Result{Success: false, Error: msg}, nil
	}

	method := strings.ToUpper(a.Method)
	if method == "" {
		method = http.MethodGet
	}

	timeout := httpDefaultTimeout
	if a.TimeoutSecs > 0 {
		timeout = time.Duration(a.TimeoutSecs) * time.Second
		if timeout > httpMaxTimeout {
			timeout = httpMaxTimeout
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var bodyReader io.Reader
	if a.Body != "" {
		bodyReader = strings.NewReader(a.Body)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, a.URL, bodyReader)
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("unsupported HTTP method: %s", method)}, nil
	}
	for k, v := range a.Headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{
		Timeout:       timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		Transport:     &http.Transport{DialContext: resolveAndCheckSSRF},
	}

	resp, err := client.Do(req)
	if err != nil {
		if reqCtx.Err() != nil {
			return Result{Success: false, Error: fmt.Sprintf("request timed out (%s): %v", timeout, err)}, nil
		}
		return Result{Success: false, Error: fmt.Sprintf("request failed: %v", err)}, nil
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, httpMaxResponseBytes+1)
	bodyBytes, _ := io.ReadAll(limited)
	truncated := len(bodyBytes) > httpMaxResponseBytes
	if truncated {
		bodyBytes = bodyBytes[:httpMaxResponseBytes]
	}

	var out bytes.Buffer
	fmt.Fprintf(&out, "HTTP %d %s\n", resp.StatusCode, http.StatusText(resp.StatusCode))

	headerLines := make([]string, 0, 20)
	count := 0
	for k, vv := range resp.Header {
		if count >= 20 {
			break
		}
		headerLines = append(headerLines, fmt.Sprintf("%s: %s", k, strings.Join(vv, ", ")))
		count++
	}
	if len(headerLines) > 0 {
		out.WriteString("\n[Headers]\n")
		out.WriteString(strings.Join(headerLines, "\n"))
		out.WriteString("\n")
	}

	out.WriteString("\n[Body]\n")
	if utf8.Valid(bodyBytes) {
		out.Write(bodyBytes)
	} else {
		fmt.Fprintf(&out, "<binary response, %d bytes>", len(bodyBytes))
	}
	if truncated {
		fmt.Fprintf(&out, "\n\n[response truncated: showing only the first %d bytes]", httpMaxResponseBytes)
	}

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	if success {
		return Result{Success: true, Output: out.String()}, nil
	}
	return Result{Success: false, Error: out.String()}, nil
}
