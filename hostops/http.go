package hostops

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/scriptbox-dev/scriptbox/dispatch"
)

const (
	DefaultMaxURLLength   = 8192
	DefaultMaxBodySize    = 1 << 20 // 1MB
	DefaultRequestTimeout = 30 * time.Second
)

// HTTPConfig bounds outbound requests made on behalf of scripts. An empty
// allow list disables the capability entirely.
type HTTPConfig struct {
	AllowedHosts   []string
	MaxBodySize    int64
	MaxURLLength   int
	RequestTimeout time.Duration
}

// HTTP is the allow-listed outbound request capability.
type HTTP struct {
	cfg    HTTPConfig
	client *http.Client
}

// NewHTTP returns an HTTP capability with defaults filled in.
func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.MaxBodySize == 0 {
		cfg.MaxBodySize = DefaultMaxBodySize
	}
	if cfg.MaxURLLength == 0 {
		cfg.MaxURLLength = DefaultMaxURLLength
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	return &HTTP{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
	}
}

// Register installs http.request and http.get.
func (h *HTTP) Register(table *dispatch.Table) {
	table.Register("http", "request", h.Request)
	table.Register("http", "get", h.Get)
}

// Request performs an outbound request against an allow-listed host.
// Args: url (required), method, headers, body.
func (h *HTTP) Request(ctx context.Context, args map[string]any) (any, error) {
	method, _ := args["method"].(string)
	if method == "" {
		method = "GET"
	}
	method = strings.ToUpper(method)

	switch method {
	case "GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS":
	default:
		return nil, &dispatch.Error{
			Message: "unsupported method: " + method,
			Code:    "INVALID_INPUT",
		}
	}

	rawURL, ok := args["url"].(string)
	if !ok || rawURL == "" {
		return nil, &dispatch.Error{
			Message: "url required",
			Code:    "INVALID_INPUT",
			Fix:     "pass {url: string}",
		}
	}

	if len(rawURL) > h.cfg.MaxURLLength {
		return nil, &dispatch.Error{Message: "url exceeds max length", Code: "INVALID_INPUT"}
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, &dispatch.Error{Message: "invalid url", Code: "INVALID_INPUT"}
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, &dispatch.Error{Message: "scheme must be http or https", Code: "INVALID_INPUT"}
	}

	if len(h.cfg.AllowedHosts) == 0 {
		return nil, &dispatch.Error{
			Message: "http not enabled",
			Fix:     "the host must be started with an allow list",
		}
	}

	hostname := parsed.Hostname()
	if !h.isHostAllowed(hostname) {
		return nil, &dispatch.Error{
			Message: "host not allowed: " + hostname,
			Fix:     "allowed hosts: " + strings.Join(h.cfg.AllowedHosts, ", "),
		}
	}

	var body io.Reader
	if bodyStr, ok := args["body"].(string); ok && bodyStr != "" {
		if int64(len(bodyStr)) > h.cfg.MaxBodySize {
			return nil, &dispatch.Error{Message: "request body exceeds max size", Code: "INVALID_INPUT"}
		}
		body = bytes.NewBufferString(bodyStr)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if headers, ok := args["headers"].(map[string]any); ok {
		for k, v := range headers {
			if vs, ok := v.(string); ok {
				req.Header.Set(k, vs)
			}
		}
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, h.cfg.MaxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	respHeaders := make(map[string]string)
	for k, v := range resp.Header {
		if len(v) > 0 {
			respHeaders[k] = v[0]
		}
	}

	return map[string]any{
		"status":  resp.StatusCode,
		"body":    string(respBody),
		"headers": respHeaders,
	}, nil
}

// Get is Request pinned to the GET method. The caller's args map is not
// modified; dispatch hands the same decoded map to every observer of a call.
func (h *HTTP) Get(ctx context.Context, args map[string]any) (any, error) {
	pinned := make(map[string]any, len(args)+1)
	for k, v := range args {
		pinned[k] = v
	}
	pinned["method"] = "GET"
	return h.Request(ctx, pinned)
}

func (h *HTTP) isHostAllowed(host string) bool {
	for _, allowed := range h.cfg.AllowedHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}
