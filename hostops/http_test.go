package hostops

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/scriptbox-dev/scriptbox/dispatch"
)

func okHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	})
}

func TestHTTPGetAllowedHost(t *testing.T) {
	server := httptest.NewServer(okHandler("hello from server"))
	defer server.Close()

	h := NewHTTP(HTTPConfig{AllowedHosts: []string{serverHost(t, server.URL)}})

	result, err := h.Get(context.Background(), map[string]any{"url": server.URL})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp := result.(map[string]any)
	if resp["status"] != 200 {
		t.Errorf("status = %v", resp["status"])
	}
	if resp["body"] != "hello from server" {
		t.Errorf("body = %q", resp["body"])
	}
}

func TestHTTPHostNotAllowed(t *testing.T) {
	h := NewHTTP(HTTPConfig{AllowedHosts: []string{"api.example.com"}})

	_, err := h.Get(context.Background(), map[string]any{"url": "http://evil.example.net/secrets"})
	if err == nil {
		t.Fatal("expected error")
	}
	var de *dispatch.Error
	if !errors.As(err, &de) {
		t.Fatalf("error type = %T", err)
	}
	if !strings.Contains(de.Message, "evil.example.net") {
		t.Errorf("message = %q", de.Message)
	}
	if !strings.Contains(de.Fix, "api.example.com") {
		t.Errorf("fix %q should list the allowed hosts", de.Fix)
	}
}

func TestHTTPDisabledWithoutAllowList(t *testing.T) {
	h := NewHTTP(HTTPConfig{})
	_, err := h.Get(context.Background(), map[string]any{"url": "http://example.com"})
	if err == nil {
		t.Fatal("empty allow list must disable http")
	}
}

func TestHTTPRejectsBadInput(t *testing.T) {
	h := NewHTTP(HTTPConfig{AllowedHosts: []string{"example.com"}})
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]any
	}{
		{"missing url", map[string]any{}},
		{"bad scheme", map[string]any{"url": "ftp://example.com/file"}},
		{"bad method", map[string]any{"url": "http://example.com", "method": "TRACE"}},
		{"url too long", map[string]any{"url": "http://example.com/" + strings.Repeat("x", DefaultMaxURLLength)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.Request(ctx, tt.args); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestHTTPBodySizeLimited(t *testing.T) {
	server := httptest.NewServer(okHandler(strings.Repeat("a", 100)))
	defer server.Close()

	h := NewHTTP(HTTPConfig{
		AllowedHosts: []string{serverHost(t, server.URL)},
		MaxBodySize:  10,
	})

	result, err := h.Get(context.Background(), map[string]any{"url": server.URL})
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body := result.(map[string]any)["body"].(string)
	if len(body) != 10 {
		t.Errorf("body length = %d, want truncated to 10", len(body))
	}
}

func TestHTTPGetLeavesArgsUntouched(t *testing.T) {
	server := httptest.NewServer(okHandler("ok"))
	defer server.Close()

	h := NewHTTP(HTTPConfig{AllowedHosts: []string{serverHost(t, server.URL)}})

	args := map[string]any{"url": server.URL}
	if _, err := h.Get(context.Background(), args); err != nil {
		t.Fatalf("get: %v", err)
	}
	if _, ok := args["method"]; ok {
		t.Error("get should not write method into the caller's args")
	}
}

func TestHTTPRegister(t *testing.T) {
	table := dispatch.NewTable()
	NewHTTP(HTTPConfig{AllowedHosts: []string{"example.com"}}).Register(table)

	for _, key := range []string{"http.request", "http.get"} {
		if _, ok := table.Lookup(key); !ok {
			t.Errorf("%s not registered", key)
		}
	}
}

func serverHost(t *testing.T, rawURL string) string {
	t.Helper()
	parsed, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return parsed.Hostname()
}
