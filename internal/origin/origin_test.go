package origin

import (
	"net/http/httptest"
	"testing"
)

func TestNormalizeHeader(t *testing.T) {
	t.Run("normalizes scheme host and default port", func(t *testing.T) {
		normalized, host, ok := NormalizeHeader("HTTPS://Example.COM:443")
		if !ok {
			t.Fatalf("expected ok=true")
		}
		if normalized != "https://example.com" {
			t.Fatalf("normalized=%q, want %q", normalized, "https://example.com")
		}
		if host != "example.com" {
			t.Fatalf("host=%q, want %q", host, "example.com")
		}
	})

	t.Run("keeps non-default port and allows trailing slash", func(t *testing.T) {
		normalized, host, ok := NormalizeHeader("http://localhost:5173/")
		if !ok {
			t.Fatalf("expected ok=true")
		}
		if normalized != "http://localhost:5173" || host != "localhost:5173" {
			t.Fatalf("normalized=%q host=%q", normalized, host)
		}
	})

	t.Run("brackets ipv6", func(t *testing.T) {
		normalized, _, ok := NormalizeHeader("http://[::1]:8080")
		if !ok || normalized != "http://[::1]:8080" {
			t.Fatalf("normalized=%q ok=%v", normalized, ok)
		}
	})

	t.Run("allows null origin", func(t *testing.T) {
		normalized, host, ok := NormalizeHeader("null")
		if !ok || normalized != "null" || host != "" {
			t.Fatalf("normalized=%q host=%q ok=%v", normalized, host, ok)
		}
	})

	t.Run("rejects malformed origins", func(t *testing.T) {
		cases := []string{
			"",
			"ftp://example.com",
			"https://example.com/path",
			"https://example.com/?q=1",
			"https://user@example.com",
			"https://example.com/#frag",
			"https://example.com:0",
			"https://example.com:99999",
			"https://[::1",
			"example.com",
		}
		for _, c := range cases {
			if _, _, ok := NormalizeHeader(c); ok {
				t.Fatalf("expected ok=false for %q", c)
			}
		}
	})
}

func TestIsAllowed(t *testing.T) {
	normalized, host, ok := NormalizeHeader("https://app.example.com")
	if !ok {
		t.Fatalf("NormalizeHeader ok=false")
	}

	t.Run("empty list is same host only", func(t *testing.T) {
		if !IsAllowed(normalized, host, "app.example.com", nil) {
			t.Fatalf("expected same host to be allowed")
		}
		if !IsAllowed(normalized, host, "APP.example.com:443", nil) {
			t.Fatalf("expected default port to match")
		}
		if IsAllowed(normalized, host, "relay.example.com", nil) {
			t.Fatalf("expected other host to be rejected")
		}
	})

	t.Run("wildcard", func(t *testing.T) {
		if !IsAllowed(normalized, host, "whatever:1234", []string{Wildcard}) {
			t.Fatalf("expected * to allow any origin")
		}
	})

	t.Run("explicit list", func(t *testing.T) {
		if !IsAllowed(normalized, host, "relay.example.com", []string{"https://app.example.com"}) {
			t.Fatalf("expected listed origin to be allowed")
		}
		if IsAllowed(normalized, host, "relay.example.com", []string{"https://other.example.com"}) {
			t.Fatalf("expected unlisted origin to be rejected")
		}
	})

	t.Run("null only when listed", func(t *testing.T) {
		if IsAllowed("null", "", "relay.example.com", nil) {
			t.Fatalf("expected null to fail the same-host check")
		}
		if !IsAllowed("null", "", "relay.example.com", []string{"null"}) {
			t.Fatalf("expected listed null to be allowed")
		}
	})
}

func TestCheckRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "http://relay.example.com/health", nil)
	if _, ok := CheckRequest(r, nil); !ok {
		t.Fatalf("request without Origin should pass")
	}

	r.Header.Set("Origin", "http://evil.example.com")
	if _, ok := CheckRequest(r, nil); ok {
		t.Fatalf("cross-origin request should fail the default policy")
	}

	normalized, ok := CheckRequest(r, []string{"http://evil.example.com"})
	if !ok || normalized != "http://evil.example.com" {
		t.Fatalf("normalized=%q ok=%v", normalized, ok)
	}

	r.Header.Set("Origin", "not a url")
	if _, ok := CheckRequest(r, []string{Wildcard}); ok {
		t.Fatalf("malformed Origin should fail even with a wildcard")
	}
}
