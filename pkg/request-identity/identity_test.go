package identity

import (
	"net/http"
	"testing"
)

func TestFromRequestIncludesQuery(t *testing.T) {
	req, err := http.NewRequest("GET", "http://app.local/search?q=cache", nil)
	if err != nil {
		t.Fatal(err)
	}
	if id := FromRequest(req); id != "GET /search?q=cache" {
		t.Fatalf("Identity is %q", id)
	}
}

func TestFromPath(t *testing.T) {
	if id := FromPath("/index.html"); id != "GET /index.html" {
		t.Fatalf("Identity is %q", id)
	}
}

func TestToRequestRoundTrip(t *testing.T) {
	req, err := ToRequest("GET /search?q=cache")
	if err != nil {
		t.Fatal(err)
	}
	if req.Method != "GET" || req.URL.RequestURI() != "/search?q=cache" {
		t.Fatalf("Request is %s %s", req.Method, req.URL.RequestURI())
	}
	if got := FromRequest(req); got != "GET /search?q=cache" {
		t.Fatalf("Round-tripped identity is %q", got)
	}
}

func TestToRequestMalformed(t *testing.T) {
	if _, err := ToRequest("no-separator"); err == nil {
		t.Fatal("Expected error for malformed identity")
	}
}
