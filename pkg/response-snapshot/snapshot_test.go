package snapshot

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	header := make(http.Header)
	header.Set("Content-Type", "text/html")
	header.Set("Etag", `"abc"`)
	s := Snapshot{
		StatusCode: 200,
		Header:     header,
		Body:       []byte("<html>hello</html>"),
		FetchedAt:  time.Unix(1700000000, 0),
	}
	encoded, err := Encode(s)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.StatusCode != 200 {
		t.Fatalf("Status is %d", decoded.StatusCode)
	}
	if !bytes.Equal(decoded.Body, s.Body) {
		t.Fatalf("Body is %s", decoded.Body)
	}
	if ct := decoded.Header.Get("Content-Type"); ct != "text/html" {
		t.Fatalf("Content-Type is %s", ct)
	}
	if etag := decoded.Header.Get("Etag"); etag != `"abc"` {
		t.Fatalf("Etag is %s", etag)
	}
	if !decoded.FetchedAt.Equal(s.FetchedAt) {
		t.Fatalf("FetchedAt is %v", decoded.FetchedAt)
	}
	if decoded.Header.Get("Offline-Agent-Fetched-At") != "" {
		t.Fatal("Internal header leaked into decoded snapshot")
	}
}

func TestCaptureClosesAndCopiesBody(t *testing.T) {
	res := &http.Response{
		StatusCode: 503,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader([]byte(`{"error":"offline"}`))),
	}
	s, err := Capture(res)
	if err != nil {
		t.Fatal(err)
	}
	if s.StatusCode != 503 || string(s.Body) != `{"error":"offline"}` {
		t.Fatalf("Snapshot is %d %s", s.StatusCode, s.Body)
	}
	if s.FetchedAt.IsZero() {
		t.Fatal("FetchedAt not set")
	}
}

func TestWriteSendsStatusHeadersAndBody(t *testing.T) {
	s := Snapshot{
		StatusCode: 201,
		Header:     http.Header{"X-Test": []string{"yes"}},
		Body:       []byte("created"),
	}
	rr := httptest.NewRecorder()
	if err := Write(rr, s); err != nil {
		t.Fatal(err)
	}
	if rr.Code != 201 {
		t.Fatalf("Status is %d", rr.Code)
	}
	if rr.Header().Get("X-Test") != "yes" {
		t.Fatalf("Header is %v", rr.Header())
	}
	if body, err := io.ReadAll(rr.Result().Body); err != nil || string(body) != "created" {
		t.Fatalf("Body is %s", body)
	}
}
