// Package snapshot converts HTTP responses to and from stored byte form.
//
// A snapshot is the HTTP/1.1 wire representation of the response, with the
// fetch time carried in an extra header that is stripped on decode.
package snapshot

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"strconv"
	"time"
)

const fetchedAtHeaderName = "Offline-Agent-Fetched-At"

// Snapshot is an immutable copy of a fetched response.
type Snapshot struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	// The value of the clock at the time the response was received.
	FetchedAt time.Time
}

// Capture reads and closes the body of res and returns its snapshot.
func Capture(res *http.Response) (Snapshot, error) {
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		StatusCode: res.StatusCode,
		Header:     res.Header.Clone(),
		Body:       body,
		FetchedAt:  time.Now(),
	}, nil
}

// Encode returns the stored byte form of the snapshot.
func Encode(s Snapshot) ([]byte, error) {
	header := s.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Set(fetchedAtHeaderName, strconv.FormatInt(s.FetchedAt.Unix(), 10))
	res := &http.Response{
		StatusCode:    s.StatusCode,
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(s.Body)),
		ContentLength: int64(len(s.Body)),
	}
	buf := &bytes.Buffer{}
	if err := res.Write(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses stored bytes back into a snapshot.
func Decode(b []byte) (Snapshot, error) {
	res, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(b)), nil)
	if err != nil {
		return Snapshot{}, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	if err != nil {
		return Snapshot{}, err
	}
	s := Snapshot{
		StatusCode: res.StatusCode,
		Header:     res.Header,
		Body:       body,
	}
	if ts, err := strconv.ParseInt(res.Header.Get(fetchedAtHeaderName), 10, 64); err == nil {
		s.FetchedAt = time.Unix(ts, 0)
	}
	s.Header.Del(fetchedAtHeaderName)
	return s, nil
}

// Write sends the snapshot to the given response writer.
func Write(w http.ResponseWriter, s Snapshot) error {
	for name, values := range s.Header {
		for _, value := range values {
			w.Header().Add(name, value)
		}
	}
	w.WriteHeader(s.StatusCode)
	_, err := w.Write(s.Body)
	return err
}
