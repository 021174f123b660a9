// Package identity derives store lookup keys from HTTP requests.
package identity

import (
	"fmt"
	"net/http"
	"strings"
)

const methodSeparator = " "

// FromRequest returns the identity of a request: method plus request URI
// (path and query). Headers are not part of the identity.
func FromRequest(r *http.Request) string {
	return r.Method + methodSeparator + r.URL.RequestURI()
}

// FromPath returns the identity of a plain GET for the given path.
func FromPath(path string) string {
	return http.MethodGet + methodSeparator + path
}

// ToRequest generates a request equal, identity-wise, to the request that
// produced the given identity. It returns an error if the identity is
// malformed.
func ToRequest(id string) (*http.Request, error) {
	method, uri, found := strings.Cut(id, methodSeparator)
	if !found {
		return nil, fmt.Errorf("malformed identity: %s", id)
	}
	return http.NewRequest(method, uri, nil)
}
