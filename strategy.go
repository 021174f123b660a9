package offlineagent

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	identity "github.com/offline-agent/offline-agent/pkg/request-identity"
	snapshot "github.com/offline-agent/offline-agent/pkg/response-snapshot"
	"github.com/offline-agent/offline-agent/store"
)

// Paths tried, in order, when a navigation request cannot be satisfied
// from the store or the network.
var htmlFallbackPaths = []string{"/", "/index.html"}

// resolve answers a same-origin GET request cache-first:
// a stored snapshot is returned immediately and refreshed in the
// background; on a miss the origin is fetched synchronously and the
// response stored before being returned; when both store and network
// fail, the fallback chain produces the response.
//
// No failure escapes to the client: the fallback chain is the backstop
// for any error on this path.
func (a *Agent) resolve(w http.ResponseWriter, r *http.Request) {
	defer a.recoverToFallback(w, r)

	id := identity.FromRequest(r)
	handle := a.lifecycle.Current()

	if handle != nil {
		if stored, ok, err := handle.Match(id); err != nil {
			a.log.Error().Err(err).Str("identity", id).Msg("Could not read from store")
		} else if ok {
			if snap, err := snapshot.Decode(stored); err != nil {
				a.log.Error().Err(err).Str("identity", id).Msg("Could not decode stored snapshot")
			} else {
				a.sendStored(w, r, snap)
				// detached refresh: never awaited, failures discarded
				go a.refresh(handle, id)
				return
			}
		}
	}

	snap, err := a.fetcher.Fetch(r.Context(), r.URL.RequestURI())
	if err != nil {
		a.log.Debug().Err(err).Str("identity", id).Msg("Origin fetch failed")
		a.fallback(w, r)
		return
	}
	if isOK(snap.StatusCode) && handle != nil {
		if encoded, err := snapshot.Encode(snap); err != nil {
			a.log.Error().Err(err).Str("identity", id).Msg("Could not encode snapshot")
		} else if err := handle.Put(id, encoded); err != nil {
			a.log.Error().Err(err).Str("identity", id).Msg("Could not write to store")
		}
	}
	cs := CacheStatus{}
	cs.Forward(FwdReasonMiss)
	w.Header().Set("Cache-Status", cs.String())
	if err := snapshot.Write(w, snap); err != nil {
		a.log.Error().Err(err).Msg("Could not write response body to client")
	}
	a.logRequest(r, cs)
}

// refresh refetches the entry for id and overwrites it on a 2xx response.
// Concurrent refreshes for the same identity are collapsed into one fetch.
// Failures are logged at debug level and otherwise discarded; nothing
// observes the outcome.
func (a *Agent) refresh(handle store.Handle, id string) {
	a.refreshGroup.Do(id, func() (interface{}, error) {
		snap, err := a.fetcher.fetchIdentity(context.Background(), id)
		if err != nil {
			a.log.Debug().Err(err).Str("identity", id).Msg("Background refresh failed")
			return nil, nil
		}
		if !isOK(snap.StatusCode) {
			a.log.Debug().Int("status", snap.StatusCode).Str("identity", id).Msg("Background refresh not stored")
			return nil, nil
		}
		encoded, err := snapshot.Encode(snap)
		if err != nil {
			a.log.Debug().Err(err).Str("identity", id).Msg("Could not encode refreshed snapshot")
			return nil, nil
		}
		if err := handle.Put(id, encoded); err != nil {
			a.log.Debug().Err(err).Str("identity", id).Msg("Could not store refreshed snapshot")
		}
		return nil, nil
	})
}

func (a *Agent) sendStored(w http.ResponseWriter, r *http.Request, snap snapshot.Snapshot) {
	cs := CacheStatus{}
	cs.Hit()
	w.Header().Set("Cache-Status", cs.String())
	if err := snapshot.Write(w, snap); err != nil {
		a.log.Error().Err(err).Msg("Could not write response body to client")
	}
	a.logRequest(r, cs)
}

// fallback serves a stored root document for navigation requests and the
// synthetic offline response for everything else.
func (a *Agent) fallback(w http.ResponseWriter, r *http.Request) {
	if acceptsHTML(r) {
		if handle := a.lifecycle.Current(); handle != nil {
			for _, path := range htmlFallbackPaths {
				stored, ok, err := handle.Match(identity.FromPath(path))
				if err != nil || !ok {
					continue
				}
				snap, err := snapshot.Decode(stored)
				if err != nil {
					continue
				}
				cs := CacheStatus{}
				cs.Hit()
				cs.Detail("fallback")
				w.Header().Set("Cache-Status", cs.String())
				if err := snapshot.Write(w, snap); err != nil {
					a.log.Error().Err(err).Msg("Could not write fallback body to client")
				}
				a.logRequest(r, cs)
				return
			}
		}
	}
	a.sendOffline(w, r)
}

type offlineBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// sendOffline writes the terminal offline response.
func (a *Agent) sendOffline(w http.ResponseWriter, r *http.Request) {
	cs := CacheStatus{}
	cs.Forward(FwdReasonMiss)
	cs.Detail("offline")
	w.Header().Set("Cache-Status", cs.String())
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusServiceUnavailable)
	body := offlineBody{
		Error:     "offline",
		Message:   "Network unavailable and no cached response exists for this request.",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		a.log.Error().Err(err).Msg("Could not write offline body to client")
	}
	a.logRequest(r, cs)
}

// recoverToFallback turns a panic on the resolve path into a fallback
// response so that a failure never reaches the client unanswered.
func (a *Agent) recoverToFallback(w http.ResponseWriter, r *http.Request) {
	if err := recover(); err != nil {
		a.log.Error().Interface("panic", err).Str("url", r.URL.String()).Msg("Recovered while resolving request")
		a.fallback(w, r)
	}
}

func isOK(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

func acceptsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func (a *Agent) logRequest(r *http.Request, cs CacheStatus) {
	isHit := 0
	if cs.hit {
		isHit = 1
	}
	a.log.Debug().
		Str("method", r.Method).
		Str("url", r.URL.String()).
		Str("status", cs.String()).
		Int("hit", isHit).
		Msg("Sending response to client")
}
